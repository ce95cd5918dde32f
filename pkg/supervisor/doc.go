// Package supervisor defines the contract the reconciliation agent uses to
// own a single container's lifecycle.
//
// The agent never imports a concrete runtime. It depends only on the
// Supervisor interface and a Factory that builds one. Concrete
// implementations (pkg/supervisor/containerd for production, pkg/supervisor/fake
// for tests) live in subpackages so the core stays free of containerd,
// grpc, or any other transport/runtime dependency.
package supervisor
