package supervisor

import "context"

// Status is the observed lifecycle state of the container a Supervisor owns.
type Status string

const (
	StatusPullingImage Status = "pulling_image"
	StatusStarting     Status = "starting"
	StatusRunning      Status = "running"
	StatusStopping     Status = "stopping"
	StatusStopped      Status = "stopped"
	StatusFailed       Status = "failed"
)

// Supervisor is a per-job actor that owns one container's lifecycle. The
// agent commands it with Start/Stop, observes it with IsStarting/IsStopping/
// IsDone/Status, and releases it with Close once it has confirmed the
// container is stopped. All methods must be safe to call concurrently with
// each other; the agent calls them only from its single reactor worker, but
// a Supervisor's internal goroutines may update observed state at any time.
type Supervisor interface {
	// Start requests the container be running. Idempotent: calling it while
	// already starting or running has no additional effect.
	Start(ctx context.Context) error

	// Stop requests the container be halted. Idempotent.
	Stop(ctx context.Context) error

	// Close releases supervisor resources (runtime handles, goroutines,
	// watchers). The agent calls Close only once IsDone() && Status() ==
	// StatusStopped. Close returns once resources are released.
	Close(ctx context.Context) error

	// IsStarting reports whether a Start has been requested and not yet
	// superseded by a Stop.
	IsStarting() bool

	// IsStopping reports whether a Stop has been requested and not yet
	// confirmed.
	IsStopping() bool

	// IsDone reports whether the supervisor has reached a terminal
	// observation for its current command (stopped or failed).
	IsDone() bool

	// Status reports the last observed container state.
	Status() Status
}

// Factory builds a Supervisor bound to a specific job and its allocated
// ports. The core calls Factory.Create but never constructs a Supervisor
// directly, and never calls Create again for the same job id until the
// prior Supervisor has been observed done+stopped and Close has returned
// (see the agent package's no-duplicate-ownership invariant).
type Factory interface {
	Create(jobID string, job Job, ports map[string]int) (Supervisor, error)
}

// Job is the minimal, runtime-agnostic description of what a Supervisor
// runs. It mirrors agent.Job's fields without importing pkg/agent, so this
// package stays a leaf with no dependency on the core.
type Job struct {
	Image   string
	Command []string
	Env     []string
	Ports   map[string]PortSpec
}

// PortSpec mirrors agent.PortSpec's Internal/Protocol fields: the host port
// itself is passed separately to Factory.Create, already allocated, keyed
// by the same port name.
type PortSpec struct {
	Internal int
	Protocol string
}

// FactoryFunc adapts a plain function to the Factory interface.
type FactoryFunc func(jobID string, job Job, ports map[string]int) (Supervisor, error)

func (f FactoryFunc) Create(jobID string, job Job, ports map[string]int) (Supervisor, error) {
	return f(jobID, job, ports)
}
