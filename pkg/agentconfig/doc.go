// Package agentconfig loads the node agent's YAML configuration file:
// node identity, reactor timing, the dynamic port range, where the
// executions Cell is persisted, how to reach the control plane, the
// containerd socket, and logging/metrics listen settings.
package agentconfig
