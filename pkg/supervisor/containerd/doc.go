// Package containerd implements supervisor.Supervisor against a real
// containerd daemon: pull image, create container, start its task,
// publish host ports via iptables DNAT, and poll task status until it
// exits or Stop is requested. Grounded on the node runtime wrapper and the
// worker's per-container execution loop, generalized from one-task-per-
// worker-process to one-supervisor-per-job under the agent's reconciler.
package containerd
