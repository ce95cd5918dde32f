/*
Package network provides host port publishing for agent-managed containers
using iptables.

The network package implements host mode port publishing, exposing a job's
container ports directly on the node's network interface. It uses iptables
DNAT and MASQUERADE rules to forward traffic from an allocated host port to
the container's IP, without any overlay network.

# Architecture

	┌────────────────── HOST PORT PUBLISHING ──────────────────┐
	│                                                            │
	│  ┌────────────────────────────────────────────┐          │
	│  │      HostPortPublisher                      │          │
	│  │  - Tracks published bindings per job         │          │
	│  │  - Manages iptables rule lifecycle          │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │         Port Publishing Flow                │          │
	│  │                                              │          │
	│  │  1. Client → Host Port (e.g., :31000)       │          │
	│  │  2. PREROUTING: DNAT rule intercepts         │          │
	│  │  3. Rewrite dest: Container IP:Port          │          │
	│  │  4. FORWARD: Allow packet                    │          │
	│  │  5. POSTROUTING: MASQUERADE for return       │          │
	│  │  6. Container receives packet                │          │
	│  └────────────────────────────────────────────┘           │
	└────────────────────────────────────────────────────────┘

# Usage

	publisher := network.NewHostPortPublisher()

	bindings := []network.PortBinding{
		{Name: "http", HostPort: 31000, ContainerPort: 80, Protocol: "tcp"},
	}

	if err := publisher.Publish(jobID, containerIP, bindings); err != nil {
		log.Error().Err(err).Msg("failed to publish ports")
	}

	// ... container runs ...

	publisher.Unpublish(jobID)

# Integration Points

This package is used by the containerd supervisor once a container's task
has started and its IP is known (via pkg/runtime's GetContainerIP), to wire
the job's already-allocated host ports (from pkg/portalloc) through to the
container's declared internal ports.

# Limitations

  - No IPv6 support (only IPv4)
  - No port conflict detection (the caller's port allocator owns that)
  - Rule cleanup on crash requires the node to still be reachable; a hard
    node failure leaves orphaned rules until the next reboot
*/
package network
