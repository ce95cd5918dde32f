// Package network publishes container ports onto the host network via
// iptables, so a job's allocated host port reaches its container's internal
// port regardless of which bridge/CNI the container runtime set up.
package network

import (
	"fmt"
	"os/exec"
	"strings"
	"sync"
)

// PortBinding is one port to publish: HostPort is what was allocated on the
// node, ContainerPort is what the process inside the container listens on.
type PortBinding struct {
	Name          string
	HostPort      int
	ContainerPort int
	Protocol      string // "tcp" or "udp"; defaults to "tcp"
}

// HostPortPublisher manages host-mode port publishing using iptables DNAT,
// keyed by job ID so a supervisor's Close can unpublish exactly its rules.
type HostPortPublisher struct {
	mu        sync.Mutex
	published map[string]publishedEntry // jobID -> entry
}

type publishedEntry struct {
	containerIP string
	bindings    []PortBinding
}

// NewHostPortPublisher creates a new host port publisher.
func NewHostPortPublisher() *HostPortPublisher {
	return &HostPortPublisher{
		published: make(map[string]publishedEntry),
	}
}

// Publish sets up iptables rules forwarding each binding's host port to
// containerIP:ContainerPort. On partial failure it unwinds the rules it
// already created for this call before returning the error.
func (p *HostPortPublisher) Publish(jobID, containerIP string, bindings []PortBinding) error {
	if len(bindings) == 0 {
		return nil
	}

	var done []PortBinding
	for _, b := range bindings {
		if err := setupPortForwarding(containerIP, b); err != nil {
			for _, d := range done {
				removePortForwarding(containerIP, d)
			}
			return fmt.Errorf("failed to publish port %s (%d->%d): %w", b.Name, b.HostPort, b.ContainerPort, err)
		}
		done = append(done, b)
	}

	p.mu.Lock()
	p.published[jobID] = publishedEntry{containerIP: containerIP, bindings: bindings}
	p.mu.Unlock()

	return nil
}

// Unpublish removes every iptables rule a prior Publish call created for
// jobID. Safe to call on a job with nothing published.
func (p *HostPortPublisher) Unpublish(jobID string) {
	p.mu.Lock()
	entry, ok := p.published[jobID]
	delete(p.published, jobID)
	p.mu.Unlock()

	if !ok {
		return
	}
	for _, b := range entry.bindings {
		removePortForwarding(entry.containerIP, b)
	}
}

// Published returns the bindings currently published for a job, for tests
// and diagnostics.
func (p *HostPortPublisher) Published(jobID string) []PortBinding {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]PortBinding(nil), p.published[jobID].bindings...)
}

func setupPortForwarding(containerIP string, b PortBinding) error {
	protocol := strings.ToLower(b.Protocol)
	if protocol == "" {
		protocol = "tcp"
	}

	dnat := []string{
		"-t", "nat",
		"-A", "PREROUTING",
		"-p", protocol,
		"--dport", fmt.Sprintf("%d", b.HostPort),
		"-j", "DNAT",
		"--to-destination", fmt.Sprintf("%s:%d", containerIP, b.ContainerPort),
	}
	if err := runIPTables(dnat); err != nil {
		return fmt.Errorf("failed to add DNAT rule: %w", err)
	}

	masq := []string{
		"-t", "nat",
		"-A", "POSTROUTING",
		"-p", protocol,
		"-d", containerIP,
		"--dport", fmt.Sprintf("%d", b.ContainerPort),
		"-j", "MASQUERADE",
	}
	if err := runIPTables(masq); err != nil {
		removePortForwarding(containerIP, b)
		return fmt.Errorf("failed to add MASQUERADE rule: %w", err)
	}

	forward := []string{
		"-A", "FORWARD",
		"-p", protocol,
		"-d", containerIP,
		"--dport", fmt.Sprintf("%d", b.ContainerPort),
		"-j", "ACCEPT",
	}
	if err := runIPTables(forward); err != nil {
		removePortForwarding(containerIP, b)
		return fmt.Errorf("failed to add FORWARD rule: %w", err)
	}

	return nil
}

func removePortForwarding(containerIP string, b PortBinding) {
	protocol := strings.ToLower(b.Protocol)
	if protocol == "" {
		protocol = "tcp"
	}

	_ = runIPTables([]string{
		"-t", "nat", "-D", "PREROUTING",
		"-p", protocol,
		"--dport", fmt.Sprintf("%d", b.HostPort),
		"-j", "DNAT",
		"--to-destination", fmt.Sprintf("%s:%d", containerIP, b.ContainerPort),
	})
	_ = runIPTables([]string{
		"-t", "nat", "-D", "POSTROUTING",
		"-p", protocol,
		"-d", containerIP,
		"--dport", fmt.Sprintf("%d", b.ContainerPort),
		"-j", "MASQUERADE",
	})
	_ = runIPTables([]string{
		"-D", "FORWARD",
		"-p", protocol,
		"-d", containerIP,
		"--dport", fmt.Sprintf("%d", b.ContainerPort),
		"-j", "ACCEPT",
	})
}

func runIPTables(args []string) error {
	cmd := exec.Command("iptables", args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("iptables failed: %w (output: %s)", err, string(output))
	}
	return nil
}
