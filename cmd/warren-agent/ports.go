package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/cuemby/warren-agent/pkg/agentconfig"
	"github.com/cuemby/warren-agent/pkg/portalloc"
	"github.com/spf13/cobra"
)

var portsCmd = &cobra.Command{
	Use:   "ports",
	Short: "Inspect and dry-run the port allocator",
}

var portsCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Dry-run the allocator against the configured dynamic range",
	Long: `Simulates one allocation pass without touching persisted state.
Each --port flag describes a logical port as name:internal:protocol, or
name:internal:protocol:requested to pin a host port. --used lists host
ports to treat as already taken.`,
	RunE: runPortsCheck,
}

func init() {
	portsCheckCmd.Flags().StringArray("port", nil, "Port spec name:internal:protocol[:requested] (repeatable)")
	portsCheckCmd.Flags().String("used", "", "Comma-separated host ports to treat as already in use")
	portsCmd.AddCommand(portsCheckCmd)
}

func runPortsCheck(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := agentconfig.Load(configPath)
	if err != nil {
		return err
	}

	portFlags, _ := cmd.Flags().GetStringArray("port")
	usedFlag, _ := cmd.Flags().GetString("used")

	specs := make(map[string]portalloc.Spec, len(portFlags))
	for _, raw := range portFlags {
		name, spec, err := parsePortFlag(raw)
		if err != nil {
			return err
		}
		specs[name] = spec
	}

	used := map[int]bool{}
	if usedFlag != "" {
		for _, s := range strings.Split(usedFlag, ",") {
			p, err := strconv.Atoi(strings.TrimSpace(s))
			if err != nil {
				return fmt.Errorf("invalid --used port %q: %w", s, err)
			}
			used[p] = true
		}
	}

	allocator := portalloc.New(portalloc.Range{Lo: cfg.Ports.Range.Lo, Hi: cfg.Ports.Range.Hi})
	result, err := allocator.Allocate(specs, used)
	if err != nil {
		return err
	}

	fmt.Printf("range: %d-%d\n", cfg.Ports.Range.Lo, cfg.Ports.Range.Hi)
	for name, host := range result {
		fmt.Printf("%s -> %d (container %d/%s)\n", name, host, specs[name].Internal, specs[name].Protocol)
	}
	return nil
}

func parsePortFlag(raw string) (string, portalloc.Spec, error) {
	parts := strings.Split(raw, ":")
	if len(parts) < 3 {
		return "", portalloc.Spec{}, fmt.Errorf("invalid --port %q: want name:internal:protocol[:requested]", raw)
	}
	internal, err := strconv.Atoi(parts[1])
	if err != nil {
		return "", portalloc.Spec{}, fmt.Errorf("invalid --port %q: internal port: %w", raw, err)
	}

	spec := portalloc.Spec{Internal: internal, Protocol: parts[2]}
	if len(parts) == 4 {
		requested, err := strconv.Atoi(parts[3])
		if err != nil {
			return "", portalloc.Spec{}, fmt.Errorf("invalid --port %q: requested port: %w", raw, err)
		}
		spec.Requested = &requested
	}

	return parts[0], spec, nil
}
