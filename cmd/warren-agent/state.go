package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/cuemby/warren-agent/pkg/agent"
	"github.com/cuemby/warren-agent/pkg/agentconfig"
	"github.com/cuemby/warren-agent/pkg/cell"
	"github.com/cuemby/warren-agent/pkg/cell/boltcell"
	"github.com/cuemby/warren-agent/pkg/cell/filecell"
	"github.com/spf13/cobra"
)

var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Inspect and repair the persisted execution set",
}

var stateShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the currently persisted execution set",
	RunE:  runStateShow,
}

var stateRepairCmd = &cobra.Command{
	Use:   "repair",
	Short: "Reset an incompatible or corrupt execution set to empty",
	Long: `If the persisted execution set cannot be read because its stored
version does not match what this binary understands (cell.ErrStateIncompatible),
repair moves it aside to <path>.incompatible and starts from an empty set
in its place, at the cost of forgetting
every job's allocated ports until the next reconciliation rebuilds them.
Refuses to run without --force.`,
	RunE: runStateRepair,
}

func init() {
	stateRepairCmd.Flags().Bool("force", false, "Actually perform the repair instead of only reporting what would happen")
	stateCmd.AddCommand(stateShowCmd)
	stateCmd.AddCommand(stateRepairCmd)
}

// closableCell is the subset of cell.Cell[agent.ExecutionSet] plus Close
// that both boltcell and filecell implement.
type closableCell interface {
	cell.Cell[agent.ExecutionSet]
	Close() error
}

func openExecutionsCell(path string) (closableCell, error) {
	if filepath.Ext(path) == ".db" {
		return boltcell.Open[agent.ExecutionSet](path, agent.ExecutionSet{})
	}
	return filecell.Open[agent.ExecutionSet](path, agent.ExecutionSet{})
}

func moveAside(path, backupPath string) error {
	return os.Rename(path, backupPath)
}

func runStateShow(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := agentconfig.Load(configPath)
	if err != nil {
		return err
	}

	c, err := openExecutionsCell(cfg.Exec.Path)
	if err != nil {
		if errors.Is(err, cell.ErrStateIncompatible) {
			return fmt.Errorf("persisted state at %s is incompatible with this binary: %w (try: warren-agent state repair --force)", cfg.Exec.Path, err)
		}
		return err
	}
	defer c.Close()

	out, err := json.MarshalIndent(c.Get(), "", "  ")
	if err != nil {
		return fmt.Errorf("encode execution set: %w", err)
	}
	fmt.Println(string(out))
	return nil
}

func runStateRepair(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := agentconfig.Load(configPath)
	if err != nil {
		return err
	}
	force, _ := cmd.Flags().GetBool("force")

	c, openErr := openExecutionsCell(cfg.Exec.Path)
	if openErr == nil {
		defer c.Close()
		fmt.Printf("persisted state at %s is readable (%d executions); nothing to repair\n", cfg.Exec.Path, len(c.Get()))
		return nil
	}

	if !errors.Is(openErr, cell.ErrStateIncompatible) {
		return openErr
	}

	fmt.Printf("persisted state at %s is incompatible: %v\n", cfg.Exec.Path, openErr)
	if !force {
		fmt.Println("re-run with --force to discard it and start from an empty execution set")
		return nil
	}

	// boltcell/filecell only report incompatibility from Open, and every
	// Open reads the existing envelope, so the repair moves the unreadable
	// file aside and lets the normal Open start from an empty set.
	backupPath := cfg.Exec.Path + ".incompatible"
	if err := moveAside(cfg.Exec.Path, backupPath); err != nil {
		return fmt.Errorf("repair: %w", err)
	}

	fresh, err := openExecutionsCell(cfg.Exec.Path)
	if err != nil {
		return fmt.Errorf("repair: reopen after moving aside failed: %w", err)
	}
	defer fresh.Close()

	fmt.Printf("moved incompatible state to %s and started a fresh empty execution set\n", backupPath)
	return nil
}
