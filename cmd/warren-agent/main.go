package main

import (
	"fmt"
	"os"

	"github.com/cuemby/warren-agent/pkg/log"
	"github.com/spf13/cobra"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "warren-agent",
	Short: "Node-local container reconciliation agent",
	Long: `warren-agent runs a single node's container reconciliation loop: it
reads desired state from a control plane (or an in-memory model in
standalone mode), durably persists port and goal assignments, and drives
containerd to match.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"warren-agent version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().StringP("config", "c", "/etc/warren-agent/agent.yaml", "Path to the agent's YAML config file")
	rootCmd.PersistentFlags().String("log-level", "", "Override log.level from the config file")
	rootCmd.PersistentFlags().Bool("log-json", false, "Force JSON log output regardless of the config file")

	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(portsCmd)
	rootCmd.AddCommand(stateCmd)
	rootCmd.AddCommand(certCmd)
}

func initLogging() {
	// Config-driven log settings are applied once the config file is
	// loaded in the run subcommand's RunE; this bootstraps a reasonable
	// default from the flags alone, which is all the other subcommands use.
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")

	level := log.InfoLevel
	if logLevel != "" {
		level = log.Level(logLevel)
	}
	log.Init(log.Config{Level: level, JSONOutput: logJSON})
}
