package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cuemby/warren-agent/pkg/agent"
	"github.com/cuemby/warren-agent/pkg/agentconfig"
	"github.com/cuemby/warren-agent/pkg/log"
	"github.com/cuemby/warren-agent/pkg/metrics"
	"github.com/cuemby/warren-agent/pkg/model/localmodel"
	"github.com/cuemby/warren-agent/pkg/model/rpcmodel"
	"github.com/cuemby/warren-agent/pkg/portalloc"
	"github.com/cuemby/warren-agent/pkg/security"
	"github.com/cuemby/warren-agent/pkg/supervisor/containerd"
	"github.com/spf13/cobra"
)

// certCheckInterval is how often the daemon checks its own mTLS material
// for impending expiry while running.
const certCheckInterval = time.Hour

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the reconciliation agent",
	RunE:  runRun,
}

func runRun(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := agentconfig.Load(configPath)
	if err != nil {
		return err
	}

	level := log.Level(cfg.Log.Level)
	if override, _ := cmd.Flags().GetString("log-level"); override != "" {
		level = log.Level(override)
	}
	jsonOut := cfg.Log.JSON
	if forced, _ := cmd.Flags().GetBool("log-json"); forced {
		jsonOut = true
	}
	log.Init(log.Config{Level: level, JSONOutput: jsonOut})

	logger := log.WithComponent("warren-agent")
	metrics.SetVersion(Version)

	var model agent.Model
	if cfg.Model.Address != "" {
		client, err := rpcmodel.Dial(cfg.Model.Address, cfg.NodeID, cfg.Model.TLS.CertDir)
		if err != nil {
			return fmt.Errorf("connect to control plane: %w", err)
		}
		defer client.Close()
		model = client
		metrics.RegisterComponent("model", true, "connected to "+cfg.Model.Address)

		certStop := make(chan struct{})
		go watchCertRotation(cfg.Model.TLS.CertDir, certStop)
		defer close(certStop)
	} else {
		logger.Warn().Msg("model.address not set, running in standalone mode with an in-memory model")
		model = localmodel.New()
		metrics.RegisterComponent("model", true, "standalone in-memory model")
	}

	executions, err := openExecutionsCell(cfg.Exec.Path)
	if err != nil {
		return fmt.Errorf("open executions cell: %w", err)
	}
	defer executions.Close()
	metrics.RegisterComponent("executions_cell", true, cfg.Exec.Path)

	allocator := portalloc.New(portalloc.Range{Lo: cfg.Ports.Range.Lo, Hi: cfg.Ports.Range.Hi})

	factory, err := containerd.NewFactory(cfg.Runtime.ContainerdSocket)
	if err != nil {
		metrics.RegisterComponent("supervisor_factory", false, err.Error())
		return fmt.Errorf("connect to containerd: %w", err)
	}
	defer factory.Close()
	metrics.RegisterComponent("supervisor_factory", true, cfg.Runtime.ContainerdSocket)

	a := agent.New(model, factory, executions, allocator, agent.Config{ReactorInterval: cfg.Reactor.Interval})
	if err := a.Startup(); err != nil {
		return fmt.Errorf("start agent: %w", err)
	}

	collector := metrics.NewCollector(a)
	collector.Start()
	defer collector.Stop()

	srv := startMetricsServer(cfg.Metrics.ListenAddr)

	logger.Info().Str("node_id", cfg.NodeID).Dur("reactor_interval", cfg.Reactor.Interval).Msg("agent started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("metrics server shutdown error")
	}

	return a.Shutdown(shutdownCtx)
}

// watchCertRotation periodically checks the node certificate's remaining
// validity and logs a warning once it falls inside the rotation threshold,
// until stop is closed. Rotation itself is provisioned out-of-band (see
// cmd cert status/remove); this only surfaces the warning.
func watchCertRotation(certDir string, stop <-chan struct{}) {
	logger := log.WithComponent("warren-agent")
	ticker := time.NewTicker(certCheckInterval)
	defer ticker.Stop()

	check := func() {
		cert, err := security.LoadCertFromFile(certDir)
		if err != nil {
			logger.Warn().Err(err).Msg("failed to load certificate for rotation check")
			return
		}
		if security.CertNeedsRotation(cert.Leaf) {
			logger.Warn().
				Dur("time_remaining", security.GetCertTimeRemaining(cert.Leaf)).
				Msg("node certificate is approaching expiry and needs rotation")
		}
	}

	check()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			check()
		}
	}
}

func startMetricsServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.Handle("/healthz", metrics.HealthHandler())
	mux.Handle("/readyz", metrics.ReadyHandler())
	mux.Handle("/livez", metrics.LivenessHandler())

	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fmt.Fprintf(os.Stderr, "metrics server error: %v\n", err)
		}
	}()
	return srv
}
