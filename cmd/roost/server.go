package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roosthq/roost/pkg/alerting"
	"github.com/roosthq/roost/pkg/api"
	"github.com/roosthq/roost/pkg/auth"
	"github.com/roosthq/roost/pkg/config"
	"github.com/roosthq/roost/pkg/cost"
	"github.com/roosthq/roost/pkg/drift"
	"github.com/roosthq/roost/pkg/events"
	"github.com/roosthq/roost/pkg/fleet"
	"github.com/roosthq/roost/pkg/ingest"
	"github.com/roosthq/roost/pkg/instance"
	"github.com/roosthq/roost/pkg/log"
	"github.com/roosthq/roost/pkg/metrics"
	"github.com/roosthq/roost/pkg/query"
	"github.com/roosthq/roost/pkg/sched"
	"github.com/roosthq/roost/pkg/secscore"
	"github.com/roosthq/roost/pkg/session"
	"github.com/roosthq/roost/pkg/storage"
	"github.com/roosthq/roost/pkg/wizard"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Run the Console server",
	Long: `Start the Console: REST API, WebSocket endpoints for agents and
terminal viewers, the ingestion pipeline and the background evaluation
loops (alerting, scheduler, drift, cost, metrics).`,
	RunE: runServer,
}

func init() {
	serverCmd.Flags().String("config", "", "Path to YAML config file")
	serverCmd.Flags().String("listen", "", "Listen address (overrides config)")
	serverCmd.Flags().String("data-dir", "", "Data directory (overrides config)")
	serverCmd.Flags().String("log-level", "", "Log level (overrides config)")
	serverCmd.Flags().String("log-format", "", "Log format, console or json (overrides config)")
}

func runServer(cmd *cobra.Command, _ []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if v, _ := cmd.Flags().GetString("listen"); v != "" {
		cfg.ListenAddr = v
	}
	if v, _ := cmd.Flags().GetString("data-dir"); v != "" {
		cfg.DataDir = v
	}
	if v, _ := cmd.Flags().GetString("log-level"); v != "" {
		cfg.Log.Level = v
	}
	if v, _ := cmd.Flags().GetString("log-format"); v != "" {
		cfg.Log.Format = v
	}

	log.Init(log.Config{
		Level:      log.Level(cfg.Log.Level),
		JSONOutput: cfg.Log.Format == "json",
	})
	logger := log.WithComponent("server")
	logger.Info().Str("version", Version).Str("data_dir", cfg.DataDir).Msg("Roost Console starting")

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	store, err := storage.NewBoltStore(cfg.DataDir)
	if err != nil {
		return err
	}
	defer store.Close()

	// Core plumbing
	bus := events.NewBus()
	audit := auth.NewRecorder(store)
	scoper := auth.NewScoper(store)
	pipeline := ingest.New(store, bus, cfg.Ingest.QueueSize)
	sessions := session.NewManager(store, bus, pipeline, scoper)

	// Domain services
	instances := instance.NewService(store, bus, audit)
	tasks := sched.NewService(store)
	scheduler := sched.NewScheduler(store, tasks, &sched.ManagerRunner{Manager: sessions})
	driftSvc := drift.NewService(store)
	detector := drift.NewDetector(store, driftSvc)
	costs := cost.NewService(store)
	costMonitor := cost.NewMonitor(costs)
	engine := alerting.NewEngine(store, bus, alerting.LogSender())
	collector := metrics.NewCollector(store)

	server := api.NewServer(cfg.ListenAddr, store, api.Services{
		Auth:      auth.NewAuthenticator(store),
		Limiter:   auth.NewRateLimiter(),
		Scoper:    scoper,
		Audit:     audit,
		Instances: instances,
		Queries:   query.NewService(store),
		Fleet:     fleet.NewService(store),
		Sessions:  sessions,
		Tasks:     tasks,
		Scheduler: scheduler,
		Drift:     driftSvc,
		Costs:     costs,
		Security:  secscore.NewService(store),
		Wizard:    wizard.NewService(store, instances),
	})

	engine.Start()
	scheduler.Start()
	detector.Start()
	costMonitor.Start()
	collector.Start()

	errCh := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info().Str("signal", sig.String()).Msg("Shutting down")
	case err := <-errCh:
		logger.Error().Err(err).Msg("API server failed")
	}

	// Drain in-flight requests briefly, then stop the loops and flush
	// the pipeline before closing the store.
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Warn().Err(err).Msg("API drain incomplete")
	}

	collector.Stop()
	costMonitor.Stop()
	detector.Stop()
	scheduler.Stop()
	engine.Stop()
	pipeline.Stop()

	logger.Info().Msg("Shutdown complete")
	return nil
}
