package main

import (
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/cuemby/workflowd/pkg/api"
	"github.com/cuemby/workflowd/pkg/events"
	"github.com/cuemby/workflowd/pkg/lock"
	"github.com/cuemby/workflowd/pkg/log"
	"github.com/cuemby/workflowd/pkg/manager"
	"github.com/cuemby/workflowd/pkg/metrics"
	"github.com/cuemby/workflowd/pkg/processlog"
	"github.com/cuemby/workflowd/pkg/reconciler"
	"github.com/cuemby/workflowd/pkg/storage"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the workflow manager",
	Long: `Run the workflow manager with its reconciler and HTTP API.

Configuration is read from --config (YAML), then WORKFLOWD_* environment
variables (WORKFLOWD_MANAGER_TICKINTERVAL=30s), then flags.`,
	RunE: runServe,
}

func init() {
	addServeFlags(serveCmd)
}

func addServeFlags(cmd *cobra.Command) {
	cmd.Flags().String("config", "", "Config file (YAML)")
	cmd.Flags().String("data-dir", "./workflowd-data", "Data directory for the store and lock databases")
	cmd.Flags().String("addr", "127.0.0.1:8080", "HTTP listen address")
	cmd.Flags().String("processlog-dsn", "", "Process log database (sqlite path or postgres:// URL); empty logs to the application log")
	cmd.Flags().String("log-file", "", "Also write JSON logs to this rotated file")
	cmd.Flags().Duration("tick-interval", manager.DefaultConfig().TickInterval, "Interval between reconciliation cycles")
	cmd.Flags().Duration("ping-parked-interval", manager.DefaultConfig().PingParkedInterval, "Interval between parked process checks; 0 disables")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadServerConfig(cmd)
	if err != nil {
		return err
	}
	log.Init(cfg.Log.toLog())
	logger := log.WithComponent("serve")
	metrics.SetVersion(Version)

	logger.Info().
		Str("data_dir", cfg.DataDir).
		Str("addr", cfg.Addr).
		Msg("Starting workflowd")

	if err := os.MkdirAll(cfg.DataDir, 0o750); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	store, err := storage.NewBoltStore(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer store.Close()
	metrics.RegisterComponent(metrics.ComponentStore, true, "")

	locks, err := lock.NewService(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("failed to open lock service: %w", err)
	}
	defer locks.Close()
	metrics.RegisterComponent(metrics.ComponentLocks, true, "")

	var plog manager.ProcessLog = processlog.NewLogSink(log.WithComponent("processlog"))
	if cfg.ProcessLogDSN != "" {
		sink, err := processlog.NewSQLSinkFromDSN(cfg.ProcessLogDSN)
		if err != nil {
			return fmt.Errorf("failed to open process log: %w", err)
		}
		defer sink.Close()
		plog = sink
	}
	metrics.RegisterComponent(metrics.ComponentProcessLog, true, "")

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()
	dispatcher := events.NewDispatcher(broker)
	noticeDone := logNotices(broker)

	mgr, err := manager.New(cfg.Manager, manager.Deps{
		Store:      store,
		Locks:      locks,
		Executor:   dispatcher,
		Notifier:   dispatcher,
		Status:     dispatcher,
		ProcessLog: plog,
	})
	if err != nil {
		return fmt.Errorf("failed to create manager: %w", err)
	}
	mgr.Start()
	metrics.RegisterComponent(metrics.ComponentManager, true, "")

	recon := reconciler.NewReconciler(mgr, mgr.Config())
	recon.Start()
	collector := manager.NewStatusCollector(mgr, cfg.StatusInterval)
	collector.Start()

	gin.SetMode(gin.ReleaseMode)
	apiServer := api.NewServer(mgr, store, broker, cfg.BasePath)
	errCh := make(chan error, 1)
	go func() {
		if err := apiServer.Start(cfg.Addr); err != nil {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info().Str("signal", sig.String()).Msg("Shutting down")
	case err = <-errCh:
		logger.Error().Err(err).Msg("API server failed")
	}

	metrics.UpdateComponent(metrics.ComponentManager, false, "shutting down")
	apiServer.Stop()
	collector.Stop()
	recon.Stop()
	mgr.Stop()
	close(noticeDone)

	logger.Info().Msg("Shutdown complete")
	return err
}

// logNotices writes administrative notices to the application log until
// done is closed
func logNotices(broker *events.Broker) chan struct{} {
	logger := log.WithComponent("notices")
	sub := broker.Subscribe(events.EventAdminNotice)
	done := make(chan struct{})

	go func() {
		defer broker.Unsubscribe(sub)
		for {
			select {
			case event := <-sub:
				if event == nil {
					return
				}
				urgency, _ := strconv.Atoi(event.Metadata[events.MetaUrgency])
				entry := logger.Warn()
				if urgency >= 6 {
					entry = logger.Error()
				}
				entry.
					Str("category", event.Metadata[events.MetaCategory]).
					Int("urgency", urgency).
					Str("subject", event.Metadata[events.MetaSubject]).
					Msg(event.Message)
			case <-done:
				return
			}
		}
	}()
	return done
}
