package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/reifydb/reifydb/pkg/catalog"
	"github.com/reifydb/reifydb/pkg/config"
	"github.com/reifydb/reifydb/pkg/events"
	"github.com/reifydb/reifydb/pkg/flow"
	"github.com/reifydb/reifydb/pkg/log"
	"github.com/reifydb/reifydb/pkg/metrics"
	"github.com/reifydb/reifydb/pkg/mvcc"
	"github.com/reifydb/reifydb/pkg/store"
	"github.com/reifydb/reifydb/pkg/store/boltstore"
	"github.com/reifydb/reifydb/pkg/store/memstore"
	"github.com/reifydb/reifydb/pkg/sublogging"
	"github.com/reifydb/reifydb/pkg/subdrop"
	"github.com/reifydb/reifydb/pkg/subworker"
	"github.com/reifydb/reifydb/pkg/txn"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the ReifyDB engine",
	Long: `serve starts the storage backend, the versioned store, the
transaction manager, the catalog, the flow engine and every background
subsystem (logging, worker pool, drop worker), then exposes /metrics
and /healthz until interrupted.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("config", "", "Path to a reifydb.yaml manifest (defaults built in if omitted)")
}

func runServe(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")

	cfg := config.Default()
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
	}

	backend, closeBackend, err := openBackend(cfg.Storage)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()
	logEvents(broker)

	versioned := mvcc.New(backend)
	txnMgr := txn.New(versioned, txn.SSI)
	txnMgr.SetBroker(broker)
	defer txnMgr.Close()

	cat := catalog.New()
	cat.SetBroker(broker)
	consumer := mvcc.ConsumerId(fmt.Sprintf("flow-%s", uuid.NewString()))
	flowEngine := flow.New(versioned, txnMgr, cat, consumer, txn.SSI)
	flowEngine.SetBroker(broker)

	if err := reloadFlows(cmd.Context(), txnMgr, flowEngine); err != nil {
		return fmt.Errorf("reload flows: %w", err)
	}

	logging := sublogging.New(cfg.SublogConfig())
	logging.AddBackend(sublogging.NewZerologBackend())

	runCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := logging.Start(runCtx); err != nil {
		return fmt.Errorf("start logging subsystem: %w", err)
	}
	defer logging.Stop()

	pool := subworker.New(cfg.WorkerConfig())
	if err := pool.Start(runCtx); err != nil {
		return fmt.Errorf("start worker pool: %w", err)
	}
	defer pool.Shutdown()

	dropWorker := subdrop.New(backend, txnMgr, cfg.DropConfig())
	dropWorker.SetBroker(broker)
	if _, err := dropWorker.Schedule(pool); err != nil {
		return fmt.Errorf("schedule drop worker: %w", err)
	}

	if _, err := scheduleFlowPump(pool, flowEngine); err != nil {
		return fmt.Errorf("schedule flow pump: %w", err)
	}

	collector := metrics.NewCollector(versioned, txnMgr, cat, consumer)
	collector.Start()
	defer collector.Stop()

	metrics.SetVersion(Version)
	metrics.RegisterComponent("store", true, "ready")
	metrics.RegisterComponent("txn", true, "ready")
	metrics.RegisterComponent("catalog", true, "ready")
	metrics.RegisterComponent("flow", true, "ready")

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.Handle("/healthz", metrics.HealthHandler())
	mux.Handle("/ready", metrics.ReadyHandler())
	mux.Handle("/live", metrics.LivenessHandler())

	httpServer := &http.Server{Addr: cfg.Listen.Address, Handler: mux}
	errCh := make(chan error, 1)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("listener error: %w", err)
		}
	}()

	log.Logger.Info().Str("address", cfg.Listen.Address).Msg("reifydb serving")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigCh:
		log.Logger.Info().Msg("shutdown signal received")
	case err := <-errCh:
		log.Logger.Error().Err(err).Msg("listener failed")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = httpServer.Shutdown(shutdownCtx)

	if closeBackend != nil {
		if err := closeBackend(); err != nil {
			log.Logger.Warn().Err(err).Msg("error closing storage backend")
		}
	}

	return nil
}

// logEvents subscribes to the broker's lifecycle notifications and
// logs each one, so catalog/txn/flow/subdrop events are observable even
// before any dedicated consumer (a webhook sink, an audit log) exists.
func logEvents(broker *events.Broker) {
	sub := broker.Subscribe()
	go func() {
		for ev := range sub {
			log.Logger.Info().Str("event", string(ev.Type)).Str("message", ev.Message).
				Interface("metadata", ev.Metadata).Msg("lifecycle event")
		}
	}()
}

func openBackend(cfg config.Storage) (store.Backend, func() error, error) {
	switch cfg.Engine {
	case "", "memory":
		return memstore.New(), nil, nil
	case "bolt":
		s, err := boltstore.Open(cfg.DataDir)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage engine %q", cfg.Engine)
	}
}

// reloadFlows compiles every flow currently defined in the catalog
// before the engine starts pumping CDC through them.
func reloadFlows(ctx context.Context, txnMgr *txn.Manager, flowEngine *flow.Engine) error {
	tx, err := txnMgr.Begin(ctx, txn.SSI)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	return flowEngine.Reload(ctx, tx)
}

// scheduleFlowPump registers the flow engine's apply/propagate loop on
// pool, draining every pending CDC entry each tick rather than stopping
// after the first.
func scheduleFlowPump(pool *subworker.Pool, flowEngine *flow.Engine) (subworker.Handle, error) {
	task := subworker.TaskFunc{
		TaskName:     "flow-pump",
		TaskPriority: subworker.Normal,
		Fn: func(ctx context.Context) error {
			for {
				advanced, err := flowEngine.ProcessNext(ctx)
				if err != nil {
					return err
				}
				if !advanced {
					return nil
				}
			}
		},
	}
	return pool.ScheduleEvery(100*time.Millisecond, task)
}
