// Package subdrop implements the retention-driven garbage collector that
// reclaims superseded mvcc versions off the commit path: a periodic worker
// samples the oldest version any reader still needs (the retention
// watermark), asks the backend which (key, version) pairs that makes
// obsolete, and batches them through Backend.Drop.
//
// Grounded on crates/store-multi/src/store/worker.rs: a background worker
// batches DropRequest values and flushes either when a batch fills or a
// flush interval elapses, whichever comes first, rather than dropping one
// key at a time. This package keeps that batch-or-timeout flush policy but
// drives it from pkg/subworker's schedule_every instead of a dedicated
// channel-fed thread, and computes the watermark itself each cycle rather
// than taking it as part of each request (retention is tracked by tx.Mode's
// low watermark, not per-write).
package subdrop

import (
	"context"
	"fmt"
	"time"

	"github.com/reifydb/reifydb/pkg/events"
	"github.com/reifydb/reifydb/pkg/log"
	"github.com/reifydb/reifydb/pkg/metrics"
	"github.com/reifydb/reifydb/pkg/store"
	"github.com/reifydb/reifydb/pkg/subworker"
	"github.com/rs/zerolog"
)

// Watermark reports the oldest version any active reader still needs.
// Versions strictly older than this, once superseded by a newer write to
// the same key, are safe to physically reclaim. Implemented by
// *pkg/txn.Manager, whose read mark already tracks the oldest in-flight
// snapshot.
type Watermark interface {
	RetentionWatermark() uint64
}

// Config controls batching and the drop cycle interval.
type Config struct {
	Interval  time.Duration
	BatchSize int
}

func DefaultConfig() Config {
	return Config{Interval: 5 * time.Second, BatchSize: 256}
}

// Worker periodically reclaims obsolete versions from a backend.
type Worker struct {
	backend   store.Backend
	watermark Watermark
	cfg       Config
	logger    zerolog.Logger
	broker    *events.Broker
}

func New(backend store.Backend, watermark Watermark, cfg Config) *Worker {
	return &Worker{backend: backend, watermark: watermark, cfg: cfg, logger: log.WithComponent("subdrop")}
}

// SetBroker attaches an event broker so a drop cycle that actually
// reclaims versions publishes EventVersionDropped. Optional: a Worker
// with no broker behaves exactly as before.
func (w *Worker) SetBroker(b *events.Broker) { w.broker = b }

// Schedule registers the worker's drop cycle on pool to run every
// cfg.Interval until the returned handle is cancelled.
func (w *Worker) Schedule(pool *subworker.Pool) (subworker.Handle, error) {
	return pool.ScheduleEvery(w.cfg.Interval, subworker.TaskFunc{
		TaskName:     "version-drop",
		TaskPriority: subworker.Low,
		Fn:           w.RunCycle,
	})
}

// RunCycle samples the retention watermark once, asks the backend for
// every version it makes obsolete, and drops them in cfg.BatchSize
// batches. Exported so callers can trigger an off-schedule sweep, e.g.
// before a backup or in tests.
func (w *Worker) RunCycle(ctx context.Context) error {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.DropCycleDuration)

	watermark := store.Version(w.watermark.RetentionWatermark())
	obsolete, err := w.backend.Obsolete(ctx, watermark)
	if err != nil {
		return err
	}
	if len(obsolete) == 0 {
		return nil
	}

	for start := 0; start < len(obsolete); start += w.cfg.BatchSize {
		end := min(start+w.cfg.BatchSize, len(obsolete))
		batch := obsolete[start:end]
		if err := w.backend.Drop(ctx, batch); err != nil {
			w.logger.Error().Err(err).Int("batch_size", len(batch)).Msg("drop batch failed")
			return err
		}
		metrics.VersionsDroppedTotal.Add(float64(len(batch)))
	}
	w.logger.Debug().Int("dropped", len(obsolete)).Uint64("watermark", uint64(watermark)).Msg("version drop cycle complete")
	events.Emit(w.broker, events.EventVersionDropped, fmt.Sprintf("reclaimed %d versions", len(obsolete)),
		map[string]string{"watermark": fmt.Sprintf("%d", watermark)})
	return nil
}
