package flow

import (
	"context"
	"fmt"

	"github.com/reifydb/reifydb/pkg/catalog"
	"github.com/reifydb/reifydb/pkg/engine"
	"github.com/reifydb/reifydb/pkg/events"
	"github.com/reifydb/reifydb/pkg/mvcc"
	"github.com/reifydb/reifydb/pkg/reifyerr"
	"github.com/reifydb/reifydb/pkg/txn"
)

// Engine drives the subscribe/route/apply/write/advance loop of spec.md
// §4.7 over every flow currently defined in the catalog.
//
// Grounded on crates/reifydb-flow/src/engine/process.rs.
type Engine struct {
	store    *mvcc.Store
	txnMgr   *txn.Manager
	catalog  *catalog.Catalog
	consumer mvcc.ConsumerId
	mode     txn.Mode
	broker   *events.Broker

	graphs []*Graph
}

func New(store *mvcc.Store, txnMgr *txn.Manager, cat *catalog.Catalog, consumer mvcc.ConsumerId, mode txn.Mode) *Engine {
	return &Engine{store: store, txnMgr: txnMgr, catalog: cat, consumer: consumer, mode: mode}
}

// SetBroker attaches an event broker so every committed checkpoint
// advance publishes EventCheckpointAdvanced. Optional: an Engine with
// no broker behaves exactly as before.
func (e *Engine) SetBroker(b *events.Broker) { e.broker = b }

// Reload recompiles every defined Flow's DAG from the catalog, as of
// tx's snapshot. Call it at startup and again whenever a flow is
// created, altered or dropped.
func (e *Engine) Reload(ctx context.Context, tx *txn.Transaction) error {
	flows, err := e.catalog.ListByKind(ctx, tx, catalog.KindFlow)
	if err != nil {
		return err
	}
	graphs := make([]*Graph, 0, len(flows))
	for _, f := range flows {
		g, err := LoadGraph(ctx, tx, e.catalog, f.Id)
		if err != nil {
			return err
		}
		graphs = append(graphs, g)
	}
	e.graphs = graphs
	return nil
}

// ProcessNext processes the single oldest unconsumed committed version,
// if any, and advances the checkpoint past it. It reports false, nil
// when there is nothing to process.
func (e *Engine) ProcessNext(ctx context.Context) (bool, error) {
	checkpoint, err := e.store.GetCheckpoint(ctx, e.consumer)
	if err != nil {
		return false, err
	}
	batch, err := e.store.ReadCdc(ctx, checkpoint+1, 1)
	if err != nil {
		return false, err
	}
	if len(batch.Entries) == 0 {
		return false, nil
	}
	cdc := batch.Entries[0]

	tx, err := e.txnMgr.Begin(ctx, e.mode)
	if err != nil {
		return false, err
	}

	if err := e.apply(ctx, tx, cdc); err != nil {
		tx.Rollback(ctx)
		return false, err
	}

	tx.Set(mvcc.CheckpointKey(e.consumer), mvcc.EncodeVersion(cdc.Version))
	if _, err := tx.Commit(ctx); err != nil {
		return false, err
	}
	events.Emit(e.broker, events.EventCheckpointAdvanced, fmt.Sprintf("consumer %s advanced to version %d", e.consumer, cdc.Version), nil)
	return true, nil
}

// apply routes every diff in cdc to the flows whose source set contains
// its table, then recursively evaluates each affected DAG down to its
// sinks, all within tx. A single shared writeTracker enforces spec.md
// §4.7.3's keyspace isolation across every flow processed this version.
func (e *Engine) apply(ctx context.Context, tx *txn.Transaction, cdc mvcc.Cdc) error {
	tracker := newWriteTracker()
	for _, diff := range cdc.Diffs {
		sourceId, ok := engine.SourceTableId(diff.Key)
		if !ok {
			continue // catalog/CDC/checkpoint bookkeeping key, not a row
		}
		for _, g := range e.graphs {
			sources, ok := g.Sources[sourceId]
			if !ok {
				continue
			}
			oc := &opContext{ctx: ctx, tx: tx, tracker: tracker.forFlow(g.FlowId)}
			for _, src := range sources {
				change, err := decodeChange(diff, src.Schema)
				if err != nil {
					return err
				}
				if err := e.propagate(oc, src, src.Id, change); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// propagate evaluates n against an incoming change from node fromId,
// writes to sink's materialized view on reaching a SinkView node, and
// otherwise recurses into every downstream node with each emitted
// change.
func (e *Engine) propagate(oc *opContext, n *compiledNode, fromId catalog.Id, change Change) error {
	if n.Spec.Kind == KindSinkView {
		return writeSink(oc.ctx, oc, e.catalog, n, change)
	}

	var out []Change
	var err error
	switch n.Spec.Kind {
	case KindSourceTable, KindSourceView, KindUnion:
		out, err = applyUnion(change)
	case KindFilter:
		out, err = applyFilter(n, change)
	case KindMap:
		out, err = applyMap(n, change)
	case KindDistinct:
		out, err = applyDistinct(oc.ctx, oc, n, change)
	case KindAggregate:
		out, err = applyAggregate(oc.ctx, oc, n, change)
	case KindJoin:
		fromLeft := len(n.Spec.Inputs) > 0 && n.Spec.Inputs[0] == fromId
		out, err = applyJoin(oc.ctx, oc, n, fromLeft, change)
	case KindWindow:
		out, err = applyWindow(oc.ctx, oc, n, change)
	default:
		return reifyerr.Flow("", "", 0, "flow node %d: unknown kind %d", n.Id, n.Spec.Kind)
	}
	if err != nil {
		return err
	}

	for _, c := range out {
		for _, next := range n.Outputs {
			if err := e.propagate(oc, next, n.Id, c); err != nil {
				return err
			}
		}
	}
	return nil
}
