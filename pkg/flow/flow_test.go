package flow_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reifydb/reifydb/pkg/catalog"
	"github.com/reifydb/reifydb/pkg/encoding/row"
	"github.com/reifydb/reifydb/pkg/engine"
	"github.com/reifydb/reifydb/pkg/events"
	"github.com/reifydb/reifydb/pkg/flow"
	"github.com/reifydb/reifydb/pkg/mvcc"
	"github.com/reifydb/reifydb/pkg/store/memstore"
	"github.com/reifydb/reifydb/pkg/txn"
	"github.com/reifydb/reifydb/pkg/types"
)

func newFixture(t *testing.T) (*mvcc.Store, *txn.Manager, *catalog.Catalog) {
	s := mvcc.New(memstore.New())
	m := txn.New(s, txn.SSI)
	t.Cleanup(m.Close)
	return s, m, catalog.New()
}

func eventSchema() types.Schema {
	return types.Schema{Fields: []types.Field{{Name: "val", Type: types.Int8}}}
}

func countSchema() types.Schema {
	return types.Schema{Fields: []types.Field{{Name: "count", Type: types.Int8}}}
}

func mustMarshal(t *testing.T, spec flow.Spec) string {
	b, err := json.Marshal(spec)
	require.NoError(t, err)
	return string(b)
}

// insertRow writes a new row directly into tableId's row keyspace,
// bypassing the query engine since these tests exercise the CDC
// consumer, not the executor.
func insertRow(ctx context.Context, tx *txn.Transaction, schema types.Schema, tableId catalog.Id, values []types.Value) (uint64, error) {
	rowNum, err := engine.NextRowNumber(ctx, tx, tableId)
	if err != nil {
		return 0, err
	}
	layout := row.NewLayout(schema)
	encoded, err := row.FromRow(layout, types.Row{Schema: schema, Values: values})
	if err != nil {
		return 0, err
	}
	tx.Set(engine.RowKey(tableId, rowNum), encoded.Bytes)
	return rowNum, nil
}

func readViewRows(ctx context.Context, tx *txn.Transaction, cat *catalog.Catalog, viewId catalog.Id) ([]types.Row, error) {
	obj, ok, err := cat.Get(ctx, tx, catalog.KindView, viewId)
	if err != nil || !ok {
		return nil, err
	}
	layout := row.NewLayout(obj.Schema)
	entries, err := tx.Range(ctx, engine.RowRange(viewId))
	if err != nil {
		return nil, err
	}
	out := make([]types.Row, 0, len(entries))
	for _, e := range entries {
		r, err := row.ToRow(layout, &row.EncodedValues{Bytes: e.Value})
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

// buildCountFlow wires a Flow definition: the events table feeding a
// global count(*) Aggregate node feeding a SinkView over the counts
// view, mirroring spec.md §8 scenario 6's incremental count(*).
func buildCountFlow(ctx context.Context, tx *txn.Transaction, t *testing.T, cat *catalog.Catalog, ns, tableId, viewId catalog.Id, name string) catalog.Id {
	flowId, err := cat.CreateFlow(ctx, tx, ns, name, "")
	require.NoError(t, err)

	srcId, err := cat.CreateFlowNode(ctx, tx, flowId, "source", mustMarshal(t, flow.Spec{
		Kind: flow.KindSourceTable, SourceId: tableId,
	}))
	require.NoError(t, err)

	aggId, err := cat.CreateFlowNode(ctx, tx, flowId, "agg", mustMarshal(t, flow.Spec{
		Kind:   flow.KindAggregate,
		Inputs: []catalog.Id{srcId},
		Aggs:   []flow.AggSpec{{Output: "count", Func: flow.AggCountAll, Type: types.Int8}},
	}))
	require.NoError(t, err)

	_, err = cat.CreateFlowNode(ctx, tx, flowId, "sink", mustMarshal(t, flow.Spec{
		Kind:   flow.KindSinkView,
		Inputs: []catalog.Id{aggId},
		ViewId: viewId,
	}))
	require.NoError(t, err)

	return flowId
}

func TestEngineIncrementalCountAcrossInsertsAndDeletes(t *testing.T) {
	store, mgr, cat := newFixture(t)
	ctx := context.Background()

	tx, err := mgr.Begin(ctx, txn.SSI)
	require.NoError(t, err)
	ns, err := cat.CreateNamespace(ctx, tx, "default")
	require.NoError(t, err)
	tableId, err := cat.CreateTable(ctx, tx, ns, "events", eventSchema())
	require.NoError(t, err)
	viewId, err := cat.CreateView(ctx, tx, ns, "counts", countSchema(), "")
	require.NoError(t, err)
	buildCountFlow(ctx, tx, t, cat, ns, tableId, viewId, "count_flow")
	_, err = tx.Commit(ctx)
	require.NoError(t, err)

	eng := flow.New(store, mgr, cat, mvcc.ConsumerId("count_consumer"), txn.SSI)
	reloadTx, err := mgr.Begin(ctx, txn.SSI)
	require.NoError(t, err)
	require.NoError(t, eng.Reload(ctx, reloadTx))
	reloadTx.Rollback(ctx)

	readCount := func() int64 {
		tx, err := mgr.Begin(ctx, txn.SSI)
		require.NoError(t, err)
		rows, err := readViewRows(ctx, tx, cat, viewId)
		require.NoError(t, err)
		tx.Rollback(ctx)
		require.Len(t, rows, 1, "a global aggregate maintains exactly one sink row")
		v, ok := rows[0].Get("count")
		require.True(t, ok)
		return v.I64
	}

	// +1
	tx1, err := mgr.Begin(ctx, txn.SSI)
	require.NoError(t, err)
	rowA, err := insertRow(ctx, tx1, eventSchema(), tableId, []types.Value{types.Int8Val(1)})
	require.NoError(t, err)
	_, err = tx1.Commit(ctx)
	require.NoError(t, err)
	processed, err := eng.ProcessNext(ctx)
	require.NoError(t, err)
	require.True(t, processed)
	assert.Equal(t, int64(1), readCount())

	// +1
	tx2, err := mgr.Begin(ctx, txn.SSI)
	require.NoError(t, err)
	_, err = insertRow(ctx, tx2, eventSchema(), tableId, []types.Value{types.Int8Val(2)})
	require.NoError(t, err)
	_, err = tx2.Commit(ctx)
	require.NoError(t, err)
	processed, err = eng.ProcessNext(ctx)
	require.NoError(t, err)
	require.True(t, processed)
	assert.Equal(t, int64(2), readCount())

	// -1
	tx3, err := mgr.Begin(ctx, txn.SSI)
	require.NoError(t, err)
	tx3.Remove(engine.RowKey(tableId, rowA))
	_, err = tx3.Commit(ctx)
	require.NoError(t, err)
	processed, err = eng.ProcessNext(ctx)
	require.NoError(t, err)
	require.True(t, processed)
	assert.Equal(t, int64(1), readCount())

	// +1
	tx4, err := mgr.Begin(ctx, txn.SSI)
	require.NoError(t, err)
	_, err = insertRow(ctx, tx4, eventSchema(), tableId, []types.Value{types.Int8Val(3)})
	require.NoError(t, err)
	_, err = tx4.Commit(ctx)
	require.NoError(t, err)
	processed, err = eng.ProcessNext(ctx)
	require.NoError(t, err)
	require.True(t, processed)
	assert.Equal(t, int64(2), readCount())

	// No more unconsumed versions.
	processed, err = eng.ProcessNext(ctx)
	require.NoError(t, err)
	assert.False(t, processed)
}

func TestFilterDropsNonMatchingRows(t *testing.T) {
	store, mgr, cat := newFixture(t)
	ctx := context.Background()
	schema := eventSchema()

	tx, err := mgr.Begin(ctx, txn.SSI)
	require.NoError(t, err)
	ns, err := cat.CreateNamespace(ctx, tx, "default")
	require.NoError(t, err)
	tableId, err := cat.CreateTable(ctx, tx, ns, "events", schema)
	require.NoError(t, err)
	viewId, err := cat.CreateView(ctx, tx, ns, "big_events", schema, "")
	require.NoError(t, err)

	flowId, err := cat.CreateFlow(ctx, tx, ns, "filter_flow", "")
	require.NoError(t, err)
	srcId, err := cat.CreateFlowNode(ctx, tx, flowId, "source", mustMarshal(t, flow.Spec{
		Kind: flow.KindSourceTable, SourceId: tableId,
	}))
	require.NoError(t, err)
	filterId, err := cat.CreateFlowNode(ctx, tx, flowId, "filter", mustMarshal(t, flow.Spec{
		Kind:         flow.KindFilter,
		Inputs:       []catalog.Id{srcId},
		FilterColumn: "val",
		FilterOp:     flow.CmpGe,
		FilterValue:  types.Int8Val(10),
	}))
	require.NoError(t, err)
	_, err = cat.CreateFlowNode(ctx, tx, flowId, "sink", mustMarshal(t, flow.Spec{
		Kind:   flow.KindSinkView,
		Inputs: []catalog.Id{filterId},
		ViewId: viewId,
	}))
	require.NoError(t, err)
	_, err = tx.Commit(ctx)
	require.NoError(t, err)

	eng := flow.New(store, mgr, cat, mvcc.ConsumerId("filter_consumer"), txn.SSI)
	reloadTx, err := mgr.Begin(ctx, txn.SSI)
	require.NoError(t, err)
	require.NoError(t, eng.Reload(ctx, reloadTx))
	reloadTx.Rollback(ctx)

	insTx, err := mgr.Begin(ctx, txn.SSI)
	require.NoError(t, err)
	_, err = insertRow(ctx, insTx, schema, tableId, []types.Value{types.Int8Val(3)})
	require.NoError(t, err)
	_, err = insertRow(ctx, insTx, schema, tableId, []types.Value{types.Int8Val(42)})
	require.NoError(t, err)
	_, err = insTx.Commit(ctx)
	require.NoError(t, err)

	processed, err := eng.ProcessNext(ctx)
	require.NoError(t, err)
	require.True(t, processed)

	readTx, err := mgr.Begin(ctx, txn.SSI)
	require.NoError(t, err)
	rows, err := readViewRows(ctx, readTx, cat, viewId)
	require.NoError(t, err)
	readTx.Rollback(ctx)
	require.Len(t, rows, 1)
	v, _ := rows[0].Get("val")
	assert.Equal(t, int64(42), v.I64)
}

func TestProcessNextPublishesCheckpointAdvancedEvent(t *testing.T) {
	store, mgr, cat := newFixture(t)
	ctx := context.Background()

	tx, err := mgr.Begin(ctx, txn.SSI)
	require.NoError(t, err)
	ns, err := cat.CreateNamespace(ctx, tx, "default")
	require.NoError(t, err)
	tableId, err := cat.CreateTable(ctx, tx, ns, "events", eventSchema())
	require.NoError(t, err)
	viewId, err := cat.CreateView(ctx, tx, ns, "counts", countSchema(), "")
	require.NoError(t, err)
	buildCountFlow(ctx, tx, t, cat, ns, tableId, viewId, "count_flow")
	_, err = tx.Commit(ctx)
	require.NoError(t, err)

	eng := flow.New(store, mgr, cat, mvcc.ConsumerId("checkpoint_consumer"), txn.SSI)
	reloadTx, err := mgr.Begin(ctx, txn.SSI)
	require.NoError(t, err)
	require.NoError(t, eng.Reload(ctx, reloadTx))
	reloadTx.Rollback(ctx)

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()
	eng.SetBroker(broker)
	sub := broker.Subscribe()
	defer broker.Unsubscribe(sub)

	insTx, err := mgr.Begin(ctx, txn.SSI)
	require.NoError(t, err)
	_, err = insertRow(ctx, insTx, eventSchema(), tableId, []types.Value{types.Int8Val(1)})
	require.NoError(t, err)
	_, err = insTx.Commit(ctx)
	require.NoError(t, err)

	processed, err := eng.ProcessNext(ctx)
	require.NoError(t, err)
	require.True(t, processed)

	ev := <-sub
	assert.Equal(t, events.EventCheckpointAdvanced, ev.Type)
}

// TestMultipleFlowsOverSameSourceCommitCleanly asserts that two flows
// sharing a source table each scope their state under their own node
// ids (pkg/catalog's allocator never reuses an id), so the write
// isolation tracker of spec.md §4.7.3 never flags the ordinary,
// non-conflicting case as an overlap.
func TestMultipleFlowsOverSameSourceCommitCleanly(t *testing.T) {
	store, mgr, cat := newFixture(t)
	ctx := context.Background()
	schema := eventSchema()

	tx, err := mgr.Begin(ctx, txn.SSI)
	require.NoError(t, err)
	ns, err := cat.CreateNamespace(ctx, tx, "default")
	require.NoError(t, err)
	tableId, err := cat.CreateTable(ctx, tx, ns, "events", schema)
	require.NoError(t, err)
	viewId, err := cat.CreateView(ctx, tx, ns, "counts", countSchema(), "")
	require.NoError(t, err)
	secondViewId, err := cat.CreateView(ctx, tx, ns, "counts_two", countSchema(), "")
	require.NoError(t, err)

	buildCountFlow(ctx, tx, t, cat, ns, tableId, viewId, "count_flow_one")
	buildCountFlow(ctx, tx, t, cat, ns, tableId, secondViewId, "count_flow_two")
	_, err = tx.Commit(ctx)
	require.NoError(t, err)

	eng := flow.New(store, mgr, cat, mvcc.ConsumerId("overlap_consumer"), txn.SSI)
	reloadTx, err := mgr.Begin(ctx, txn.SSI)
	require.NoError(t, err)
	require.NoError(t, eng.Reload(ctx, reloadTx))
	reloadTx.Rollback(ctx)

	insTx, err := mgr.Begin(ctx, txn.SSI)
	require.NoError(t, err)
	_, err = insertRow(ctx, insTx, schema, tableId, []types.Value{types.Int8Val(7)})
	require.NoError(t, err)
	_, err = insTx.Commit(ctx)
	require.NoError(t, err)

	processed, err := eng.ProcessNext(ctx)
	require.NoError(t, err)
	assert.True(t, processed)
}
