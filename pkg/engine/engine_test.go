package engine_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reifydb/reifydb/pkg/catalog"
	"github.com/reifydb/reifydb/pkg/engine"
	"github.com/reifydb/reifydb/pkg/mvcc"
	"github.com/reifydb/reifydb/pkg/store/memstore"
	"github.com/reifydb/reifydb/pkg/txn"
	"github.com/reifydb/reifydb/pkg/types"
)

func newFixture(t *testing.T) (*txn.Manager, *catalog.Catalog) {
	s := mvcc.New(memstore.New())
	m := txn.New(s, txn.SSI)
	t.Cleanup(m.Close)
	return m, catalog.New()
}

func playerSchema() types.Schema {
	return types.Schema{Fields: []types.Field{
		{Name: "player", Type: types.Utf8},
		{Name: "score", Type: types.Int8},
	}}
}

func playerRows() []types.Row {
	schema := playerSchema()
	mk := func(player string, score int64) types.Row {
		return types.Row{Schema: schema, Values: []types.Value{types.Utf8Val(player), types.Int8Val(score)}}
	}
	return []types.Row{
		mk("Alice", 100),
		mk("Bob", 250),
		mk("Charlie", 175),
		mk("Diana", 300),
		mk("Eve", 125),
	}
}

// TestTopKCorrectness mirrors spec.md §8 scenario 4.
func TestTopKCorrectness(t *testing.T) {
	m, c := newFixture(t)
	ctx := context.Background()
	tx, err := m.Begin(ctx, txn.SSI)
	require.NoError(t, err)
	ec := &engine.Context{Tx: tx, Catalog: c}

	src := &engine.InlineData{Schema: playerSchema(), Rows: playerRows()}
	topk := &engine.TopK{
		Input: src,
		Keys:  []engine.SortKey{{Column: "score", Desc: true}},
		K:     3,
	}
	require.NoError(t, topk.Initialize(ctx, ec))
	batch, err := topk.Next(ctx, ec)
	require.NoError(t, err)
	require.NotNil(t, batch)
	require.Equal(t, 3, batch.Rows())

	names := make([]string, 3)
	scores := make([]int64, 3)
	for i := 0; i < 3; i++ {
		names[i] = batch.Row(i).Values[0].Str
		scores[i] = batch.Row(i).Values[1].I64
	}
	assert.Equal(t, []string{"Diana", "Bob", "Charlie"}, names)
	assert.Equal(t, []int64{300, 250, 175}, scores)

	next, err := topk.Next(ctx, ec)
	require.NoError(t, err)
	assert.Nil(t, next)
}

func TestTopKZeroReturnsEmpty(t *testing.T) {
	m, c := newFixture(t)
	ctx := context.Background()
	tx, err := m.Begin(ctx, txn.SSI)
	require.NoError(t, err)
	ec := &engine.Context{Tx: tx, Catalog: c}

	src := &engine.InlineData{Schema: playerSchema(), Rows: playerRows()}
	topk := &engine.TopK{Input: src, Keys: []engine.SortKey{{Column: "score", Desc: true}}, K: 0}
	require.NoError(t, topk.Initialize(ctx, ec))
	batch, err := topk.Next(ctx, ec)
	require.NoError(t, err)
	assert.Nil(t, batch)
}

func TestSortOrdersAscendingWithUndefinedLast(t *testing.T) {
	schema := types.Schema{Fields: []types.Field{{Name: "v", Type: types.Int8}}}
	rows := []types.Row{
		{Schema: schema, Values: []types.Value{types.Int8Val(3)}},
		{Schema: schema, Values: []types.Value{types.Undef(types.Int8)}},
		{Schema: schema, Values: []types.Value{types.Int8Val(1)}},
	}
	m, c := newFixture(t)
	ctx := context.Background()
	tx, err := m.Begin(ctx, txn.SSI)
	require.NoError(t, err)
	ec := &engine.Context{Tx: tx, Catalog: c}

	src := &engine.InlineData{Schema: schema, Rows: rows}
	s := &engine.Sort{Input: src, Keys: []engine.SortKey{{Column: "v"}}}
	require.NoError(t, s.Initialize(ctx, ec))
	batch, err := s.Next(ctx, ec)
	require.NoError(t, err)
	require.Equal(t, 3, batch.Rows())
	assert.Equal(t, int64(1), batch.Row(0).Values[0].I64)
	assert.Equal(t, int64(3), batch.Row(1).Values[0].I64)
	assert.False(t, batch.Row(2).Values[0].Defined)
}

func TestFilterWithPrecedence(t *testing.T) {
	// spec.md §8 scenario 3: on_sale==true or (featured==true and category=="Electronics").
	schema := types.Schema{Fields: []types.Field{
		{Name: "on_sale", Type: types.Bool},
		{Name: "featured", Type: types.Bool},
		{Name: "category", Type: types.Utf8},
	}}
	row := func(sale, featured bool, cat string) types.Row {
		return types.Row{Schema: schema, Values: []types.Value{types.BoolVal(sale), types.BoolVal(featured), types.Utf8Val(cat)}}
	}
	rows := []types.Row{
		row(true, false, "Books"),
		row(false, true, "Electronics"),
		row(false, true, "Books"),
		row(false, false, "Electronics"),
	}
	m, c := newFixture(t)
	ctx := context.Background()
	tx, err := m.Begin(ctx, txn.SSI)
	require.NoError(t, err)
	ec := &engine.Context{Tx: tx, Catalog: c}

	src := &engine.InlineData{Schema: schema, Rows: rows}
	f := &engine.Filter{Input: src, Pred: engine.LogicalPredicate(func(r types.Row) types.Value {
		sale, _ := r.Get("on_sale")
		featured, _ := r.Get("featured")
		cat, _ := r.Get("category")
		electronics := types.BoolVal(cat.Str == "Electronics")
		return engine.Logical(engine.Or, sale, engine.Logical(engine.And, featured, electronics))
	})}
	require.NoError(t, f.Initialize(ctx, ec))
	batch, err := f.Next(ctx, ec)
	require.NoError(t, err)
	require.Equal(t, 2, batch.Rows())
}

// TestLogicalOpsOnLiterals mirrors spec.md §8 scenario 2.
func TestLogicalOpsOnLiterals(t *testing.T) {
	tru, fls := types.BoolVal(true), types.BoolVal(false)

	assert.Equal(t, true, engine.Logical(engine.And, tru, tru).Bool)
	assert.Equal(t, false, engine.Logical(engine.And, tru, fls).Bool)
	assert.Equal(t, true, engine.Logical(engine.Or, tru, fls).Bool)
	assert.Equal(t, false, engine.Logical(engine.Or, fls, fls).Bool)
	assert.Equal(t, false, engine.Logical(engine.Not, tru, tru).Bool)
	assert.Equal(t, true, engine.Logical(engine.Not, fls, fls).Bool)
	assert.Equal(t, true, engine.Logical(engine.Xor, tru, fls).Bool)
	assert.Equal(t, false, engine.Logical(engine.Xor, tru, tru).Bool)

	undef := types.Undef(types.Bool)
	assert.False(t, engine.Logical(engine.And, tru, undef).Defined)
	assert.Equal(t, types.BoolVal(false), engine.Logical(engine.And, fls, undef))
	assert.True(t, engine.Logical(engine.Or, tru, undef).Bool)
	assert.False(t, engine.Logical(engine.Or, fls, undef).Defined)
}

func TestAggregateCountOverEmptyInput(t *testing.T) {
	schema := types.Schema{Fields: []types.Field{{Name: "g", Type: types.Utf8}, {Name: "v", Type: types.Int8}}}
	m, c := newFixture(t)
	ctx := context.Background()
	tx, err := m.Begin(ctx, txn.SSI)
	require.NoError(t, err)
	ec := &engine.Context{Tx: tx, Catalog: c}

	src := &engine.InlineData{Schema: schema, Rows: nil}
	agg := &engine.Aggregate{
		Input:   src,
		GroupBy: nil,
		Aggs: []engine.AggSpec{
			{Output: "n", Func: engine.AggCountAll, Type: types.Int8},
		},
	}
	require.NoError(t, agg.Initialize(ctx, ec))
	batch, err := agg.Next(ctx, ec)
	require.NoError(t, err)
	require.NotNil(t, batch, "a global aggregate over empty input still emits one row")
	require.Equal(t, 1, batch.Rows())
	n, _ := batch.Row(0).Get("n")
	assert.Equal(t, int64(0), n.I64)
}

func TestAggregateGroupsAndSums(t *testing.T) {
	schema := types.Schema{Fields: []types.Field{{Name: "g", Type: types.Utf8}, {Name: "v", Type: types.Int8}}}
	mk := func(g string, v int64) types.Row {
		return types.Row{Schema: schema, Values: []types.Value{types.Utf8Val(g), types.Int8Val(v)}}
	}
	rows := []types.Row{mk("a", 10), mk("b", 1), mk("a", 5)}
	m, c := newFixture(t)
	ctx := context.Background()
	tx, err := m.Begin(ctx, txn.SSI)
	require.NoError(t, err)
	ec := &engine.Context{Tx: tx, Catalog: c}

	src := &engine.InlineData{Schema: schema, Rows: rows}
	agg := &engine.Aggregate{
		Input:   src,
		GroupBy: []string{"g"},
		Aggs: []engine.AggSpec{
			{Output: "total", Func: engine.AggSum, Column: "v", Type: types.Int8},
			{Output: "n", Func: engine.AggCountAll, Type: types.Int8},
		},
	}
	require.NoError(t, agg.Initialize(ctx, ec))
	batch, err := agg.Next(ctx, ec)
	require.NoError(t, err)
	require.Equal(t, 2, batch.Rows())

	totals := map[string]int64{}
	for i := 0; i < batch.Rows(); i++ {
		r := batch.Row(i)
		g, _ := r.Get("g")
		total, _ := r.Get("total")
		totals[g.Str] = total.I64
	}
	assert.Equal(t, int64(15), totals["a"])
	assert.Equal(t, int64(1), totals["b"])
	assert.Equal(t, 2, agg.GroupKeyCardinality["g"])
}

// TestInsertScanDeleteRoundTrip exercises TableScan, InsertTable and
// DeleteTable against a real catalog-backed table.
func TestInsertScanDeleteRoundTrip(t *testing.T) {
	m, c := newFixture(t)
	ctx := context.Background()

	tx, err := m.Begin(ctx, txn.SSI)
	require.NoError(t, err)
	ns, err := c.CreateNamespace(ctx, tx, "default")
	require.NoError(t, err)
	schema := types.Schema{Fields: []types.Field{{Name: "id", Type: types.Int8}, {Name: "name", Type: types.Utf8}}}
	tableId, err := c.CreateTable(ctx, tx, ns, "people", schema)
	require.NoError(t, err)
	_, err = tx.Commit(ctx)
	require.NoError(t, err)

	tx2, err := m.Begin(ctx, txn.SSI)
	require.NoError(t, err)
	ec := &engine.Context{Tx: tx2, Catalog: c}
	rows := []types.Row{
		{Schema: schema, Values: []types.Value{types.Int8Val(1), types.Utf8Val("alice")}},
		{Schema: schema, Values: []types.Value{types.Int8Val(2), types.Utf8Val("bob")}},
	}
	insert := &engine.InsertTable{Input: &engine.InlineData{Schema: schema, Rows: rows}, TableId: tableId}
	require.NoError(t, insert.Initialize(ctx, ec))
	result, err := insert.Next(ctx, ec)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), result.Row(0).Values[0].U64)
	_, err = tx2.Commit(ctx)
	require.NoError(t, err)

	tx3, err := m.Begin(ctx, txn.SSI)
	require.NoError(t, err)
	ec3 := &engine.Context{Tx: tx3, Catalog: c}
	scan := engine.NewTableScan(tableId)
	require.NoError(t, scan.Initialize(ctx, ec3))
	batch, err := scan.Next(ctx, ec3)
	require.NoError(t, err)
	require.Equal(t, 2, batch.Rows())
	tx3.Rollback(ctx)

	tx4, err := m.Begin(ctx, txn.SSI)
	require.NoError(t, err)
	ec4 := &engine.Context{Tx: tx4, Catalog: c}
	scanForDelete := engine.NewTableScan(tableId)
	require.NoError(t, scanForDelete.Initialize(ctx, ec4))
	del := &engine.DeleteTable{Input: scanForDelete, TableId: tableId}
	require.NoError(t, del.Initialize(ctx, ec4))
	delResult, err := del.Next(ctx, ec4)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), delResult.Row(0).Values[0].U64)
	_, err = tx4.Commit(ctx)
	require.NoError(t, err)

	tx5, err := m.Begin(ctx, txn.SSI)
	require.NoError(t, err)
	ec5 := &engine.Context{Tx: tx5, Catalog: c}
	finalScan := engine.NewTableScan(tableId)
	require.NoError(t, finalScan.Initialize(ctx, ec5))
	finalBatch, err := finalScan.Next(ctx, ec5)
	require.NoError(t, err)
	assert.Nil(t, finalBatch)
}

func TestJoinInnerMatchesOnKey(t *testing.T) {
	left := types.Schema{Fields: []types.Field{{Name: "id", Type: types.Int8}, {Name: "name", Type: types.Utf8}}}
	right := types.Schema{Fields: []types.Field{{Name: "id", Type: types.Int8}, {Name: "amount", Type: types.Int8}}}
	leftRows := []types.Row{
		{Schema: left, Values: []types.Value{types.Int8Val(1), types.Utf8Val("alice")}},
		{Schema: left, Values: []types.Value{types.Int8Val(2), types.Utf8Val("bob")}},
	}
	rightRows := []types.Row{
		{Schema: right, Values: []types.Value{types.Int8Val(1), types.Int8Val(50)}},
	}
	m, c := newFixture(t)
	ctx := context.Background()
	tx, err := m.Begin(ctx, txn.SSI)
	require.NoError(t, err)
	ec := &engine.Context{Tx: tx, Catalog: c}

	j := &engine.Join{
		Left:  &engine.InlineData{Schema: left, Rows: leftRows},
		Right: &engine.InlineData{Schema: right, Rows: rightRows},
		Kind:  engine.JoinInner,
		On:    [][2]string{{"id", "id"}},
	}
	require.NoError(t, j.Initialize(ctx, ec))
	batch, err := j.Next(ctx, ec)
	require.NoError(t, err)
	require.Equal(t, 1, batch.Rows())
	amount, ok := batch.Row(0).Get("amount")
	require.True(t, ok)
	assert.Equal(t, int64(50), amount.I64)
}

func TestJoinLeftKeepsUnmatchedRows(t *testing.T) {
	left := types.Schema{Fields: []types.Field{{Name: "id", Type: types.Int8}}}
	right := types.Schema{Fields: []types.Field{{Name: "id", Type: types.Int8}, {Name: "amount", Type: types.Int8}}}
	leftRows := []types.Row{
		{Schema: left, Values: []types.Value{types.Int8Val(1)}},
		{Schema: left, Values: []types.Value{types.Int8Val(2)}},
	}
	rightRows := []types.Row{
		{Schema: right, Values: []types.Value{types.Int8Val(1), types.Int8Val(50)}},
	}
	m, c := newFixture(t)
	ctx := context.Background()
	tx, err := m.Begin(ctx, txn.SSI)
	require.NoError(t, err)
	ec := &engine.Context{Tx: tx, Catalog: c}

	j := &engine.Join{
		Left:  &engine.InlineData{Schema: left, Rows: leftRows},
		Right: &engine.InlineData{Schema: right, Rows: rightRows},
		Kind:  engine.JoinLeft,
		On:    [][2]string{{"id", "id"}},
	}
	require.NoError(t, j.Initialize(ctx, ec))
	batch, err := j.Next(ctx, ec)
	require.NoError(t, err)
	require.Equal(t, 2, batch.Rows())
	amount1, _ := batch.Row(1).Get("amount")
	assert.False(t, amount1.Defined)
}

func TestArithPromotesAndSaturates(t *testing.T) {
	v, err := engine.Arith(engine.Add, types.Int8Val(1), types.Float8Val(2.5), engine.SaturationError)
	require.NoError(t, err)
	assert.Equal(t, types.Float8, v.Type)
	assert.InDelta(t, 3.5, v.F64, 0.0001)

	_, err = engine.Arith(engine.Div, types.Int8Val(1), types.Int8Val(0), engine.SaturationError)
	require.Error(t, err)

	undef, err := engine.Arith(engine.Div, types.Int8Val(1), types.Int8Val(0), engine.SaturationUndefined)
	require.NoError(t, err)
	assert.False(t, undef.Defined)
}

func TestTakeBoundaryZeroReturnsEmpty(t *testing.T) {
	m, c := newFixture(t)
	ctx := context.Background()
	tx, err := m.Begin(ctx, txn.SSI)
	require.NoError(t, err)
	ec := &engine.Context{Tx: tx, Catalog: c}

	src := &engine.InlineData{Schema: playerSchema(), Rows: playerRows()}
	take := &engine.Take{Input: src, N: 0}
	require.NoError(t, take.Initialize(ctx, ec))
	batch, err := take.Next(ctx, ec)
	require.NoError(t, err)
	assert.Nil(t, batch)
}
