package flow

import (
	"context"

	"github.com/reifydb/reifydb/pkg/engine"
	"github.com/reifydb/reifydb/pkg/txn"
	"github.com/reifydb/reifydb/pkg/types"
)

// opContext is the per-version evaluation context threaded through
// apply, scoped to one node's state keyspace at a time. tracker is
// already scoped to the flow being processed (see writeTracker.forFlow).
type opContext struct {
	ctx     context.Context
	tx      *txn.Transaction
	tracker *writeTracker
}

// applyFilter is stateless (spec.md §4.7.1): a row is forwarded only if
// it (still) matches the predicate, so an Update that crosses the
// boundary becomes an Insert or Delete downstream rather than an
// Update.
func applyFilter(n *compiledNode, change Change) ([]Change, error) {
	matches := func(r types.Row) bool {
		if len(r.Values) == 0 {
			return false
		}
		v, ok := r.Get(n.Spec.FilterColumn)
		if !ok || !v.Defined {
			return false
		}
		cmp := engine.CompareValues(v, n.Spec.FilterValue)
		switch n.Spec.FilterOp {
		case CmpEq:
			return cmp == 0
		case CmpNe:
			return cmp != 0
		case CmpLt:
			return cmp < 0
		case CmpLe:
			return cmp <= 0
		case CmpGt:
			return cmp > 0
		case CmpGe:
			return cmp >= 0
		default:
			return false
		}
	}

	preOk := change.Kind != ChangeInsert && matches(change.Pre)
	postOk := change.Kind != ChangeDelete && matches(change.Post)
	switch {
	case preOk && postOk:
		return []Change{change}, nil
	case preOk:
		return []Change{{Kind: ChangeDelete, Pre: change.Pre}}, nil
	case postOk:
		return []Change{{Kind: ChangeInsert, Post: change.Post}}, nil
	default:
		return nil, nil
	}
}

func projectRow(r types.Row, fields []MapFieldSpec) types.Row {
	if len(r.Values) == 0 {
		return r
	}
	out := types.Row{
		Schema: types.Schema{Fields: append([]types.Field(nil), r.Schema.Fields...)},
		Values: append([]types.Value(nil), r.Values...),
	}
	for _, f := range fields {
		v := f.Const
		if f.Source != "" {
			v, _ = r.Get(f.Source)
		}
		out.Schema.Fields = append(out.Schema.Fields, types.Field{Name: f.Output, Type: f.Type})
		out.Values = append(out.Values, v)
	}
	return out
}

// applyMap is stateless: Extend computes additional fields from each
// row it sees, on both sides of an Update.
func applyMap(n *compiledNode, change Change) ([]Change, error) {
	out := change
	if len(change.Pre.Values) > 0 {
		out.Pre = projectRow(change.Pre, n.Spec.Fields)
	}
	if len(change.Post.Values) > 0 {
		out.Post = projectRow(change.Post, n.Spec.Fields)
	}
	return []Change{out}, nil
}

// applyUnion is stateless: every input's changes pass straight through,
// unmodified, merging two streams of the same shape.
func applyUnion(change Change) ([]Change, error) {
	return []Change{change}, nil
}

// distinctState is the keyed-state refcount Distinct maintains per
// unique row so repeated inserts of the same value only forward once,
// and the value only disappears downstream once its last occurrence is
// removed (spec.md §4.7.1 "Keyed-state operators ... Distinct").
type distinctState struct {
	Count int
}

func applyDistinct(ctx context.Context, oc *opContext, n *compiledNode, change Change) ([]Change, error) {
	ss := &stateStore{tx: oc.tx, node: n.Id, tracker: oc.tracker}
	adjust := func(r types.Row, delta int) (bool, bool, error) {
		key, err := engine.GroupKeyBytes(r, n.Spec.GroupBy)
		if err != nil {
			return false, false, err
		}
		var st distinctState
		_, err = ss.getKeyed(ctx, key, &st)
		if err != nil {
			return false, false, err
		}
		before := st.Count
		st.Count += delta
		after := st.Count
		if after <= 0 {
			if err := ss.removeKeyed(key); err != nil {
				return false, false, err
			}
		} else if err := ss.setKeyed(key, &st); err != nil {
			return false, false, err
		}
		return before <= 0 && after > 0, before > 0 && after <= 0, nil
	}

	var out []Change
	if len(change.Pre.Values) > 0 {
		_, becameAbsent, err := adjust(change.Pre, -1)
		if err != nil {
			return nil, err
		}
		if becameAbsent {
			out = append(out, Change{Kind: ChangeDelete, Pre: change.Pre})
		}
	}
	if len(change.Post.Values) > 0 {
		becamePresent, _, err := adjust(change.Post, 1)
		if err != nil {
			return nil, err
		}
		if becamePresent {
			out = append(out, Change{Kind: ChangeInsert, Post: change.Post})
		}
	}
	return out, nil
}

// aggState is one group's running incremental aggregate state.
type aggState struct {
	Sum   []float64
	Count []int64 // defined-value count, for avg/count(col)
	Rows  int64   // total row count, for count(*)
}

func newAggState(n int) *aggState {
	return &aggState{Sum: make([]float64, n), Count: make([]int64, n)}
}

func (s *aggState) ingest(r types.Row, specs []AggSpec, sign int64) {
	s.Rows += sign
	for i, spec := range specs {
		if spec.Func == AggCountAll {
			continue
		}
		v, _ := r.Get(spec.Column)
		if !v.Defined {
			continue
		}
		s.Count[i] += sign
		if spec.Func == AggSum || spec.Func == AggAvg {
			s.Sum[i] += float64(sign) * engine.AsF64(v)
		}
	}
}

func (s *aggState) row(groupRow types.Row, n *compiledNode) types.Row {
	values := make([]types.Value, 0, len(n.Spec.GroupBy)+len(n.Spec.Aggs))
	for _, name := range n.Spec.GroupBy {
		v, _ := groupRow.Get(name)
		values = append(values, v)
	}
	for i, spec := range n.Spec.Aggs {
		switch spec.Func {
		case AggCountAll:
			values = append(values, types.Value{Type: spec.Type, Defined: true, I64: s.Rows, U64: uint64(s.Rows)})
		case AggCount:
			values = append(values, types.Value{Type: spec.Type, Defined: true, I64: s.Count[i], U64: uint64(s.Count[i])})
		case AggSum:
			values = append(values, numericAggValue(spec.Type, s.Sum[i]))
		case AggAvg:
			if s.Count[i] == 0 {
				values = append(values, types.Undef(spec.Type))
			} else {
				values = append(values, numericAggValue(spec.Type, s.Sum[i]/float64(s.Count[i])))
			}
		case AggMin, AggMax:
			// Min/Max require scanning the live member set, which the
			// running-sum state above does not retain; unsupported in
			// incremental maintenance, see DESIGN.md.
			values = append(values, types.Undef(spec.Type))
		}
	}
	return types.Row{Schema: n.Schema, Values: values}
}

func numericAggValue(t types.Type, f float64) types.Value {
	if t == types.Float4 || t == types.Float8 {
		return types.Value{Type: t, Defined: true, F64: f}
	}
	return types.Value{Type: t, Defined: true, I64: int64(f), U64: uint64(int64(f))}
}

// applyAggregate is keyed-state: each group's running state lives under
// state(node, group_key_bytes). Per spec.md §4.7.2, an input row whose
// group key is unchanged emits Update{pre=agg_before, post=agg_after}.
// Otherwise each touched group emits Update{pre, post} if it had rows
// before and still has rows, Delete{pre} if its last row left, and
// Insert{post} if it gained its first row.
func applyAggregate(ctx context.Context, oc *opContext, n *compiledNode, change Change) ([]Change, error) {
	ss := &stateStore{tx: oc.tx, node: n.Id, tracker: oc.tracker}

	type groupDelta struct {
		row    types.Row
		before *aggState
		after  *aggState
	}
	touch := func(r types.Row, sign int64) (*groupDelta, []byte, error) {
		key, err := engine.GroupKeyBytes(r, n.Spec.GroupBy)
		if err != nil {
			return nil, nil, err
		}
		st := newAggState(len(n.Spec.Aggs))
		existed, err := ss.getKeyed(ctx, key, st)
		if err != nil {
			return nil, nil, err
		}
		var before *aggState
		if existed {
			copied := *st
			copied.Sum = append([]float64(nil), st.Sum...)
			copied.Count = append([]int64(nil), st.Count...)
			before = &copied
		}
		st.ingest(r, n.Spec.Aggs, sign)
		if st.Rows <= 0 {
			if err := ss.removeKeyed(key); err != nil {
				return nil, nil, err
			}
		} else if err := ss.setKeyed(key, st); err != nil {
			return nil, nil, err
		}
		return &groupDelta{row: r, before: before, after: st}, key, nil
	}

	emit := func(d *groupDelta) []Change {
		var out []Change
		hadBefore := d.before != nil
		hasAfter := d.after.Rows > 0
		switch {
		case hadBefore && hasAfter:
			out = append(out, Change{Kind: ChangeUpdate, Pre: d.before.row(d.row, n), Post: d.after.row(d.row, n)})
		case hadBefore:
			out = append(out, Change{Kind: ChangeDelete, Pre: d.before.row(d.row, n)})
		case hasAfter:
			out = append(out, Change{Kind: ChangeInsert, Post: d.after.row(d.row, n)})
		}
		return out
	}

	var out []Change
	preKey, postKey := []byte(nil), []byte(nil)
	var preDelta, postDelta *groupDelta
	var err error
	if len(change.Pre.Values) > 0 {
		preDelta, preKey, err = touch(change.Pre, -1)
		if err != nil {
			return nil, err
		}
	}
	if len(change.Post.Values) > 0 {
		postDelta, postKey, err = touch(change.Post, 1)
		if err != nil {
			return nil, err
		}
	}
	if preDelta != nil && postDelta != nil && string(preKey) == string(postKey) {
		// Same group key re-touched by the same Update: fold the two
		// one-sided deltas into a single before/after pair rather than
		// reporting it as a Delete+Insert of the same group.
		out = append(out, Change{Kind: ChangeUpdate, Pre: preDelta.before.row(change.Pre, n), Post: postDelta.after.row(change.Post, n)})
		return out, nil
	}
	if preDelta != nil {
		out = append(out, emit(preDelta)...)
	}
	if postDelta != nil {
		out = append(out, emit(postDelta)...)
	}
	return out, nil
}

// applyJoin is keyed-state on both sides (spec.md §4.7.1 "Join build
// side"): each input's rows are kept under state(node, join_key) so a
// change on either side can probe the other side's current members and
// emit the resulting matched-pair diffs.
func applyJoin(ctx context.Context, oc *opContext, n *compiledNode, fromLeft bool, change Change) ([]Change, error) {
	ss := &stateStore{tx: oc.tx, node: n.Id, tracker: oc.tracker}

	keyOf := func(r types.Row, left bool) ([]byte, error) {
		cols := make([]string, len(n.Spec.On))
		for i, pair := range n.Spec.On {
			if left {
				cols[i] = pair[0]
			} else {
				cols[i] = pair[1]
			}
		}
		return engine.GroupKeyBytes(r, cols)
	}

	type sideState struct {
		Left  []types.Row
		Right []types.Row
	}

	withSide := func(r types.Row, left bool, add bool) (*sideState, []byte, error) {
		key, err := keyOf(r, left)
		if err != nil {
			return nil, nil, err
		}
		var st sideState
		if _, err := ss.getKeyed(ctx, key, &st); err != nil {
			return nil, nil, err
		}
		if left {
			if add {
				st.Left = append(st.Left, r)
			} else {
				st.Left = removeRow(st.Left, r)
			}
		} else {
			if add {
				st.Right = append(st.Right, r)
			} else {
				st.Right = removeRow(st.Right, r)
			}
		}
		if len(st.Left) == 0 && len(st.Right) == 0 {
			if err := ss.removeKeyed(key); err != nil {
				return nil, nil, err
			}
		} else if err := ss.setKeyed(key, &st); err != nil {
			return nil, nil, err
		}
		return &st, key, nil
	}

	combine := func(l, r types.Row) types.Row {
		fields := append([]types.Field(nil), l.Schema.Fields...)
		values := append([]types.Value(nil), l.Values...)
		fields = append(fields, r.Schema.Fields...)
		values = append(values, r.Values...)
		return types.Row{Schema: types.Schema{Fields: fields}, Values: values}
	}

	var out []Change
	process := func(r types.Row, left bool, add bool) error {
		st, _, err := withSide(r, left, add)
		if err != nil {
			return err
		}
		others := st.Right
		if !left {
			others = st.Left
		}
		kind := ChangeInsert
		if !add {
			kind = ChangeDelete
		}
		for _, other := range others {
			var l, rr types.Row
			if left {
				l, rr = r, other
			} else {
				l, rr = other, r
			}
			combined := combine(l, rr)
			if kind == ChangeInsert {
				out = append(out, Change{Kind: ChangeInsert, Post: combined})
			} else {
				out = append(out, Change{Kind: ChangeDelete, Pre: combined})
			}
		}
		return nil
	}

	if len(change.Pre.Values) > 0 {
		if err := process(change.Pre, fromLeft, false); err != nil {
			return nil, err
		}
	}
	if len(change.Post.Values) > 0 {
		if err := process(change.Post, fromLeft, true); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func removeRow(rows []types.Row, target types.Row) []types.Row {
	for i, r := range rows {
		if rowsEqual(r, target) {
			return append(rows[:i], rows[i+1:]...)
		}
	}
	return rows
}

func rowsEqual(a, b types.Row) bool {
	if len(a.Values) != len(b.Values) {
		return false
	}
	for i := range a.Values {
		if engine.CompareValues(a.Values[i], b.Values[i]) != 0 {
			return false
		}
	}
	return true
}

// windowState accumulates a tumbling window's members until WindowSize
// rows have arrived, per spec.md §4.7.1: "Tumbling windows align to
// epoch boundaries". Boundaries here are row-count epochs (every
// WindowSize input rows forms a window) rather than wall-clock time,
// since the flow engine has no independent clock of its own — the
// window id advances only as CDC versions are processed.
type windowState struct {
	Seen int
	Agg  *aggState
}

// applyWindow buckets rows into fixed-size, count-aligned windows and
// emits the bucket's aggregate once it fills (spec.md §4.7.1 window
// disciplines; sliding/session windows are not implemented, see
// DESIGN.md).
func applyWindow(ctx context.Context, oc *opContext, n *compiledNode, change Change) ([]Change, error) {
	if change.Kind != ChangeInsert || n.Spec.WindowSize <= 0 {
		return nil, nil // windows here only accumulate append-only inserts
	}
	ss := &stateStore{tx: oc.tx, node: n.Id, tracker: oc.tracker}
	var cursor struct{ WindowId uint64 }
	if _, err := ss.getSingle(ctx, &cursor); err != nil {
		return nil, err
	}

	var ws windowState
	if _, err := ss.getWindow(ctx, cursor.WindowId, &ws); err != nil {
		return nil, err
	}
	if ws.Agg == nil {
		ws.Agg = newAggState(len(n.Spec.Aggs))
	}
	ws.Agg.ingest(change.Post, n.Spec.Aggs, 1)
	ws.Seen++

	var out []Change
	if ws.Seen >= n.Spec.WindowSize {
		out = append(out, Change{Kind: ChangeInsert, Post: ws.Agg.row(change.Post, n)})
		cursor.WindowId++
		if err := ss.setSingle(&cursor); err != nil {
			return nil, err
		}
		return out, nil
	}
	if err := ss.setWindow(cursor.WindowId, &ws); err != nil {
		return nil, err
	}
	return nil, nil
}
