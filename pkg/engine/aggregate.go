package engine

import (
	"context"
	"fmt"

	"github.com/reifydb/reifydb/pkg/encoding/keycode"
	"github.com/reifydb/reifydb/pkg/types"
)

// AggFunc names one supported aggregator (spec.md §4.6 "sum/min/max/avg/count").
type AggFunc int

const (
	AggSum AggFunc = iota
	AggMin
	AggMax
	AggAvg
	AggCount
	AggCountAll // count(*) — counts rows regardless of column definedness
)

// AggSpec is one output aggregate column.
type AggSpec struct {
	Output string
	Func   AggFunc
	Column string // ignored for AggCountAll
	Type   types.Type
}

// groupState accumulates one group's running aggregator state (spec.md
// §4.6 "per group, maintains the aggregator's running state").
type groupState struct {
	keyRow types.Row
	sum    []float64
	count  []int64 // defined-value count, used for avg and count(col)
	rows   int64   // total row count, used for count(*)
	min    []types.Value
	max    []types.Value
	seen   []bool
}

// Aggregate partitions rows by GroupBy key tuple and emits one row per
// group after input EOF, a hash group-by (spec.md §4.6 "Aggregate").
//
// Grounded on crates/engine/src/frame/view/group_by.rs.
type Aggregate struct {
	Input   Operator
	GroupBy []string
	Aggs    []AggSpec

	inputSchema types.Schema
	schema      types.Schema
	groups      map[string]*groupState
	order       []string
	produced    bool

	// GroupKeyCardinality reports, per Utf8 GroupBy column, the number of
	// distinct values seen in the output — the dictionary's entry count,
	// computed from the output batch rather than the input, since that
	// is the cardinality a caller deciding whether to dictionary-encode
	// the column for storage actually cares about.
	GroupKeyCardinality map[string]int
}

func (a *Aggregate) Initialize(ctx context.Context, ec *Context) error {
	if err := a.Input.Initialize(ctx, ec); err != nil {
		return err
	}
	a.inputSchema = a.Input.Headers()
	fields := make([]types.Field, 0, len(a.GroupBy)+len(a.Aggs))
	for _, g := range a.GroupBy {
		idx := a.inputSchema.IndexOf(g)
		fields = append(fields, types.Field{Name: g, Type: a.inputSchema.Fields[idx].Type})
	}
	for _, spec := range a.Aggs {
		fields = append(fields, types.Field{Name: spec.Output, Type: spec.Type})
	}
	a.schema = types.Schema{Fields: fields}
	a.groups = make(map[string]*groupState)
	return nil
}

func (a *Aggregate) Headers() types.Schema { return a.schema }

// GroupKeyBytes derives r's group key bytes via the order-preserving
// codec, per spec.md §4.7.1 "key bytes are derived by the order-
// preserving codec". Exported so pkg/flow's keyed-state operators apply
// the identical discipline rather than a second implementation.
func GroupKeyBytes(r types.Row, groupBy []string) ([]byte, error) {
	return groupKeyBytes(r, groupBy)
}

func groupKeyBytes(r types.Row, groupBy []string) ([]byte, error) {
	var buf []byte
	for _, name := range groupBy {
		v, _ := r.Get(name)
		if !v.Defined {
			buf = append(buf, 0)
			continue
		}
		buf = append(buf, 1)
		switch v.Type {
		case types.Bool:
			buf = keycode.EncodeBool(buf, v.Bool, keycode.Ascending)
		case types.Utf8:
			buf = keycode.EncodeString(buf, v.Str, keycode.Ascending)
		case types.Float4, types.Float8:
			buf = keycode.EncodeFloat(buf, v.F64, keycode.Ascending)
		default:
			if isUnsignedType(v.Type) {
				buf = keycode.EncodeUint(buf, v.U64, int(v.Type.Width()), keycode.Ascending)
			} else {
				buf = keycode.EncodeInt(buf, v.I64, int(v.Type.Width()), keycode.Ascending)
			}
		}
	}
	return buf, nil
}

func (a *Aggregate) ingest(r types.Row) error {
	key, err := groupKeyBytes(r, a.GroupBy)
	if err != nil {
		return err
	}
	ks := string(key)
	g, ok := a.groups[ks]
	if !ok {
		g = &groupState{
			keyRow: r,
			sum:    make([]float64, len(a.Aggs)),
			count:  make([]int64, len(a.Aggs)),
			min:    make([]types.Value, len(a.Aggs)),
			max:    make([]types.Value, len(a.Aggs)),
			seen:   make([]bool, len(a.Aggs)),
		}
		a.groups[ks] = g
		a.order = append(a.order, ks)
	}
	g.rows++
	for i, spec := range a.Aggs {
		if spec.Func == AggCountAll {
			continue
		}
		v, _ := r.Get(spec.Column)
		if !v.Defined {
			continue // undefined inputs to arithmetic aggregates are skipped
		}
		g.count[i]++
		f := asF64(v)
		switch spec.Func {
		case AggSum, AggAvg:
			g.sum[i] += f
		case AggMin:
			if !g.seen[i] || compareValues(v, g.min[i]) < 0 {
				g.min[i] = v
			}
		case AggMax:
			if !g.seen[i] || compareValues(v, g.max[i]) > 0 {
				g.max[i] = v
			}
		}
		g.seen[i] = true
	}
	return nil
}

func (a *Aggregate) finalize(g *groupState) []types.Value {
	values := make([]types.Value, 0, len(a.GroupBy)+len(a.Aggs))
	for _, name := range a.GroupBy {
		v, _ := g.keyRow.Get(name)
		values = append(values, v)
	}
	for i, spec := range a.Aggs {
		switch spec.Func {
		case AggCountAll:
			values = append(values, types.Value{Type: spec.Type, Defined: true, I64: g.rows, U64: uint64(g.rows)})
		case AggCount:
			values = append(values, types.Value{Type: spec.Type, Defined: true, I64: g.count[i], U64: uint64(g.count[i])})
		case AggSum:
			values = append(values, floatOrIntValue(spec.Type, g.sum[i], g.count[i] > 0))
		case AggAvg:
			if g.count[i] == 0 {
				values = append(values, types.Undef(spec.Type))
			} else {
				values = append(values, floatOrIntValue(spec.Type, g.sum[i]/float64(g.count[i]), true))
			}
		case AggMin:
			if g.seen[i] {
				values = append(values, g.min[i])
			} else {
				values = append(values, types.Undef(spec.Type))
			}
		case AggMax:
			if g.seen[i] {
				values = append(values, g.max[i])
			} else {
				values = append(values, types.Undef(spec.Type))
			}
		default:
			panic(fmt.Sprintf("engine: unhandled AggFunc %d", spec.Func))
		}
	}
	return values
}

func floatOrIntValue(t types.Type, f float64, defined bool) types.Value {
	if !defined {
		return types.Undef(t)
	}
	if t == types.Float4 || t == types.Float8 {
		return types.Value{Type: t, Defined: true, F64: f}
	}
	return types.Value{Type: t, Defined: true, I64: int64(f), U64: uint64(int64(f))}
}

func (a *Aggregate) Next(ctx context.Context, ec *Context) (*Columns, error) {
	if a.produced {
		return nil, nil
	}
	for {
		batch, err := a.Input.Next(ctx, ec)
		if err != nil {
			return nil, err
		}
		if batch == nil {
			break
		}
		for i := 0; i < batch.Rows(); i++ {
			if err := a.ingest(batch.Row(i)); err != nil {
				return nil, err
			}
		}
	}
	a.produced = true
	if len(a.order) == 0 {
		if len(a.GroupBy) > 0 {
			return nil, nil // no input rows means no groups exist
		}
		// A global aggregate (no GROUP BY) always emits exactly one row,
		// even over empty input: count=0, everything else undefined
		// (spec.md §8 "Aggregates over an empty input").
		a.groups[""] = &groupState{
			sum:   make([]float64, len(a.Aggs)),
			count: make([]int64, len(a.Aggs)),
			min:   make([]types.Value, len(a.Aggs)),
			max:   make([]types.Value, len(a.Aggs)),
			seen:  make([]bool, len(a.Aggs)),
		}
		a.order = append(a.order, "")
	}
	out := NewColumns(a.schema)
	for i, ks := range a.order {
		out.AppendRow(uint64(i), a.finalize(a.groups[ks]))
	}
	a.GroupKeyCardinality = make(map[string]int)
	for _, name := range a.GroupBy {
		col, ok := out.Column(name)
		if !ok || col.Type != types.Utf8 {
			continue
		}
		a.GroupKeyCardinality[name] = col.Dictionary().Cardinality()
	}
	return out, nil
}
