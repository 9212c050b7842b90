package engine

import (
	"context"

	"github.com/reifydb/reifydb/pkg/types"
)

// Predicate evaluates a boolean expression against one row; undefined
// counts as false (not matched), matching RQL's three-valued-to-filter
// collapse.
type Predicate func(r types.Row) bool

// Projection computes one new field's value from a row; used by Map
// (Extend) to add computed columns alongside the input schema.
type Projection func(r types.Row) types.Value

// Filter drops rows for which Pred returns false.
type Filter struct {
	Input Operator
	Pred  Predicate
}

func (f *Filter) Initialize(ctx context.Context, ec *Context) error {
	return f.Input.Initialize(ctx, ec)
}

func (f *Filter) Headers() types.Schema { return f.Input.Headers() }

func (f *Filter) Next(ctx context.Context, ec *Context) (*Columns, error) {
	for {
		batch, err := f.Input.Next(ctx, ec)
		if err != nil || batch == nil {
			return batch, err
		}
		out := NewColumns(batch.Schema)
		for i := 0; i < batch.Rows(); i++ {
			r := batch.Row(i)
			if f.Pred(r) {
				out.AppendRow(batch.RowNumbers[i], r.Values)
			}
		}
		if out.Rows() > 0 {
			return out, nil
		}
		// An all-filtered batch is not EOF; pull the next one.
	}
}

// MapField is one computed output field appended by Map/Extend.
type MapField struct {
	Name string
	Type types.Type
	Fn   Projection
}

// Map (Extend) appends computed fields to every row, keeping the input
// columns unchanged.
type Map struct {
	Input  Operator
	Fields []MapField

	schema types.Schema
}

func (m *Map) Initialize(ctx context.Context, ec *Context) error {
	if err := m.Input.Initialize(ctx, ec); err != nil {
		return err
	}
	m.schema = m.Input.Headers()
	for _, f := range m.Fields {
		m.schema.Fields = append(m.schema.Fields, types.Field{Name: f.Name, Type: f.Type})
	}
	return nil
}

func (m *Map) Headers() types.Schema { return m.schema }

func (m *Map) Next(ctx context.Context, ec *Context) (*Columns, error) {
	batch, err := m.Input.Next(ctx, ec)
	if err != nil || batch == nil {
		return batch, err
	}
	out := NewColumns(m.schema)
	for i := 0; i < batch.Rows(); i++ {
		r := batch.Row(i)
		values := append(append([]types.Value(nil), r.Values...))
		for _, f := range m.Fields {
			values = append(values, f.Fn(r))
		}
		out.AppendRow(batch.RowNumbers[i], values)
	}
	return out, nil
}

// Take returns at most N rows from Input then reports EOF, matching the
// boundary spec.md §8 names: k=0 returns empty.
type Take struct {
	Input Operator
	N     int

	emitted int
}

func (t *Take) Initialize(ctx context.Context, ec *Context) error {
	return t.Input.Initialize(ctx, ec)
}

func (t *Take) Headers() types.Schema { return t.Input.Headers() }

func (t *Take) Next(ctx context.Context, ec *Context) (*Columns, error) {
	if t.emitted >= t.N {
		return nil, nil
	}
	batch, err := t.Input.Next(ctx, ec)
	if err != nil || batch == nil {
		return batch, err
	}
	remaining := t.N - t.emitted
	if batch.Rows() <= remaining {
		t.emitted += batch.Rows()
		return batch, nil
	}
	out := NewColumns(batch.Schema)
	for i := 0; i < remaining; i++ {
		out.AppendRow(batch.RowNumbers[i], batch.Row(i).Values)
	}
	t.emitted += remaining
	return out, nil
}
