package engine

import (
	"context"

	"github.com/reifydb/reifydb/pkg/types"
)

// JoinKind selects the join variant required by spec.md §4.6.
type JoinKind int

const (
	JoinInner JoinKind = iota
	JoinLeft
	JoinNatural
)

// Join evaluates Left against Right with a nested-loop probe, the
// shape every example in the pack's query layer uses for joins over
// already-materialized batches rather than an indexed hash-join. On
// JoinNatural, On is derived from the fields common to both schemas.
type Join struct {
	Left, Right Operator
	Kind        JoinKind
	On          [][2]string // (left column, right column) equality pairs; ignored for JoinNatural

	schema      types.Schema
	rightRows   []types.Row
	leftMatched []bool
	produced    bool
}

func (j *Join) Initialize(ctx context.Context, ec *Context) error {
	if err := j.Left.Initialize(ctx, ec); err != nil {
		return err
	}
	if err := j.Right.Initialize(ctx, ec); err != nil {
		return err
	}
	leftSchema, rightSchema := j.Left.Headers(), j.Right.Headers()

	if j.Kind == JoinNatural {
		j.On = nil
		for _, f := range leftSchema.Fields {
			if rightSchema.IndexOf(f.Name) >= 0 {
				j.On = append(j.On, [2]string{f.Name, f.Name})
			}
		}
	}

	fields := append([]types.Field(nil), leftSchema.Fields...)
	for _, f := range rightSchema.Fields {
		if j.Kind == JoinNatural && leftSchema.IndexOf(f.Name) >= 0 {
			continue // natural join de-duplicates shared columns
		}
		fields = append(fields, f)
	}
	j.schema = types.Schema{Fields: fields}
	return nil
}

func (j *Join) Headers() types.Schema { return j.schema }

func (j *Join) drainRight(ctx context.Context, ec *Context) error {
	for {
		batch, err := j.Right.Next(ctx, ec)
		if err != nil {
			return err
		}
		if batch == nil {
			return nil
		}
		for i := 0; i < batch.Rows(); i++ {
			j.rightRows = append(j.rightRows, batch.Row(i))
		}
	}
}

func (j *Join) matches(l, r types.Row) bool {
	for _, pair := range j.On {
		lv, _ := l.Get(pair[0])
		rv, _ := r.Get(pair[1])
		if !lv.Defined || !rv.Defined || compareValues(lv, rv) != 0 {
			return false
		}
	}
	return true
}

func (j *Join) combine(l, r types.Row, rightDefined bool) []types.Value {
	values := append([]types.Value(nil), l.Values...)
	rightSchema := j.Right.Headers()
	for _, f := range rightSchema.Fields {
		if j.Kind == JoinNatural && j.Left.Headers().IndexOf(f.Name) >= 0 {
			continue
		}
		if !rightDefined {
			values = append(values, types.Undef(f.Type))
			continue
		}
		v, _ := r.Get(f.Name)
		values = append(values, v)
	}
	return values
}

func (j *Join) Next(ctx context.Context, ec *Context) (*Columns, error) {
	if j.produced {
		return nil, nil
	}
	if j.rightRows == nil {
		if err := j.drainRight(ctx, ec); err != nil {
			return nil, err
		}
	}

	out := NewColumns(j.schema)
	var rowNum uint64
	for {
		batch, err := j.Left.Next(ctx, ec)
		if err != nil {
			return nil, err
		}
		if batch == nil {
			break
		}
		for i := 0; i < batch.Rows(); i++ {
			l := batch.Row(i)
			matched := false
			for _, r := range j.rightRows {
				if j.matches(l, r) {
					matched = true
					out.AppendRow(rowNum, j.combine(l, r, true))
					rowNum++
				}
			}
			if !matched && j.Kind == JoinLeft {
				out.AppendRow(rowNum, j.combine(l, types.Row{}, false))
				rowNum++
			}
		}
	}
	j.produced = true
	if out.Rows() == 0 {
		return nil, nil
	}
	return out, nil
}
