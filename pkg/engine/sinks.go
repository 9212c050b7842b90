package engine

import (
	"context"

	"github.com/reifydb/reifydb/pkg/catalog"
	"github.com/reifydb/reifydb/pkg/encoding/row"
	"github.com/reifydb/reifydb/pkg/reifyerr"
	"github.com/reifydb/reifydb/pkg/types"
)

// mutationCountSchema is the single-row-count output every mutating sink
// produces after consuming its input to EOF.
var mutationCountSchema = types.Schema{Fields: []types.Field{{Name: "count", Type: types.Uint8}}}

func countColumns(n int) *Columns {
	out := NewColumns(mutationCountSchema)
	out.AppendRow(0, []types.Value{{Type: types.Uint8, Defined: true, U64: uint64(n)}})
	return out
}

// nextRowNumber allocates a table's next row number through tx, so
// allocation participates in the same commit/rollback as the insert
// itself (mirrors catalog.Catalog.allocate).
func nextRowNumber(ctx context.Context, ec *Context, tableId catalog.Id) (uint64, error) {
	return NextRowNumber(ctx, ec.Tx, tableId)
}

// coerce applies t's static shape to v once, per spec.md §4.6 "Type
// coercion is applied once per value using a saturation policy":
// non-numeric types and widening numeric conversions pass straight
// through with the target type tag; a narrowing integer conversion is
// range-checked against t and resolved by policy on overflow.
func coerce(v types.Value, t types.Type, policy SaturationPolicy) (types.Value, error) {
	if !v.Defined {
		return types.Undef(t), nil
	}
	if v.Type == t || t == types.Bool || t == types.Utf8 || t == types.Blob ||
		t == types.Float4 || t == types.Float8 {
		out := v
		out.Type = t
		return out, nil
	}
	r := asI64(v)
	if outOfRange(r, t) || (isUnsignedType(t) && !isUnsignedType(v.Type) && r < 0) {
		if policy == SaturationError {
			return types.Value{}, reifyerr.TypeError("value %d out of range for %s", r, t)
		}
		return types.Undef(t), nil
	}
	return makeValue(t, r), nil
}

func coerceRow(r types.Row, schema types.Schema, policy SaturationPolicy) (types.Row, error) {
	values := make([]types.Value, len(schema.Fields))
	for i, f := range schema.Fields {
		v, ok := r.Get(f.Name)
		if !ok {
			values[i] = types.Undef(f.Type)
			continue
		}
		coerced, err := coerce(v, f.Type, policy)
		if err != nil {
			return types.Row{}, err
		}
		values[i] = coerced
	}
	return types.Row{Schema: schema, Values: values}, nil
}

// InsertTable consumes Input to EOF, allocating a row number per row and
// writing an index entry for every declared Index (spec.md §4.6
// "Mutating sinks").
//
// Grounded on crates/engine/src/execute/mutate/table_insert.rs.
type InsertTable struct {
	Input    Operator
	TableId  catalog.Id
	Indexes  []catalog.Id // indexes to maintain, resolved by the caller
	Policy   SaturationPolicy
}

func (s *InsertTable) Initialize(ctx context.Context, ec *Context) error {
	return s.Input.Initialize(ctx, ec)
}

func (s *InsertTable) Headers() types.Schema { return mutationCountSchema }

func (s *InsertTable) Next(ctx context.Context, ec *Context) (*Columns, error) {
	obj, ok, err := ec.Catalog.Get(ctx, ec.Tx, catalog.KindTable, s.TableId)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, reifyerr.Catalog("table %d not found", s.TableId)
	}
	layout := row.NewLayout(obj.Schema)

	n := 0
	for {
		batch, err := s.Input.Next(ctx, ec)
		if err != nil {
			return nil, err
		}
		if batch == nil {
			break
		}
		for i := 0; i < batch.Rows(); i++ {
			r, err := coerceRow(batch.Row(i), obj.Schema, s.Policy)
			if err != nil {
				return nil, err
			}
			rowNum, err := nextRowNumber(ctx, ec, s.TableId)
			if err != nil {
				return nil, err
			}
			encoded, err := row.FromRow(layout, r)
			if err != nil {
				return nil, reifyerr.Serialization(err, "encoding row for table %d", s.TableId)
			}
			ec.Tx.Set(rowKey(s.TableId, rowNum), encoded.Bytes)
			if err := s.writeIndexes(ctx, ec, r); err != nil {
				return nil, err
			}
			n++
		}
	}
	return countColumns(n), nil
}

func (s *InsertTable) writeIndexes(ctx context.Context, ec *Context, r types.Row) error {
	for _, indexId := range s.Indexes {
		idxObj, ok, err := ec.Catalog.Get(ctx, ec.Tx, catalog.KindIndex, indexId)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		keyBytes, err := groupKeyBytes(r, idxObj.Columns)
		if err != nil {
			return err
		}
		ec.Tx.Set(indexEntryKey(indexId, keyBytes), nil)
	}
	return nil
}

// UpdateTable re-encodes every input row over its existing row number,
// taken from the input batch's RowNumbers.
//
// Grounded on crates/reifydb-engine/src/execute/mutate/update.rs.
type UpdateTable struct {
	Input   Operator
	TableId catalog.Id
	Policy  SaturationPolicy
}

func (s *UpdateTable) Initialize(ctx context.Context, ec *Context) error {
	return s.Input.Initialize(ctx, ec)
}

func (s *UpdateTable) Headers() types.Schema { return mutationCountSchema }

func (s *UpdateTable) Next(ctx context.Context, ec *Context) (*Columns, error) {
	obj, ok, err := ec.Catalog.Get(ctx, ec.Tx, catalog.KindTable, s.TableId)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, reifyerr.Catalog("table %d not found", s.TableId)
	}
	layout := row.NewLayout(obj.Schema)

	n := 0
	for {
		batch, err := s.Input.Next(ctx, ec)
		if err != nil {
			return nil, err
		}
		if batch == nil {
			break
		}
		for i := 0; i < batch.Rows(); i++ {
			r, err := coerceRow(batch.Row(i), obj.Schema, s.Policy)
			if err != nil {
				return nil, err
			}
			encoded, err := row.FromRow(layout, r)
			if err != nil {
				return nil, reifyerr.Serialization(err, "encoding row for table %d", s.TableId)
			}
			ec.Tx.Set(rowKey(s.TableId, batch.RowNumbers[i]), encoded.Bytes)
			n++
		}
	}
	return countColumns(n), nil
}

// DeleteTable removes every row number produced by Input from the
// table's row keyspace.
type DeleteTable struct {
	Input   Operator
	TableId catalog.Id
}

func (s *DeleteTable) Initialize(ctx context.Context, ec *Context) error {
	return s.Input.Initialize(ctx, ec)
}

func (s *DeleteTable) Headers() types.Schema { return mutationCountSchema }

func (s *DeleteTable) Next(ctx context.Context, ec *Context) (*Columns, error) {
	n := 0
	for {
		batch, err := s.Input.Next(ctx, ec)
		if err != nil {
			return nil, err
		}
		if batch == nil {
			break
		}
		for i := 0; i < batch.Rows(); i++ {
			ec.Tx.Remove(rowKey(s.TableId, batch.RowNumbers[i]))
			n++
		}
	}
	return countColumns(n), nil
}

// RingBufferInsert is InsertTable's fixed-capacity variant: once the
// ring buffer is at capacity, the oldest row number is evicted for every
// new row admitted (spec.md §4.6 "analogous ones for ring buffers",
// supplemented per crates/engine/src/execute/mutate/ring_buffer_update.rs).
type RingBufferInsert struct {
	Input         Operator
	RingBufferId  catalog.Id
	Capacity      int
	Policy        SaturationPolicy
}

func (s *RingBufferInsert) Initialize(ctx context.Context, ec *Context) error {
	return s.Input.Initialize(ctx, ec)
}

func (s *RingBufferInsert) Headers() types.Schema { return mutationCountSchema }

func (s *RingBufferInsert) Next(ctx context.Context, ec *Context) (*Columns, error) {
	obj, ok, err := ec.Catalog.Get(ctx, ec.Tx, catalog.KindRingBuffer, s.RingBufferId)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, reifyerr.Catalog("ring buffer %d not found", s.RingBufferId)
	}
	layout := row.NewLayout(obj.Schema)
	capacity := s.Capacity
	if capacity <= 0 {
		capacity = obj.Capacity
	}

	live, err := ec.Tx.Range(ctx, rowRange(s.RingBufferId))
	if err != nil {
		return nil, err
	}
	liveCount := len(live)
	var oldest []uint64
	for _, e := range live {
		oldest = append(oldest, rowNumberFromKey(s.RingBufferId, e.Key))
	}

	n := 0
	for {
		batch, err := s.Input.Next(ctx, ec)
		if err != nil {
			return nil, err
		}
		if batch == nil {
			break
		}
		for i := 0; i < batch.Rows(); i++ {
			if liveCount >= capacity && len(oldest) > 0 {
				ec.Tx.Remove(rowKey(s.RingBufferId, oldest[0]))
				oldest = oldest[1:]
				liveCount--
			}
			r, err := coerceRow(batch.Row(i), obj.Schema, s.Policy)
			if err != nil {
				return nil, err
			}
			rowNum, err := nextRowNumber(ctx, ec, s.RingBufferId)
			if err != nil {
				return nil, err
			}
			encoded, err := row.FromRow(layout, r)
			if err != nil {
				return nil, reifyerr.Serialization(err, "encoding row for ring buffer %d", s.RingBufferId)
			}
			ec.Tx.Set(rowKey(s.RingBufferId, rowNum), encoded.Bytes)
			liveCount++
			n++
		}
	}
	return countColumns(n), nil
}
