package engine

import (
	"context"

	"github.com/reifydb/reifydb/pkg/catalog"
	"github.com/reifydb/reifydb/pkg/encoding/row"
	"github.com/reifydb/reifydb/pkg/reifyerr"
	"github.com/reifydb/reifydb/pkg/types"
)

// batchSize bounds how many rows TableScan materializes per Next call,
// following the volcano pull model's "produce the next batch" contract
// rather than decoding the whole table at once.
const batchSize = 1024

// TableScan reads every live row of one table as of the transaction's
// snapshot, in row-number order.
//
// Grounded on crates/engine/src/execute/query/table_scan.rs.
type TableScan struct {
	TableId catalog.Id

	schema  types.Schema
	layout  *row.Layout
	entries []rowEntry
	pos     int
}

type rowEntry struct {
	rowNumber uint64
	bytes     []byte
}

func NewTableScan(tableId catalog.Id) *TableScan {
	return &TableScan{TableId: tableId}
}

func (s *TableScan) Initialize(ctx context.Context, ec *Context) error {
	obj, ok, err := ec.Catalog.Get(ctx, ec.Tx, catalog.KindTable, s.TableId)
	if err != nil {
		return err
	}
	if !ok {
		return reifyerr.Catalog("table %d not found", s.TableId)
	}
	s.schema = obj.Schema
	s.layout = row.NewLayout(obj.Schema)

	scanned, err := ec.Tx.Range(ctx, rowRange(s.TableId))
	if err != nil {
		return err
	}
	s.entries = make([]rowEntry, 0, len(scanned))
	for _, e := range scanned {
		s.entries = append(s.entries, rowEntry{
			rowNumber: rowNumberFromKey(s.TableId, e.Key),
			bytes:     e.Value,
		})
	}
	return nil
}

func (s *TableScan) Headers() types.Schema { return s.schema }

func (s *TableScan) Next(ctx context.Context, ec *Context) (*Columns, error) {
	if s.pos >= len(s.entries) {
		return nil, nil
	}
	end := s.pos + batchSize
	if end > len(s.entries) {
		end = len(s.entries)
	}
	out := NewColumns(s.schema)
	for ; s.pos < end; s.pos++ {
		e := s.entries[s.pos]
		decoded, err := row.ToRow(s.layout, &row.EncodedValues{Bytes: e.bytes})
		if err != nil {
			return nil, reifyerr.Serialization(err, "decoding row %d of table %d", e.rowNumber, s.TableId)
		}
		out.AppendRow(e.rowNumber, decoded.Values)
	}
	return out, nil
}

// InlineData replays a fixed, caller-supplied set of rows, used for
// VALUES-style literal input and as a test fixture for downstream
// operators (spec.md §4.6).
type InlineData struct {
	Schema types.Schema
	Rows   []types.Row

	pos int
}

func (s *InlineData) Initialize(ctx context.Context, ec *Context) error { return nil }

func (s *InlineData) Headers() types.Schema { return s.Schema }

func (s *InlineData) Next(ctx context.Context, ec *Context) (*Columns, error) {
	if s.pos >= len(s.Rows) {
		return nil, nil
	}
	out := NewColumns(s.Schema)
	for ; s.pos < len(s.Rows); s.pos++ {
		out.AppendRow(uint64(s.pos), s.Rows[s.pos].Values)
	}
	return out, nil
}
