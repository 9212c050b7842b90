package engine

import (
	"github.com/reifydb/reifydb/pkg/types"
)

// ColumnData is one named, typed column of a Columns batch: a
// copy-on-write vector of values sharing storage across operator
// hand-offs until an operator mutates it in place.
type ColumnData struct {
	Name   string
	Type   types.Type
	values *CowVec[types.Value]
}

func NewColumnData(name string, t types.Type, values []types.Value) *ColumnData {
	return &ColumnData{Name: name, Type: t, values: NewCowVec(values)}
}

func (c *ColumnData) Len() int { return c.values.Len() }

func (c *ColumnData) At(i int) types.Value { return c.values.At(i) }

func (c *ColumnData) Set(i int, v types.Value) { c.values.Set(i, v) }

func (c *ColumnData) Append(v types.Value) { c.values.Append(v) }

func (c *ColumnData) Clone() *ColumnData {
	return &ColumnData{Name: c.Name, Type: c.Type, values: c.values.Clone()}
}

func (c *ColumnData) Values() []types.Value { return c.values.Raw() }

// Dictionary compacts a Utf8 column into a deduplicated string pool.
// Callers use it to learn a column's cardinality, or to intern its
// values, without repeatedly rescanning the raw []types.Value slice
// themselves (spec.md §4.6 value domain, supplemented per
// crates/type/src/value/container/dictionary.rs).
func (c *ColumnData) Dictionary() *types.Dictionary {
	return types.DictionaryFromValues(c.values.Raw())
}

// Columns is a batch: a named ordered set of ColumnData plus an aligned
// vector of row numbers (spec.md §4.6 "Batch"). Row count is implicit in
// column lengths.
type Columns struct {
	Schema     types.Schema
	columns    []*ColumnData
	RowNumbers []uint64
}

func NewColumns(schema types.Schema) *Columns {
	cols := make([]*ColumnData, len(schema.Fields))
	for i, f := range schema.Fields {
		cols[i] = NewColumnData(f.Name, f.Type, nil)
	}
	return &Columns{Schema: schema, columns: cols}
}

func (c *Columns) Rows() int {
	if len(c.columns) == 0 {
		return 0
	}
	return c.columns[0].Len()
}

func (c *Columns) Column(name string) (*ColumnData, bool) {
	i := c.Schema.IndexOf(name)
	if i < 0 {
		return nil, false
	}
	return c.columns[i], true
}

func (c *Columns) ColumnAt(i int) *ColumnData { return c.columns[i] }

func (c *Columns) NumColumns() int { return len(c.columns) }

// AppendRow appends one row's worth of values (in schema field order)
// and its source row number.
func (c *Columns) AppendRow(rowNumber uint64, values []types.Value) {
	for i, v := range values {
		c.columns[i].Append(v)
	}
	c.RowNumbers = append(c.RowNumbers, rowNumber)
}

// Clone returns a shallow copy-on-write clone: column data is shared
// until a later mutation forces a copy.
func (c *Columns) Clone() *Columns {
	cols := make([]*ColumnData, len(c.columns))
	for i, col := range c.columns {
		cols[i] = col.Clone()
	}
	rows := make([]uint64, len(c.RowNumbers))
	copy(rows, c.RowNumbers)
	return &Columns{Schema: c.Schema, columns: cols, RowNumbers: rows}
}

// Row reconstructs row i as a types.Row, for operators that evaluate
// scalar expressions one row at a time.
func (c *Columns) Row(i int) types.Row {
	values := make([]types.Value, len(c.columns))
	for j, col := range c.columns {
		values[j] = col.At(i)
	}
	return types.Row{Schema: c.Schema, Values: values}
}
