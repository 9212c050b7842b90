// Package flow implements the incremental view maintenance engine of
// spec.md §4.7: a DAG of SourceTable/SourceView, operator and SinkView
// nodes that consumes CDC diffs and keeps materialized views up to
// date, one committed version at a time.
//
// Grounded on crates/reifydb-flow/src/engine/process.rs's
// subscribe/route/apply/write/advance loop.
package flow

import (
	"github.com/reifydb/reifydb/pkg/encoding/row"
	"github.com/reifydb/reifydb/pkg/mvcc"
	"github.com/reifydb/reifydb/pkg/reifyerr"
	"github.com/reifydb/reifydb/pkg/types"
)

// ChangeKind names the three diff shapes flow operators consume and
// emit (spec.md §4.7.2).
type ChangeKind int

const (
	ChangeInsert ChangeKind = iota
	ChangeUpdate
	ChangeDelete
)

// Change is one row-level event flowing through the DAG. Pre is set for
// Update and Delete, Post for Insert and Update — the same shape as
// mvcc.Diff, but with the row bytes decoded against the source's
// schema so operators evaluate predicates/projections directly.
type Change struct {
	Kind ChangeKind
	Pre  types.Row
	Post types.Row
}

// decodeChange turns a committed mvcc.Diff into a flow Change, decoding
// Pre/Post with the binary row codec the same way pkg/engine's
// TableScan does.
func decodeChange(d mvcc.Diff, schema types.Schema) (Change, error) {
	layout := row.NewLayout(schema)
	c := Change{}
	switch d.Kind {
	case mvcc.DiffInsert:
		c.Kind = ChangeInsert
	case mvcc.DiffUpdate:
		c.Kind = ChangeUpdate
	case mvcc.DiffDelete:
		c.Kind = ChangeDelete
	}
	if len(d.Pre) > 0 {
		r, err := row.ToRow(layout, &row.EncodedValues{Bytes: d.Pre})
		if err != nil {
			return Change{}, reifyerr.Serialization(err, "decoding pre-image")
		}
		c.Pre = r
	}
	if len(d.Post) > 0 {
		r, err := row.ToRow(layout, &row.EncodedValues{Bytes: d.Post})
		if err != nil {
			return Change{}, reifyerr.Serialization(err, "decoding post-image")
		}
		c.Post = r
	}
	return c, nil
}
