// Package engine implements the columnar volcano executor of spec.md
// §4.6: Columns batches, the operator interface, the required operator
// set, and the numeric arithmetic rules operators share.
//
// Grounded on crates/engine/src/execute/query/table_scan.rs (operator
// shape: initialize/next/headers), crates/engine/src/vm/volcano/top_k.rs
// (TopK), crates/engine/src/frame/view/group_by.rs (Aggregate),
// crates/reifydb-engine/src/execute/mutate/update.rs and
// crates/engine/src/execute/mutate/table_insert.rs (mutating sinks), and
// crates/core/src/cowvec/mod.rs (copy-on-write column vectors).
package engine

import (
	"context"

	"github.com/reifydb/reifydb/pkg/catalog"
	"github.com/reifydb/reifydb/pkg/txn"
	"github.com/reifydb/reifydb/pkg/types"
)

// Context carries everything an operator needs to run one query: the
// transaction its reads and writes are scoped to, and the catalog used
// to resolve table/view/sequence objects by name.
type Context struct {
	Tx      *txn.Transaction
	Catalog *catalog.Catalog
}

// Operator is one node of the volcano-style pull pipeline (spec.md
// §4.6). Initialize runs once before the first Next; Next is called
// repeatedly until it returns (nil, nil) for EOF.
type Operator interface {
	Initialize(ctx context.Context, ec *Context) error
	Next(ctx context.Context, ec *Context) (*Columns, error)
	Headers() types.Schema
}
