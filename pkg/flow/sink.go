package flow

import (
	"context"

	"github.com/reifydb/reifydb/pkg/catalog"
	"github.com/reifydb/reifydb/pkg/encoding/row"
	"github.com/reifydb/reifydb/pkg/engine"
	"github.com/reifydb/reifydb/pkg/reifyerr"
	"github.com/reifydb/reifydb/pkg/types"
)

// sinkRowState maps one SinkView identity key to the materialized row
// number currently holding it, so a later Update to the same logical
// group overwrites that row instead of appending a duplicate.
type sinkRowState struct {
	RowNumber uint64
}

// sinkIdentityColumns names the columns a SinkView node's rows are keyed
// by: the node's own GroupBy if set (matching an upstream Aggregate or
// Window's grouping), or every resolved output column otherwise.
func sinkIdentityColumns(n *compiledNode) []string {
	if len(n.Spec.GroupBy) > 0 {
		return n.Spec.GroupBy
	}
	names := make([]string, len(n.Schema.Fields))
	for i, f := range n.Schema.Fields {
		names[i] = f.Name
	}
	return names
}

// writeSink applies change to sink's materialized view table, reusing
// the same row keyspace pkg/engine's TableScan reads (spec.md §4.7
// "sinks write into the same row keyspace as an ordinary table").
func writeSink(ctx context.Context, oc *opContext, cat *catalog.Catalog, sink *compiledNode, change Change) error {
	obj, ok, err := cat.Get(ctx, oc.tx, catalog.KindView, sink.Spec.ViewId)
	if err != nil {
		return err
	}
	if !ok {
		return reifyerr.Catalog("flow sink view %d not found", sink.Spec.ViewId)
	}
	layout := row.NewLayout(obj.Schema)
	idx := &stateStore{tx: oc.tx, node: sink.Id, tracker: oc.tracker}
	cols := sinkIdentityColumns(sink)

	if len(change.Pre.Values) > 0 {
		key, err := engine.GroupKeyBytes(change.Pre, cols)
		if err != nil {
			return err
		}
		var st sinkRowState
		found, err := idx.getKeyed(ctx, key, &st)
		if err != nil {
			return err
		}
		if found {
			oc.tx.Remove(engine.RowKey(sink.Spec.ViewId, st.RowNumber))
			if err := idx.removeKeyed(key); err != nil {
				return err
			}
		}
	}

	if len(change.Post.Values) > 0 {
		coerced := coerceSinkRow(change.Post, obj.Schema)
		key, err := engine.GroupKeyBytes(change.Post, cols)
		if err != nil {
			return err
		}
		var st sinkRowState
		found, err := idx.getKeyed(ctx, key, &st)
		if err != nil {
			return err
		}
		if !found {
			rowNum, err := engine.NextRowNumber(ctx, oc.tx, sink.Spec.ViewId)
			if err != nil {
				return err
			}
			st.RowNumber = rowNum
			if err := idx.setKeyed(key, &st); err != nil {
				return err
			}
		}
		encoded, err := row.FromRow(layout, coerced)
		if err != nil {
			return reifyerr.Serialization(err, "encoding row for sink view %d", sink.Spec.ViewId)
		}
		oc.tx.Set(engine.RowKey(sink.Spec.ViewId, st.RowNumber), encoded.Bytes)
	}
	return nil
}

// coerceSinkRow aligns r's columns to schema's declared order, since an
// operator's output row order need not match the view's declared field
// order.
func coerceSinkRow(r types.Row, schema types.Schema) types.Row {
	values := make([]types.Value, len(schema.Fields))
	for i, f := range schema.Fields {
		v, ok := r.Get(f.Name)
		if !ok {
			v = types.Undef(f.Type)
		}
		values[i] = v
	}
	return types.Row{Schema: schema, Values: values}
}
