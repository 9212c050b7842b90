package flow

import (
	"context"

	"github.com/reifydb/reifydb/pkg/catalog"
	"github.com/reifydb/reifydb/pkg/reifyerr"
	"github.com/reifydb/reifydb/pkg/txn"
	"github.com/reifydb/reifydb/pkg/types"
)

// compiledNode is one DAG node resolved against the catalog: its spec,
// its output schema, and the nodes it feeds.
type compiledNode struct {
	Id      catalog.Id
	Spec    Spec
	Schema  types.Schema
	Outputs []*compiledNode

	resolving bool
	resolved  bool
}

// Graph is one flow's compiled DAG, ready to process diffs (spec.md
// §4.7 "A flow is a directed acyclic graph of nodes").
type Graph struct {
	FlowId  catalog.Id
	Nodes   map[catalog.Id]*compiledNode
	Sources map[catalog.Id][]*compiledNode // source table/view id -> the SourceTable/SourceView nodes reading it
	Sinks   []*compiledNode
}

// LoadGraph compiles flowId's nodes from the catalog into a ready-to-run
// Graph, grounded on crates/sub-flow/src/catalog.rs's "flow definitions
// as catalog objects".
func LoadGraph(ctx context.Context, tx *txn.Transaction, cat *catalog.Catalog, flowId catalog.Id) (*Graph, error) {
	objs, err := cat.ListByParent(ctx, tx, catalog.KindFlowNode, flowId)
	if err != nil {
		return nil, err
	}
	g := &Graph{FlowId: flowId, Nodes: make(map[catalog.Id]*compiledNode), Sources: make(map[catalog.Id][]*compiledNode)}
	for _, obj := range objs {
		spec, err := decodeSpec(obj.Config)
		if err != nil {
			return nil, err
		}
		g.Nodes[obj.Id] = &compiledNode{Id: obj.Id, Spec: spec}
	}
	for id, n := range g.Nodes {
		if _, err := g.resolveSchema(ctx, tx, cat, id); err != nil {
			return nil, err
		}
		if n.Spec.Kind == KindSourceTable || n.Spec.Kind == KindSourceView {
			g.Sources[n.Spec.SourceId] = append(g.Sources[n.Spec.SourceId], n)
		}
		if n.Spec.Kind == KindSinkView {
			g.Sinks = append(g.Sinks, n)
		}
	}
	for _, n := range g.Nodes {
		for _, inputId := range n.Spec.Inputs {
			in, ok := g.Nodes[inputId]
			if !ok {
				return nil, reifyerr.Catalog("flow %d: node %d references unknown input %d", flowId, n.Id, inputId)
			}
			in.Outputs = append(in.Outputs, n)
		}
	}
	return g, nil
}

// resolveSchema computes n's output schema, recursing into its inputs
// first; memoized per node and guarded against cycles (flows are a DAG
// by construction, but a malformed definition must not hang this).
func (g *Graph) resolveSchema(ctx context.Context, tx *txn.Transaction, cat *catalog.Catalog, id catalog.Id) (types.Schema, error) {
	n := g.Nodes[id]
	if n.resolved {
		return n.Schema, nil
	}
	if n.resolving {
		return types.Schema{}, reifyerr.Catalog("flow node %d participates in a cycle", id)
	}
	n.resolving = true
	defer func() { n.resolving = false }()

	inputSchema := func(i int) (types.Schema, error) {
		return g.resolveSchema(ctx, tx, cat, n.Spec.Inputs[i])
	}

	var schema types.Schema
	switch n.Spec.Kind {
	case KindSourceTable:
		obj, ok, err := cat.Get(ctx, tx, catalog.KindTable, n.Spec.SourceId)
		if err != nil {
			return types.Schema{}, err
		}
		if !ok {
			return types.Schema{}, reifyerr.Catalog("flow source table %d not found", n.Spec.SourceId)
		}
		schema = obj.Schema
	case KindSourceView:
		obj, ok, err := cat.Get(ctx, tx, catalog.KindView, n.Spec.SourceId)
		if err != nil {
			return types.Schema{}, err
		}
		if !ok {
			return types.Schema{}, reifyerr.Catalog("flow source view %d not found", n.Spec.SourceId)
		}
		schema = obj.Schema
	case KindFilter, KindDistinct, KindUnion:
		s, err := inputSchema(0)
		if err != nil {
			return types.Schema{}, err
		}
		schema = s
	case KindMap:
		s, err := inputSchema(0)
		if err != nil {
			return types.Schema{}, err
		}
		fields := append([]types.Field(nil), s.Fields...)
		for _, f := range n.Spec.Fields {
			fields = append(fields, types.Field{Name: f.Output, Type: f.Type})
		}
		schema = types.Schema{Fields: fields}
	case KindAggregate, KindWindow:
		s, err := inputSchema(0)
		if err != nil {
			return types.Schema{}, err
		}
		fields := make([]types.Field, 0, len(n.Spec.GroupBy)+len(n.Spec.Aggs))
		for _, name := range n.Spec.GroupBy {
			idx := s.IndexOf(name)
			if idx < 0 {
				return types.Schema{}, reifyerr.Catalog("flow node %d: group-by column %q not in input", id, name)
			}
			fields = append(fields, s.Fields[idx])
		}
		for _, spec := range n.Spec.Aggs {
			fields = append(fields, types.Field{Name: spec.Output, Type: spec.Type})
		}
		schema = types.Schema{Fields: fields}
	case KindJoin:
		l, err := inputSchema(0)
		if err != nil {
			return types.Schema{}, err
		}
		r, err := inputSchema(1)
		if err != nil {
			return types.Schema{}, err
		}
		schema = types.Schema{Fields: append(append([]types.Field(nil), l.Fields...), r.Fields...)}
	case KindSinkView:
		obj, ok, err := cat.Get(ctx, tx, catalog.KindView, n.Spec.ViewId)
		if err != nil {
			return types.Schema{}, err
		}
		if !ok {
			return types.Schema{}, reifyerr.Catalog("flow sink view %d not found", n.Spec.ViewId)
		}
		schema = obj.Schema
	default:
		return types.Schema{}, reifyerr.Catalog("flow node %d: unknown kind %d", id, n.Spec.Kind)
	}
	n.Schema = schema
	n.resolved = true
	return schema, nil
}
