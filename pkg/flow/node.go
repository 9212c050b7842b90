package flow

import (
	"encoding/json"

	"github.com/reifydb/reifydb/pkg/catalog"
	"github.com/reifydb/reifydb/pkg/reifyerr"
	"github.com/reifydb/reifydb/pkg/types"
)

// Kind enumerates the node kinds spec.md §4.7 names for a flow's DAG:
// "SourceTable/SourceView, operator nodes (Filter, Map, Join, Aggregate,
// Window, Distinct, Union, …), and SinkView nodes".
type Kind int

const (
	KindSourceTable Kind = iota
	KindSourceView
	KindFilter
	KindMap
	KindDistinct
	KindAggregate
	KindJoin
	KindUnion
	KindWindow
	KindSinkView
)

// AggFunc mirrors pkg/engine's aggregate functions for incremental
// maintenance (spec.md §4.7.2).
type AggFunc int

const (
	AggSum AggFunc = iota
	AggMin
	AggMax
	AggAvg
	AggCount
	AggCountAll
)

// AggSpec is one incrementally maintained output column.
type AggSpec struct {
	Output string
	Func   AggFunc
	Column string `json:",omitempty"`
	Type   types.Type
}

// CompareOp names a Filter node's comparison.
type CompareOp int

const (
	CmpEq CompareOp = iota
	CmpNe
	CmpLt
	CmpLe
	CmpGt
	CmpGe
)

// MapFieldSpec is one Map (Extend) output: either copies an existing
// column under a new name, or attaches a literal constant.
type MapFieldSpec struct {
	Output string
	Type   types.Type
	Source string      `json:",omitempty"` // input column to copy, if set
	Const  types.Value `json:",omitempty"` // literal value, if Source is empty
}

// Spec is the decoded, per-kind configuration persisted as a FlowNode's
// opaque Config string (JSON, following the json-for-bookkeeping split
// already used by pkg/mvcc's CDC entries and pkg/catalog's objects —
// only user table rows use the binary codec).
//
// Not every field applies to every Kind; see Engine.propagate and the
// apply* functions for which fields each kind reads.
type Spec struct {
	Kind   Kind
	Inputs []catalog.Id // upstream FlowNode ids (empty for Source* nodes)

	// Source{Table,View}
	SourceId catalog.Id `json:",omitempty"`

	// Filter
	FilterColumn string      `json:",omitempty"`
	FilterOp     CompareOp   `json:",omitempty"`
	FilterValue  types.Value `json:",omitempty"`

	// Map
	Fields []MapFieldSpec `json:",omitempty"`

	// Distinct / Aggregate / Window
	GroupBy []string  `json:",omitempty"`
	Aggs    []AggSpec `json:",omitempty"`

	// Window (tumbling, count-based: spec.md §4.7.1 window disciplines;
	// sliding/session are not implemented, see DESIGN.md)
	WindowSize int `json:",omitempty"`

	// Join
	On [][2]string `json:",omitempty"`

	// SinkView
	ViewId catalog.Id `json:",omitempty"`
}

func encodeSpec(s Spec) (string, error) {
	b, err := json.Marshal(s)
	if err != nil {
		return "", reifyerr.Serialization(err, "encoding flow node spec")
	}
	return string(b), nil
}

func decodeSpec(config string) (Spec, error) {
	var s Spec
	if err := json.Unmarshal([]byte(config), &s); err != nil {
		return Spec{}, reifyerr.Serialization(err, "decoding flow node spec")
	}
	return s, nil
}
