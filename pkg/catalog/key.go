// Package catalog implements the versioned schema objects of spec.md
// §4.5: namespaces, tables, views, ring buffers, dictionaries,
// sequences, indexes, flows and flow nodes, each persisted as a row
// under a reserved key family, plus an in-memory materialized
// name-to-id index.
//
// Grounded on crates/catalog/src/key/mod.rs's "version || kind_tag ||
// body" layout (spec.md §6) and crates/catalog/src/materialized/resolver_helpers.rs
// for the materialized index.
package catalog

import (
	"encoding/binary"
	"fmt"

	"github.com/reifydb/reifydb/pkg/store"
)

// Kind enumerates the catalog object kinds named in spec.md §4.5, plus
// the link key kinds used to model cyclic references (spec.md §9).
type Kind uint8

const (
	KindNamespace Kind = iota + 1
	KindTable
	KindView
	KindRingBuffer
	KindDictionary
	KindSequence
	KindIndex
	KindFlow
	KindFlowNode
	// KindNamespaceTableLink models the namespace<->table cyclic
	// reference as a (parent_id, child_id) row (spec.md §9), following
	// crates/catalog/src/key/schema_table.rs's SchemaTableKey.
	KindNamespaceTableLink
)

func (k Kind) String() string {
	switch k {
	case KindNamespace:
		return "Namespace"
	case KindTable:
		return "Table"
	case KindView:
		return "View"
	case KindRingBuffer:
		return "RingBuffer"
	case KindDictionary:
		return "Dictionary"
	case KindSequence:
		return "Sequence"
	case KindIndex:
		return "Index"
	case KindFlow:
		return "Flow"
	case KindFlowNode:
		return "FlowNode"
	case KindNamespaceTableLink:
		return "NamespaceTableLink"
	default:
		return "Unknown"
	}
}

// Id is a stable catalog object identifier, allocated from the
// catalog's own sequence keyspace.
type Id uint64

// keyFormatVersion is the "version" byte in spec.md §6's
// "version || kind_tag || body" layout; bump it if the body encoding
// ever changes shape.
const keyFormatVersion = 1

var catalogPrefix = []byte("\xffcatalog\x00")

// objectKey addresses one object row: catalogPrefix || version ||
// kind_tag || be_u64(id).
func objectKey(kind Kind, id Id) store.EncodedKey {
	buf := make([]byte, len(catalogPrefix)+2+8)
	n := copy(buf, catalogPrefix)
	buf[n] = keyFormatVersion
	buf[n+1] = byte(kind)
	binary.BigEndian.PutUint64(buf[n+2:], uint64(id))
	return buf
}

// linkKey addresses a (parent_id, child_id) link row under kind,
// following SchemaTableKey's shape for cyclic references.
func linkKey(kind Kind, parent, child Id) store.EncodedKey {
	buf := make([]byte, len(catalogPrefix)+2+16)
	n := copy(buf, catalogPrefix)
	buf[n] = keyFormatVersion
	buf[n+1] = byte(kind)
	binary.BigEndian.PutUint64(buf[n+2:], uint64(parent))
	binary.BigEndian.PutUint64(buf[n+10:], uint64(child))
	return buf
}

// scanRange bounds a range scan to the whole catalog keyspace, for
// catalog (*Catalog).Load.
func scanRange() store.KeyRange {
	start := append([]byte(nil), catalogPrefix...)
	end := append([]byte(nil), catalogPrefix...)
	end[len(end)-1]++
	return store.KeyRange{Start: start, End: end}
}

func parseObjectKey(k store.EncodedKey) (Kind, Id, error) {
	n := len(catalogPrefix)
	if len(k) != n+2+8 || k[n] != keyFormatVersion {
		return 0, 0, fmt.Errorf("catalog: not an object key")
	}
	return Kind(k[n+1]), Id(binary.BigEndian.Uint64(k[n+2:])), nil
}

// sequenceKey addresses the catalog's own id-allocation counter.
var sequenceKey = append(append([]byte(nil), catalogPrefix...), 0xfe)
