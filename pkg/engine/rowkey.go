package engine

import (
	"bytes"
	"context"
	"encoding/binary"

	"github.com/reifydb/reifydb/pkg/catalog"
	"github.com/reifydb/reifydb/pkg/store"
	"github.com/reifydb/reifydb/pkg/txn"
)

// rowPrefix namespaces user table/view/ring-buffer row storage, distinct
// from the catalog's own reserved keyspace (spec.md §6 "TableRow").
var rowPrefix = []byte("\xffrow\x00")

// rowSequencePrefix namespaces the per-table row-number counters used to
// allocate row numbers on insert (spec.md §4.6 "allocating row numbers
// via a per-table sequence").
var rowSequencePrefix = []byte("\xffrowseq\x00")

func rowKey(tableId catalog.Id, rowNumber uint64) store.EncodedKey {
	buf := make([]byte, len(rowPrefix)+8+8)
	n := copy(buf, rowPrefix)
	binary.BigEndian.PutUint64(buf[n:], uint64(tableId))
	binary.BigEndian.PutUint64(buf[n+8:], rowNumber)
	return buf
}

func rowRange(tableId catalog.Id) store.KeyRange {
	start := make([]byte, len(rowPrefix)+8)
	n := copy(start, rowPrefix)
	binary.BigEndian.PutUint64(start[n:], uint64(tableId))
	end := make([]byte, len(start))
	copy(end, start)
	binary.BigEndian.PutUint64(end[n:], uint64(tableId)+1)
	return store.KeyRange{Start: start, End: end}
}

func rowSequenceKey(tableId catalog.Id) store.EncodedKey {
	buf := make([]byte, len(rowSequencePrefix)+8)
	n := copy(buf, rowSequencePrefix)
	binary.BigEndian.PutUint64(buf[n:], uint64(tableId))
	return buf
}

// indexEntryPrefix namespaces primary-key index rows written by
// mutating sinks for tables that declare a Table.Index (spec.md §4.6
// "primary-key index entries ... written as additional rows under a
// reserved index keyspace").
var indexEntryPrefix = []byte("\xffidx\x00")

func indexEntryKey(indexId catalog.Id, keyBytes []byte) store.EncodedKey {
	buf := make([]byte, 0, len(indexEntryPrefix)+8+len(keyBytes))
	buf = append(buf, indexEntryPrefix...)
	idBytes := make([]byte, 8)
	binary.BigEndian.PutUint64(idBytes, uint64(indexId))
	buf = append(buf, idBytes...)
	buf = append(buf, keyBytes...)
	return buf
}

func rowNumberFromKey(tableId catalog.Id, k store.EncodedKey) uint64 {
	n := len(rowPrefix) + 8
	return binary.BigEndian.Uint64(k[n:])
}

// RowKey, RowRange and NextRowNumber expose the row-storage scheme to
// callers outside this package that persist rows into the same
// keyspace TableScan reads from (pkg/flow's sink views write materialized
// rows the same way a mutating sink would).
func RowKey(tableId catalog.Id, rowNumber uint64) store.EncodedKey { return rowKey(tableId, rowNumber) }

func RowRange(tableId catalog.Id) store.KeyRange { return rowRange(tableId) }

func RowNumberFromKey(tableId catalog.Id, k store.EncodedKey) uint64 {
	return rowNumberFromKey(tableId, k)
}

// NextRowNumber allocates tableId's next row number through tx, so
// allocation participates in the same commit/rollback as the write
// itself.
func NextRowNumber(ctx context.Context, tx *txn.Transaction, tableId catalog.Id) (uint64, error) {
	key := rowSequenceKey(tableId)
	v, ok, err := tx.Get(ctx, key)
	if err != nil {
		return 0, err
	}
	next := uint64(1)
	if ok {
		next = binary.BigEndian.Uint64(v) + 1
	}
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, next)
	tx.Set(key, buf)
	return next, nil
}

// SourceTableId extracts the table/view/ring-buffer id a row key
// belongs to, or false if k is not a row-keyspace key at all (e.g. a
// catalog or CDC bookkeeping key) — how flow routing maps a raw CDC
// diff key back to its source (spec.md §4.7 "diffs are grouped by
// source").
func SourceTableId(k store.EncodedKey) (catalog.Id, bool) {
	if len(k) != len(rowPrefix)+16 || !bytes.HasPrefix(k, rowPrefix) {
		return 0, false
	}
	return catalog.Id(binary.BigEndian.Uint64(k[len(rowPrefix):])), true
}
