package txn

import (
	"context"
	"sort"

	"github.com/reifydb/reifydb/pkg/reifyerr"
	"github.com/reifydb/reifydb/pkg/store"
)

// Transaction is a single client's unit of work: a snapshot read
// version plus a buffer of uncommitted writes (spec.md §3 "Transaction
// buffer").
type Transaction struct {
	mgr         *Manager
	mode        Mode
	readVersion uint64
	pending     *PendingWrites
	reads       fingerprintSet
	finished    bool
}

func (t *Transaction) ReadVersion() uint64 { return t.readVersion }

func (t *Transaction) trackRead(key store.EncodedKey) {
	if t.mode == SSI {
		t.reads.add(string(key))
	}
}

// Get returns key's value as of this transaction's snapshot, always
// observing the transaction's own prior writes first (spec.md §5
// ordering guarantee).
func (t *Transaction) Get(ctx context.Context, key store.EncodedKey) ([]byte, bool, error) {
	if v, ok := t.pending.Get(key); ok {
		t.trackRead(key)
		if v.Tombstone {
			return nil, false, nil
		}
		return v.Value, true, nil
	}
	t.trackRead(key)
	value, ok, err := t.mgr.store.Get(ctx, key, store.Version(t.readVersion))
	if err != nil {
		return nil, false, reifyerr.StorageIo(err, "get %q", string(key))
	}
	return value, ok, nil
}

func (t *Transaction) Contains(ctx context.Context, key store.EncodedKey) (bool, error) {
	_, ok, err := t.Get(ctx, key)
	return ok, err
}

// Set buffers a write; it becomes visible to this transaction's own
// subsequent reads immediately, and to everyone else only on Commit.
func (t *Transaction) Set(key store.EncodedKey, value []byte) {
	t.pending.Set(key, value)
}

func (t *Transaction) Remove(key store.EncodedKey) {
	t.pending.Remove(key)
}

// scanEntry is one row surfaced by Range/RangeRev, overlaying this
// transaction's own pending writes atop the committed snapshot.
type scanEntry struct {
	Key   store.EncodedKey
	Value []byte
}

// Range returns entries with key in [r.Start, r.End), ascending,
// merging the transaction's buffered writes over its committed
// snapshot and recording every returned key as read (spec.md §4.4.2
// "reads keys/ranges" — phantom keys not yet written are not tracked,
// an accepted simplification noted in DESIGN.md).
func (t *Transaction) Range(ctx context.Context, r store.KeyRange) ([]scanEntry, error) {
	it, err := t.mgr.store.Range(ctx, r, store.Version(t.readVersion), 0)
	if err != nil {
		return nil, reifyerr.StorageIo(err, "range scan")
	}
	defer it.Close()

	merged := make(map[string][]byte)
	order := make([]string, 0)
	for it.Next() {
		e := it.Entry()
		k := string(e.Key)
		if _, seen := merged[k]; !seen {
			order = append(order, k)
		}
		merged[k] = e.Value
	}
	if err := it.Err(); err != nil {
		return nil, reifyerr.StorageIo(err, "range scan")
	}

	t.pending.Range(r.Start, r.End, func(key store.EncodedKey, v entryValue) {
		k := string(key)
		if _, seen := merged[k]; !seen {
			order = append(order, k)
		}
		if v.Tombstone {
			delete(merged, k)
		} else {
			merged[k] = v.Value
		}
	})
	sort.Strings(order)

	out := make([]scanEntry, 0, len(order))
	for _, k := range order {
		v, ok := merged[k]
		if !ok {
			continue // removed by a buffered tombstone
		}
		t.trackRead(store.EncodedKey(k))
		out = append(out, scanEntry{Key: store.EncodedKey(k), Value: v})
	}
	return out, nil
}

// Commit runs the commit protocol (spec.md §4.4.4) and returns the
// version it committed at. On Conflict the store is left unchanged and
// the transaction may be retried by the caller with a fresh Begin.
func (t *Transaction) Commit(ctx context.Context) (uint64, error) {
	if t.finished {
		return 0, reifyerr.Internal(reifyerr.Location{File: "txn/transaction.go", Function: "Commit"}, "commit called twice on the same transaction")
	}
	version, err := t.mgr.commit(ctx, t)
	t.finished = true
	t.mgr.finish(ctx, t)
	return version, err
}

// Rollback discards the pending buffer; no version is consumed.
func (t *Transaction) Rollback(ctx context.Context) {
	if t.finished {
		return
	}
	t.pending.Rollback()
	t.finished = true
	t.mgr.finish(ctx, t)
}
