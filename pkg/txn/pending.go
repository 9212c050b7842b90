package txn

import (
	"sort"

	"github.com/reifydb/reifydb/pkg/store"
)

// entryValue is a buffered write: a Set (Value present) or a Remove
// (Tombstone).
type entryValue struct {
	Value     []byte
	Tombstone bool
}

// PendingWrites is the transaction-local write buffer (PWM in the
// glossary), grounded on crates/transaction/src/skipdb/pending/mod.rs's
// BTreeMap-backed implementation: an ordered map so range reads over a
// transaction's own uncommitted writes come out key-sorted without a
// separate sort step at commit time.
type PendingWrites struct {
	keys    []string // sorted, unique
	entries map[string]entryValue
}

func NewPendingWrites() *PendingWrites {
	return &PendingWrites{entries: make(map[string]entryValue)}
}

func (p *PendingWrites) indexOf(k string) (int, bool) {
	i := sort.SearchStrings(p.keys, k)
	return i, i < len(p.keys) && p.keys[i] == k
}

func (p *PendingWrites) Len() int { return len(p.keys) }

func (p *PendingWrites) IsEmpty() bool { return len(p.keys) == 0 }

func (p *PendingWrites) Get(key store.EncodedKey) (entryValue, bool) {
	v, ok := p.entries[string(key)]
	return v, ok
}

func (p *PendingWrites) ContainsKey(key store.EncodedKey) bool {
	_, ok := p.entries[string(key)]
	return ok
}

func (p *PendingWrites) Set(key store.EncodedKey, value []byte) {
	p.insert(string(key), entryValue{Value: value})
}

func (p *PendingWrites) Remove(key store.EncodedKey) {
	p.insert(string(key), entryValue{Tombstone: true})
}

func (p *PendingWrites) insert(k string, v entryValue) {
	i, found := p.indexOf(k)
	if !found {
		p.keys = append(p.keys, "")
		copy(p.keys[i+1:], p.keys[i:])
		p.keys[i] = k
	}
	p.entries[k] = v
}

// Range invokes fn for every buffered write with key in [start, end)
// (end == nil means unbounded), in ascending key order.
func (p *PendingWrites) Range(start, end store.EncodedKey, fn func(key store.EncodedKey, v entryValue)) {
	lo := 0
	if start != nil {
		lo = sort.SearchStrings(p.keys, string(start))
	}
	for i := lo; i < len(p.keys); i++ {
		k := p.keys[i]
		if end != nil && k >= string(end) {
			break
		}
		fn(store.EncodedKey(k), p.entries[k])
	}
}

// Deltas materializes the buffer into a commit-ready batch, in key
// order, per spec.md §4.4.4 step 3a.
func (p *PendingWrites) Deltas() []store.Delta {
	out := make([]store.Delta, 0, len(p.keys))
	for _, k := range p.keys {
		v := p.entries[k]
		out = append(out, store.Delta{Key: store.EncodedKey(k), Value: v.Value, Tombstone: v.Tombstone})
	}
	return out
}

// Rollback discards every buffered write.
func (p *PendingWrites) Rollback() {
	p.keys = nil
	p.entries = make(map[string]entryValue)
}
