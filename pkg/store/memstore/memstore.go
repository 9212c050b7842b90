// Package memstore implements pkg/store.Backend as a fully in-memory
// ordered map, the "fully in-memory ordered map backend" required by
// spec.md §4.2. It is the default backend for tests and for engines that
// do not need durability.
package memstore

import (
	"context"
	"sort"
	"sync"

	"github.com/reifydb/reifydb/pkg/store"
)

type versionedValue struct {
	version   store.Version
	value     []byte
	tombstone bool
}

// Store is a sorted map of user keys, each holding its write history in
// ascending-version order.
type Store struct {
	mu      sync.RWMutex
	keys    []string // sorted, unique
	history map[string][]versionedValue
	closed  bool
}

func New() *Store {
	return &Store{history: make(map[string][]versionedValue)}
}

func (s *Store) indexOf(k string) (int, bool) {
	i := sort.SearchStrings(s.keys, k)
	return i, i < len(s.keys) && s.keys[i] == k
}

func (s *Store) Commit(ctx context.Context, deltas []store.Delta, version store.Version) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return store.ErrStorageIO
	}
	for _, d := range deltas {
		k := string(d.Key)
		i, found := s.indexOf(k)
		if !found {
			s.keys = append(s.keys, "")
			copy(s.keys[i+1:], s.keys[i:])
			s.keys[i] = k
		}
		s.history[k] = append(s.history[k], versionedValue{
			version: version, value: d.Value, tombstone: d.Tombstone,
		})
	}
	return nil
}

// visibleAt returns the entry visible at version, or (entry, false) if
// none exists.
func (s *Store) visibleAt(k string, version store.Version) (versionedValue, bool) {
	hist := s.history[k]
	// history is append-ordered by commit, and commits only increase
	// version, so it is already version-ascending; binary search for
	// the greatest version <= version.
	i := sort.Search(len(hist), func(i int) bool { return hist[i].version > version })
	if i == 0 {
		return versionedValue{}, false
	}
	return hist[i-1], true
}

func (s *Store) Get(ctx context.Context, key store.EncodedKey, version store.Version) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.visibleAt(string(key), version)
	if !ok || v.tombstone {
		return nil, false, nil
	}
	return v.value, true, nil
}

func (s *Store) Contains(ctx context.Context, key store.EncodedKey, version store.Version) (bool, error) {
	_, ok, err := s.Get(ctx, key, version)
	return ok, err
}

func (s *Store) snapshot() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, len(s.keys))
	copy(out, s.keys)
	return out
}

func (s *Store) Scan(ctx context.Context, version store.Version) (store.Iterator, error) {
	return s.Range(ctx, store.KeyRange{}, version, 0)
}

func (s *Store) ScanRev(ctx context.Context, version store.Version) (store.Iterator, error) {
	return s.RangeRev(ctx, store.KeyRange{}, version, 0)
}

func inRange(k string, r store.KeyRange) bool {
	if r.Start != nil && k < string(r.Start) {
		return false
	}
	if r.End != nil && k >= string(r.End) {
		return false
	}
	return true
}

func (s *Store) Range(ctx context.Context, r store.KeyRange, version store.Version, batch int) (store.Iterator, error) {
	keys := s.snapshot()
	filtered := make([]string, 0, len(keys))
	for _, k := range keys {
		if inRange(k, r) {
			filtered = append(filtered, k)
		}
	}
	return &iterator{s: s, keys: filtered, version: version, ctx: ctx}, nil
}

func (s *Store) RangeRev(ctx context.Context, r store.KeyRange, version store.Version, batch int) (store.Iterator, error) {
	keys := s.snapshot()
	filtered := make([]string, 0, len(keys))
	for i := len(keys) - 1; i >= 0; i-- {
		if inRange(keys[i], r) {
			filtered = append(filtered, keys[i])
		}
	}
	return &iterator{s: s, keys: filtered, version: version, ctx: ctx}, nil
}

func (s *Store) Drop(ctx context.Context, pairs []store.KeyVersion) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range pairs {
		k := string(p.Key)
		hist := s.history[k]
		out := hist[:0]
		for _, v := range hist {
			if v.version != p.Version {
				out = append(out, v)
			}
		}
		if len(out) == 0 {
			delete(s.history, k)
			i, found := s.indexOf(k)
			if found {
				s.keys = append(s.keys[:i], s.keys[i+1:]...)
			}
		} else {
			s.history[k] = out
		}
	}
	return nil
}

func (s *Store) Obsolete(ctx context.Context, watermark store.Version) ([]store.KeyVersion, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []store.KeyVersion
	for k, hist := range s.history {
		// hist is version-ascending; find the greatest version <= watermark
		// and mark every earlier entry as obsolete.
		i := sort.Search(len(hist), func(i int) bool { return hist[i].version > watermark })
		for _, v := range hist[:max(i-1, 0)] {
			out = append(out, store.KeyVersion{Key: store.EncodedKey(k), Version: v.version})
		}
	}
	return out, nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

type iterator struct {
	s       *Store
	keys    []string
	idx     int
	version store.Version
	ctx     context.Context
	cur     store.Entry
	err     error
}

func (it *iterator) Next() bool {
	for it.idx < len(it.keys) {
		if it.ctx.Err() != nil {
			it.err = it.ctx.Err()
			return false
		}
		k := it.keys[it.idx]
		it.idx++
		it.s.mu.RLock()
		v, ok := it.s.visibleAt(k, it.version)
		it.s.mu.RUnlock()
		if !ok {
			continue
		}
		it.cur = store.Entry{
			Key: store.EncodedKey(k), Value: v.value,
			Version: v.version, Tombstone: v.tombstone,
		}
		if v.tombstone {
			continue
		}
		return true
	}
	return false
}

func (it *iterator) Entry() store.Entry { return it.cur }
func (it *iterator) Err() error         { return it.err }
func (it *iterator) Close() error       { return nil }

var _ store.Backend = (*Store)(nil)
