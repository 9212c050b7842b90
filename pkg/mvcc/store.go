// Package mvcc layers CDC persistence, a hot tier and a committed
// version counter over a pkg/store.Backend. It is the "versioned store"
// of spec.md §4.3: the same scan surface as the backend, version-scoped,
// plus CDC and a cache for recently committed reads.
package mvcc

import (
	"context"
	"sync/atomic"

	"github.com/reifydb/reifydb/pkg/store"
)

// Store is the versioned store described in spec.md §4.3.
type Store struct {
	backend  store.Backend
	version  atomic.Uint64 // latest committed version
	hotTier  *hotTier
}

// Option configures a Store at construction time.
type Option func(*Store)

// WithHotTierCapacity bounds the number of recently committed (key,
// version) reads cached in memory. The default is 4096.
func WithHotTierCapacity(n int) Option {
	return func(s *Store) { s.hotTier = newHotTier(n) }
}

func New(backend store.Backend, opts ...Option) *Store {
	s := &Store{backend: backend, hotTier: newHotTier(4096)}
	for _, o := range opts {
		o(s)
	}
	return s
}

// CommittedVersion returns the latest version known to have committed.
func (s *Store) CommittedVersion() store.Version {
	return store.Version(s.version.Load())
}

// advanceTo records version as committed if it is greater than the
// current counter. Used when recovering state on startup.
func (s *Store) advanceTo(version store.Version) {
	for {
		cur := s.version.Load()
		if uint64(version) <= cur {
			return
		}
		if s.version.CompareAndSwap(cur, uint64(version)) {
			return
		}
	}
}

// Commit writes deltas and the CDC entry for cdc atomically at
// cdc.Version, per spec.md §4.4.4 steps 3a-3c. Callers (pkg/txn) are
// responsible for allocating cdc.Version from a monotonic counter
// (the commit mark) before calling Commit.
func (s *Store) Commit(ctx context.Context, deltas []store.Delta, cdc Cdc) error {
	cdcDeltas, err := deltasForCdc(cdc)
	if err != nil {
		return err
	}
	all := append(append([]store.Delta(nil), deltas...), cdcDeltas...)
	if err := s.backend.Commit(ctx, all, cdc.Version); err != nil {
		return err
	}
	s.advanceTo(cdc.Version)
	for _, d := range deltas {
		if d.Tombstone {
			s.hotTier.remove(d.Key)
		} else {
			s.hotTier.put(d.Key, cdc.Version, d.Value)
		}
	}
	return nil
}

func (s *Store) Get(ctx context.Context, key store.EncodedKey, version store.Version) ([]byte, bool, error) {
	if v, ok := s.hotTier.get(key, version); ok {
		return v, true, nil
	}
	return s.backend.Get(ctx, key, version)
}

func (s *Store) Contains(ctx context.Context, key store.EncodedKey, version store.Version) (bool, error) {
	return s.backend.Contains(ctx, key, version)
}

func (s *Store) Scan(ctx context.Context, version store.Version) (store.Iterator, error) {
	return s.backend.Scan(ctx, version)
}

func (s *Store) ScanRev(ctx context.Context, version store.Version) (store.Iterator, error) {
	return s.backend.ScanRev(ctx, version)
}

func (s *Store) Range(ctx context.Context, r store.KeyRange, version store.Version, batch int) (store.Iterator, error) {
	return s.backend.Range(ctx, r, version, batch)
}

func (s *Store) RangeRev(ctx context.Context, r store.KeyRange, version store.Version, batch int) (store.Iterator, error) {
	return s.backend.RangeRev(ctx, r, version, batch)
}

// Backend exposes the underlying backend for components (pkg/subdrop)
// that need Drop directly.
func (s *Store) Backend() store.Backend { return s.backend }

func (s *Store) Close() error { return s.backend.Close() }

// GetCheckpoint returns the last fully-processed version recorded for
// consumer id, or 0 if the consumer has never checkpointed.
func (s *Store) GetCheckpoint(ctx context.Context, id ConsumerId) (store.Version, error) {
	v, ok, err := s.backend.Get(ctx, checkpointKey(id), s.CommittedVersion())
	if err != nil || !ok {
		return 0, err
	}
	return store.Version(beUint64(v)), nil
}

// CheckpointDelta builds the Delta that advances id's checkpoint to
// version; callers fold this into the same transaction that processed
// up to that version, so resume is exact-once (spec.md §4.7 step 5).
func CheckpointDelta(id ConsumerId, version store.Version) store.Delta {
	return store.Delta{Key: checkpointKey(id), Value: beUint64Bytes(uint64(version))}
}

// CheckpointKey and EncodeVersion expose the checkpoint keyspace to
// callers (pkg/flow) that advance a consumer's checkpoint through the
// ordinary transaction commit protocol rather than a raw backend write,
// so the checkpoint advance commits atomically with the writes it
// accounts for.
func CheckpointKey(id ConsumerId) store.EncodedKey { return checkpointKey(id) }

func EncodeVersion(v store.Version) []byte { return beUint64Bytes(uint64(v)) }

func beUint64(b []byte) uint64 {
	var v uint64
	for _, c := range b {
		v = v<<8 | uint64(c)
	}
	return v
}

func beUint64Bytes(v uint64) []byte {
	b := make([]byte, 8)
	for i := 7; i >= 0; i-- {
		b[i] = byte(v)
		v >>= 8
	}
	return b
}
