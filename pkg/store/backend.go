// Package store defines Backend: the physical persistence interface that
// sits under pkg/mvcc. A Backend holds (EncodedKey, Version) -> bytes
// pairs and must be linearizable per commit — every write in one
// Commit call becomes visible atomically once that version is visible.
//
// Two implementations are provided: pkg/store/memstore (fully in-memory,
// for tests and ephemeral engines) and pkg/store/boltstore (embedded
// on-disk, grounded on the teacher's bbolt-backed pkg/storage/boltdb.go
// but restructured around a single ordered (key, version) bucket instead
// of one JSON bucket per entity kind).
package store

import (
	"context"
	"errors"
)

// EncodedKey is an opaque, order-preserving byte string as produced by
// pkg/encoding/keycode.
type EncodedKey []byte

// Version is a strictly monotonic u64 commit identifier.
type Version uint64

// ErrNotFound is returned by Get/Contains-adjacent helpers that choose to
// surface absence as an error; Backend.Get instead uses a boolean, per
// spec.md §4.2, so this is only used by higher layers built on Backend.
var ErrNotFound = errors.New("store: key not found")

// ErrStorageIO distinguishes an I/O failure from ordinary absence, per
// spec.md §4.2's "MUST report storage I/O errors distinctly from
// absence" requirement. Backend implementations wrap the underlying
// driver error with this sentinel (fmt.Errorf with %w) so callers can
// test errors.Is(err, ErrStorageIO).
var ErrStorageIO = errors.New("store: storage I/O error")

// Delta is one commit-time write: Set(Key, Value) when Tombstone is
// false, Remove(Key) when Tombstone is true.
type Delta struct {
	Key       EncodedKey
	Value     []byte
	Tombstone bool
}

// KeyRange is a half-open byte range [Start, End). A nil End means
// unbounded (scan to the end of the keyspace).
type KeyRange struct {
	Start EncodedKey
	End   EncodedKey
}

// Entry is one (key, value) pair produced by an Iterator. Tombstone
// entries are surfaced so mvcc can fold them into "absent" without a
// second lookup.
type Entry struct {
	Key       EncodedKey
	Value     []byte
	Version   Version
	Tombstone bool
}

// Iterator walks Entries in key order (or reverse key order for a
// reverse scan). Callers must call Close when done, even after an
// error or early break.
type Iterator interface {
	// Next advances to the next entry, returning false at EOF or on
	// error (check Err to distinguish the two) or on cancellation.
	Next() bool
	Entry() Entry
	Err() error
	Close() error
}

// Backend is the physical persistence interface. Implementations must
// be safe for concurrent use; Commit calls are serialized internally
// (at most one writer at a time) but Get/Scan may run concurrently with
// a Commit and must observe either the pre- or post-commit state, never
// a partial batch.
type Backend interface {
	// Commit atomically writes every delta in deltas at version.
	Commit(ctx context.Context, deltas []Delta, version Version) error

	// Get returns the value written by the greatest version <= version
	// for key, or ok=false if no such write exists or the greatest one
	// was a removal.
	Get(ctx context.Context, key EncodedKey, version Version) (value []byte, ok bool, err error)

	// Contains reports the same visibility rule as Get without paying
	// for the value bytes.
	Contains(ctx context.Context, key EncodedKey, version Version) (ok bool, err error)

	// Scan iterates every live key in ascending order as of version.
	Scan(ctx context.Context, version Version) (Iterator, error)

	// ScanRev iterates every live key in descending order as of version.
	ScanRev(ctx context.Context, version Version) (Iterator, error)

	// Range iterates live keys within r in ascending order as of
	// version. batch is a server-side size hint for implementations
	// that page internally (e.g. bbolt cursor batching); 0 means
	// implementation default.
	Range(ctx context.Context, r KeyRange, version Version, batch int) (Iterator, error)

	// RangeRev is Range in descending order.
	RangeRev(ctx context.Context, r KeyRange, version Version, batch int) (Iterator, error)

	// Drop physically removes the given (key, version) pairs. Used
	// exclusively by the version-drop worker (pkg/subdrop); it is not
	// part of the transactional write path.
	Drop(ctx context.Context, pairs []KeyVersion) error

	// Obsolete reports every (key, version) pair that is no longer the
	// greatest version <= watermark for its key — i.e. a version that
	// no read at or below watermark could ever observe, because a
	// newer-but-still-retained version already shadows it. Used
	// exclusively by the version-drop worker (pkg/subdrop) to discover
	// Drop candidates; it never changes visible state itself.
	Obsolete(ctx context.Context, watermark Version) ([]KeyVersion, error)

	Close() error
}

// KeyVersion identifies one physical (key, version) pair for Drop.
type KeyVersion struct {
	Key     EncodedKey
	Version Version
}
