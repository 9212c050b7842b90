// Package txn implements the transaction manager of spec.md §4.4:
// snapshot reads over pkg/mvcc, a per-transaction pending-writes
// buffer, conflict detection under SSI or optimistic SI, actor-owned
// watermarks, and the commit protocol.
package txn

import (
	"context"
	"sync"
	"time"

	"github.com/reifydb/reifydb/pkg/actor"
	"github.com/reifydb/reifydb/pkg/events"
	"github.com/reifydb/reifydb/pkg/mvcc"
	"github.com/reifydb/reifydb/pkg/reifyerr"
	"github.com/reifydb/reifydb/pkg/store"
)

// Manager owns the versioned store, the two watermarks (read mark and
// commit mark, spec.md §4.4.3), and the conflict manager. One Manager
// serves many concurrent Transactions.
type Manager struct {
	store      *mvcc.Store
	mode       Mode
	sys        *actor.System
	readMark   *Mark
	commitMark *Mark
	conflicts  *conflictManager
	broker     *events.Broker

	commitMu sync.Mutex // serializes the decide+allocate+append critical section (spec.md §5)
}

// SetBroker attaches an event broker so a conflict-aborted commit
// publishes EventTransactionAborted. Optional: a Manager with no
// broker behaves exactly as before.
func (m *Manager) SetBroker(b *events.Broker) { m.broker = b }

// New builds a Manager over store using the given concurrency mode.
// The commit mark starts at store.CommittedVersion() so a freshly
// opened database immediately reports the right read/commit floor.
func New(s *mvcc.Store, mode Mode) *Manager {
	sys := actor.NewSystem()
	m := &Manager{
		store:      s,
		mode:       mode,
		sys:        sys,
		readMark:   newMark(sys),
		commitMark: newMark(sys),
		conflicts:  newConflictManager(),
	}
	if v := uint64(s.CommittedVersion()); v > 0 {
		ctx := context.Background()
		_ = m.commitMark.Begin(ctx, v)
		_ = m.commitMark.Done(ctx, v)
	}
	return m
}

func (m *Manager) Close() { m.sys.Shutdown() }

// ReadVersion returns the version new transactions would currently
// snapshot at.
func (m *Manager) ReadVersion() uint64 { return m.commitMark.DoneUntil() }

// RetentionWatermark returns the floor below which no in-flight
// transaction still holds a snapshot: every transaction that began at or
// below this version has already finished. Versions older than this that
// a newer write has superseded are safe for pkg/subdrop to reclaim.
func (m *Manager) RetentionWatermark() uint64 { return m.readMark.DoneUntil() }

// Begin opens a new transaction snapshotted at the current committed
// floor and registers it with the read mark so the drop worker won't
// reclaim versions it might still read.
func (m *Manager) Begin(ctx context.Context, mode Mode) (*Transaction, error) {
	readVersion := m.commitMark.DoneUntil()
	if err := m.readMark.Begin(ctx, readVersion); err != nil {
		return nil, reifyerr.Cancelled("begin: %v", err)
	}
	return &Transaction{
		mgr:         m,
		mode:        mode,
		readVersion: readVersion,
		pending:     NewPendingWrites(),
		reads:       newFingerprintSet(),
	}, nil
}

// commit runs the protocol of spec.md §4.4.4 for t and reports the
// version it committed at.
func (m *Manager) commit(ctx context.Context, t *Transaction) (uint64, error) {
	m.commitMu.Lock()
	defer m.commitMu.Unlock()

	if t.pending.IsEmpty() {
		return t.readVersion, nil
	}

	writes := newFingerprintSet()
	t.pending.Range(nil, nil, func(key store.EncodedKey, _ entryValue) {
		writes.add(string(key))
	})

	if m.conflicts.check(t.mode, t.readVersion, writes) {
		events.Emit(m.broker, events.EventTransactionAborted, "write set overlaps a concurrent commit", nil)
		return 0, reifyerr.Conflict("write set overlaps a concurrent commit")
	}

	diffs, err := m.buildDiffs(ctx, t)
	if err != nil {
		return 0, err
	}

	commitVersion := m.nextCommitVersion()
	if err := m.commitMark.Begin(ctx, commitVersion); err != nil {
		return 0, reifyerr.Cancelled("commit: %v", err)
	}

	cdc := mvcc.Cdc{Version: store.Version(commitVersion), Timestamp: time.Now(), Diffs: diffs}
	if err := m.store.Commit(ctx, t.pending.Deltas(), cdc); err != nil {
		return 0, reifyerr.StorageIo(err, "commit version %d", commitVersion)
	}

	m.conflicts.record(commitVersion, writes, t.reads)
	if err := m.commitMark.Done(ctx, commitVersion); err != nil {
		return 0, reifyerr.Cancelled("commit: %v", err)
	}
	return commitVersion, nil
}

// nextCommitVersion allocates the next version. Called only while
// holding commitMu and only on the success path, so commit versions
// stay gap-free (spec.md §3 invariant) even though conflicting commits
// never consume one.
func (m *Manager) nextCommitVersion() uint64 {
	return uint64(m.store.CommittedVersion()) + 1
}

// buildDiffs turns t's pending writes into CDC diffs, reading each
// key's prior value from the transaction's own snapshot to decide
// Insert vs Update vs Delete (spec.md §3 "Change / Diff").
func (m *Manager) buildDiffs(ctx context.Context, t *Transaction) ([]mvcc.Diff, error) {
	var diffs []mvcc.Diff
	var buildErr error
	t.pending.Range(nil, nil, func(key store.EncodedKey, v entryValue) {
		if buildErr != nil {
			return
		}
		pre, hadPre, err := m.store.Get(ctx, key, store.Version(t.readVersion))
		if err != nil {
			buildErr = reifyerr.StorageIo(err, "reading prior value of %q", string(key))
			return
		}
		switch {
		case v.Tombstone && hadPre:
			diffs = append(diffs, mvcc.Diff{Kind: mvcc.DiffDelete, Key: append(store.EncodedKey(nil), key...), Pre: pre})
		case v.Tombstone:
			// removing a key with nothing visible: no diff.
		case hadPre:
			diffs = append(diffs, mvcc.Diff{Kind: mvcc.DiffUpdate, Key: append(store.EncodedKey(nil), key...), Pre: pre, Post: v.Value})
		default:
			diffs = append(diffs, mvcc.Diff{Kind: mvcc.DiffInsert, Key: append(store.EncodedKey(nil), key...), Post: v.Value})
		}
	})
	if buildErr != nil {
		return nil, buildErr
	}
	return diffs, nil
}

// finish releases t's hold on the read mark, called once per
// transaction whether it commits or rolls back.
func (m *Manager) finish(ctx context.Context, t *Transaction) {
	_ = m.readMark.Done(ctx, t.readVersion)
	m.conflicts.evictBelow(m.readMark.DoneUntil())
}
