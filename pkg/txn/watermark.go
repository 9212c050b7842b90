package txn

import (
	"container/heap"
	"context"
	"sync/atomic"

	"github.com/reifydb/reifydb/pkg/actor"
)

// Cleanup thresholds bounding the memory of the pending/orphaned/waiter
// tables (spec.md §4.4.3), grounded on
// crates/transaction/src/multi/watermark/actor.rs.
const (
	maxPending              = 100_000
	maxWaiters              = 100_000
	maxOrphaned             = 10_000
	pendingCleanupThreshold = 10_000
	orphanCleanupThreshold  = 1_000
	oldVersionThreshold     = 10_000
)

// Mark is the cooperative barrier of spec.md §4.4.3: begin(v)/done(v)
// track in-flight versions, wait_for(v) blocks until every version <= v
// has both begun and completed. Reads of the current floor
// (DoneUntil) never go through the actor mailbox; only mutation does.
type Mark struct {
	ref       *actor.ActorRef[markMsg]
	doneUntil *atomic.Uint64
}

type markMsgKind int

const (
	msgBegin markMsgKind = iota
	msgDone
	msgWaitFor
)

type markMsg struct {
	kind    markMsgKind
	version uint64
	waiter  chan struct{}
}

// newMark spawns the watermark actor on sys and returns a handle to it.
func newMark(sys *actor.System) *Mark {
	doneUntil := &atomic.Uint64{}
	act := &markActor{doneUntil: doneUntil}
	ref := actor.Spawn[*markState, markMsg](sys, act, actor.Config{MailboxCapacity: 8192})
	return &Mark{ref: ref, doneUntil: doneUntil}
}

// DoneUntil returns the current watermark floor without going through
// the actor.
func (m *Mark) DoneUntil() uint64 { return m.doneUntil.Load() }

// Begin announces that version v is in flight.
func (m *Mark) Begin(ctx context.Context, v uint64) error {
	return m.ref.Send(ctx, markMsg{kind: msgBegin, version: v})
}

// Done announces that version v has completed. Arrivals before the
// matching Begin are held as orphans until Begin arrives.
func (m *Mark) Done(ctx context.Context, v uint64) error {
	return m.ref.Send(ctx, markMsg{kind: msgDone, version: v})
}

// WaitFor blocks until DoneUntil() >= v, ctx is cancelled, or the
// watermark actor is gone.
func (m *Mark) WaitFor(ctx context.Context, v uint64) error {
	if m.doneUntil.Load() >= v {
		return nil
	}
	waiter := make(chan struct{})
	if err := m.ref.Send(ctx, markMsg{kind: msgWaitFor, version: v, waiter: waiter}); err != nil {
		return err
	}
	select {
	case <-waiter:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// markActor is the Actor implementation driving Mark; its state is
// owned exclusively by its own goroutine (spec.md §4.8).
type markActor struct {
	actor.BaseActor[*markState, markMsg]
	doneUntil *atomic.Uint64
}

type markState struct {
	indices      versionHeap
	pending      map[uint64]int64
	begun        map[uint64]bool
	orphanedDone map[uint64]bool
	waiters      map[uint64][]chan struct{}
}

func (a *markActor) Init(ctx *actor.Context[markMsg]) *markState {
	return &markState{
		pending:      make(map[uint64]int64),
		begun:        make(map[uint64]bool),
		orphanedDone: make(map[uint64]bool),
		waiters:      make(map[uint64][]chan struct{}),
	}
}

func (a *markActor) Handle(state *markState, msg markMsg, ctx *actor.Context[markMsg]) actor.Flow {
	switch msg.kind {
	case msgBegin:
		a.processBegin(state, msg.version)
	case msgDone:
		a.processDone(state, msg.version)
	case msgWaitFor:
		a.registerWaiter(state, msg.version, msg.waiter)
	}
	return actor.Continue
}

func (a *markActor) processBegin(s *markState, version uint64) {
	a.cleanupIfNeeded(s)
	s.begun[version] = true
	if s.orphanedDone[version] {
		delete(s.orphanedDone, version)
		s.pending[version] = 0
	} else {
		s.pending[version]++
	}
	if !s.indices.contains(version) {
		heap.Push(&s.indices, version)
	}
	a.tryAdvance(s)
}

func (a *markActor) processDone(s *markState, version uint64) {
	a.cleanupIfNeeded(s)
	if s.begun[version] {
		s.pending[version]--
	} else {
		s.orphanedDone[version] = true
		return
	}
	a.tryAdvance(s)
}

func (a *markActor) tryAdvance(s *markState) {
	old := a.doneUntil.Load()
	until := old
	for s.indices.Len() > 0 {
		min := s.indices[0]
		if !s.begun[min] {
			break // gap: waiting for Begin
		}
		if s.pending[min] > 0 {
			break // begun but not yet done
		}
		heap.Pop(&s.indices)
		delete(s.pending, min)
		delete(s.begun, min)
		until = min
	}
	if until != old {
		a.doneUntil.Store(until)
		a.notifyWaiters(s, old, until)
		return
	}
	// done_until did not move, but a registered waiter might already be
	// satisfied by an earlier advance racing with registration.
	current := a.doneUntil.Load()
	for v, list := range s.waiters {
		if v <= current {
			for _, w := range list {
				close(w)
			}
			delete(s.waiters, v)
		}
	}
}

func (a *markActor) registerWaiter(s *markState, version uint64, waiter chan struct{}) {
	current := a.doneUntil.Load()
	if current >= version {
		close(waiter)
		return
	}
	if version < saturatingSub(current, oldVersionThreshold) {
		close(waiter)
		return
	}
	s.waiters[version] = append(s.waiters[version], waiter)
}

func (a *markActor) notifyWaiters(s *markState, from, to uint64) {
	for v := from + 1; v <= to; v++ {
		if list, ok := s.waiters[v]; ok {
			for _, w := range list {
				close(w)
			}
			delete(s.waiters, v)
		}
	}
}

func (a *markActor) cleanupIfNeeded(s *markState) {
	current := a.doneUntil.Load()
	if len(s.pending) > maxPending {
		cutoff := saturatingSub(current, pendingCleanupThreshold)
		for k := range s.pending {
			if k <= cutoff {
				delete(s.pending, k)
			}
		}
		for k := range s.begun {
			if k <= cutoff {
				delete(s.begun, k)
			}
		}
	}
	if len(s.waiters) > maxWaiters {
		cutoff := saturatingSub(current, oldVersionThreshold)
		for k, list := range s.waiters {
			if k <= cutoff {
				for _, w := range list {
					close(w)
				}
				delete(s.waiters, k)
			}
		}
	}
	if len(s.orphanedDone) > maxOrphaned {
		cutoff := saturatingSub(current, orphanCleanupThreshold)
		for k := range s.orphanedDone {
			if k <= cutoff {
				delete(s.orphanedDone, k)
			}
		}
	}
}

func saturatingSub(a, b uint64) uint64 {
	if b > a {
		return 0
	}
	return a - b
}

// versionHeap is a min-heap of pending versions.
type versionHeap []uint64

func (h versionHeap) Len() int            { return len(h) }
func (h versionHeap) Less(i, j int) bool  { return h[i] < h[j] }
func (h versionHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *versionHeap) Push(x any)         { *h = append(*h, x.(uint64)) }
func (h *versionHeap) Pop() any {
	old := *h
	n := len(old)
	v := old[n-1]
	*h = old[:n-1]
	return v
}
func (h versionHeap) contains(v uint64) bool {
	for _, x := range h {
		if x == v {
			return true
		}
	}
	return false
}
