package flow

import (
	"context"
	"encoding/binary"
	"encoding/json"

	"github.com/reifydb/reifydb/pkg/catalog"
	"github.com/reifydb/reifydb/pkg/reifyerr"
	"github.com/reifydb/reifydb/pkg/store"
	"github.com/reifydb/reifydb/pkg/txn"
)

// statePrefix namespaces every operator's state(node, ...) keyspace
// (spec.md §4.7.1), distinct from the row, catalog and CDC keyspaces.
var statePrefix = []byte("\xffflowstate\x00")

const (
	disciplineSingle = 0x01
	disciplineKeyed  = 0x02
	disciplineWindow = 0x03
)

func stateNodePrefix(node catalog.Id) []byte {
	buf := make([]byte, len(statePrefix)+8)
	n := copy(buf, statePrefix)
	binary.BigEndian.PutUint64(buf[n:], uint64(node))
	return buf
}

// singleStateKey addresses a single-state operator's one row under
// state(node) (spec.md §4.7.1 "a single row under state(node)").
func singleStateKey(node catalog.Id) store.EncodedKey {
	return append(stateNodePrefix(node), disciplineSingle)
}

// keyedStateKey addresses a keyed-state operator's per-group row under
// state(node, group_key_bytes).
func keyedStateKey(node catalog.Id, groupKey []byte) store.EncodedKey {
	buf := append(stateNodePrefix(node), disciplineKeyed)
	return append(buf, groupKey...)
}

func keyedStateRange(node catalog.Id) store.KeyRange {
	prefix := append(stateNodePrefix(node), disciplineKeyed)
	start := append([]byte(nil), prefix...)
	end := append([]byte(nil), prefix...)
	end[len(end)-1]++
	return store.KeyRange{Start: start, End: end}
}

// windowStateKey addresses a window operator's per-window row under
// state(node, window_id).
func windowStateKey(node catalog.Id, windowId uint64) store.EncodedKey {
	buf := append(stateNodePrefix(node), disciplineWindow)
	idBytes := make([]byte, 8)
	binary.BigEndian.PutUint64(idBytes, windowId)
	return append(buf, idBytes...)
}

// stateStore is a thin JSON-codec wrapper around a transaction, scoped
// to one node's state keyspace. JSON is used here for the same reason
// pkg/catalog persists objects as JSON: this is operator bookkeeping,
// not user row data (pkg/encoding/row stays reserved for that).
//
// Every write passes through tracker, which enforces spec.md §4.7.3:
// "Flow transactions must not share keyspaces" across the flows
// processed within one CDC version.
type stateStore struct {
	tx      *txn.Transaction
	node    catalog.Id
	tracker *writeTracker
}

func (s *stateStore) mark(key store.EncodedKey) error {
	if s.tracker == nil {
		return nil
	}
	return s.tracker.mark(key)
}

func (s *stateStore) getSingle(ctx context.Context, out any) (bool, error) {
	v, ok, err := s.tx.Get(ctx, singleStateKey(s.node))
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal(v, out); err != nil {
		return false, reifyerr.Serialization(err, "decoding single-state for node %d", s.node)
	}
	return true, nil
}

func (s *stateStore) setSingle(in any) error {
	b, err := json.Marshal(in)
	if err != nil {
		return reifyerr.Serialization(err, "encoding single-state for node %d", s.node)
	}
	key := singleStateKey(s.node)
	if err := s.mark(key); err != nil {
		return err
	}
	s.tx.Set(key, b)
	return nil
}

func (s *stateStore) getKeyed(ctx context.Context, groupKey []byte, out any) (bool, error) {
	v, ok, err := s.tx.Get(ctx, keyedStateKey(s.node, groupKey))
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal(v, out); err != nil {
		return false, reifyerr.Serialization(err, "decoding keyed state for node %d", s.node)
	}
	return true, nil
}

func (s *stateStore) setKeyed(groupKey []byte, in any) error {
	b, err := json.Marshal(in)
	if err != nil {
		return reifyerr.Serialization(err, "encoding keyed state for node %d", s.node)
	}
	key := keyedStateKey(s.node, groupKey)
	if err := s.mark(key); err != nil {
		return err
	}
	s.tx.Set(key, b)
	return nil
}

func (s *stateStore) removeKeyed(groupKey []byte) error {
	key := keyedStateKey(s.node, groupKey)
	if err := s.mark(key); err != nil {
		return err
	}
	s.tx.Remove(key)
	return nil
}

func (s *stateStore) getWindow(ctx context.Context, windowId uint64, out any) (bool, error) {
	v, ok, err := s.tx.Get(ctx, windowStateKey(s.node, windowId))
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal(v, out); err != nil {
		return false, reifyerr.Serialization(err, "decoding window state for node %d", s.node)
	}
	return true, nil
}

func (s *stateStore) setWindow(windowId uint64, in any) error {
	b, err := json.Marshal(in)
	if err != nil {
		return reifyerr.Serialization(err, "encoding window state for node %d", s.node)
	}
	key := windowStateKey(s.node, windowId)
	if err := s.mark(key); err != nil {
		return err
	}
	s.tx.Set(key, b)
	return nil
}

// writeTracker enforces spec.md §4.7.3's isolation invariant: no two
// flows processed within the same CDC version may write the same key.
// Reset per version, flow reassigned per flow.
type writeTracker struct {
	flow catalog.Id
	seen map[string]catalog.Id
}

func newWriteTracker() *writeTracker {
	return &writeTracker{seen: make(map[string]catalog.Id)}
}

func (t *writeTracker) forFlow(flowId catalog.Id) *writeTracker {
	return &writeTracker{flow: flowId, seen: t.seen}
}

func (t *writeTracker) mark(key store.EncodedKey) error {
	k := string(key)
	if owner, ok := t.seen[k]; ok && owner != t.flow {
		return reifyerr.Flow("", "", 0, "FlowTransactionKeyspaceOverlap: flow %d and flow %d both write key %x", owner, t.flow, key)
	}
	t.seen[k] = t.flow
	return nil
}
