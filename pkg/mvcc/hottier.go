package mvcc

import (
	"container/list"
	"sync"

	"github.com/reifydb/reifydb/pkg/store"
)

// hotTier is a bounded LRU cache of the most recently committed value
// per key, avoiding a backend round trip for the overwhelmingly common
// case of reading what was just written (spec.md §4.3 "recently
// committed reads").
//
// It only ever caches the single latest version of a key. A Get for any
// version older than the cached one still falls through to the
// backend, so the cache can never answer with a value that postdates
// the version requested.
type hotTier struct {
	mu       sync.Mutex
	capacity int
	ll       *list.List
	items    map[string]*list.Element
}

type hotTierEntry struct {
	key     string
	version store.Version
	value   []byte
}

func newHotTier(capacity int) *hotTier {
	if capacity <= 0 {
		capacity = 1
	}
	return &hotTier{
		capacity: capacity,
		ll:       list.New(),
		items:    make(map[string]*list.Element),
	}
}

func (h *hotTier) get(key store.EncodedKey, asOf store.Version) ([]byte, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	el, ok := h.items[string(key)]
	if !ok {
		return nil, false
	}
	e := el.Value.(*hotTierEntry)
	if e.version > asOf {
		return nil, false
	}
	h.ll.MoveToFront(el)
	return e.value, true
}

func (h *hotTier) put(key store.EncodedKey, version store.Version, value []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	k := string(key)
	if el, ok := h.items[k]; ok {
		e := el.Value.(*hotTierEntry)
		e.version = version
		e.value = value
		h.ll.MoveToFront(el)
		return
	}
	el := h.ll.PushFront(&hotTierEntry{key: k, version: version, value: value})
	h.items[k] = el
	if h.ll.Len() > h.capacity {
		oldest := h.ll.Back()
		if oldest != nil {
			h.ll.Remove(oldest)
			delete(h.items, oldest.Value.(*hotTierEntry).key)
		}
	}
}

func (h *hotTier) remove(key store.EncodedKey) {
	h.mu.Lock()
	defer h.mu.Unlock()
	k := string(key)
	if el, ok := h.items[k]; ok {
		h.ll.Remove(el)
		delete(h.items, k)
	}
}
