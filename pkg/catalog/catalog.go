package catalog

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/reifydb/reifydb/pkg/events"
	"github.com/reifydb/reifydb/pkg/reifyerr"
	"github.com/reifydb/reifydb/pkg/store"
	"github.com/reifydb/reifydb/pkg/txn"
	"github.com/reifydb/reifydb/pkg/types"
)

// Object is the row persisted for every catalog entry. Not every field
// applies to every Kind; see the Create* constructors for which fields
// each kind populates.
type Object struct {
	Id        Id
	Kind      Kind
	Namespace Id // parent namespace; 0 for a Namespace itself
	Name      string

	Schema types.Schema `json:",omitempty"` // Table, View, RingBuffer

	Capacity int `json:",omitempty"` // RingBuffer

	SequenceNext      int64 `json:",omitempty"` // Sequence
	SequenceIncrement int64 `json:",omitempty"`

	Table   Id       `json:",omitempty"` // Index: owning table
	Columns []string `json:",omitempty"` // Index: indexed columns

	Definition string `json:",omitempty"` // View/Flow: opaque plan/flow definition

	Flow   Id     `json:",omitempty"` // FlowNode: owning flow
	Config string `json:",omitempty"` // FlowNode: opaque node config
}

// nameIndexTag distinguishes name->id index rows from object rows under
// the same catalog prefix.
const nameIndexTag = 0xfd

func nameIndexKey(kind Kind, parent Id, name string) store.EncodedKey {
	buf := make([]byte, 0, len(catalogPrefix)+2+8+len(name))
	buf = append(buf, catalogPrefix...)
	buf = append(buf, keyFormatVersion, nameIndexTag, byte(kind))
	parentBytes := make([]byte, 8)
	binary.BigEndian.PutUint64(parentBytes, uint64(parent))
	buf = append(buf, parentBytes...)
	buf = append(buf, []byte(name)...)
	return buf
}

func beUint64(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

// Catalog is the versioned schema-object store of spec.md §4.5: every
// object lives as a row in the same versioned store DDL and DML share,
// fronted by an in-memory name->id cache.
type Catalog struct {
	mu      sync.RWMutex
	byName  map[string]Id
	byIdKnd map[Id]Kind
	broker  *events.Broker
}

func New() *Catalog {
	return &Catalog{byName: make(map[string]Id), byIdKnd: make(map[Id]Kind)}
}

// SetBroker attaches an event broker so DDL calls fan out lifecycle
// notifications (table/view/flow created/dropped). Optional: a Catalog
// with no broker behaves exactly as before.
func (c *Catalog) SetBroker(b *events.Broker) { c.broker = b }

// createdEvent maps a catalog Kind to the EventType Create* should
// publish; kinds with no corresponding lifecycle event return "".
func createdEvent(kind Kind) events.EventType {
	switch kind {
	case KindTable:
		return events.EventTableCreated
	case KindView:
		return events.EventViewCreated
	case KindFlow:
		return events.EventFlowCreated
	default:
		return ""
	}
}

func droppedEvent(kind Kind) events.EventType {
	switch kind {
	case KindTable:
		return events.EventTableDropped
	case KindView:
		return events.EventViewDropped
	case KindFlow:
		return events.EventFlowDropped
	default:
		return ""
	}
}

func cacheKey(kind Kind, parent Id, name string) string {
	return fmt.Sprintf("%d/%d/%s", kind, parent, name)
}

// allocate hands out the next object id, reading and bumping the
// catalog's own counter through tx so id allocation participates in the
// same commit/rollback as the rest of the DDL statement.
func (c *Catalog) allocate(ctx context.Context, tx *txn.Transaction) (Id, error) {
	v, ok, err := tx.Get(ctx, sequenceKey)
	if err != nil {
		return 0, err
	}
	next := uint64(1)
	if ok {
		next = binary.BigEndian.Uint64(v) + 1
	}
	tx.Set(sequenceKey, beUint64(next))
	return Id(next), nil
}

// Resolve looks up an object's id by (kind, parent namespace, name),
// consulting the in-memory cache before falling back to a transactional
// read of the name index.
func (c *Catalog) Resolve(ctx context.Context, tx *txn.Transaction, kind Kind, parent Id, name string) (Id, bool, error) {
	ck := cacheKey(kind, parent, name)
	c.mu.RLock()
	if id, ok := c.byName[ck]; ok {
		c.mu.RUnlock()
		return id, true, nil
	}
	c.mu.RUnlock()

	v, ok, err := tx.Get(ctx, nameIndexKey(kind, parent, name))
	if err != nil || !ok {
		return 0, false, err
	}
	id := Id(binary.BigEndian.Uint64(v))
	c.mu.Lock()
	c.byName[ck] = id
	c.byIdKnd[id] = kind
	c.mu.Unlock()
	return id, true, nil
}

// Get returns the object with the given kind and id as of tx's
// snapshot.
func (c *Catalog) Get(ctx context.Context, tx *txn.Transaction, kind Kind, id Id) (Object, bool, error) {
	v, ok, err := tx.Get(ctx, objectKey(kind, id))
	if err != nil || !ok {
		return Object{}, false, err
	}
	var obj Object
	if err := json.Unmarshal(v, &obj); err != nil {
		return Object{}, false, reifyerr.Serialization(err, "decoding catalog object %d", id)
	}
	return obj, true, nil
}

func (c *Catalog) create(ctx context.Context, tx *txn.Transaction, kind Kind, parent Id, name string, obj Object) (Id, error) {
	if _, exists, err := c.Resolve(ctx, tx, kind, parent, name); err != nil {
		return 0, err
	} else if exists {
		return 0, reifyerr.Catalog("%s %q already exists", kind, name)
	}
	id, err := c.allocate(ctx, tx)
	if err != nil {
		return 0, err
	}
	obj.Id, obj.Kind, obj.Namespace, obj.Name = id, kind, parent, name
	payload, err := json.Marshal(obj)
	if err != nil {
		return 0, reifyerr.Serialization(err, "encoding catalog object %q", name)
	}
	tx.Set(objectKey(kind, id), payload)
	tx.Set(nameIndexKey(kind, parent, name), beUint64(uint64(id)))

	ck := cacheKey(kind, parent, name)
	c.mu.Lock()
	c.byName[ck] = id
	c.byIdKnd[id] = kind
	c.mu.Unlock()

	if t := createdEvent(kind); t != "" {
		events.Emit(c.broker, t, name, map[string]string{"id": fmt.Sprintf("%d", id)})
	}
	return id, nil
}

// Drop removes an object and its name index entry as of tx, evicts it
// from the in-memory cache, and publishes the kind's dropped event if a
// broker is attached. Callers that need the object's definition for
// cleanup (e.g. pkg/flow reloading its graphs after a flow drop) should
// Get it before calling Drop.
func (c *Catalog) Drop(ctx context.Context, tx *txn.Transaction, kind Kind, id Id) error {
	obj, ok, err := c.Get(ctx, tx, kind, id)
	if err != nil {
		return err
	}
	if !ok {
		return reifyerr.Catalog("%s %d not found", kind, id)
	}
	tx.Remove(objectKey(kind, id))
	tx.Remove(nameIndexKey(kind, obj.Namespace, obj.Name))

	ck := cacheKey(kind, obj.Namespace, obj.Name)
	c.mu.Lock()
	delete(c.byName, ck)
	delete(c.byIdKnd, id)
	c.mu.Unlock()

	if t := droppedEvent(kind); t != "" {
		events.Emit(c.broker, t, obj.Name, map[string]string{"id": fmt.Sprintf("%d", id)})
	}
	return nil
}

func (c *Catalog) CreateNamespace(ctx context.Context, tx *txn.Transaction, name string) (Id, error) {
	return c.create(ctx, tx, KindNamespace, 0, name, Object{})
}

func (c *Catalog) CreateTable(ctx context.Context, tx *txn.Transaction, namespace Id, name string, schema types.Schema) (Id, error) {
	id, err := c.create(ctx, tx, KindTable, namespace, name, Object{Schema: schema})
	if err != nil {
		return 0, err
	}
	// Models the namespace<->table cyclic reference as a link row
	// rather than an in-memory pointer (spec.md §9).
	tx.Set(linkKey(KindNamespaceTableLink, namespace, id), nil)
	return id, nil
}

func (c *Catalog) CreateView(ctx context.Context, tx *txn.Transaction, namespace Id, name string, schema types.Schema, definition string) (Id, error) {
	return c.create(ctx, tx, KindView, namespace, name, Object{Schema: schema, Definition: definition})
}

func (c *Catalog) CreateRingBuffer(ctx context.Context, tx *txn.Transaction, namespace Id, name string, schema types.Schema, capacity int) (Id, error) {
	return c.create(ctx, tx, KindRingBuffer, namespace, name, Object{Schema: schema, Capacity: capacity})
}

func (c *Catalog) CreateDictionary(ctx context.Context, tx *txn.Transaction, namespace Id, name string) (Id, error) {
	return c.create(ctx, tx, KindDictionary, namespace, name, Object{})
}

func (c *Catalog) CreateSequence(ctx context.Context, tx *txn.Transaction, namespace Id, name string, start, increment int64) (Id, error) {
	return c.create(ctx, tx, KindSequence, namespace, name, Object{SequenceNext: start, SequenceIncrement: increment})
}

// NextSequenceValue atomically reads and advances a Sequence object's
// counter within tx, returning the value issued to the caller.
func (c *Catalog) NextSequenceValue(ctx context.Context, tx *txn.Transaction, id Id) (int64, error) {
	obj, ok, err := c.Get(ctx, tx, KindSequence, id)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, reifyerr.Catalog("sequence %d not found", id)
	}
	value := obj.SequenceNext
	obj.SequenceNext += obj.SequenceIncrement
	payload, err := json.Marshal(obj)
	if err != nil {
		return 0, reifyerr.Serialization(err, "encoding sequence %d", id)
	}
	tx.Set(objectKey(KindSequence, id), payload)
	return value, nil
}

func (c *Catalog) CreateIndex(ctx context.Context, tx *txn.Transaction, table Id, name string, columns []string) (Id, error) {
	return c.create(ctx, tx, KindIndex, table, name, Object{Table: table, Columns: columns})
}

func (c *Catalog) CreateFlow(ctx context.Context, tx *txn.Transaction, namespace Id, name string, definition string) (Id, error) {
	return c.create(ctx, tx, KindFlow, namespace, name, Object{Definition: definition})
}

func (c *Catalog) CreateFlowNode(ctx context.Context, tx *txn.Transaction, flow Id, name string, config string) (Id, error) {
	return c.create(ctx, tx, KindFlowNode, flow, name, Object{Flow: flow, Config: config})
}

func (c *Catalog) DropTable(ctx context.Context, tx *txn.Transaction, id Id) error {
	return c.Drop(ctx, tx, KindTable, id)
}

func (c *Catalog) DropView(ctx context.Context, tx *txn.Transaction, id Id) error {
	return c.Drop(ctx, tx, KindView, id)
}

func (c *Catalog) DropFlow(ctx context.Context, tx *txn.Transaction, id Id) error {
	return c.Drop(ctx, tx, KindFlow, id)
}

// ListByKind returns every object of kind, in ascending id order.
func (c *Catalog) ListByKind(ctx context.Context, tx *txn.Transaction, kind Kind) ([]Object, error) {
	entries, err := tx.Range(ctx, scanRange())
	if err != nil {
		return nil, err
	}
	var out []Object
	for _, e := range entries {
		k, _, err := parseObjectKey(e.Key)
		if err != nil || k != kind {
			continue
		}
		var obj Object
		if err := json.Unmarshal(e.Value, &obj); err != nil {
			return nil, reifyerr.Serialization(err, "decoding catalog object")
		}
		out = append(out, obj)
	}
	return out, nil
}

// ListByParent returns every object of kind whose Namespace (or, for
// FlowNode, owning Flow) equals parent, in ascending id order. Used by
// pkg/flow to enumerate a flow's nodes without a dedicated reverse
// index, following the same full-prefix scan Load already does.
func (c *Catalog) ListByParent(ctx context.Context, tx *txn.Transaction, kind Kind, parent Id) ([]Object, error) {
	all, err := c.ListByKind(ctx, tx, kind)
	if err != nil {
		return nil, err
	}
	var out []Object
	for _, obj := range all {
		if obj.Namespace == parent {
			out = append(out, obj)
		}
	}
	return out, nil
}

// Load rebuilds the in-memory name index from every object row visible
// at tx's snapshot; call it once at startup before serving resolution
// requests against a store that already has catalog data.
func (c *Catalog) Load(ctx context.Context, tx *txn.Transaction) error {
	entries, err := tx.Range(ctx, scanRange())
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range entries {
		kind, id, err := parseObjectKey(e.Key)
		if err != nil {
			continue // name-index/link/sequence rows don't parse as object keys
		}
		var obj Object
		if err := json.Unmarshal(e.Value, &obj); err != nil {
			return reifyerr.Serialization(err, "loading catalog object %d", id)
		}
		c.byName[cacheKey(kind, obj.Namespace, obj.Name)] = id
		c.byIdKnd[id] = kind
	}
	return nil
}
