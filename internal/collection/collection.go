// Package collection implements the per-collection CRUD/query engine:
// one B-tree-backed primary store keyed by id, a set of secondary
// indexes, and a single mutex guarding every operation (spec.md §4.F,
// §5).
package collection

import (
	"errors"
	"sort"
	"sync"

	"github.com/cenkalti/backoff/v4"

	"github.com/modb/modb/internal/btree"
	"github.com/modb/modb/internal/idgen"
	"github.com/modb/modb/internal/index"
	"github.com/modb/modb/internal/modberrors"
	"github.com/modb/modb/internal/schema"
)

// errIDCollision signals the generator loop below to retry with a fresh
// candidate id; if every attempt collides, Insert returns it wrapped in a
// *modberrors.IOError.
var errIDCollision = errors.New("generated id already in use")

// ChangeKind identifies the modification event fired by an operation.
type ChangeKind int

const (
	Created ChangeKind = iota
	Updated
	Deleted
)

// Change describes one modification fired after a CRUD operation
// commits to memory, for subscribers (spec.md §4.F "modification-event
// subscription").
type Change struct {
	Kind   ChangeKind
	ID     string
	Record map[string]any
}

// Subscriber receives Change notifications. Delivery is synchronous and
// under the collection's lock, matching the cooperative single-goroutine
// framing of spec.md §5 — subscribers must not call back into the same
// collection.
type Subscriber func(Change)

// Collection is one schema-validated, indexed set of records.
type Collection struct {
	Name   string
	Schema schema.Schema

	mu      sync.Mutex
	records *btree.OrderedMap[string, map[string]any]
	indexes *index.Manager
	idgen   idgen.Generator
	subs    []Subscriber
}

// New returns an empty collection named name, validating records against
// s and generating ids with gen (idgen.NewBase62Generator() if gen is nil).
func New(name string, s schema.Schema, gen idgen.Generator) *Collection {
	if gen == nil {
		gen = idgen.NewBase62Generator()
	}
	c := &Collection{
		Name:    name,
		Schema:  s,
		records: btree.New[string, map[string]any](btree.DefaultDegree, lessString),
		indexes: index.NewManager(),
		idgen:   gen,
	}
	for _, spec := range s.DeriveIndexes() {
		field := s[spec.Field]
		c.indexes.Create(index.New(spec.Name, spec.Field, spec.Unique, schema.Comparator(field.Kind)))
	}
	return c
}

func lessString(a, b string) bool { return a < b }

// Subscribe registers fn to receive future Change events.
func (c *Collection) Subscribe(fn Subscriber) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subs = append(c.subs, fn)
}

func (c *Collection) notify(ch Change) {
	for _, fn := range c.subs {
		fn(ch)
	}
}

// Insert validates value against the schema, assigns it a new id
// (retrying on an id collision up to a bounded number of attempts), adds
// it to every index, and stores it. It returns the stored record
// (including its assigned id).
func (c *Collection) Insert(value map[string]any) (map[string]any, error) {
	if err := c.Schema.Validate(value); err != nil {
		return nil, err
	}
	value = c.Schema.ApplyDefaults(value)

	c.mu.Lock()
	defer c.mu.Unlock()

	var id string
	policy := backoff.WithMaxRetries(backoff.NewConstantBackOff(0), 10)
	genErr := backoff.Retry(func() error {
		candidate := c.idgen.Generate()
		if _, exists := c.records.Get(candidate); exists {
			return errIDCollision
		}
		id = candidate
		return nil
	}, policy)
	if genErr != nil {
		return nil, &modberrors.IOError{Op: "insert: generate unique id", Err: genErr}
	}

	stored := cloneRecord(value)
	stored["id"] = id
	if err := c.indexes.AddToAll(id, stored); err != nil {
		return nil, err
	}
	c.records.Set(id, stored)
	c.notify(Change{Kind: Created, ID: id, Record: cloneRecord(stored)})
	return cloneRecord(stored), nil
}

// Get returns a deep-copy view of the record stored at id (spec.md §5:
// "views are independent snapshots").
func (c *Collection) Get(id string) (map[string]any, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	rec, ok := c.records.Get(id)
	if !ok {
		return nil, &modberrors.NotFound{ID: id}
	}
	return cloneRecord(rec), nil
}

// Update applies a partial patch to the record at id, re-validating the
// merged result and re-indexing any field whose value changed.
func (c *Collection) Update(id string, patch map[string]any) (map[string]any, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	existing, ok := c.records.Get(id)
	if !ok {
		return nil, &modberrors.NotFound{ID: id}
	}

	merged := cloneRecord(existing)
	for k, v := range patch {
		merged[k] = v
	}
	validatable := cloneRecord(merged)
	delete(validatable, "id")
	if err := c.Schema.Validate(validatable); err != nil {
		return nil, err
	}

	c.indexes.RemoveFromAll(id, existing)
	if err := c.indexes.AddToAll(id, merged); err != nil {
		c.indexes.AddToAll(id, existing)
		return nil, err
	}
	c.records.Set(id, merged)
	c.notify(Change{Kind: Updated, ID: id, Record: cloneRecord(merged)})
	return cloneRecord(merged), nil
}

// Delete removes the record at id from the primary store and every
// index. preDelete, if non-nil, runs while still holding the lock and
// before the record is actually removed — used by the relation evaluator
// to apply delete policies to dependents first (spec.md §4.I).
func (c *Collection) Delete(id string, preDelete func(record map[string]any) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	rec, ok := c.records.Get(id)
	if !ok {
		return &modberrors.NotFound{ID: id}
	}
	if preDelete != nil {
		if err := preDelete(cloneRecord(rec)); err != nil {
			return err
		}
	}
	c.indexes.RemoveFromAll(id, rec)
	c.records.Delete(id)
	c.notify(Change{Kind: Deleted, ID: id, Record: cloneRecord(rec)})
	return nil
}

// Find returns every record satisfying pred, in ascending id order.
func (c *Collection) Find(pred func(map[string]any) bool) []map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []map[string]any
	c.records.Ascend(func(_ string, rec map[string]any) bool {
		if pred == nil || pred(rec) {
			out = append(out, cloneRecord(rec))
		}
		return true
	})
	return out
}

// First returns the first record (ascending id order) satisfying pred.
func (c *Collection) First(pred func(map[string]any) bool) (map[string]any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var found map[string]any
	c.records.Ascend(func(_ string, rec map[string]any) bool {
		if pred == nil || pred(rec) {
			found = cloneRecord(rec)
			return false
		}
		return true
	})
	return found, found != nil
}

// FindByField returns every record whose field equals value, using an
// index on field when one exists, falling back to a full scan otherwise.
func (c *Collection) FindByField(field string, value any) []map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ix, ok := c.indexes.ForField(field); ok {
		ids := ix.Find(value)
		out := make([]map[string]any, 0, len(ids))
		for _, id := range ids {
			if rec, ok := c.records.Get(id); ok {
				out = append(out, cloneRecord(rec))
			}
		}
		return out
	}
	var out []map[string]any
	c.records.Ascend(func(_ string, rec map[string]any) bool {
		if valuesEqual(rec[field], value) {
			out = append(out, cloneRecord(rec))
		}
		return true
	})
	return out
}

// FindByRange returns every record whose field falls in [from, to],
// using an index on field when one exists, failing with
// *modberrors.MissingIndex otherwise (range scans require an index per
// spec.md §4.F).
func (c *Collection) FindByRange(field string, from, to any) ([]map[string]any, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ix, ok := c.indexes.ForField(field)
	if !ok {
		return nil, &modberrors.MissingIndex{Field: field}
	}
	ids := ix.Range(from, to)
	out := make([]map[string]any, 0, len(ids))
	for _, id := range ids {
		if rec, ok := c.records.Get(id); ok {
			out = append(out, cloneRecord(rec))
		}
	}
	return out, nil
}

// CreateIndex adds a new secondary index over field. If unique is true
// and any two existing records collide on field's value, the index is
// not created and a *modberrors.UniqueViolation is returned.
func (c *Collection) CreateIndex(name, field string, unique bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	f, ok := c.Schema[field]
	if !ok {
		return &modberrors.SchemaError{Field: field, Reason: "field not declared by schema"}
	}

	ix := index.New(name, field, unique, schema.Comparator(f.Kind))
	var built []string
	buildErr := func() error {
		var err error
		c.records.Ascend(func(id string, rec map[string]any) bool {
			v, present := rec[field]
			if !present || v == nil {
				return true
			}
			if addErr := ix.Add(v, id); addErr != nil {
				err = addErr
				return false
			}
			built = append(built, id)
			return true
		})
		return err
	}()
	if buildErr != nil {
		return buildErr
	}
	return c.indexes.Create(ix)
}

// DropIndex removes a secondary index by name.
func (c *Collection) DropIndex(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.indexes.Drop(name)
}

// IndexNames returns every index name in sorted order.
func (c *Collection) IndexNames() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.indexes.Names()
}

// HasIndexOn reports whether field has a secondary index.
func (c *Collection) HasIndexOn(field string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.indexes.ForField(field)
	return ok
}

// Len returns the number of records.
func (c *Collection) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.records.Len()
}

// AllSorted returns every record in ascending id order — used by the
// container writer for a deterministic on-disk record sequence.
func (c *Collection) AllSorted() []map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]map[string]any, 0, c.records.Len())
	c.records.Ascend(func(_ string, rec map[string]any) bool {
		out = append(out, cloneRecord(rec))
		return true
	})
	return out
}

// LoadRecord inserts a record exactly as given (id included), bypassing
// id generation and default application — used when reconstituting a
// collection from its on-disk payload.
func (c *Collection) LoadRecord(rec map[string]any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	id, _ := rec["id"].(string)
	if err := c.indexes.AddToAll(id, rec); err != nil {
		return err
	}
	c.records.Set(id, cloneRecord(rec))
	return nil
}

// IndexSpecs returns the manager's index specs in sorted-by-name order,
// for a container writer that needs field/unique alongside the name.
func (c *Collection) IndexSpecs() []schema.IndexSpec {
	c.mu.Lock()
	defer c.mu.Unlock()
	names := c.indexes.Names()
	sort.Strings(names)
	specs := make([]schema.IndexSpec, 0, len(names))
	for _, name := range names {
		ix, _ := c.indexes.Get(name)
		specs = append(specs, schema.IndexSpec{Name: ix.Name, Field: ix.Field, Unique: ix.Unique})
	}
	return specs
}

func cloneRecord(rec map[string]any) map[string]any {
	out := make(map[string]any, len(rec))
	for k, v := range rec {
		out[k] = v
	}
	return out
}

func valuesEqual(a, b any) bool {
	return schema.ValuesEqual(a, b)
}
