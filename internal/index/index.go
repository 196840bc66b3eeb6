// Package index implements per-field secondary indexes, unique and
// non-unique, plus the cross-index atomic add/remove used by the
// collection engine (spec.md §4.E).
package index

import (
	"fmt"
	"sort"
	"sync"

	"github.com/modb/modb/internal/btree"
	"github.com/modb/modb/internal/modberrors"
)

// idSet is an insertion-ordered set of record ids. Using a slice rather
// than a map keeps Search's "first match" behavior stable (the oldest
// surviving insertion wins), resolving spec.md §9 open question 1: a
// non-unique index on a repeated value no longer silently drops ids, it
// keeps all of them and Search picks the first deterministically.
type idSet struct {
	ids []string
}

func (s *idSet) add(id string) {
	for _, existing := range s.ids {
		if existing == id {
			return
		}
	}
	s.ids = append(s.ids, id)
}

func (s *idSet) remove(id string) bool {
	for i, existing := range s.ids {
		if existing == id {
			s.ids = append(s.ids[:i], s.ids[i+1:]...)
			return true
		}
	}
	return false
}

// Index is a single per-field ordered index over comparable values.
type Index struct {
	Name   string
	Field  string
	Unique bool

	mu    sync.RWMutex
	tree  *btree.OrderedMap[any, *idSet]
	less  func(a, b any) bool
}

// New returns a new Index over field, ordered by cmp (negative when a <
// b, zero when equal, positive when a > b — the shape returned by
// schema.Comparator).
func New(name, field string, unique bool, cmp func(a, b any) int) *Index {
	less := func(a, b any) bool { return cmp(a, b) < 0 }
	return &Index{
		Name:   name,
		Field:  field,
		Unique: unique,
		tree:   btree.New[any, *idSet](btree.DefaultDegree, less),
		less:   less,
	}
}

// Add inserts id under value. For a unique index, Add fails with
// *modberrors.UniqueViolation if value is already associated with a
// different id.
func (ix *Index) Add(value any, id string) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	set, ok := ix.tree.Get(value)
	if !ok {
		set = &idSet{}
		ix.tree.Set(value, set)
	}
	if ix.Unique && len(set.ids) > 0 && !(len(set.ids) == 1 && set.ids[0] == id) {
		return &modberrors.UniqueViolation{Index: ix.Name, Value: value}
	}
	set.add(id)
	return nil
}

// Remove disassociates id from value. It reports whether the pair was
// present.
func (ix *Index) Remove(value any, id string) bool {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	set, ok := ix.tree.Get(value)
	if !ok {
		return false
	}
	removed := set.remove(id)
	if len(set.ids) == 0 {
		ix.tree.Delete(value)
	}
	return removed
}

// Search returns the first (oldest-inserted) id associated with value.
func (ix *Index) Search(value any) (string, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	set, ok := ix.tree.Get(value)
	if !ok || len(set.ids) == 0 {
		return "", false
	}
	return set.ids[0], true
}

// Find returns every id associated with value, oldest-inserted first.
func (ix *Index) Find(value any) []string {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	set, ok := ix.tree.Get(value)
	if !ok {
		return nil
	}
	out := make([]string, len(set.ids))
	copy(out, set.ids)
	return out
}

// Range returns every id whose indexed value falls in [from, to], in
// ascending value order, ties broken by insertion order within a value.
func (ix *Index) Range(from, to any) []string {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	var out []string
	ix.tree.AscendRange(from, to, func(_ any, set *idSet) bool {
		out = append(out, set.ids...)
		return true
	})
	return out
}

// Manager owns every secondary index for one collection and provides the
// atomic cross-index add/remove used on record insert/update/delete.
type Manager struct {
	mu      sync.RWMutex
	indexes map[string]*Index
}

// NewManager returns an empty index manager.
func NewManager() *Manager {
	return &Manager{indexes: make(map[string]*Index)}
}

// Create registers a new index, failing if one by that name already
// exists.
func (m *Manager) Create(ix *Index) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.indexes[ix.Name]; exists {
		return fmt.Errorf("index %q already exists", ix.Name)
	}
	m.indexes[ix.Name] = ix
	return nil
}

// Drop removes an index by name.
func (m *Manager) Drop(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.indexes[name]; !exists {
		return &modberrors.MissingIndex{Field: name}
	}
	delete(m.indexes, name)
	return nil
}

// Get returns an index by name.
func (m *Manager) Get(name string) (*Index, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ix, ok := m.indexes[name]
	return ix, ok
}

// ForField returns the index over a given field, if one exists.
func (m *Manager) ForField(field string) (*Index, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, ix := range m.indexes {
		if ix.Field == field {
			return ix, true
		}
	}
	return nil, false
}

// Names returns every index name in sorted order, giving a deterministic
// iteration order for commit (spec.md §8).
func (m *Manager) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.indexes))
	for name := range m.indexes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// AddToAll adds id to every registered index using the corresponding
// field's value out of record, rolling back any index already updated if
// a later one fails its unique constraint.
func (m *Manager) AddToAll(id string, record map[string]any) error {
	m.mu.RLock()
	indexes := make([]*Index, 0, len(m.indexes))
	for _, ix := range m.indexes {
		indexes = append(indexes, ix)
	}
	m.mu.RUnlock()

	applied := make([]*Index, 0, len(indexes))
	for _, ix := range indexes {
		v, present := record[ix.Field]
		if !present || v == nil {
			continue
		}
		if err := ix.Add(v, id); err != nil {
			for _, done := range applied {
				if dv, ok := record[done.Field]; ok {
					done.Remove(dv, id)
				}
			}
			return err
		}
		applied = append(applied, ix)
	}
	return nil
}

// RemoveFromAll removes id from every registered index using the
// corresponding field's value out of record.
func (m *Manager) RemoveFromAll(id string, record map[string]any) {
	m.mu.RLock()
	indexes := make([]*Index, 0, len(m.indexes))
	for _, ix := range m.indexes {
		indexes = append(indexes, ix)
	}
	m.mu.RUnlock()

	for _, ix := range indexes {
		if v, present := record[ix.Field]; present && v != nil {
			ix.Remove(v, id)
		}
	}
}
