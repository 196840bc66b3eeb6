// Package btree wraps github.com/google/btree's classic Item/BTree API in
// a generic, typed ordered map, used as the primary store for collections
// and as the per-field ordered index in internal/index.
package btree

import (
	"sync"

	gbtree "github.com/google/btree"
)

// DefaultDegree is the branching factor used when callers don't need a
// specific tuning (spec.md §4.B: "default 32-64, minimum 3").
const DefaultDegree = 32

// MinDegree is the smallest branching factor New uses; lower values are
// clamped up to it.
const MinDegree = 3

// item adapts a (key, value) pair to gbtree.Item using a caller-supplied
// comparator, so OrderedMap can support any ordered key type.
type item[K any, V any] struct {
	key   K
	value V
	less  func(a, b K) bool
}

func (it item[K, V]) Less(other gbtree.Item) bool {
	o := other.(item[K, V])
	return it.less(it.key, o.key)
}

// OrderedMap is a generic ordered map backed by a classic (non-generic)
// google/btree.BTree. It is safe for concurrent use by multiple
// goroutines; callers needing multi-step atomicity (e.g. collection CRUD)
// still take their own higher-level lock, but OrderedMap itself never
// corrupts under concurrent single calls.
type OrderedMap[K any, V any] struct {
	mu   sync.RWMutex
	tree *gbtree.BTree
	less func(a, b K) bool
	size int
}

// New returns an OrderedMap ordered by less, with the given branching
// degree. Degree is clamped up to MinDegree.
func New[K any, V any](degree int, less func(a, b K) bool) *OrderedMap[K, V] {
	if degree < MinDegree {
		degree = MinDegree
	}
	return &OrderedMap[K, V]{
		tree: gbtree.New(degree),
		less: less,
	}
}

func (m *OrderedMap[K, V]) wrap(key K, value V) item[K, V] {
	return item[K, V]{key: key, value: value, less: m.less}
}

// Set inserts or replaces the value at key, reporting whether the key was
// newly inserted (false) or replaced an existing entry (true).
func (m *OrderedMap[K, V]) Set(key K, value V) (replaced bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	old := m.tree.ReplaceOrInsert(m.wrap(key, value))
	if old == nil {
		m.size++
		return false
	}
	return true
}

// Get returns the value at key, if present.
func (m *OrderedMap[K, V]) Get(key K) (V, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var zero V
	probe := item[K, V]{key: key, less: m.less}
	found := m.tree.Get(probe)
	if found == nil {
		return zero, false
	}
	return found.(item[K, V]).value, true
}

// Delete removes key, reporting whether it was present.
func (m *OrderedMap[K, V]) Delete(key K) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	probe := item[K, V]{key: key, less: m.less}
	removed := m.tree.Delete(probe)
	if removed == nil {
		return false
	}
	m.size--
	return true
}

// Len returns the number of entries.
func (m *OrderedMap[K, V]) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.size
}

// Ascend visits every entry in ascending key order, stopping early if fn
// returns false.
func (m *OrderedMap[K, V]) Ascend(fn func(key K, value V) bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	m.tree.Ascend(func(i gbtree.Item) bool {
		it := i.(item[K, V])
		return fn(it.key, it.value)
	})
}

// AscendRange visits every entry with key in [from, to], inclusive of
// both ends — google/btree's native AscendRange excludes the upper bound,
// so this layers a manual cutoff on top of AscendGreaterOrEqual.
func (m *OrderedMap[K, V]) AscendRange(from, to K, fn func(key K, value V) bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	start := item[K, V]{key: from, less: m.less}
	m.tree.AscendGreaterOrEqual(start, func(i gbtree.Item) bool {
		it := i.(item[K, V])
		if m.less(to, it.key) {
			return false
		}
		return fn(it.key, it.value)
	})
}

// Clear removes all entries.
func (m *OrderedMap[K, V]) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tree.Clear(false)
	m.size = 0
}
