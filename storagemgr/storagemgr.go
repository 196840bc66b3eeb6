// Package storagemgr ties together collections, the relation table, and
// on-disk persistence into one storage manager: lazy collection
// instantiation from a schema registry, debounced auto-commit, and
// health reporting (spec.md §4.H).
package storagemgr

import (
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/singleflight"

	"github.com/modb/modb/internal/collection"
	"github.com/modb/modb/internal/config"
	"github.com/modb/modb/internal/container"
	"github.com/modb/modb/internal/debug"
	"github.com/modb/modb/internal/filelock"
	"github.com/modb/modb/internal/idgen"
	"github.com/modb/modb/internal/modberrors"
	"github.com/modb/modb/internal/relation"
	"github.com/modb/modb/internal/schema"
)

// DefaultFilePath is used when Options.FilePath is empty (spec.md §6).
const DefaultFilePath = "./data/database.mdb"

// Health summarizes a manager's current state.
type Health struct {
	Collections     map[string]int
	Persisted       bool
	LastCommitError error
	CommitInFlight  bool
	CommitQueued    bool
}

// Manager owns every collection in one database, their relations, and
// (optionally) the single on-disk container file they persist to.
type Manager struct {
	mu          sync.Mutex
	collections map[string]*collection.Collection
	schemas     map[string]schema.Schema
	relations   *relation.Table
	opts        config.Options
	path        string
	lock        *filelock.Lock
	idGen       idgen.Generator

	sf singleflight.Group

	commitInFlight bool
	commitQueued   bool
	timer          *time.Timer
	lastCommitErr  error
}

// Open instantiates one collection per schema in schemas and registers
// every relation from relationSpecs, then — if opts.Persist is true —
// loads existing data from opts.FilePath (or DefaultFilePath) and takes
// an exclusive file lock on it for the lifetime of the manager.
func Open(schemas map[string]schema.Schema, relationSpecs []schema.RelationSpec, opts config.Options, idGen idgen.Generator) (*Manager, error) {
	m := &Manager{
		collections: make(map[string]*collection.Collection, len(schemas)),
		schemas:     schemas,
		opts:        opts,
		idGen:       idGen,
	}
	if m.idGen == nil {
		m.idGen = idgen.NewBase62Generator()
	}

	for name, s := range schemas {
		c := collection.New(name, s, m.idGen)
		c.Subscribe(func(collection.Change) { m.NotifyChange() })
		m.collections[name] = c
	}
	m.relations = relation.NewTable(m.collections)
	for _, spec := range relationSpecs {
		m.relations.Register(spec)
	}
	for name, s := range schemas {
		for _, spec := range s.DeriveRelations(name) {
			m.relations.Register(spec)
		}
	}

	if !opts.Persist {
		return m, nil
	}

	path := opts.FilePath
	if path == "" {
		path = DefaultFilePath
	}
	m.path = path

	lock, err := filelock.MustTryLock(path)
	if err != nil {
		return nil, err
	}
	m.lock = lock

	if err := m.load(); err != nil {
		lock.Unlock()
		return nil, err
	}
	return m, nil
}

func (m *Manager) load() error {
	payloads, err := container.Read(m.path)
	if err != nil {
		if ioErr, ok := err.(*modberrors.IOError); ok && os.IsNotExist(ioErr.Err) {
			debug.Logf("no existing container at %s; starting empty", m.path)
			return nil
		}
		return err
	}
	for _, p := range payloads {
		c, ok := m.collections[p.Name]
		if !ok {
			continue
		}
		for _, rec := range p.Records {
			value := make(map[string]any, len(rec.Value)+1)
			for k, v := range rec.Value {
				value[k] = v
			}
			value["id"] = rec.ID
			if err := c.LoadRecord(value); err != nil {
				return err
			}
		}
	}
	return nil
}

// Collection returns the named collection. Every collection in the schema
// registry is instantiated by Open, not on first access.
func (m *Manager) Collection(name string) (*collection.Collection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.collections[name]
	if !ok {
		return nil, &modberrors.NotFound{ID: name}
	}
	return c, nil
}

// Relations returns the manager's relation table.
func (m *Manager) Relations() *relation.Table {
	return m.relations
}

// CommitAll persists every collection to the container file immediately,
// coalescing with any concurrently-running commit via singleflight so
// that two callers racing a CommitAll only do one write.
func (m *Manager) CommitAll() error {
	if !m.opts.Persist {
		return nil
	}
	_, err, _ := m.sf.Do("commit", func() (any, error) {
		return nil, m.writeOnce()
	})
	return err
}

func (m *Manager) writeOnce() error {
	m.mu.Lock()
	names := make([]string, 0, len(m.collections))
	for name := range m.collections {
		names = append(names, name)
	}
	sort.Strings(names)

	payloads := make([]container.CollectionPayload, 0, len(names))
	for _, name := range names {
		c := m.collections[name]
		recs := c.AllSorted()
		entries := make([]container.RecordEntry, 0, len(recs))
		for _, rec := range recs {
			id := rec["id"].(string)
			value := make(map[string]any, len(rec))
			for k, v := range rec {
				if k == "id" {
					continue
				}
				value[k] = v
			}
			entries = append(entries, container.RecordEntry{ID: id, Value: value})
		}
		payloads = append(payloads, container.CollectionPayload{
			Name:    name,
			Schema:  c.Schema,
			Records: entries,
		})
	}
	path := m.path
	m.mu.Unlock()

	policy := backoff.WithMaxRetries(backoff.NewConstantBackOff(10*time.Millisecond), 3)
	err := backoff.Retry(func() error {
		return container.Write(path, payloads)
	}, policy)
	if err != nil {
		return &modberrors.IOError{Op: "commit container", Err: err}
	}
	return nil
}

// scheduleAutoCommit arms (or re-arms) the per-manager debounce timer
// described in spec.md §4.H/§5: a commit fires only after a quiet window
// of Options.AutoCommitInterval() (100ms by default) with no further
// calls, and a commit request that arrives while
// one is already running is queued, never discarded, and starts only
// after the in-flight one finishes.
func (m *Manager) scheduleAutoCommit() {
	if !m.opts.Persist || !m.opts.AutoCommit {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.timer != nil {
		m.timer.Stop()
	}
	interval := m.opts.AutoCommitInterval()
	m.timer = time.AfterFunc(interval, m.runCommitCycle)
}

func (m *Manager) runCommitCycle() {
	m.mu.Lock()
	if m.commitInFlight {
		m.commitQueued = true
		m.mu.Unlock()
		return
	}
	m.commitInFlight = true
	m.mu.Unlock()

	err := m.CommitAll()

	m.mu.Lock()
	m.lastCommitErr = err
	m.commitInFlight = false
	requeue := m.commitQueued
	m.commitQueued = false
	m.mu.Unlock()

	if err != nil {
		debug.Logf("auto-commit failed: %v", err)
	}
	if requeue {
		m.runCommitCycle()
	}
}

// NotifyChange arms the auto-commit debounce window; collections call
// this (indirectly, via their Subscribe hook wired by Open) on every
// Insert/Update/Delete.
func (m *Manager) NotifyChange() {
	m.scheduleAutoCommit()
}

// Health reports the manager's current state.
func (m *Manager) Health() Health {
	m.mu.Lock()
	defer m.mu.Unlock()
	counts := make(map[string]int, len(m.collections))
	for name, c := range m.collections {
		counts[name] = c.Len()
	}
	return Health{
		Collections:     counts,
		Persisted:       m.opts.Persist,
		LastCommitError: m.lastCommitErr,
		CommitInFlight:  m.commitInFlight,
		CommitQueued:    m.commitQueued,
	}
}

// Close flushes a final commit (if persisting) and releases the file
// lock.
func (m *Manager) Close() error {
	var commitErr error
	if m.opts.Persist {
		commitErr = m.CommitAll()
	}
	m.mu.Lock()
	if m.timer != nil {
		m.timer.Stop()
	}
	lock := m.lock
	m.mu.Unlock()
	if lock != nil {
		if err := lock.Unlock(); err != nil {
			return fmt.Errorf("releasing container lock: %w", err)
		}
	}
	return commitErr
}
