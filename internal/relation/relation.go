// Package relation implements the cross-collection join evaluator and
// delete-policy enforcement described in spec.md §4.I: inner/left/right
// join, getRelated, integrity validation, and cascade/restrict/set-null
// handling ahead of a triggering delete.
package relation

import (
	"sort"

	"github.com/modb/modb/internal/collection"
	"github.com/modb/modb/internal/modberrors"
	"github.com/modb/modb/internal/schema"
)

// JoinKind selects which side's unmatched rows survive a join.
type JoinKind int

const (
	InnerJoin JoinKind = iota
	LeftJoin
	RightJoin
)

// Table holds every registered relation and a lookup of collections by
// name, used to resolve relation.SourceCollection/TargetCollection at
// evaluation time.
type Table struct {
	collections map[string]*collection.Collection
	relations   map[string]schema.RelationSpec
}

// NewTable returns an empty relation table over the given named
// collections.
func NewTable(collections map[string]*collection.Collection) *Table {
	return &Table{
		collections: collections,
		relations:   make(map[string]schema.RelationSpec),
	}
}

// Register adds a relation to the table.
func (t *Table) Register(spec schema.RelationSpec) {
	t.relations[spec.Name] = spec
}

// Names returns every registered relation name in sorted order.
func (t *Table) Names() []string {
	names := make([]string, 0, len(t.relations))
	for name := range t.relations {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Joined is one matched (or partially matched, for outer joins) pair.
type Joined struct {
	Source map[string]any // nil for a right join's unmatched target row
	Target map[string]any // nil for a left join's unmatched source row
}

// Join evaluates relationName over its two collections.
func (t *Table) Join(relationName string, kind JoinKind) ([]Joined, error) {
	spec, ok := t.relations[relationName]
	if !ok {
		return nil, &modberrors.MissingIndex{Field: relationName}
	}
	source, ok := t.collections[spec.SourceCollection]
	if !ok {
		return nil, &modberrors.NotFound{ID: spec.SourceCollection}
	}
	target, ok := t.collections[spec.TargetCollection]
	if !ok {
		return nil, &modberrors.NotFound{ID: spec.TargetCollection}
	}

	sourceRecs := source.AllSorted()
	targetByID := make(map[string]map[string]any)
	for _, rec := range target.AllSorted() {
		targetByID[rec["id"].(string)] = rec
	}
	matchedTargets := make(map[string]bool)

	var out []Joined
	for _, srec := range sourceRecs {
		fv, _ := srec[spec.SourceField].(string)
		trec, found := targetByID[fv]
		if found {
			matchedTargets[fv] = true
			out = append(out, Joined{Source: srec, Target: trec})
		} else if kind == LeftJoin {
			out = append(out, Joined{Source: srec, Target: nil})
		}
	}
	if kind == RightJoin {
		for _, trec := range target.AllSorted() {
			id := trec["id"].(string)
			if !matchedTargets[id] {
				out = append(out, Joined{Source: nil, Target: trec})
			}
		}
	}
	return out, nil
}

// GetRelated returns every target-collection record related to sourceID
// via relationName.
func (t *Table) GetRelated(relationName, sourceID string) ([]map[string]any, error) {
	spec, ok := t.relations[relationName]
	if !ok {
		return nil, &modberrors.MissingIndex{Field: relationName}
	}
	source, ok := t.collections[spec.SourceCollection]
	if !ok {
		return nil, &modberrors.NotFound{ID: spec.SourceCollection}
	}
	target, ok := t.collections[spec.TargetCollection]
	if !ok {
		return nil, &modberrors.NotFound{ID: spec.TargetCollection}
	}

	srec, err := source.Get(sourceID)
	if err != nil {
		return nil, err
	}
	fv, _ := srec[spec.SourceField].(string)
	if fv == "" {
		return nil, nil
	}

	trec, err := target.Get(fv)
	if err != nil {
		return nil, nil
	}
	return []map[string]any{trec}, nil
}

// IntegrityReport is the result of ValidateIntegrity: every orphaned
// foreign-key reference (a source record whose relation field points at a
// target id that no longer exists) across every registered relation, plus
// the "collection.field" names of relation source fields that have no
// backing index (making future integrity checks and cascades an O(n)
// scan).
type IntegrityReport struct {
	OrphanCount      int
	Orphans          []OrphanRef
	UnindexedFields  []string
}

// OrphanRef names one dangling reference.
type OrphanRef struct {
	Relation string
	SourceID string
	TargetID string
}

// ValidateIntegrity walks every relation and every source record.
func (t *Table) ValidateIntegrity() IntegrityReport {
	var report IntegrityReport
	for _, name := range t.Names() {
		spec := t.relations[name]
		source, ok := t.collections[spec.SourceCollection]
		if !ok {
			continue
		}
		target, ok := t.collections[spec.TargetCollection]
		if !ok {
			continue
		}
		if !source.HasIndexOn(spec.SourceField) {
			report.UnindexedFields = append(report.UnindexedFields, spec.SourceCollection+"."+spec.SourceField)
		}
		for _, srec := range source.AllSorted() {
			fv, ok := srec[spec.SourceField].(string)
			if !ok || fv == "" {
				continue
			}
			if _, err := target.Get(fv); err != nil {
				report.OrphanCount++
				report.Orphans = append(report.Orphans, OrphanRef{
					Relation: name,
					SourceID: srec["id"].(string),
					TargetID: fv,
				})
			}
		}
	}
	return report
}

// HandleDelete applies every registered relation's delete policy to the
// dependents of (collectionName, id), BEFORE the triggering delete
// executes (spec.md §4.I). It returns an error if any relation uses
// Restrict and has at least one dependent.
func (t *Table) HandleDelete(collectionName, id string) error {
	for _, name := range t.Names() {
		spec := t.relations[name]
		if spec.TargetCollection != collectionName {
			continue
		}
		source, ok := t.collections[spec.SourceCollection]
		if !ok {
			continue
		}
		dependents := source.FindByField(spec.SourceField, id)
		if len(dependents) == 0 {
			continue
		}
		switch spec.OnDelete {
		case schema.Restrict:
			return &modberrors.IntegrityError{Count: len(dependents)}
		case schema.Cascade:
			for _, dep := range dependents {
				depID := dep["id"].(string)
				if err := source.Delete(depID, nil); err != nil {
					return err
				}
			}
		case schema.SetNull:
			for _, dep := range dependents {
				depID := dep["id"].(string)
				if _, err := source.Update(depID, map[string]any{spec.SourceField: nil}); err != nil {
					return err
				}
			}
		}
	}
	return nil
}
