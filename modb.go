// Package modb is an embedded, single-process, schema-validated document
// database: named collections of validated records, secondary indexes
// with uniqueness constraints, foreign-key relations with join support,
// and a binary on-disk container — all in one library, no server
// process required.
//
// This file re-exports the handful of types and the one constructor most
// callers need; the engine itself lives in internal/ and storagemgr/.
package modb

import (
	"github.com/modb/modb/internal/collection"
	"github.com/modb/modb/internal/config"
	"github.com/modb/modb/internal/idgen"
	"github.com/modb/modb/internal/modberrors"
	"github.com/modb/modb/internal/relation"
	"github.com/modb/modb/internal/schema"
	"github.com/modb/modb/internal/schemaload"
	"github.com/modb/modb/storagemgr"
)

// Field kinds.
const (
	KindText    = schema.KindText
	KindReal    = schema.KindReal
	KindBoolean = schema.KindBoolean
	KindInstant = schema.KindInstant
)

// Relation cardinalities.
const (
	OneToOne   = schema.OneToOne
	OneToMany  = schema.OneToMany
	ManyToOne  = schema.ManyToOne
	ManyToMany = schema.ManyToMany
)

// Delete policies.
const (
	Cascade  = schema.Cascade
	SetNull  = schema.SetNull
	Restrict = schema.Restrict
)

// Join kinds.
const (
	InnerJoin = relation.InnerJoin
	LeftJoin  = relation.LeftJoin
	RightJoin = relation.RightJoin
)

type (
	// FieldKind is a field's closed tagged-union type (text/real/boolean/instant).
	FieldKind = schema.Kind
	// Cardinality is a relation's multiplicity tag.
	Cardinality = schema.Cardinality
	// DeletePolicy is a relation's on-delete behavior.
	DeletePolicy = schema.DeletePolicy
	// RelationDef is a field's outgoing relation declaration.
	RelationDef = schema.RelationDef
	// Field is a single field definition.
	Field = schema.Field
	// Schema maps field name to field definition for one collection.
	Schema = schema.Schema
	// IndexSpec describes one index to create.
	IndexSpec = schema.IndexSpec
	// RelationSpec describes one outgoing relation between collections.
	RelationSpec = schema.RelationSpec
	// Options controls persistence behavior (see storagemgr.Open).
	Options = config.Options
	// Manager owns every collection in one database plus their
	// relations and (optionally) on-disk persistence.
	Manager = storagemgr.Manager
	// Collection is one schema-validated, indexed set of records.
	Collection = collection.Collection
	// Change describes one insert/update/delete event.
	Change = collection.Change
	// ChangeKind identifies the kind of a Change.
	ChangeKind = collection.ChangeKind
	// JoinKind selects inner/left/right join semantics.
	JoinKind = relation.JoinKind
	// Joined is one matched (or partially matched) join row.
	Joined = relation.Joined
	// IntegrityReport summarizes orphaned relation references.
	IntegrityReport = relation.IntegrityReport
	// Generator produces new record identifiers.
	Generator = idgen.Generator
	// SchemaBundle is a set of named collection schemas loaded from TOML.
	SchemaBundle = schemaload.Bundle
)

// Error types, one concrete struct per spec.md §7 taxonomy entry.
type (
	SchemaError     = modberrors.SchemaError
	UniqueViolation = modberrors.UniqueViolation
	MissingIndex    = modberrors.MissingIndex
	NotFound        = modberrors.NotFound
	FormatError     = modberrors.FormatError
	IntegrityError  = modberrors.IntegrityError
	IOError         = modberrors.IOError
)

// DefaultOptions returns persist=false, autoCommit=true, a 100ms
// auto-commit interval, and an empty FilePath, which Open resolves to
// "./data/database.mdb".
func DefaultOptions() Options {
	return config.DefaultOptions()
}

// LoadOptions reads Options from a YAML file, falling back to
// DefaultOptions() when the file does not exist.
func LoadOptions(path string) (Options, error) {
	return config.Load(path)
}

// LoadSchemaBundle reads a declarative set of collection schemas from a
// TOML file.
func LoadSchemaBundle(path string) (*SchemaBundle, error) {
	return schemaload.LoadFile(path)
}

// Open instantiates one collection per entry in schemas, registers every
// relation in relations (plus any relation declared inline on a field),
// and — if opts.Persist is true — loads existing data from
// opts.FilePath (default "./data/database.mdb") under an exclusive file
// lock held for the life of the returned Manager.
//
// gen overrides the default 6-character Base62Generator used to assign
// new record ids; pass nil to use the default.
func Open(schemas map[string]Schema, relations []RelationSpec, opts Options, gen Generator) (*Manager, error) {
	return storagemgr.Open(schemas, relations, opts, gen)
}
