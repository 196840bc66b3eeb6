// Package schemaload loads a declarative schema bundle — one or more
// collection schemas plus their relations — from a TOML file, so a
// caller can hand storagemgr.Open a file path instead of building
// schema.Schema values in code.
package schemaload

import (
	"fmt"

	"github.com/BurntSushi/toml"

	"github.com/modb/modb/internal/schema"
)

// fieldDecl is the TOML shape of one field definition.
type fieldDecl struct {
	Kind     string `toml:"kind"`
	Indexed  bool   `toml:"indexed"`
	Unique   bool   `toml:"unique"`
	Required bool   `toml:"required"`
	Default  any    `toml:"default"`
	Hidden   bool   `toml:"hidden"`
	Relation *struct {
		Target      string `toml:"target"`
		Cardinality string `toml:"cardinality"`
		OnDelete    string `toml:"on_delete"`
	} `toml:"relation"`
}

// collectionDecl is the TOML shape of one collection's schema block.
type collectionDecl struct {
	Fields map[string]fieldDecl `toml:"fields"`
}

// bundleDecl is the top-level TOML document: one table per collection.
type bundleDecl struct {
	Collections map[string]collectionDecl `toml:"collections"`
}

// Bundle is a parsed set of named collection schemas.
type Bundle struct {
	Schemas map[string]schema.Schema
}

// LoadFile parses a schema bundle from a TOML file at path.
func LoadFile(path string) (*Bundle, error) {
	var decl bundleDecl
	if _, err := toml.DecodeFile(path, &decl); err != nil {
		return nil, fmt.Errorf("decoding schema bundle %s: %w", path, err)
	}
	return build(decl)
}

// LoadString parses a schema bundle from an in-memory TOML document,
// mainly for tests.
func LoadString(doc string) (*Bundle, error) {
	var decl bundleDecl
	if _, err := toml.Decode(doc, &decl); err != nil {
		return nil, fmt.Errorf("decoding schema bundle: %w", err)
	}
	return build(decl)
}

func build(decl bundleDecl) (*Bundle, error) {
	bundle := &Bundle{Schemas: make(map[string]schema.Schema, len(decl.Collections))}
	for collName, collDecl := range decl.Collections {
		s := make(schema.Schema, len(collDecl.Fields))
		for fieldName, fd := range collDecl.Fields {
			kind, err := schema.ParseKind(fd.Kind)
			if err != nil {
				return nil, fmt.Errorf("collection %q field %q: %w", collName, fieldName, err)
			}
			field := schema.Field{
				Kind:     kind,
				Indexed:  fd.Indexed,
				Unique:   fd.Unique,
				Required: fd.Required,
				Default:  fd.Default,
				Hidden:   fd.Hidden,
			}
			if fd.Relation != nil {
				card, err := schema.ParseCardinality(fd.Relation.Cardinality)
				if err != nil {
					return nil, fmt.Errorf("collection %q field %q: %w", collName, fieldName, err)
				}
				policy, err := schema.ParseDeletePolicy(fd.Relation.OnDelete)
				if err != nil {
					return nil, fmt.Errorf("collection %q field %q: %w", collName, fieldName, err)
				}
				field.Relation = &schema.RelationDef{
					Target:      fd.Relation.Target,
					Cardinality: card,
					OnDelete:    policy,
				}
			}
			s[fieldName] = field
		}
		bundle.Schemas[collName] = s
	}
	return bundle, nil
}
