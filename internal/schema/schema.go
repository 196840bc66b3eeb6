// Package schema defines field and collection schema types, validates
// candidate records against them, and derives the indexes and relations a
// schema implies (§4.D).
package schema

import (
	"fmt"
	"math"
	"time"

	"github.com/modb/modb/internal/modberrors"
)

// Kind is a field's closed tagged-union type.
type Kind int

const (
	KindText Kind = iota
	KindReal
	KindBoolean
	KindInstant
)

func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindReal:
		return "real"
	case KindBoolean:
		return "boolean"
	case KindInstant:
		return "instant"
	default:
		return "unknown"
	}
}

// ParseKind parses a lowercase kind name, as used by schema bundle files.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "text":
		return KindText, nil
	case "real":
		return KindReal, nil
	case "boolean":
		return KindBoolean, nil
	case "instant":
		return KindInstant, nil
	default:
		return 0, fmt.Errorf("unknown field kind %q", s)
	}
}

// Cardinality is the relation multiplicity tag.
type Cardinality string

const (
	OneToOne   Cardinality = "one-to-one"
	OneToMany  Cardinality = "one-to-many"
	ManyToOne  Cardinality = "many-to-one"
	ManyToMany Cardinality = "many-to-many"
)

// ParseCardinality parses a relation cardinality tag.
func ParseCardinality(s string) (Cardinality, error) {
	switch Cardinality(s) {
	case OneToOne, OneToMany, ManyToOne, ManyToMany:
		return Cardinality(s), nil
	default:
		return "", fmt.Errorf("unknown cardinality %q", s)
	}
}

// DeletePolicy is the relation delete policy tag.
type DeletePolicy string

const (
	Cascade  DeletePolicy = "cascade"
	SetNull  DeletePolicy = "set-null"
	Restrict DeletePolicy = "restrict"
)

// ParseDeletePolicy parses a relation delete policy tag.
func ParseDeletePolicy(s string) (DeletePolicy, error) {
	switch DeletePolicy(s) {
	case Cascade, SetNull, Restrict:
		return DeletePolicy(s), nil
	default:
		return "", fmt.Errorf("unknown delete policy %q", s)
	}
}

// RelationDef is a field's outgoing relation declaration.
type RelationDef struct {
	Target      string
	Cardinality Cardinality
	OnDelete    DeletePolicy
}

// Field is a single field definition (§3).
type Field struct {
	Kind     Kind
	Indexed  bool
	Unique   bool
	Required bool
	Default  any
	Hidden   bool
	Relation *RelationDef
}

// Schema maps field name to field definition. Insertion order is
// irrelevant (§3); every record additionally carries an implicit "id"
// field of kind text that is never part of this map.
type Schema map[string]Field

// IndexSpec describes one index to create, derived from a schema or
// supplied by a caller at runtime.
type IndexSpec struct {
	Name   string
	Field  string
	Unique bool
}

// RelationSpec describes one outgoing relation, derived from a schema or
// supplied directly to a storage manager.
type RelationSpec struct {
	Name             string
	SourceCollection string
	TargetCollection string
	SourceField      string
	TargetField      string
	Cardinality      Cardinality
	OnDelete         DeletePolicy
}

// DeriveIndexes returns the indexes a schema implies: one per field marked
// Indexed or Unique, named "<field>_idx".
func (s Schema) DeriveIndexes() []IndexSpec {
	var specs []IndexSpec
	for name, f := range s {
		if f.Indexed || f.Unique {
			specs = append(specs, IndexSpec{
				Name:   name + "_idx",
				Field:  name,
				Unique: f.Unique,
			})
		}
	}
	return specs
}

// DeriveRelations returns the outgoing relations a schema implies for a
// collection named collectionName.
func (s Schema) DeriveRelations(collectionName string) []RelationSpec {
	var specs []RelationSpec
	for fieldName, f := range s {
		if f.Relation == nil {
			continue
		}
		specs = append(specs, RelationSpec{
			Name:             fmt.Sprintf("%s_%s_%s", collectionName, fieldName, f.Relation.Target),
			SourceCollection: collectionName,
			TargetCollection: f.Relation.Target,
			SourceField:      fieldName,
			TargetField:      "id",
			Cardinality:      f.Relation.Cardinality,
			OnDelete:         f.Relation.OnDelete,
		})
	}
	return specs
}

// ApplyDefaults returns a copy of value with any missing optional field
// filled in from its schema default, leaving required-but-absent fields
// untouched (Validate reports those).
func (s Schema) ApplyDefaults(value map[string]any) map[string]any {
	out := make(map[string]any, len(value))
	for k, v := range value {
		out[k] = v
	}
	for name, f := range s {
		if _, present := out[name]; !present && f.Default != nil {
			out[name] = f.Default
		}
	}
	return out
}

// Validate checks a candidate record against the schema: required fields
// must be present and non-null, every present value must match its
// field's kind, and fields not declared by the schema are rejected. The
// implicit "id" field is not part of the schema and is not checked here.
func (s Schema) Validate(value map[string]any) error {
	for name, v := range value {
		if name == "id" {
			continue
		}
		f, ok := s[name]
		if !ok {
			return &modberrors.SchemaError{Field: name, Reason: "field not declared by schema"}
		}
		if v == nil {
			continue
		}
		if !kindMatches(f.Kind, v) {
			return &modberrors.SchemaError{Field: name, Reason: fmt.Sprintf("value does not match declared kind %s", f.Kind)}
		}
	}
	for name, f := range s {
		if !f.Required {
			continue
		}
		v, present := value[name]
		if !present || v == nil {
			return &modberrors.SchemaError{Field: name, Reason: "required field is missing"}
		}
	}
	return nil
}

// Comparator returns an ordering function over values of kind k, suitable
// for use as a btree.OrderedMap/index.Index less function. Values are
// normalized to float64/string/bool/time.Time by kindMatches's accepted
// representations.
func Comparator(k Kind) func(a, b any) int {
	switch k {
	case KindText:
		return func(a, b any) int {
			as, bs := a.(string), b.(string)
			switch {
			case as < bs:
				return -1
			case as > bs:
				return 1
			default:
				return 0
			}
		}
	case KindReal:
		return func(a, b any) int {
			af, bf := toFloat(a), toFloat(b)
			switch {
			case af < bf:
				return -1
			case af > bf:
				return 1
			default:
				return 0
			}
		}
	case KindBoolean:
		return func(a, b any) int {
			ab, bb := a.(bool), b.(bool)
			if ab == bb {
				return 0
			}
			if !ab && bb {
				return -1
			}
			return 1
		}
	case KindInstant:
		return func(a, b any) int {
			at, bt := a.(time.Time), b.(time.Time)
			switch {
			case at.Before(bt):
				return -1
			case at.After(bt):
				return 1
			default:
				return 0
			}
		}
	default:
		return func(a, b any) int { return 0 }
	}
}

// ValuesEqual reports whether two field values of the same declared kind
// are equal, normalizing numeric representations the way Comparator
// does.
func ValuesEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	case time.Time:
		bv, ok := b.(time.Time)
		return ok && av.Equal(bv)
	default:
		return toFloat(a) == toFloat(b)
	}
}

func toFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int32:
		return float64(n)
	case int64:
		return float64(n)
	default:
		return 0
	}
}

func kindMatches(k Kind, v any) bool {
	switch k {
	case KindText:
		_, ok := v.(string)
		return ok
	case KindReal:
		switch n := v.(type) {
		case float64:
			return !math.IsNaN(n) || true // finite or non-finite double are both accepted (§3)
		case float32:
			return true
		case int, int32, int64:
			return true
		default:
			return false
		}
	case KindBoolean:
		_, ok := v.(bool)
		return ok
	case KindInstant:
		_, ok := v.(time.Time)
		return ok
	default:
		return false
	}
}
