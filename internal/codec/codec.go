// Package codec implements the length-prefixed, little-endian binary
// encoding used for scalar values and records on disk (spec.md §6).
package codec

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/modb/modb/internal/modberrors"
	"github.com/modb/modb/internal/schema"
)

// Scalar kind tags, matching schema.Kind's numeric values (spec.md §6).
const (
	tagText     = 0
	tagReal     = 1
	tagBoolean  = 2
	tagInstant  = 3
	tagNull     = 4
)

// EncodeValue writes one tagged scalar value to buf.
func EncodeValue(buf *bytes.Buffer, v any) error {
	if v == nil {
		buf.WriteByte(tagNull)
		return nil
	}
	switch val := v.(type) {
	case string:
		buf.WriteByte(tagText)
		return writeString(buf, val)
	case bool:
		buf.WriteByte(tagBoolean)
		if val {
			buf.WriteByte(1)
		} else {
			buf.WriteByte(0)
		}
		return nil
	case time.Time:
		buf.WriteByte(tagInstant)
		return binary.Write(buf, binary.LittleEndian, val.UnixMilli())
	case float64:
		buf.WriteByte(tagReal)
		return binary.Write(buf, binary.LittleEndian, val)
	case float32:
		buf.WriteByte(tagReal)
		return binary.Write(buf, binary.LittleEndian, float64(val))
	case int:
		buf.WriteByte(tagReal)
		return binary.Write(buf, binary.LittleEndian, float64(val))
	case int64:
		buf.WriteByte(tagReal)
		return binary.Write(buf, binary.LittleEndian, float64(val))
	default:
		return &modberrors.FormatError{Reason: fmt.Sprintf("unencodable value type %T", v)}
	}
}

// DecodeValue reads one tagged scalar value from r.
func DecodeValue(r *bytes.Reader) (any, error) {
	tag, err := r.ReadByte()
	if err != nil {
		return nil, &modberrors.FormatError{Reason: "truncated value tag"}
	}
	switch tag {
	case tagNull:
		return nil, nil
	case tagText:
		return readString(r)
	case tagBoolean:
		b, err := r.ReadByte()
		if err != nil {
			return nil, &modberrors.FormatError{Reason: "truncated boolean value"}
		}
		return b != 0, nil
	case tagInstant:
		var ms int64
		if err := binary.Read(r, binary.LittleEndian, &ms); err != nil {
			return nil, &modberrors.FormatError{Reason: "truncated instant value"}
		}
		return time.UnixMilli(ms).UTC(), nil
	case tagReal:
		var f float64
		if err := binary.Read(r, binary.LittleEndian, &f); err != nil {
			return nil, &modberrors.FormatError{Reason: "truncated real value"}
		}
		return f, nil
	default:
		return nil, &modberrors.FormatError{Reason: fmt.Sprintf("unknown value tag %d", tag)}
	}
}

func writeString(buf *bytes.Buffer, s string) error {
	if err := binary.Write(buf, binary.LittleEndian, uint32(len(s))); err != nil {
		return err
	}
	buf.WriteString(s)
	return nil
}

func readString(r *bytes.Reader) (string, error) {
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return "", &modberrors.FormatError{Reason: "truncated string length"}
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", &modberrors.FormatError{Reason: "truncated string payload"}
	}
	return string(b), nil
}

// EncodeRecord writes a full record — its id followed by every field in
// sorted-by-name order — to buf. Sorted order, rather than schema
// insertion order (which spec.md §3 calls irrelevant), gives a
// deterministic byte layout required for the round-trip property in §8.
func EncodeRecord(buf *bytes.Buffer, id string, value map[string]any) error {
	if err := writeString(buf, id); err != nil {
		return err
	}
	names := make([]string, 0, len(value))
	for name := range value {
		names = append(names, name)
	}
	sort.Strings(names)
	if err := binary.Write(buf, binary.LittleEndian, uint32(len(names))); err != nil {
		return err
	}
	for _, name := range names {
		if err := writeString(buf, name); err != nil {
			return err
		}
		if err := EncodeValue(buf, value[name]); err != nil {
			return err
		}
	}
	return nil
}

// DecodeRecord reads a record written by EncodeRecord.
func DecodeRecord(r *bytes.Reader) (id string, value map[string]any, err error) {
	id, err = readString(r)
	if err != nil {
		return "", nil, err
	}
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return "", nil, &modberrors.FormatError{Reason: "truncated field count"}
	}
	value = make(map[string]any, n)
	for i := uint32(0); i < n; i++ {
		name, err := readString(r)
		if err != nil {
			return "", nil, err
		}
		v, err := DecodeValue(r)
		if err != nil {
			return "", nil, err
		}
		value[name] = v
	}
	return id, value, nil
}

// EncodeSchema writes a collection's field definitions, sorted by field
// name, for the schema block of a collection's payload.
func EncodeSchema(buf *bytes.Buffer, s schema.Schema) error {
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}
	sort.Strings(names)
	if err := binary.Write(buf, binary.LittleEndian, uint32(len(names))); err != nil {
		return err
	}
	for _, name := range names {
		f := s[name]
		if err := writeString(buf, name); err != nil {
			return err
		}
		buf.WriteByte(byte(f.Kind))
		buf.WriteByte(boolByte(f.Indexed))
		buf.WriteByte(boolByte(f.Unique))
		buf.WriteByte(boolByte(f.Required))
	}
	return nil
}

// DecodeSchema reads a schema block written by EncodeSchema. Relations
// and defaults are not part of the on-disk schema block (they are
// supplied at Open time by the caller's in-memory schema registry); this
// reconstructs only what round-trips through the container file.
func DecodeSchema(r *bytes.Reader) (schema.Schema, error) {
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return nil, &modberrors.FormatError{Reason: "truncated schema field count"}
	}
	s := make(schema.Schema, n)
	for i := uint32(0); i < n; i++ {
		name, err := readString(r)
		if err != nil {
			return nil, err
		}
		kindByte, err := r.ReadByte()
		if err != nil {
			return nil, &modberrors.FormatError{Reason: "truncated schema field kind"}
		}
		indexedByte, err := r.ReadByte()
		if err != nil {
			return nil, &modberrors.FormatError{Reason: "truncated schema field indexed flag"}
		}
		uniqueByte, err := r.ReadByte()
		if err != nil {
			return nil, &modberrors.FormatError{Reason: "truncated schema field unique flag"}
		}
		requiredByte, err := r.ReadByte()
		if err != nil {
			return nil, &modberrors.FormatError{Reason: "truncated schema field required flag"}
		}
		s[name] = schema.Field{
			Kind:     schema.Kind(kindByte),
			Indexed:  indexedByte != 0,
			Unique:   uniqueByte != 0,
			Required: requiredByte != 0,
		}
	}
	return s, nil
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}
