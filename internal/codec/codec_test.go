package codec

import (
	"bytes"
	"testing"
	"time"

	"github.com/modb/modb/internal/schema"
)

func roundTripValue(t *testing.T, v any) any {
	t.Helper()
	var buf bytes.Buffer
	if err := EncodeValue(&buf, v); err != nil {
		t.Fatalf("EncodeValue(%v): %v", v, err)
	}
	got, err := DecodeValue(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("DecodeValue: %v", err)
	}
	return got
}

func TestValueRoundTrip(t *testing.T) {
	if got := roundTripValue(t, "hello"); got != "hello" {
		t.Fatalf("expected hello, got %v", got)
	}
	if got := roundTripValue(t, true); got != true {
		t.Fatalf("expected true, got %v", got)
	}
	if got := roundTripValue(t, 3.5); got != 3.5 {
		t.Fatalf("expected 3.5, got %v", got)
	}
	if got := roundTripValue(t, nil); got != nil {
		t.Fatalf("expected nil, got %v", got)
	}
	now := time.UnixMilli(1234567890).UTC()
	got := roundTripValue(t, now)
	gotTime, ok := got.(time.Time)
	if !ok || !gotTime.Equal(now) {
		t.Fatalf("expected %v, got %v", now, got)
	}
}

func TestRecordRoundTrip(t *testing.T) {
	value := map[string]any{
		"name": "ada",
		"age":  36.0,
		"active": true,
	}
	var buf bytes.Buffer
	if err := EncodeRecord(&buf, "rec1", value); err != nil {
		t.Fatalf("EncodeRecord: %v", err)
	}
	id, got, err := DecodeRecord(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("DecodeRecord: %v", err)
	}
	if id != "rec1" {
		t.Fatalf("expected id rec1, got %q", id)
	}
	if len(got) != len(value) {
		t.Fatalf("expected %d fields, got %d", len(value), len(got))
	}
	for k, v := range value {
		if got[k] != v {
			t.Fatalf("field %q: expected %v, got %v", k, v, got[k])
		}
	}
}

func TestRecordEncodingIsDeterministic(t *testing.T) {
	value := map[string]any{"b": "2", "a": "1", "c": "3"}
	var buf1, buf2 bytes.Buffer
	if err := EncodeRecord(&buf1, "id", value); err != nil {
		t.Fatal(err)
	}
	if err := EncodeRecord(&buf2, "id", value); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(buf1.Bytes(), buf2.Bytes()) {
		t.Fatalf("expected deterministic encoding regardless of map iteration order")
	}
}

func TestSchemaRoundTrip(t *testing.T) {
	s := schema.Schema{
		"email": schema.Field{Kind: schema.KindText, Unique: true, Required: true},
		"age":   schema.Field{Kind: schema.KindReal, Indexed: true},
	}
	var buf bytes.Buffer
	if err := EncodeSchema(&buf, s); err != nil {
		t.Fatalf("EncodeSchema: %v", err)
	}
	got, err := DecodeSchema(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("DecodeSchema: %v", err)
	}
	if len(got) != len(s) {
		t.Fatalf("expected %d fields, got %d", len(s), len(got))
	}
	if got["email"].Kind != schema.KindText || !got["email"].Unique || !got["email"].Required {
		t.Fatalf("unexpected email field: %+v", got["email"])
	}
	if got["age"].Kind != schema.KindReal || !got["age"].Indexed {
		t.Fatalf("unexpected age field: %+v", got["age"])
	}
}

func TestDecodeValueRejectsUnknownTag(t *testing.T) {
	r := bytes.NewReader([]byte{99})
	if _, err := DecodeValue(r); err == nil {
		t.Fatalf("expected error for unknown tag")
	}
}

func TestDecodeValueRejectsTruncatedInput(t *testing.T) {
	r := bytes.NewReader([]byte{})
	if _, err := DecodeValue(r); err == nil {
		t.Fatalf("expected error for empty input")
	}
}
