package idgen

import (
	"testing"
)

func TestBase62GeneratorLength(t *testing.T) {
	g := NewBase62Generator()
	id := g.Generate()
	if len(id) != 6 {
		t.Fatalf("expected length 6, got %d (%q)", len(id), id)
	}
	for _, r := range id {
		if !containsRune(alphabet, r) {
			t.Fatalf("id %q contains character %q outside the alphabet", id, r)
		}
	}
}

func TestBase62GeneratorCustomLength(t *testing.T) {
	g := &Base62Generator{Length: 12}
	id := g.Generate()
	if len(id) != 12 {
		t.Fatalf("expected length 12, got %d", len(id))
	}
}

func TestBase62GeneratorUniqueness(t *testing.T) {
	g := NewBase62Generator()
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := g.Generate()
		if seen[id] {
			t.Fatalf("collision at iteration %d: %q", i, id)
		}
		seen[id] = true
	}
}

func TestUUIDGenerator(t *testing.T) {
	g := NewUUIDGenerator()
	a := g.Generate()
	b := g.Generate()
	if a == b {
		t.Fatalf("expected distinct UUIDs, got %q twice", a)
	}
	if len(a) != 36 {
		t.Fatalf("expected UUID string length 36, got %d (%q)", len(a), a)
	}
}

func containsRune(s string, r rune) bool {
	for _, c := range s {
		if c == r {
			return true
		}
	}
	return false
}
