package modberrors

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorsWrapAndUnwrap(t *testing.T) {
	inner := errors.New("disk full")
	wrapped := fmt.Errorf("commit failed: %w", &IOError{Op: "write", Err: inner})

	var ioErr *IOError
	if !errors.As(wrapped, &ioErr) {
		t.Fatalf("expected errors.As to find *IOError")
	}
	if !errors.Is(wrapped, inner) {
		t.Fatalf("expected errors.Is to reach the inner cause through IOError.Unwrap")
	}
}

func TestErrorMessagesNameTheirFields(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{&SchemaError{Field: "email", Reason: "required field is missing"}, "email"},
		{&UniqueViolation{Index: "email_idx", Value: "a@example.com"}, "email_idx"},
		{&MissingIndex{Field: "age"}, "age"},
		{&NotFound{ID: "rec1"}, "rec1"},
		{&FormatError{Reason: "bad magic"}, "bad magic"},
		{&IntegrityError{Count: 3}, "3"},
	}
	for _, c := range cases {
		if msg := c.err.Error(); !contains(msg, c.want) {
			t.Errorf("expected error message %q to mention %q", msg, c.want)
		}
	}
}

func contains(s, substr string) bool {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}
