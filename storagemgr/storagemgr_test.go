package storagemgr

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/modb/modb/internal/config"
	"github.com/modb/modb/internal/container"
	"github.com/modb/modb/internal/schema"
)

func usersSchema() map[string]schema.Schema {
	return map[string]schema.Schema{
		"users": {
			"email": schema.Field{Kind: schema.KindText, Unique: true, Required: true},
			"age":   schema.Field{Kind: schema.KindReal, Indexed: true},
		},
	}
}

func TestOpenWithoutPersistNeverTouchesDisk(t *testing.T) {
	m, err := Open(usersSchema(), nil, config.Options{Persist: false}, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	users, err := m.Collection("users")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := users.Insert(map[string]any{"email": "a@example.com"}); err != nil {
		t.Fatal(err)
	}
	if err := m.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestCommitAndReopenRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "database.mdb")
	opts := config.Options{Persist: true, AutoCommit: false, FilePath: path}

	m, err := Open(usersSchema(), nil, opts, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	users, _ := m.Collection("users")
	if _, err := users.Insert(map[string]any{"email": "a@example.com", "age": 30.0}); err != nil {
		t.Fatal(err)
	}
	if err := m.CommitAll(); err != nil {
		t.Fatalf("CommitAll: %v", err)
	}
	if err := m.Close(); err != nil {
		t.Fatal(err)
	}

	m2, err := Open(usersSchema(), nil, opts, nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer m2.Close()
	users2, _ := m2.Collection("users")
	found := users2.FindByField("email", "a@example.com")
	if len(found) != 1 {
		t.Fatalf("expected 1 record after reopen, got %d", len(found))
	}
}

func TestAutoCommitFiresAfterQuietWindow(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "database.mdb")
	opts := config.Options{Persist: true, AutoCommit: true, FilePath: path, AutoCommitIntervalMS: 20}

	m, err := Open(usersSchema(), nil, opts, nil)
	if err != nil {
		t.Fatal(err)
	}

	users, _ := m.Collection("users")
	if _, err := users.Insert(map[string]any{"email": "a@example.com"}); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if payloads, err := container.Read(path); err == nil {
			for _, p := range payloads {
				if p.Name == "users" && len(p.Records) == 1 {
					m.Close()
					return
				}
			}
		}
		time.Sleep(10 * time.Millisecond)
	}
	m.Close()
	t.Fatalf("expected auto-commit to persist the insert within the deadline")
}

func TestHealthReportsCollectionCounts(t *testing.T) {
	m, err := Open(usersSchema(), nil, config.Options{Persist: false}, nil)
	if err != nil {
		t.Fatal(err)
	}
	users, _ := m.Collection("users")
	users.Insert(map[string]any{"email": "a@example.com"})
	users.Insert(map[string]any{"email": "b@example.com"})

	h := m.Health()
	if h.Collections["users"] != 2 {
		t.Fatalf("expected 2 users in health report, got %d", h.Collections["users"])
	}
}

func TestCollectionMissingReturnsNotFound(t *testing.T) {
	m, err := Open(usersSchema(), nil, config.Options{Persist: false}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := m.Collection("nope"); err == nil {
		t.Fatalf("expected NotFound for unregistered collection")
	}
}
