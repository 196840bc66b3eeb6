package collection

import (
	"testing"

	"github.com/modb/modb/internal/schema"
)

func userSchema() schema.Schema {
	return schema.Schema{
		"email": schema.Field{Kind: schema.KindText, Unique: true, Required: true},
		"age":   schema.Field{Kind: schema.KindReal, Indexed: true},
	}
}

func TestInsertAssignsIDAndValidates(t *testing.T) {
	c := New("users", userSchema(), nil)
	rec, err := c.Insert(map[string]any{"email": "a@example.com", "age": 30.0})
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if rec["id"] == nil || rec["id"] == "" {
		t.Fatalf("expected assigned id, got %+v", rec)
	}
	if _, err := c.Insert(map[string]any{"age": 30.0}); err == nil {
		t.Fatalf("expected SchemaError for missing required email")
	}
}

func TestInsertEnforcesUniqueIndex(t *testing.T) {
	c := New("users", userSchema(), nil)
	if _, err := c.Insert(map[string]any{"email": "a@example.com"}); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Insert(map[string]any{"email": "a@example.com"}); err == nil {
		t.Fatalf("expected UniqueViolation on duplicate email")
	}
}

func TestGetReturnsIndependentSnapshot(t *testing.T) {
	c := New("users", userSchema(), nil)
	rec, err := c.Insert(map[string]any{"email": "a@example.com"})
	if err != nil {
		t.Fatal(err)
	}
	id := rec["id"].(string)

	view, err := c.Get(id)
	if err != nil {
		t.Fatal(err)
	}
	view["email"] = "mutated@example.com"

	view2, err := c.Get(id)
	if err != nil {
		t.Fatal(err)
	}
	if view2["email"] != "a@example.com" {
		t.Fatalf("expected stored record unaffected by caller mutation, got %v", view2["email"])
	}
}

func TestGetMissingReturnsNotFound(t *testing.T) {
	c := New("users", userSchema(), nil)
	if _, err := c.Get("nope"); err == nil {
		t.Fatalf("expected NotFound")
	}
}

func TestUpdatePatchesAndReindexes(t *testing.T) {
	c := New("users", userSchema(), nil)
	rec, _ := c.Insert(map[string]any{"email": "a@example.com", "age": 30.0})
	id := rec["id"].(string)

	updated, err := c.Update(id, map[string]any{"age": 31.0})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated["age"] != 31.0 {
		t.Fatalf("expected age 31, got %v", updated["age"])
	}

	found := c.FindByField("age", 31.0)
	if len(found) != 1 {
		t.Fatalf("expected 1 record at age 31 after update, got %d", len(found))
	}
	found = c.FindByField("age", 30.0)
	if len(found) != 0 {
		t.Fatalf("expected 0 records at stale age 30, got %d", len(found))
	}
}

func TestUpdateRejectsUniqueViolationAndLeavesOriginalIntact(t *testing.T) {
	c := New("users", userSchema(), nil)
	c.Insert(map[string]any{"email": "a@example.com"})
	rec2, _ := c.Insert(map[string]any{"email": "b@example.com"})
	id2 := rec2["id"].(string)

	if _, err := c.Update(id2, map[string]any{"email": "a@example.com"}); err == nil {
		t.Fatalf("expected UniqueViolation")
	}
	current, _ := c.Get(id2)
	if current["email"] != "b@example.com" {
		t.Fatalf("expected unchanged email after failed update, got %v", current["email"])
	}
}

func TestDeleteRemovesFromIndexAndStore(t *testing.T) {
	c := New("users", userSchema(), nil)
	rec, _ := c.Insert(map[string]any{"email": "a@example.com"})
	id := rec["id"].(string)

	if err := c.Delete(id, nil); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Get(id); err == nil {
		t.Fatalf("expected NotFound after delete")
	}
	if found := c.FindByField("email", "a@example.com"); len(found) != 0 {
		t.Fatalf("expected index entry removed, found %v", found)
	}
}

func TestDeletePreDeleteHookCanVeto(t *testing.T) {
	c := New("users", userSchema(), nil)
	rec, _ := c.Insert(map[string]any{"email": "a@example.com"})
	id := rec["id"].(string)

	vetoErr := &testVetoError{}
	if err := c.Delete(id, func(map[string]any) error { return vetoErr }); err != vetoErr {
		t.Fatalf("expected preDelete error to propagate, got %v", err)
	}
	if _, err := c.Get(id); err != nil {
		t.Fatalf("expected record to survive a vetoed delete, got %v", err)
	}
}

type testVetoError struct{}

func (e *testVetoError) Error() string { return "veto" }

func TestFindByRangeRequiresIndex(t *testing.T) {
	c := New("users", userSchema(), nil)
	if _, err := c.FindByRange("name", 0, 10); err == nil {
		t.Fatalf("expected MissingIndex for unindexed field")
	}
	if _, err := c.FindByRange("age", 20.0, 40.0); err != nil {
		t.Fatalf("expected indexed range query to succeed, got %v", err)
	}
}

func TestModificationEventsFire(t *testing.T) {
	c := New("users", userSchema(), nil)
	var kinds []ChangeKind
	c.Subscribe(func(ch Change) { kinds = append(kinds, ch.Kind) })

	rec, _ := c.Insert(map[string]any{"email": "a@example.com"})
	id := rec["id"].(string)
	c.Update(id, map[string]any{"email": "b@example.com"})
	c.Delete(id, nil)

	want := []ChangeKind{Created, Updated, Deleted}
	if len(kinds) != len(want) {
		t.Fatalf("expected %v, got %v", want, kinds)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, kinds)
		}
	}
}

func TestCreateAndDropIndex(t *testing.T) {
	c := New("users", userSchema(), nil)
	c.Insert(map[string]any{"email": "a@example.com"})

	if err := c.CreateIndex("email2_idx", "email", false); err != nil {
		t.Fatalf("CreateIndex: %v", err)
	}
	if err := c.DropIndex("email2_idx"); err != nil {
		t.Fatalf("DropIndex: %v", err)
	}
	if err := c.DropIndex("email2_idx"); err == nil {
		t.Fatalf("expected MissingIndex dropping twice")
	}
}

func TestAllSortedIsAscendingByID(t *testing.T) {
	c := New("users", userSchema(), nil)
	for i := 0; i < 5; i++ {
		c.Insert(map[string]any{"email": string(rune('a'+i)) + "@example.com"})
	}
	all := c.AllSorted()
	for i := 1; i < len(all); i++ {
		if all[i-1]["id"].(string) > all[i]["id"].(string) {
			t.Fatalf("expected ascending id order, got %v then %v", all[i-1]["id"], all[i]["id"])
		}
	}
}
