package jsonldb

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// testRow is a simple row type for testing.
type testRow struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

func (r *testRow) Clone() *testRow {
	c := *r
	return &c
}

func (r *testRow) GetID() int64 {
	return r.ID
}

func (r *testRow) SetID(id int64) {
	r.ID = id
}

// setupTable creates a table in the test's temp directory.
func setupTable(t *testing.T) (*Table[*testRow], string) {
	path := filepath.Join(t.TempDir(), "test.jsonl")
	table, err := NewTable[*testRow](path)
	if err != nil {
		t.Fatalf("NewTable failed: %v", err)
	}
	return table, path
}

func TestTableAppendAssignsIDs(t *testing.T) {
	table, _ := setupTable(t)

	id1, err := table.Append(&testRow{Name: "a"})
	if err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	id2, err := table.Append(&testRow{Name: "b"})
	if err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if id1 != 1 || id2 != 2 {
		t.Errorf("ids = %d, %d, want 1, 2", id1, id2)
	}
	if table.Len() != 2 {
		t.Errorf("Len() = %d, want 2", table.Len())
	}
}

func TestTableAppendDuplicateID(t *testing.T) {
	table, _ := setupTable(t)
	if _, err := table.Append(&testRow{ID: 7, Name: "a"}); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if _, err := table.Append(&testRow{ID: 7, Name: "b"}); err == nil {
		t.Fatal("Append with duplicate ID should fail")
	}
}

func TestTableGet(t *testing.T) {
	table, _ := setupTable(t)
	id, err := table.Append(&testRow{Name: "a"})
	if err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	row, ok := table.Get(id)
	if !ok {
		t.Fatal("Get returned not found")
	}
	if row.Name != "a" {
		t.Errorf("Name = %q, want %q", row.Name, "a")
	}
	if _, ok := table.Get(999); ok {
		t.Error("Get(999) should return not found")
	}

	// Mutating the returned clone must not affect the table.
	row.Name = "mutated"
	again, _ := table.Get(id)
	if again.Name != "a" {
		t.Errorf("table row mutated through clone: %q", again.Name)
	}
}

func TestTableUpdate(t *testing.T) {
	table, _ := setupTable(t)
	id, err := table.Append(&testRow{Name: "a"})
	if err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	ok, err := table.Update(&testRow{ID: id, Name: "b"})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if !ok {
		t.Fatal("Update returned not found")
	}
	row, _ := table.Get(id)
	if row.Name != "b" {
		t.Errorf("Name = %q, want %q", row.Name, "b")
	}

	ok, err = table.Update(&testRow{ID: 999, Name: "x"})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if ok {
		t.Error("Update of missing row should return false")
	}
}

func TestTableModify(t *testing.T) {
	table, _ := setupTable(t)
	id, err := table.Append(&testRow{Name: "a"})
	if err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	ok, err := table.Modify(id, func(r *testRow) error {
		r.Name = "modified"
		r.ID = 42 // Must be ignored.
		return nil
	})
	if err != nil || !ok {
		t.Fatalf("Modify = %v, %v", ok, err)
	}
	row, found := table.Get(id)
	if !found {
		t.Fatal("row lost its ID after Modify")
	}
	if row.Name != "modified" {
		t.Errorf("Name = %q, want %q", row.Name, "modified")
	}

	wantErr := errors.New("nope")
	if _, err := table.Modify(id, func(r *testRow) error { return wantErr }); !errors.Is(err, wantErr) {
		t.Errorf("Modify error = %v, want %v", err, wantErr)
	}
	row, _ = table.Get(id)
	if row.Name != "modified" {
		t.Error("failed Modify must leave the row unchanged")
	}
}

func TestTableDelete(t *testing.T) {
	table, _ := setupTable(t)
	id, err := table.Append(&testRow{Name: "a"})
	if err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	ok, err := table.Delete(id)
	if err != nil || !ok {
		t.Fatalf("Delete = %v, %v", ok, err)
	}
	if _, found := table.Get(id); found {
		t.Error("row still present after Delete")
	}
	// Second delete is a no-op.
	ok, err = table.Delete(id)
	if err != nil {
		t.Fatalf("second Delete failed: %v", err)
	}
	if ok {
		t.Error("second Delete should report not found")
	}
}

func TestTableIDsNeverReused(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.jsonl")
	table, err := NewTable[*testRow](path)
	if err != nil {
		t.Fatalf("NewTable failed: %v", err)
	}
	id1, _ := table.Append(&testRow{Name: "a"})
	id2, _ := table.Append(&testRow{Name: "b"})
	if _, err := table.Delete(id2); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	// Reload from disk: the high-water mark must survive the delete.
	table, err = NewTable[*testRow](path)
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	id3, err := table.Append(&testRow{Name: "c"})
	if err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if id3 <= id2 {
		t.Errorf("id3 = %d, want > %d (IDs must not be reused)", id3, id2)
	}
	if id3 == id1 {
		t.Errorf("id3 = %d reuses id1", id3)
	}
}

func TestTablePersistence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.jsonl")
	table, err := NewTable[*testRow](path)
	if err != nil {
		t.Fatalf("NewTable failed: %v", err)
	}
	id, err := table.Append(&testRow{Name: "persisted"})
	if err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	table, err = NewTable[*testRow](path)
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	row, ok := table.Get(id)
	if !ok || row.Name != "persisted" {
		t.Fatalf("Get after reload = %+v, %v", row, ok)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("file has %d lines, want header + 1 row", len(lines))
	}
	if !strings.Contains(lines[0], `"version"`) {
		t.Errorf("first line is not a schema header: %s", lines[0])
	}
}

func TestTableCorruptRow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.jsonl")
	content := `{"version":"1.0","lastId":1}` + "\n" + `{"id":1,` + "\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	if _, err := NewTable[*testRow](path); err == nil {
		t.Fatal("NewTable should fail on a corrupt row")
	}
}

func TestTableAll(t *testing.T) {
	table, _ := setupTable(t)
	for _, name := range []string{"a", "b", "c"} {
		if _, err := table.Append(&testRow{Name: name}); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}
	var names []string
	for row := range table.All() {
		names = append(names, row.Name)
	}
	if len(names) != 3 || names[0] != "a" || names[2] != "c" {
		t.Errorf("All() order = %v", names)
	}
}
