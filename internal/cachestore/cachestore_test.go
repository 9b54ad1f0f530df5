package cachestore

import (
	"bytes"
	"net/http"
	"slices"
	"testing"
)

func setupStore(t *testing.T) *Store {
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return s
}

func TestPutMatchRoundTrip(t *testing.T) {
	s := setupStore(t)
	c, err := s.Open("app-v1")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	in := &Entry{
		Status: 200,
		Header: http.Header{"Content-Type": []string{"text/css"}},
		Body:   []byte("body { margin: 0 }"),
	}
	if err := c.Put("/css/styles.css", in); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	got, err := c.Match("/css/styles.css")
	if err != nil {
		t.Fatalf("Match failed: %v", err)
	}
	if got == nil {
		t.Fatal("Match returned nil for a stored key")
	}
	if got.Status != 200 || !bytes.Equal(got.Body, in.Body) {
		t.Errorf("entry mismatch: %+v", got)
	}
	if got.Header.Get("Content-Type") != "text/css" {
		t.Errorf("Content-Type = %q", got.Header.Get("Content-Type"))
	}
}

func TestMatchMiss(t *testing.T) {
	s := setupStore(t)
	c, _ := s.Open("app-v1")
	got, err := c.Match("/missing")
	if err != nil {
		t.Fatalf("Match failed: %v", err)
	}
	if got != nil {
		t.Errorf("Match of missing key = %+v, want nil", got)
	}
}

func TestPutReplaces(t *testing.T) {
	s := setupStore(t)
	c, _ := s.Open("app-v1")
	if err := c.Put("/k", &Entry{Status: 200, Body: []byte("old")}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := c.Put("/k", &Entry{Status: 200, Body: []byte("new")}); err != nil {
		t.Fatalf("second Put failed: %v", err)
	}
	got, _ := c.Match("/k")
	if string(got.Body) != "new" {
		t.Errorf("Body = %q, want new", got.Body)
	}
}

func TestMatchIgnoringQuery(t *testing.T) {
	s := setupStore(t)
	c, _ := s.Open("app-v1")
	if err := c.Put("/pages/edit.html?id=3", &Entry{Status: 200, Body: []byte("edit")}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	got, err := c.MatchIgnoringQuery("/pages/edit.html?id=9")
	if err != nil {
		t.Fatalf("MatchIgnoringQuery failed: %v", err)
	}
	if got == nil || string(got.Body) != "edit" {
		t.Fatalf("MatchIgnoringQuery = %+v", got)
	}
	if got, _ := c.MatchIgnoringQuery("/pages/other.html"); got != nil {
		t.Error("MatchIgnoringQuery matched an unrelated path")
	}
}

func TestDeleteIdempotent(t *testing.T) {
	s := setupStore(t)
	c, _ := s.Open("app-v1")
	if err := c.Put("/k", &Entry{Status: 200, Body: []byte("x")}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := c.Delete("/k"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if err := c.Delete("/k"); err != nil {
		t.Fatalf("second Delete failed: %v", err)
	}
	if got, _ := c.Match("/k"); got != nil {
		t.Error("entry still present after Delete")
	}
}

func TestNamesAndDelete(t *testing.T) {
	s := setupStore(t)
	for _, name := range []string{"app-v1", "app-v2", "app-images-v1"} {
		if _, err := s.Open(name); err != nil {
			t.Fatalf("Open(%s) failed: %v", name, err)
		}
	}
	names, err := s.Names()
	if err != nil {
		t.Fatalf("Names failed: %v", err)
	}
	slices.Sort(names)
	want := []string{"app-images-v1", "app-v1", "app-v2"}
	if !slices.Equal(names, want) {
		t.Errorf("Names = %v, want %v", names, want)
	}

	if err := s.Delete("app-v1"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	names, _ = s.Names()
	if slices.Contains(names, "app-v1") {
		t.Error("deleted cache still listed")
	}
	// Deleting a missing cache is a no-op.
	if err := s.Delete("app-v1"); err != nil {
		t.Fatalf("second Delete failed: %v", err)
	}
}

func TestInvalidCacheName(t *testing.T) {
	s := setupStore(t)
	for _, name := range []string{"", "a/b", `a\b`} {
		if _, err := s.Open(name); err == nil {
			t.Errorf("Open(%q) should fail", name)
		}
	}
}

func TestKeys(t *testing.T) {
	s := setupStore(t)
	c, _ := s.Open("app-v1")
	for _, key := range []string{"/a", "/b"} {
		if err := c.Put(key, &Entry{Status: 200, Body: []byte("x")}); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
	}
	keys, err := c.Keys()
	if err != nil {
		t.Fatalf("Keys failed: %v", err)
	}
	slices.Sort(keys)
	if !slices.Equal(keys, []string{"/a", "/b"}) {
		t.Errorf("Keys = %v", keys)
	}
}
