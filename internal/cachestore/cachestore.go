// Package cachestore implements versioned, named key-to-response caches on
// the local filesystem.
//
// A [Store] manages independent named caches under one root directory. Each
// cache maps request keys to stored responses (status, headers, body). Cache
// names carry a version tag (for example "placedb-v3"); rotating the version
// and deleting stale names is how callers evict a whole prior generation.
//
// Entries are written as a body file plus a JSON metadata sidecar, through a
// temp file and rename so a crash never leaves a half-written entry visible.
package cachestore

import (
	"crypto/sha256"
	"encoding/base32"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// ErrUnavailable indicates the cache root is missing or unwritable.
var ErrUnavailable = errors.New("cache storage unavailable")

// base32Enc uses base32 "Extended Hex" alphabet (0-9A-V) which is ASCII-sorted
// and case-insensitive safe for filesystems.
var base32Enc = base32.HexEncoding.WithPadding(base32.NoPadding)

// Entry is one cached response.
type Entry struct {
	Status int
	Header http.Header
	Body   []byte
}

// entryMeta is the JSON sidecar persisted next to each body file.
type entryMeta struct {
	Key    string      `json:"key"`
	Status int         `json:"status"`
	Header http.Header `json:"header,omitempty"`
}

// Store manages named caches under a root directory.
type Store struct {
	root string
}

// New creates a Store rooted at dir, creating it if needed.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return &Store{root: dir}, nil
}

// Open returns the named cache, creating its directory on first use.
func (s *Store) Open(name string) (*Cache, error) {
	if name == "" || strings.ContainsAny(name, "/\\") {
		return nil, fmt.Errorf("invalid cache name %q", name)
	}
	dir := filepath.Join(s.root, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return &Cache{name: name, dir: dir}, nil
}

// Names lists all existing cache names.
func (s *Store) Names() ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

// Delete removes the named cache and everything in it. Deleting a missing
// cache is a no-op.
func (s *Store) Delete(name string) error {
	if name == "" || strings.ContainsAny(name, "/\\") {
		return fmt.Errorf("invalid cache name %q", name)
	}
	if err := os.RemoveAll(filepath.Join(s.root, name)); err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return nil
}

// Cache is one named key-to-response cache.
type Cache struct {
	name string
	dir  string
	mu   sync.RWMutex
}

// Name returns the cache's name, version tag included.
func (c *Cache) Name() string {
	return c.name
}

// fileBase returns the filename stem for a key.
func fileBase(key string) string {
	sum := sha256.Sum256([]byte(key))
	return base32Enc.EncodeToString(sum[:])
}

// Put stores the entry under key, replacing any previous entry.
func (c *Cache) Put(key string, e *Entry) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	base := fileBase(key)
	meta, err := json.Marshal(entryMeta{Key: key, Status: e.Status, Header: e.Header})
	if err != nil {
		return fmt.Errorf("failed to marshal entry metadata: %w", err)
	}
	if err := writeAtomic(filepath.Join(c.dir, base+".body"), e.Body); err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	if err := writeAtomic(filepath.Join(c.dir, base+".json"), meta); err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return nil
}

// Match returns the entry stored under key, or nil when there is none.
// An error is only returned for real I/O failures, never for a miss.
func (c *Cache) Match(key string) (*Entry, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.readEntry(fileBase(key))
}

// MatchIgnoringQuery returns the first entry whose key equals the given key
// when both are stripped of any query string, or nil when there is none.
// This is a scan over the cache's metadata files.
func (c *Cache) MatchIgnoringQuery(key string) (*Entry, error) {
	want := stripQuery(key)

	c.mu.RLock()
	defer c.mu.RUnlock()
	files, err := os.ReadDir(c.dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	for _, f := range files {
		name := f.Name()
		if !strings.HasSuffix(name, ".json") {
			continue
		}
		meta, err := c.readMeta(strings.TrimSuffix(name, ".json"))
		if err != nil || meta == nil {
			continue
		}
		if stripQuery(meta.Key) == want {
			return c.readEntry(strings.TrimSuffix(name, ".json"))
		}
	}
	return nil, nil
}

// Delete removes the entry stored under key. Missing keys are a no-op.
func (c *Cache) Delete(key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	base := fileBase(key)
	var errs []error
	for _, suffix := range []string{".json", ".body"} {
		if err := os.Remove(filepath.Join(c.dir, base+suffix)); err != nil && !os.IsNotExist(err) {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return nil
}

// Keys lists all keys with an entry in the cache.
func (c *Cache) Keys() ([]string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	files, err := os.ReadDir(c.dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	var keys []string
	for _, f := range files {
		name := f.Name()
		if !strings.HasSuffix(name, ".json") {
			continue
		}
		meta, err := c.readMeta(strings.TrimSuffix(name, ".json"))
		if err != nil || meta == nil {
			continue
		}
		keys = append(keys, meta.Key)
	}
	return keys, nil
}

func (c *Cache) readMeta(base string) (*entryMeta, error) {
	data, err := os.ReadFile(filepath.Join(c.dir, base+".json"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var meta entryMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

func (c *Cache) readEntry(base string) (*Entry, error) {
	meta, err := c.readMeta(base)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	if meta == nil {
		return nil, nil
	}
	body, err := os.ReadFile(filepath.Join(c.dir, base+".body"))
	if err != nil {
		if os.IsNotExist(err) {
			// Sidecar without body: treat as a miss, the entry is torn.
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return &Entry{Status: meta.Status, Header: meta.Header, Body: body}, nil
}

// writeAtomic writes data to path via a temp file and rename.
func writeAtomic(path string, data []byte) error {
	f, err := os.CreateTemp(filepath.Dir(path), ".entry-*.tmp")
	if err != nil {
		return err
	}
	tmp := f.Name()
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}

func stripQuery(key string) string {
	if i := strings.IndexByte(key, '?'); i >= 0 {
		return key[:i]
	}
	return key
}
