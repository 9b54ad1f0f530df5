// Package jsonldb provides a generic, concurrent-safe, JSONL-backed data store.
//
// The package centers around [Table], a generic container that stores rows in
// a JSONL (JSON Lines) file with full in-memory caching for fast reads.
// Tables are safe for concurrent use by multiple goroutines.
//
// # Concurrency: Pessimistic Locking
//
// Table uses pessimistic locking: [Table.Modify] holds the write lock for the
// entire read-modify-write operation. This guarantees success without retries,
// unlike optimistic CAS which requires retry loops when concurrent writes
// collide. The tradeoff is lower throughput under high contention, but this is
// acceptable for local file storage with low concurrency.
//
// # Secondary Indexes
//
// [UniqueIndex] and [Index] provide O(1) lookups by arbitrary keys, staying
// synchronized with table mutations via [TableObserver].
//
// # File Format
//
// Line 1 is a schema header carrying the format version and the row ID
// high-water mark; subsequent lines are JSON rows. The high-water mark is
// what keeps IDs from being reused after a delete survives a restart.
package jsonldb

import (
	"bufio"
	"encoding/json"
	"fmt"
	"iter"
	"os"
	"path/filepath"
	"sync"
)

// Cloner is implemented by types that can clone themselves.
type Cloner[T any] interface {
	Clone() T
}

// Row is the constraint for types stored in a [Table].
type Row[T any] interface {
	Cloner[T]
	GetID() int64
	SetID(int64)
}

// TableObserver receives notifications for table mutations.
//
// Observers are invoked synchronously while the table's write lock is held,
// so implementations must not call back into the table.
type TableObserver[T any] interface {
	OnAppend(row T)
	OnUpdate(prev, curr T)
	OnDelete(row T)
}

// currentVersion is the current version of the JSONL file format.
const currentVersion = "1.0"

// schemaHeader is the first line of a JSONL data file.
type schemaHeader struct {
	Version string `json:"version"`
	LastID  int64  `json:"lastId"`
}

// Table handles storage and in-memory caching for a single table in JSONL
// format. Row IDs are positive, assigned monotonically, and never reused.
type Table[T Row[T]] struct {
	path string

	mu        sync.RWMutex
	rows      []T
	byID      map[int64]int
	lastID    int64
	observers []TableObserver[T]
}

// NewTable creates a new Table and loads all data from the file.
func NewTable[T Row[T]](path string) (*Table[T], error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create directory for %s: %w", path, err)
	}
	t := &Table[T]{path: path, byID: map[int64]int{}}
	if err := t.load(); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *Table[T]) load() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	f, err := os.Open(t.path)
	if err != nil {
		if os.IsNotExist(err) {
			t.rows = []T{}
			return nil
		}
		return fmt.Errorf("failed to open table file %s: %w", t.path, err)
	}
	defer func() {
		_ = f.Close()
	}()

	var rows []T
	var header schemaHeader
	first := true
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 1024*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		if first {
			first = false
			if err := json.Unmarshal(line, &header); err != nil {
				return fmt.Errorf("failed to unmarshal header in %s: %w", t.path, err)
			}
			if header.Version == "" {
				return fmt.Errorf("missing schema version in %s", t.path)
			}
			continue
		}
		var row T
		if err := json.Unmarshal(line, &row); err != nil {
			return fmt.Errorf("failed to unmarshal row in %s: %w", t.path, err)
		}
		rows = append(rows, row)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read table file %s: %w", t.path, err)
	}

	t.rows = rows
	t.byID = make(map[int64]int, len(rows))
	t.lastID = header.LastID
	for i, row := range rows {
		id := row.GetID()
		t.byID[id] = i
		if id > t.lastID {
			t.lastID = id
		}
	}
	return nil
}

// Len returns the number of rows.
func (t *Table[T]) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.rows)
}

// LastID returns the ID high-water mark.
func (t *Table[T]) LastID() int64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.lastID
}

// AddObserver registers an observer for table mutations.
func (t *Table[T]) AddObserver(o TableObserver[T]) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.observers = append(t.observers, o)
	// Replay existing rows so indexes built after load see them.
	for _, row := range t.rows {
		o.OnAppend(row)
	}
}

// Get returns a clone of the row with the given ID, or false if not found.
func (t *Table[T]) Get(id int64) (T, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	i, ok := t.byID[id]
	if !ok {
		var zero T
		return zero, false
	}
	return t.rows[i].Clone(), true
}

// All returns an iterator over clones of all rows in insertion order.
func (t *Table[T]) All() iter.Seq[T] {
	return func(yield func(T) bool) {
		t.mu.RLock()
		defer t.mu.RUnlock()
		for _, row := range t.rows {
			if !yield(row.Clone()) {
				return
			}
		}
	}
}

// Append adds a new row to the table and persists it.
//
// A zero row ID is replaced with the next ID in sequence. Returns the row's
// ID. Appending a duplicate ID is an error.
func (t *Table[T]) Append(row T) (int64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	id := row.GetID()
	if id == 0 {
		id = t.lastID + 1
		row.SetID(id)
	}
	if _, dup := t.byID[id]; dup {
		return 0, fmt.Errorf("duplicate row ID %d", id)
	}

	data, err := json.Marshal(row)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal row: %w", err)
	}

	if _, err := os.Stat(t.path); os.IsNotExist(err) {
		// First write: the header goes in before any row.
		if err := t.rewriteLocked(nil); err != nil {
			return 0, err
		}
	}
	f, err := os.OpenFile(t.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return 0, fmt.Errorf("failed to open table file for append: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()
	if _, err := f.Write(data); err != nil {
		return 0, fmt.Errorf("failed to write row: %w", err)
	}
	if _, err := f.WriteString("\n"); err != nil {
		return 0, fmt.Errorf("failed to write newline: %w", err)
	}

	t.byID[id] = len(t.rows)
	t.rows = append(t.rows, row)
	if id > t.lastID {
		t.lastID = id
	}
	for _, o := range t.observers {
		o.OnAppend(row)
	}
	return id, nil
}

// Update replaces the row with the same ID and persists the table.
//
// Returns false without writing if no row has the ID.
func (t *Table[T]) Update(row T) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	i, ok := t.byID[row.GetID()]
	if !ok {
		return false, nil
	}
	prev := t.rows[i]
	rows := make([]T, len(t.rows))
	copy(rows, t.rows)
	rows[i] = row
	if err := t.rewriteLocked(rows); err != nil {
		return false, err
	}
	t.rows = rows
	for _, o := range t.observers {
		o.OnUpdate(prev, row)
	}
	return true, nil
}

// Modify applies fn to a clone of the row under the write lock and persists
// the result. The lock is held across the whole read-modify-write, so fn must
// be fast and must not call back into the table.
//
// Returns false if no row has the ID. If fn returns an error the table is
// unchanged.
func (t *Table[T]) Modify(id int64, fn func(row T) error) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	i, ok := t.byID[id]
	if !ok {
		return false, nil
	}
	prev := t.rows[i]
	curr := prev.Clone()
	if err := fn(curr); err != nil {
		return false, err
	}
	curr.SetID(id) // The ID is fixed regardless of what fn did.
	rows := make([]T, len(t.rows))
	copy(rows, t.rows)
	rows[i] = curr
	if err := t.rewriteLocked(rows); err != nil {
		return false, err
	}
	t.rows = rows
	for _, o := range t.observers {
		o.OnUpdate(prev, curr)
	}
	return true, nil
}

// Delete removes the row with the given ID and persists the table.
//
// Returns false without writing if no row has the ID. The ID is not freed
// for reuse.
func (t *Table[T]) Delete(id int64) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	i, ok := t.byID[id]
	if !ok {
		return false, nil
	}
	prev := t.rows[i]
	rows := make([]T, 0, len(t.rows)-1)
	rows = append(rows, t.rows[:i]...)
	rows = append(rows, t.rows[i+1:]...)
	if err := t.rewriteLocked(rows); err != nil {
		return false, err
	}
	t.rows = rows
	delete(t.byID, id)
	for j := i; j < len(t.rows); j++ {
		t.byID[t.rows[j].GetID()] = j
	}
	for _, o := range t.observers {
		o.OnDelete(prev)
	}
	return true, nil
}

// rewriteLocked writes the header and all rows to a temp file and renames it
// over the table file. Caller must hold the write lock.
func (t *Table[T]) rewriteLocked(rows []T) error {
	f, err := os.CreateTemp(filepath.Dir(t.path), ".table-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp table file: %w", err)
	}
	tmp := f.Name()
	writer := bufio.NewWriter(f)

	fail := func(err error) error {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}

	header, err := json.Marshal(schemaHeader{Version: currentVersion, LastID: t.lastID})
	if err != nil {
		return fail(fmt.Errorf("failed to marshal header: %w", err))
	}
	if _, err := writer.Write(header); err != nil {
		return fail(fmt.Errorf("failed to write header: %w", err))
	}
	if err := writer.WriteByte('\n'); err != nil {
		return fail(fmt.Errorf("failed to write newline: %w", err))
	}
	for _, row := range rows {
		data, err := json.Marshal(row)
		if err != nil {
			return fail(fmt.Errorf("failed to marshal row: %w", err))
		}
		if _, err := writer.Write(data); err != nil {
			return fail(fmt.Errorf("failed to write row: %w", err))
		}
		if err := writer.WriteByte('\n'); err != nil {
			return fail(fmt.Errorf("failed to write newline: %w", err))
		}
	}
	if err := writer.Flush(); err != nil {
		return fail(fmt.Errorf("failed to flush writer: %w", err))
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to close temp table file: %w", err)
	}
	if err := os.Rename(tmp, t.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to rename table file: %w", err)
	}
	return nil
}
