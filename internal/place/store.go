package place

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/lithammer/fuzzysearch/fuzzy"
	"github.com/maruel/placedb/internal/jsonldb"
)

// Store is the persistent table of Place records.
//
// All operations are serialized by the underlying table; there is no
// multi-operation transaction support, so read-merge-write sequences by
// concurrent callers follow last-write-wins.
type Store struct {
	table   *jsonldb.Table[*Place]
	byName  *jsonldb.Index[string, *Place]
	byStamp *jsonldb.Index[int64, *Place]
}

// NewStore opens (creating on first use) the place table at path and builds
// the name and timestamp indexes. Safe to call once per process lifetime.
func NewStore(path string) (*Store, error) {
	table, err := jsonldb.NewTable[*Place](path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStoreOpen, err)
	}
	s := &Store{table: table}
	s.byName = jsonldb.NewIndex(table, func(p *Place) string { return p.Name })
	s.byStamp = jsonldb.NewIndex(table, func(p *Place) int64 { return p.Timestamp })
	return s, nil
}

// Create assigns a timestamp if missing, inserts the place, and returns the
// new ID. Required fields are the caller's responsibility.
func (s *Store) Create(p *Place) (int64, error) {
	row := p.Clone()
	row.ID = 0
	if row.Timestamp == 0 {
		row.Timestamp = time.Now().UnixMilli()
	}
	id, err := s.table.Append(row)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrWrite, err)
	}
	return id, nil
}

// Get returns the place with the given ID, or ErrNotFound.
func (s *Store) Get(id int64) (*Place, error) {
	p, ok := s.table.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: id %d", ErrNotFound, id)
	}
	return p, nil
}

// GetAll returns every place ordered by timestamp descending. Timestamp ties
// break by ID descending, so the order is stable within one store instance.
func (s *Store) GetAll() []*Place {
	places := slices.Collect(s.table.All())
	slices.SortFunc(places, func(a, b *Place) int {
		if c := cmp.Compare(b.Timestamp, a.Timestamp); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})
	return places
}

// ByName returns all places with the exact given name, via the name index.
func (s *Store) ByName(name string) []*Place {
	return slices.Collect(s.byName.Iter(name))
}

// Update replaces the record at id with the given fields and refreshes its
// timestamp. The ID is fixed regardless of p.ID. Returns ErrNotFound when no
// record has the ID; there is no overwrite-insert.
func (s *Store) Update(id int64, p *Place) error {
	ok, err := s.table.Modify(id, func(row *Place) error {
		fields := p.Clone()
		*row = *fields
		row.Timestamp = time.Now().UnixMilli()
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrWrite, err)
	}
	if !ok {
		return fmt.Errorf("%w: id %d", ErrNotFound, id)
	}
	return nil
}

// Delete removes the place with the given ID. Deleting a missing ID is a
// no-op; the ID is never reused.
func (s *Store) Delete(id int64) error {
	if _, err := s.table.Delete(id); err != nil {
		return fmt.Errorf("%w: %w", ErrWrite, err)
	}
	return nil
}

// Search returns places whose name, address, or notes contain the query,
// case-insensitively, ordered like GetAll. An empty or whitespace query
// returns every place. This is a linear scan over the full table; fine for a
// personal journal's record counts.
func (s *Store) Search(query string) []*Place {
	all := s.GetAll()
	term := strings.ToLower(strings.TrimSpace(query))
	if term == "" {
		return all
	}
	matched := make([]*Place, 0, len(all))
	for _, p := range all {
		if strings.Contains(strings.ToLower(p.Name), term) ||
			strings.Contains(strings.ToLower(p.Address), term) ||
			(p.Notes != "" && strings.Contains(strings.ToLower(p.Notes), term)) {
			matched = append(matched, p)
		}
	}
	return matched
}

// Suggest returns up to limit place names ranked by fuzzy closeness to the
// query, for typeahead in the search box. Unlike Search this matches
// subsequences, so "cpk" can suggest "Central Park".
func (s *Store) Suggest(query string, limit int) []string {
	query = strings.TrimSpace(query)
	if query == "" || limit <= 0 {
		return nil
	}
	seen := make(map[string]struct{})
	var names []string
	for p := range s.table.All() {
		if _, dup := seen[p.Name]; dup {
			continue
		}
		seen[p.Name] = struct{}{}
		names = append(names, p.Name)
	}
	ranks := fuzzy.RankFindNormalizedFold(query, names)
	slices.SortFunc(ranks, func(a, b fuzzy.Rank) int { return cmp.Compare(a.Distance, b.Distance) })
	out := make([]string, 0, min(limit, len(ranks)))
	for _, r := range ranks {
		if len(out) == limit {
			break
		}
		out = append(out, r.Target)
	}
	return out
}

// Len returns the number of stored places.
func (s *Store) Len() int {
	return s.table.Len()
}
