// Package place defines the Place entity and its persistent store.
package place

import (
	"errors"
	"strings"
)

// Storage errors surfaced by [Store]. Callers are expected to match with
// errors.Is; no operation retries internally.
var (
	// ErrStoreOpen indicates the underlying storage could not be opened.
	ErrStoreOpen = errors.New("place store open failed")
	// ErrWrite indicates a create, update, or delete failed to persist.
	ErrWrite = errors.New("place write failed")
	// ErrNotFound indicates the referenced place does not exist.
	ErrNotFound = errors.New("place not found")
)

// Coordinates is an optional GPS reading attached to a place.
type Coordinates struct {
	Lat      float64 `json:"lat"`
	Lng      float64 `json:"lng"`
	Accuracy float64 `json:"accuracy,omitempty"` // meters
}

// Place is the sole persistent entity: a user-saved location.
//
// Timestamp is milliseconds since epoch, set on creation and refreshed on
// every update; the model does not distinguish created from modified time.
type Place struct {
	ID          int64        `json:"id"`
	Name        string       `json:"name"`
	Address     string       `json:"address"`
	Notes       string       `json:"notes,omitempty"`
	Photo       string       `json:"photo,omitempty"`
	Coordinates *Coordinates `json:"coordinates,omitempty"`
	Timestamp   int64        `json:"timestamp"`
}

// Clone returns a deep copy of the place.
func (p *Place) Clone() *Place {
	c := *p
	if p.Coordinates != nil {
		coords := *p.Coordinates
		c.Coordinates = &coords
	}
	return &c
}

// GetID implements jsonldb.Row.
func (p *Place) GetID() int64 {
	return p.ID
}

// SetID implements jsonldb.Row.
func (p *Place) SetID(id int64) {
	p.ID = id
}

// Validate checks the caller-enforced invariants: name and address must be
// non-empty. The store itself never calls this.
func (p *Place) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return errors.New("name is required")
	}
	if strings.TrimSpace(p.Address) == "" {
		return errors.New("address is required")
	}
	return nil
}

// HasInlinePhoto reports whether the photo field holds an inline-encoded
// image payload rather than a blob key.
func (p *Place) HasInlinePhoto() bool {
	return strings.HasPrefix(p.Photo, "data:image")
}

// HasStoredPhoto reports whether the photo field references an out-of-line
// blob in the photo store.
func (p *Place) HasStoredPhoto() bool {
	return strings.Contains(p.Photo, "cached-images/")
}
