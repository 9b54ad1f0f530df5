// Defines request and response types for the places API.

package dto

import "strings"

// Coordinates is a GPS fix as exposed over the API.
type Coordinates struct {
	Lat      float64 `json:"lat"`
	Lng      float64 `json:"lng"`
	Accuracy float64 `json:"accuracy,omitempty"`
}

// PlacePayload carries the writable fields of a place.
type PlacePayload struct {
	Name        string       `json:"name"`
	Address     string       `json:"address"`
	Notes       string       `json:"notes,omitempty"`
	Photo       string       `json:"photo,omitempty"`
	Coordinates *Coordinates `json:"coordinates,omitempty"`
	Timestamp   int64        `json:"timestamp,omitempty"`
}

// Validate enforces the required fields. Name and address are validated here
// at the API boundary, not in the store.
func (p *PlacePayload) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return MissingField("name")
	}
	if strings.TrimSpace(p.Address) == "" {
		return MissingField("address")
	}
	return nil
}

// PlaceIDRequest addresses one place by path ID.
type PlaceIDRequest struct {
	ID int64 `path:"id" json:"-"`
}

func (r *PlaceIDRequest) Validate() error {
	if r.ID <= 0 {
		return BadRequest("invalid place id")
	}
	return nil
}

// UpdatePlaceRequest is a full-record replace of the place at the path ID.
type UpdatePlaceRequest struct {
	ID int64 `path:"id" json:"-"`
	PlacePayload
}

func (r *UpdatePlaceRequest) Validate() error {
	if r.ID <= 0 {
		return BadRequest("invalid place id")
	}
	return r.PlacePayload.Validate()
}

// SearchPlacesRequest is a substring search over name, address, and notes.
type SearchPlacesRequest struct {
	Query string `query:"q" json:"-"`
}

func (r *SearchPlacesRequest) Validate() error { return nil }

// SuggestRequest asks for typeahead name suggestions.
type SuggestRequest struct {
	Query string `query:"q" json:"-"`
	Limit int    `query:"limit" json:"-"`
}

func (r *SuggestRequest) Validate() error {
	if r.Limit < 0 {
		return BadRequest("limit must be non-negative")
	}
	return nil
}

// DeletePhotoRequest addresses one stored photo by its full key, including
// the "cached-images/" prefix.
type DeletePhotoRequest struct {
	Key string `path:"key" json:"-"`
}

func (r *DeletePhotoRequest) Validate() error {
	if r.Key == "" {
		return MissingField("key")
	}
	return nil
}

// EmptyRequest is for endpoints that take no input.
type EmptyRequest struct{}

func (r *EmptyRequest) Validate() error { return nil }

// PlaceResponse is one place as exposed over the API.
type PlaceResponse struct {
	ID          int64        `json:"id"`
	Name        string       `json:"name"`
	Address     string       `json:"address"`
	Notes       string       `json:"notes,omitempty"`
	Photo       string       `json:"photo,omitempty"`
	Coordinates *Coordinates `json:"coordinates,omitempty"`
	Timestamp   int64        `json:"timestamp"`
}

// PlaceListResponse is an ordered list of places.
type PlaceListResponse struct {
	Places []PlaceResponse `json:"places"`
}

// CreatePlaceResponse returns the assigned ID.
type CreatePlaceResponse struct {
	ID int64 `json:"id"`
}

// SuggestResponse lists typeahead name suggestions, best match first.
type SuggestResponse struct {
	Suggestions []string `json:"suggestions"`
}

// UploadPhotoResponse returns the key to record on the owning place.
type UploadPhotoResponse struct {
	Key string `json:"key"`
}

// OKResponse acknowledges an operation with no other payload.
type OKResponse struct {
	OK bool `json:"ok"`
}

// HealthResponse reports server liveness.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// WorkerStateResponse reports the offline gateway's lifecycle phase.
type WorkerStateResponse struct {
	State string `json:"state"`
}

// GeoResponse is the geolocation capability probe and lookup result.
type GeoResponse struct {
	Available   bool         `json:"available"`
	Reason      string       `json:"reason,omitempty"`
	Coordinates *Coordinates `json:"coordinates,omitempty"`
}
