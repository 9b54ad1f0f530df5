// Implements the places API handlers.

package server

import (
	"context"
	"errors"
	"log/slog"

	"github.com/maruel/placedb/internal/geo"
	"github.com/maruel/placedb/internal/offline"
	"github.com/maruel/placedb/internal/photo"
	"github.com/maruel/placedb/internal/place"
	"github.com/maruel/placedb/internal/server/dto"
	"github.com/maruel/placedb/internal/server/reqctx"
)

const defaultSuggestLimit = 5

// Handlers implements the API endpoints over the domain services.
type Handlers struct {
	places  *place.Store
	photos  *photo.Store
	gateway *offline.Gateway
	geo     *geo.Resolver
	version string
}

// Health reports server liveness.
func (h *Handlers) Health(_ context.Context, _ *dto.EmptyRequest) (*dto.HealthResponse, error) {
	return &dto.HealthResponse{Status: "ok", Version: h.version}, nil
}

// ListPlaces returns every place, newest first.
func (h *Handlers) ListPlaces(_ context.Context, _ *dto.EmptyRequest) (*dto.PlaceListResponse, error) {
	return placeList(h.places.GetAll()), nil
}

// GetPlace returns one place by ID.
func (h *Handlers) GetPlace(_ context.Context, req *dto.PlaceIDRequest) (*dto.PlaceResponse, error) {
	p, err := h.places.Get(req.ID)
	if err != nil {
		return nil, mapPlaceError(err)
	}
	resp := placeToDTO(p)
	return &resp, nil
}

// CreatePlace inserts a new place and returns its assigned ID.
func (h *Handlers) CreatePlace(_ context.Context, req *dto.PlacePayload) (*dto.CreatePlaceResponse, error) {
	id, err := h.places.Create(placeFromPayload(req))
	if err != nil {
		return nil, mapPlaceError(err)
	}
	return &dto.CreatePlaceResponse{ID: id}, nil
}

// UpdatePlace replaces the place at the path ID. When the update swaps out a
// stored photo, the old blob is removed; there is no other orphan cleanup.
func (h *Handlers) UpdatePlace(ctx context.Context, req *dto.UpdatePlaceRequest) (*dto.PlaceResponse, error) {
	prev, err := h.places.Get(req.ID)
	if err != nil {
		return nil, mapPlaceError(err)
	}
	if err := h.places.Update(req.ID, placeFromPayload(&req.PlacePayload)); err != nil {
		return nil, mapPlaceError(err)
	}
	if prev.Photo != req.Photo {
		if err := h.photos.Remove(prev.Photo); err != nil {
			slog.WarnContext(ctx, "Failed to remove replaced photo", "key", prev.Photo, "err", err)
		}
	}
	p, err := h.places.Get(req.ID)
	if err != nil {
		return nil, mapPlaceError(err)
	}
	resp := placeToDTO(p)
	return &resp, nil
}

// DeletePlace removes the place and its stored photo blob, if any. Deleting
// a missing ID succeeds.
func (h *Handlers) DeletePlace(ctx context.Context, req *dto.PlaceIDRequest) (*dto.OKResponse, error) {
	prev, err := h.places.Get(req.ID)
	if err != nil && !errors.Is(err, place.ErrNotFound) {
		return nil, mapPlaceError(err)
	}
	if err := h.places.Delete(req.ID); err != nil {
		return nil, mapPlaceError(err)
	}
	if prev != nil {
		if err := h.photos.Remove(prev.Photo); err != nil {
			slog.WarnContext(ctx, "Failed to remove deleted place's photo", "key", prev.Photo, "err", err)
		}
	}
	return &dto.OKResponse{OK: true}, nil
}

// SearchPlaces runs a substring search; an empty query lists everything.
func (h *Handlers) SearchPlaces(_ context.Context, req *dto.SearchPlacesRequest) (*dto.PlaceListResponse, error) {
	return placeList(h.places.Search(req.Query)), nil
}

// Suggest returns typeahead name suggestions for the search box.
func (h *Handlers) Suggest(_ context.Context, req *dto.SuggestRequest) (*dto.SuggestResponse, error) {
	limit := req.Limit
	if limit == 0 {
		limit = defaultSuggestLimit
	}
	return &dto.SuggestResponse{Suggestions: h.places.Suggest(req.Query, limit)}, nil
}

// DeletePhoto removes a stored photo blob. Unknown keys succeed.
func (h *Handlers) DeletePhoto(_ context.Context, req *dto.DeletePhotoRequest) (*dto.OKResponse, error) {
	if err := h.photos.Remove(req.Key); err != nil {
		return nil, dto.BlobStore(err)
	}
	return &dto.OKResponse{OK: true}, nil
}

// SkipWaiting activates a staged offline cache generation immediately.
func (h *Handlers) SkipWaiting(ctx context.Context, _ *dto.EmptyRequest) (*dto.WorkerStateResponse, error) {
	if err := h.gateway.SkipWaiting(ctx); err != nil {
		if errors.Is(err, offline.ErrNoUpdate) {
			return nil, dto.NoUpdateWaiting()
		}
		return nil, dto.InternalWithError("activation failed", err)
	}
	return &dto.WorkerStateResponse{State: h.gateway.State().String()}, nil
}

// WorkerState reports the offline gateway's lifecycle phase.
func (h *Handlers) WorkerState(_ context.Context, _ *dto.EmptyRequest) (*dto.WorkerStateResponse, error) {
	return &dto.WorkerStateResponse{State: h.gateway.State().String()}, nil
}

// Geo reports geolocation capability and, when possible, the approximate
// location of the calling client.
func (h *Handlers) Geo(ctx context.Context, _ *dto.EmptyRequest) (*dto.GeoResponse, error) {
	if ok, reason := h.geo.Available(); !ok {
		return &dto.GeoResponse{Available: false, Reason: reason}, nil
	}
	loc, err := h.geo.Locate(reqctx.ClientIP(ctx))
	if err != nil {
		return &dto.GeoResponse{Available: true, Reason: "no approximate location for client address"}, nil
	}
	return &dto.GeoResponse{
		Available:   true,
		Coordinates: &dto.Coordinates{Lat: loc.Lat, Lng: loc.Lng, Accuracy: loc.Accuracy},
	}, nil
}

// mapPlaceError translates store errors into API errors.
func mapPlaceError(err error) error {
	switch {
	case errors.Is(err, place.ErrNotFound):
		return dto.NotFound("place")
	case errors.Is(err, place.ErrWrite):
		return dto.WriteFailed(err)
	case errors.Is(err, place.ErrStoreOpen):
		return dto.NewAPIError(500, dto.ErrorCodeStoreOpenFailed, "record store unavailable").Wrap(err)
	default:
		return dto.InternalWithError("place operation failed", err)
	}
}

func placeToDTO(p *place.Place) dto.PlaceResponse {
	resp := dto.PlaceResponse{
		ID:        p.ID,
		Name:      p.Name,
		Address:   p.Address,
		Notes:     p.Notes,
		Photo:     p.Photo,
		Timestamp: p.Timestamp,
	}
	if p.Coordinates != nil {
		resp.Coordinates = &dto.Coordinates{
			Lat:      p.Coordinates.Lat,
			Lng:      p.Coordinates.Lng,
			Accuracy: p.Coordinates.Accuracy,
		}
	}
	return resp
}

func placeFromPayload(req *dto.PlacePayload) *place.Place {
	p := &place.Place{
		Name:      req.Name,
		Address:   req.Address,
		Notes:     req.Notes,
		Photo:     req.Photo,
		Timestamp: req.Timestamp,
	}
	if req.Coordinates != nil {
		p.Coordinates = &place.Coordinates{
			Lat:      req.Coordinates.Lat,
			Lng:      req.Coordinates.Lng,
			Accuracy: req.Coordinates.Accuracy,
		}
	}
	return p
}

func placeList(places []*place.Place) *dto.PlaceListResponse {
	out := make([]dto.PlaceResponse, 0, len(places))
	for _, p := range places {
		out = append(out, placeToDTO(p))
	}
	return &dto.PlaceListResponse{Places: out}
}
