// Package server implements the HTTP server and routing logic.
package server

import (
	"net/http"
	"time"

	"github.com/maruel/placedb/internal/geo"
	"github.com/maruel/placedb/internal/offline"
	"github.com/maruel/placedb/internal/photo"
	"github.com/maruel/placedb/internal/place"
	"github.com/maruel/placedb/internal/server/ratelimit"
)

// Quotas caps request sizes.
type Quotas struct {
	// MaxRequestBodyBytes caps JSON API bodies; 0 disables the cap.
	MaxRequestBodyBytes int64
	// MaxUploadBytes caps photo uploads; 0 disables the cap.
	MaxUploadBytes int64
}

// RateLimit configures the per-IP token bucket on mutating routes.
type RateLimit struct {
	Requests int
	Window   time.Duration
	Burst    int
}

// Options carries the services and settings the server needs.
type Options struct {
	Places    *place.Store
	Photos    *photo.Store
	Gateway   *offline.Gateway
	Geo       *geo.Resolver
	Version   string
	Quotas    Quotas
	RateLimit RateLimit
}

// Server is the HTTP surface: the places API, photo serving, and the offline
// gateway for everything else.
type Server struct {
	mux     *http.ServeMux
	limiter *ratelimit.Limiter
	photos  *photo.Store
}

// New creates and configures the HTTP server. Serves API endpoints at /api/*
// and the app shell, through the offline gateway, at /.
func New(opts Options) *Server {
	h := &Handlers{
		places:  opts.Places,
		photos:  opts.Photos,
		gateway: opts.Gateway,
		geo:     opts.Geo,
		version: opts.Version,
	}

	var limiter *ratelimit.Limiter
	if opts.RateLimit.Requests > 0 {
		limiter = ratelimit.NewLimiter(opts.RateLimit.Requests, opts.RateLimit.Window, opts.RateLimit.Burst)
	}
	wc := wrapConfig{maxBodyBytes: opts.Quotas.MaxRequestBodyBytes, limiter: limiter}

	mux := &http.ServeMux{}

	// Health check
	mux.Handle("GET /api/health", Wrap(h.Health, wc))

	// Places endpoints. The literal /search and /suggest patterns win over
	// the {id} wildcard.
	mux.Handle("GET /api/places", Wrap(h.ListPlaces, wc))
	mux.Handle("GET /api/places/search", Wrap(h.SearchPlaces, wc))
	mux.Handle("GET /api/places/suggest", Wrap(h.Suggest, wc))
	mux.Handle("GET /api/places/{id}", Wrap(h.GetPlace, wc))
	mux.Handle("POST /api/places", Wrap(h.CreatePlace, wc))
	mux.Handle("PUT /api/places/{id}", Wrap(h.UpdatePlace, wc))
	mux.Handle("DELETE /api/places/{id}", Wrap(h.DeletePlace, wc))

	// Photo endpoints. Upload is raw for multipart handling; the key wildcard
	// spans slashes because keys look like "cached-images/<id>".
	mux.Handle("POST /api/photos", h.rateLimited(wc, h.UploadPhotoHandler(opts.Quotas.MaxUploadBytes)))
	mux.Handle("DELETE /api/photos/{key...}", Wrap(h.DeletePhoto, wc))
	mux.HandleFunc("GET /display/{token}", h.ServeDisplayHandler)

	// Offline worker lifecycle
	mux.Handle("POST /api/worker/skip-waiting", Wrap(h.SkipWaiting, wc))
	mux.Handle("GET /api/worker/state", Wrap(h.WorkerState, wc))

	// Geolocation capability probe
	mux.Handle("GET /api/geo", Wrap(h.Geo, wc))

	// Everything else, stored photos included, goes through the offline
	// gateway in front of the app shell.
	mux.Handle("/", opts.Gateway)

	return &Server{mux: mux, limiter: limiter, photos: opts.Photos}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// Close releases the rate limiter and every outstanding display handle.
func (s *Server) Close() {
	if s.limiter != nil {
		s.limiter.Close()
	}
	s.photos.ReleaseAll()
}
