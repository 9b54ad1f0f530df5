// Package photo stores place photos out-of-line as cached responses and
// hands out short-lived display handles for serving them.
//
// Keys look like "cached-images/<id>" where <id> is a time-sortable unique
// ID, mirroring the URL space the frontend requests photos under. Photos
// larger than the configured bounds are downscaled and re-encoded before
// storage.
package photo

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/maruel/ksid"
	"github.com/maruel/placedb/internal/cachestore"
)

var (
	// ErrImageDecode indicates the payload is not a decodable image.
	ErrImageDecode = errors.New("image decode failed")
	// ErrBlobStore indicates the underlying cache could not be read or written.
	ErrBlobStore = errors.New("photo blob store failure")
	// ErrNotFound indicates no photo is stored under the key.
	ErrNotFound = errors.New("photo not found")
)

// KeyPrefix prefixes every photo key. A place's photo field either starts
// with this prefix (stored photo) or is an inline data URL.
const KeyPrefix = "cached-images/"

// Options bound stored photo dimensions and JPEG re-encode quality.
type Options struct {
	MaxWidth  int
	MaxHeight int
	Quality   int
}

// DefaultOptions fits photos within 1920x1080 at JPEG quality 80.
func DefaultOptions() Options {
	return Options{MaxWidth: 1920, MaxHeight: 1080, Quality: 80}
}

// Store persists photos in a dedicated cache namespace.
type Store struct {
	cache *cachestore.Cache
	opts  Options

	mu      sync.Mutex
	handles map[string]*Handle
}

// NewStore wraps the given cache namespace. Zero or negative option fields
// fall back to defaults.
func NewStore(cache *cachestore.Cache, opts Options) *Store {
	def := DefaultOptions()
	if opts.MaxWidth <= 0 {
		opts.MaxWidth = def.MaxWidth
	}
	if opts.MaxHeight <= 0 {
		opts.MaxHeight = def.MaxHeight
	}
	if opts.Quality <= 0 || opts.Quality > 100 {
		opts.Quality = def.Quality
	}
	return &Store{cache: cache, opts: opts, handles: map[string]*Handle{}}
}

// Put compresses the image if needed and stores it under a fresh key.
// Returns the key to record on the owning place.
func (s *Store) Put(data []byte) (string, error) {
	body, mime, err := compress(data, s.opts.MaxWidth, s.opts.MaxHeight, s.opts.Quality)
	if err != nil {
		return "", err
	}
	key := KeyPrefix + ksid.NewID().String()
	e := &cachestore.Entry{
		Status: http.StatusOK,
		Header: http.Header{"Content-Type": []string{mime}},
		Body:   body,
	}
	if err := s.cache.Put(key, e); err != nil {
		return "", fmt.Errorf("%w: %w", ErrBlobStore, err)
	}
	return key, nil
}

// Get returns the stored photo bytes and MIME type, or ErrNotFound.
func (s *Store) Get(key string) ([]byte, string, error) {
	if !strings.HasPrefix(key, KeyPrefix) {
		return nil, "", fmt.Errorf("%w: %q", ErrNotFound, key)
	}
	e, err := s.cache.Match(key)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %w", ErrBlobStore, err)
	}
	if e == nil {
		return nil, "", fmt.Errorf("%w: %q", ErrNotFound, key)
	}
	return e.Body, e.Header.Get("Content-Type"), nil
}

// Remove deletes the photo stored under key. Unknown keys and keys outside
// the photo key space are no-ops, so callers can pass whatever a place's
// photo field holds without checking it first.
func (s *Store) Remove(key string) error {
	if !strings.HasPrefix(key, KeyPrefix) {
		return nil
	}
	if err := s.cache.Delete(key); err != nil {
		return fmt.Errorf("%w: %w", ErrBlobStore, err)
	}
	return nil
}

// Handle is a leased, servable copy of one stored photo. The photo bytes
// stay pinned in memory until Release.
type Handle struct {
	store *Store
	token string
	mime  string
	data  []byte

	releaseOnce sync.Once
}

// URL returns the path the handle is servable under.
func (h *Handle) URL() string {
	return "/display/" + h.token
}

// Bytes returns the photo bytes.
func (h *Handle) Bytes() []byte {
	return h.data
}

// ContentType returns the photo's MIME type.
func (h *Handle) ContentType() string {
	return h.mime
}

// Release invalidates the handle's URL and unpins its bytes. Releasing more
// than once is a no-op.
func (h *Handle) Release() {
	h.releaseOnce.Do(func() {
		h.store.mu.Lock()
		delete(h.store.handles, h.token)
		h.store.mu.Unlock()
	})
}

// Resolve loads the photo under key and returns a new display handle for it.
// Each call returns a distinct handle with its own URL; callers release the
// handles they create. Returns ErrNotFound when the key has no photo.
func (s *Store) Resolve(key string) (*Handle, error) {
	body, mime, err := s.Get(key)
	if err != nil {
		return nil, err
	}
	h := &Handle{
		store: s,
		token: ksid.NewID().String(),
		mime:  mime,
		data:  body,
	}
	s.mu.Lock()
	s.handles[h.token] = h
	s.mu.Unlock()
	return h, nil
}

// Lookup returns the live handle for a display token, if any.
func (s *Store) Lookup(token string) (*Handle, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.handles[token]
	return h, ok
}

// ReleaseAll releases every outstanding handle, e.g. on shutdown.
func (s *Store) ReleaseAll() {
	s.mu.Lock()
	handles := make([]*Handle, 0, len(s.handles))
	for _, h := range s.handles {
		handles = append(handles, h)
	}
	s.mu.Unlock()
	for _, h := range handles {
		h.Release()
	}
}
