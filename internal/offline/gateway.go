// Package offline keeps the app shell and photos servable without network.
//
// The Gateway fronts the shell origin the way a service worker fronts a
// page: an explicit install/activate lifecycle populates and rotates
// versioned cache namespaces, and once active every GET is answered through
// a per-resource strategy (network-first for documents, cache-first with
// background refresh for static assets, cache-only for stored photos). A
// request never goes unanswered; documents exhaust their fallbacks into the
// offline page.
package offline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/maruel/placedb/internal/cachestore"
)

var (
	// ErrInstall indicates precaching failed; the previous generation is intact.
	ErrInstall = errors.New("offline install failed")
	// ErrNoUpdate indicates SkipWaiting was called with no generation waiting.
	ErrNoUpdate = errors.New("no update waiting")
)

// State is the gateway's lifecycle phase.
type State int

const (
	// StateIdle means no generation has been installed this process.
	StateIdle State = iota
	StateInstalling
	// StateWaiting means a generation is precached but not yet intercepting.
	StateWaiting
	// StateActive means the gateway intercepts requests.
	StateActive
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateInstalling:
		return "installing"
	case StateWaiting:
		return "waiting"
	case StateActive:
		return "active"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Config names the cache generation and lists what to precache.
type Config struct {
	// CachePrefix and Version form the shell namespace name, e.g.
	// "placedb" + "v3" -> "placedb-v3". Bumping Version rotates the
	// generation on the next install/activate cycle.
	CachePrefix string
	Version     string
	// ShellAssets are the paths precached during install. All must fetch
	// successfully or the install fails as a whole.
	ShellAssets []string
	// OfflinePath is the document served when every fallback misses. It
	// should be listed in ShellAssets.
	OfflinePath string
	// ImagesName is the photo namespace. It is never precached and never
	// deleted while it matches the configured name.
	ImagesName string
}

// ShellName returns the versioned shell namespace name.
func (c *Config) ShellName() string {
	return c.CachePrefix + "-" + c.Version
}

// Gateway is the offline cache manager. Create with New, then Install and
// Activate; until active it forwards everything to the origin untouched.
type Gateway struct {
	store  *cachestore.Store
	origin Origin
	cfg    Config
	logger *slog.Logger

	mu     sync.Mutex
	state  State
	shell  *cachestore.Cache
	images *cachestore.Cache
}

// New builds a gateway over the given cache store and shell origin.
func New(store *cachestore.Store, origin Origin, cfg Config, logger *slog.Logger) (*Gateway, error) {
	if cfg.CachePrefix == "" || cfg.Version == "" {
		return nil, errors.New("cache prefix and version are required")
	}
	images, err := store.Open(cfg.ImagesName)
	if err != nil {
		return nil, err
	}
	return &Gateway{store: store, origin: origin, cfg: cfg, logger: logger, images: images}, nil
}

// State returns the current lifecycle phase.
func (g *Gateway) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Install precaches every configured shell asset into this version's
// namespace. All-or-nothing: if any asset fails to fetch or store, the new
// namespace is removed, the previous generation stays as it was, and
// ErrInstall is returned.
func (g *Gateway) Install(ctx context.Context) error {
	g.mu.Lock()
	prev := g.state
	g.state = StateInstalling
	g.mu.Unlock()

	fail := func(err error) error {
		if derr := g.store.Delete(g.cfg.ShellName()); derr != nil {
			g.logger.WarnContext(ctx, "failed to clean up aborted install", "cache", g.cfg.ShellName(), "err", derr)
		}
		g.mu.Lock()
		g.state = prev
		g.mu.Unlock()
		return fmt.Errorf("%w: %w", ErrInstall, err)
	}

	// Fetch everything before writing anything, so a late failure does not
	// leave a half-populated generation behind.
	entries := make(map[string]*cachestore.Entry, len(g.cfg.ShellAssets))
	for _, asset := range g.cfg.ShellAssets {
		e, err := g.origin.Fetch(ctx, asset)
		if err != nil {
			return fail(fmt.Errorf("fetching %q: %w", asset, err))
		}
		if !cacheable(e.Status) {
			return fail(fmt.Errorf("fetching %q: status %d", asset, e.Status))
		}
		entries[asset] = e
	}

	shell, err := g.store.Open(g.cfg.ShellName())
	if err != nil {
		return fail(err)
	}
	for asset, e := range entries {
		if err := shell.Put(asset, e); err != nil {
			return fail(fmt.Errorf("storing %q: %w", asset, err))
		}
	}

	g.mu.Lock()
	g.shell = shell
	g.state = StateWaiting
	g.mu.Unlock()
	g.logger.InfoContext(ctx, "offline shell installed", "cache", shell.Name(), "assets", len(entries))
	return nil
}

// Activate deletes every namespace from other generations and starts
// intercepting. Requires a prior successful Install.
func (g *Gateway) Activate(ctx context.Context) error {
	g.mu.Lock()
	if g.shell == nil {
		g.mu.Unlock()
		return errors.New("activate before install")
	}
	g.mu.Unlock()

	names, err := g.store.Names()
	if err != nil {
		return err
	}
	for _, name := range names {
		if name == g.cfg.ShellName() || name == g.cfg.ImagesName {
			continue
		}
		if err := g.store.Delete(name); err != nil {
			return fmt.Errorf("pruning cache %q: %w", name, err)
		}
		g.logger.InfoContext(ctx, "pruned stale cache", "cache", name)
	}

	g.mu.Lock()
	g.state = StateActive
	g.mu.Unlock()
	return nil
}

// SkipWaiting activates a waiting generation immediately. ErrNoUpdate when
// nothing is waiting.
func (g *Gateway) SkipWaiting(ctx context.Context) error {
	g.mu.Lock()
	waiting := g.state == StateWaiting
	g.mu.Unlock()
	if !waiting {
		return ErrNoUpdate
	}
	return g.Activate(ctx)
}

func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	g.mu.Lock()
	active := g.state == StateActive
	shell := g.shell
	g.mu.Unlock()

	// Stored photos are cache-only even before activation; they exist
	// nowhere else.
	if strings.HasPrefix(r.URL.Path, "/cached-images/") {
		g.servePhoto(w, r)
		return
	}
	if !active || r.Method != http.MethodGet {
		g.origin.ServeHTTP(w, r)
		return
	}
	if isDocument(r) {
		g.networkFirst(w, r, shell)
		return
	}
	g.cacheFirst(w, r, shell)
}

// servePhoto answers from the images namespace only. A miss is a 404, never
// a network fetch.
func (g *Gateway) servePhoto(w http.ResponseWriter, r *http.Request) {
	key := strings.TrimPrefix(r.URL.Path, "/")
	e, err := g.images.Match(key)
	if err != nil {
		g.logger.ErrorContext(r.Context(), "photo cache read failed", "key", key, "err", err)
		http.Error(w, "photo cache unavailable", http.StatusInternalServerError)
		return
	}
	if e == nil {
		http.NotFound(w, r)
		return
	}
	writeEntry(w, e)
}

// networkFirst serves documents: live fetch, falling back through the exact
// cached copy, a query-stripped match, and finally the offline page.
func (g *Gateway) networkFirst(w http.ResponseWriter, r *http.Request, shell *cachestore.Cache) {
	key := r.URL.RequestURI()
	e, err := g.origin.Fetch(r.Context(), key)
	if err == nil && cacheable(e.Status) {
		if perr := shell.Put(key, e); perr != nil {
			g.logger.WarnContext(r.Context(), "failed to cache document", "key", key, "err", perr)
		}
		writeEntry(w, e)
		return
	}
	if err != nil {
		g.logger.InfoContext(r.Context(), "document fetch failed, serving from cache", "key", key, "err", err)
	}
	if cached, _ := shell.Match(key); cached != nil {
		writeEntry(w, cached)
		return
	}
	if cached, _ := shell.MatchIgnoringQuery(key); cached != nil {
		writeEntry(w, cached)
		return
	}
	if fallback, _ := shell.Match(g.cfg.OfflinePath); fallback != nil {
		writeEntry(w, fallback)
		return
	}
	// No offline page cached either; nothing left to serve.
	http.Error(w, "offline", http.StatusServiceUnavailable)
}

// cacheFirst serves static assets: a hit is returned immediately and
// refreshed in the background; a miss fetches, populates, and returns. A
// fetch failure with no cached copy propagates as 502.
func (g *Gateway) cacheFirst(w http.ResponseWriter, r *http.Request, shell *cachestore.Cache) {
	key := r.URL.RequestURI()
	if cached, err := shell.Match(key); err == nil && cached != nil {
		writeEntry(w, cached)
		go g.revalidate(context.WithoutCancel(r.Context()), shell, key)
		return
	}
	e, err := g.origin.Fetch(r.Context(), key)
	if err != nil {
		http.Error(w, fmt.Sprintf("upstream fetch failed: %v", err), http.StatusBadGateway)
		return
	}
	if cacheable(e.Status) {
		if perr := shell.Put(key, e); perr != nil {
			g.logger.WarnContext(r.Context(), "failed to cache asset", "key", key, "err", perr)
		}
	}
	writeEntry(w, e)
}

func (g *Gateway) revalidate(ctx context.Context, shell *cachestore.Cache, key string) {
	e, err := g.origin.Fetch(ctx, key)
	if err != nil || !cacheable(e.Status) {
		return
	}
	if err := shell.Put(key, e); err != nil {
		g.logger.WarnContext(ctx, "background refresh failed", "key", key, "err", err)
	}
}

func cacheable(status int) bool {
	return status >= 200 && status < 300
}

func isDocument(r *http.Request) bool {
	if strings.Contains(r.Header.Get("Accept"), "text/html") {
		return true
	}
	p := r.URL.Path
	return p == "/" || strings.HasSuffix(p, "/") || strings.HasSuffix(p, ".html")
}

func writeEntry(w http.ResponseWriter, e *cachestore.Entry) {
	h := w.Header()
	for k, vals := range e.Header {
		h[k] = vals
	}
	w.WriteHeader(e.Status)
	_, _ = w.Write(e.Body)
}
