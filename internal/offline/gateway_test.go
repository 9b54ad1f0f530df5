package offline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/maruel/placedb/internal/cachestore"
)

// testOrigin is a scriptable shell origin. Setting offline makes every live
// fetch fail at the transport level.
type testOrigin struct {
	mu      sync.Mutex
	offline bool
	pages   map[string]string
	fetches []string
}

func (o *testOrigin) setOffline(v bool) {
	o.mu.Lock()
	o.offline = v
	o.mu.Unlock()
}

func (o *testOrigin) setPage(path, body string) {
	o.mu.Lock()
	o.pages[path] = body
	o.mu.Unlock()
}

func (o *testOrigin) fetchCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.fetches)
}

func (o *testOrigin) Fetch(_ context.Context, path string) (*cachestore.Entry, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.fetches = append(o.fetches, path)
	if o.offline {
		return nil, errors.New("network down")
	}
	p, _, _ := strings.Cut(path, "?")
	body, ok := o.pages[p]
	if !ok {
		return &cachestore.Entry{Status: http.StatusNotFound, Header: http.Header{}, Body: []byte("not found")}, nil
	}
	return &cachestore.Entry{
		Status: http.StatusOK,
		Header: http.Header{"Content-Type": []string{"text/html"}},
		Body:   []byte(body),
	}, nil
}

func (o *testOrigin) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	e, err := o.Fetch(r.Context(), r.URL.RequestURI())
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	writeEntry(w, e)
}

func testConfig() Config {
	return Config{
		CachePrefix: "placedb",
		Version:     "v2",
		ShellAssets: []string{"/", "/css/styles.css", "/pages/offline.html"},
		OfflinePath: "/pages/offline.html",
		ImagesName:  "placedb-images-v1",
	}
}

func setupGateway(t *testing.T) (*Gateway, *testOrigin, *cachestore.Store) {
	t.Helper()
	store, err := cachestore.New(t.TempDir())
	if err != nil {
		t.Fatalf("cachestore.New failed: %v", err)
	}
	// Runs before TempDir removal: let in-flight background revalidate
	// goroutines finish writing so RemoveAll doesn't race them.
	t.Cleanup(func() { time.Sleep(100 * time.Millisecond) })
	origin := &testOrigin{pages: map[string]string{
		"/":                   "home",
		"/css/styles.css":     "body{}",
		"/pages/offline.html": "you are offline",
		"/pages/edit.html":    "edit form",
	}}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	g, err := New(store, origin, testConfig(), logger)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return g, origin, store
}

func installAndActivate(t *testing.T, g *Gateway) {
	t.Helper()
	ctx := context.Background()
	if err := g.Install(ctx); err != nil {
		t.Fatalf("Install failed: %v", err)
	}
	if err := g.Activate(ctx); err != nil {
		t.Fatalf("Activate failed: %v", err)
	}
}

func get(t *testing.T, g *Gateway, path string, docLike bool) *httptest.ResponseRecorder {
	t.Helper()
	r := httptest.NewRequest(http.MethodGet, path, nil)
	if docLike {
		r.Header.Set("Accept", "text/html,application/xhtml+xml")
	}
	w := httptest.NewRecorder()
	g.ServeHTTP(w, r)
	return w
}

func TestLifecycle(t *testing.T) {
	g, _, store := setupGateway(t)
	if g.State() != StateIdle {
		t.Fatalf("initial state = %v, want idle", g.State())
	}
	if err := g.Install(context.Background()); err != nil {
		t.Fatalf("Install failed: %v", err)
	}
	if g.State() != StateWaiting {
		t.Errorf("state after install = %v, want waiting", g.State())
	}
	if err := g.Activate(context.Background()); err != nil {
		t.Fatalf("Activate failed: %v", err)
	}
	if g.State() != StateActive {
		t.Errorf("state after activate = %v, want active", g.State())
	}

	names, err := store.Names()
	if err != nil {
		t.Fatalf("Names failed: %v", err)
	}
	var hasShell bool
	for _, n := range names {
		if n == "placedb-v2" {
			hasShell = true
		}
	}
	if !hasShell {
		t.Errorf("shell namespace missing, have %v", names)
	}
}

func TestInstallAllOrNothing(t *testing.T) {
	g, origin, store := setupGateway(t)

	// Leave a previous generation on disk.
	old, err := store.Open("placedb-v1")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if err := old.Put("/", &cachestore.Entry{Status: 200, Body: []byte("old home")}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	// One missing asset sinks the whole install.
	origin.mu.Lock()
	delete(origin.pages, "/css/styles.css")
	origin.mu.Unlock()

	if err := g.Install(context.Background()); !errors.Is(err, ErrInstall) {
		t.Fatalf("Install error = %v, want ErrInstall", err)
	}
	if g.State() != StateIdle {
		t.Errorf("state after failed install = %v, want idle", g.State())
	}

	names, _ := store.Names()
	for _, n := range names {
		if n == "placedb-v2" {
			t.Error("failed install left its namespace behind")
		}
	}
	if e, _ := old.Match("/"); e == nil || string(e.Body) != "old home" {
		t.Error("previous generation was disturbed by a failed install")
	}
}

func TestActivatePrunesOldGenerations(t *testing.T) {
	g, _, store := setupGateway(t)
	for _, stale := range []string{"placedb-v1", "placedb-images-v0"} {
		if _, err := store.Open(stale); err != nil {
			t.Fatalf("Open failed: %v", err)
		}
	}
	installAndActivate(t, g)

	names, err := store.Names()
	if err != nil {
		t.Fatalf("Names failed: %v", err)
	}
	for _, n := range names {
		if n != "placedb-v2" && n != "placedb-images-v1" {
			t.Errorf("stale namespace %q survived activation", n)
		}
	}
}

func TestSkipWaiting(t *testing.T) {
	g, _, _ := setupGateway(t)
	if err := g.SkipWaiting(context.Background()); !errors.Is(err, ErrNoUpdate) {
		t.Errorf("SkipWaiting before install = %v, want ErrNoUpdate", err)
	}
	if err := g.Install(context.Background()); err != nil {
		t.Fatalf("Install failed: %v", err)
	}
	if err := g.SkipWaiting(context.Background()); err != nil {
		t.Fatalf("SkipWaiting failed: %v", err)
	}
	if g.State() != StateActive {
		t.Errorf("state = %v, want active", g.State())
	}
	if err := g.SkipWaiting(context.Background()); !errors.Is(err, ErrNoUpdate) {
		t.Errorf("SkipWaiting when active = %v, want ErrNoUpdate", err)
	}
}

func TestPassThroughBeforeActivation(t *testing.T) {
	g, _, _ := setupGateway(t)
	w := get(t, g, "/", true)
	if w.Code != http.StatusOK || w.Body.String() != "home" {
		t.Errorf("pass-through = %d %q", w.Code, w.Body.String())
	}
}

func TestDocumentNetworkFirst(t *testing.T) {
	g, origin, _ := setupGateway(t)
	installAndActivate(t, g)

	// Online: live content wins, even over the precached copy.
	origin.setPage("/", "fresh home")
	if w := get(t, g, "/", true); w.Body.String() != "fresh home" {
		t.Fatalf("online document = %q, want fresh home", w.Body.String())
	}

	// Offline: the cached copy from the live fetch above is served.
	origin.setOffline(true)
	w := get(t, g, "/", true)
	if w.Code != http.StatusOK || w.Body.String() != "fresh home" {
		t.Errorf("offline document = %d %q, want cached fresh home", w.Code, w.Body.String())
	}
}

func TestDocumentQueryStrippedFallback(t *testing.T) {
	g, origin, _ := setupGateway(t)
	installAndActivate(t, g)

	// Cache one parameterized copy while online.
	if w := get(t, g, "/pages/edit.html?id=3", true); w.Code != http.StatusOK {
		t.Fatalf("online fetch = %d", w.Code)
	}

	origin.setOffline(true)
	// Same path, different query: falls back through the stripped match.
	w := get(t, g, "/pages/edit.html?id=9", true)
	if w.Code != http.StatusOK || w.Body.String() != "edit form" {
		t.Errorf("query-stripped fallback = %d %q", w.Code, w.Body.String())
	}
}

func TestDocumentOfflineFallbackPage(t *testing.T) {
	g, origin, _ := setupGateway(t)
	installAndActivate(t, g)
	origin.setOffline(true)

	w := get(t, g, "/pages/never-seen.html", true)
	if w.Code != http.StatusOK || w.Body.String() != "you are offline" {
		t.Errorf("offline fallback = %d %q, want the offline page", w.Code, w.Body.String())
	}
}

func TestAssetCacheFirst(t *testing.T) {
	g, origin, _ := setupGateway(t)
	installAndActivate(t, g)
	origin.setOffline(true)

	// Precached asset serves without any network.
	w := get(t, g, "/css/styles.css", false)
	if w.Code != http.StatusOK || w.Body.String() != "body{}" {
		t.Errorf("cached asset = %d %q", w.Code, w.Body.String())
	}

	// Uncached asset with the network down propagates the failure.
	if w := get(t, g, "/js/app.js", false); w.Code != http.StatusBadGateway {
		t.Errorf("uncached asset while offline = %d, want 502", w.Code)
	}
}

func TestAssetMissPopulates(t *testing.T) {
	g, origin, _ := setupGateway(t)
	installAndActivate(t, g)
	origin.setPage("/js/app.js", "console.log(1)")

	if w := get(t, g, "/js/app.js", false); w.Body.String() != "console.log(1)" {
		t.Fatalf("asset miss = %q", w.Body.String())
	}

	origin.setOffline(true)
	if w := get(t, g, "/js/app.js", false); w.Body.String() != "console.log(1)" {
		t.Errorf("asset not cached on miss: %q", w.Body.String())
	}
}

func TestAssetBackgroundRefresh(t *testing.T) {
	g, origin, _ := setupGateway(t)
	installAndActivate(t, g)

	origin.setPage("/css/styles.css", "body{color:red}")
	// The first hit still serves the stale precached copy.
	if w := get(t, g, "/css/styles.css", false); w.Body.String() != "body{}" {
		t.Fatalf("first hit = %q, want stale copy", w.Body.String())
	}
	// The background refresh lands eventually.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if w := get(t, g, "/css/styles.css", false); w.Body.String() == "body{color:red}" {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Error("background refresh never landed")
}

func TestPhotoCacheOnly(t *testing.T) {
	g, origin, store := setupGateway(t)
	installAndActivate(t, g)

	images, err := store.Open("placedb-images-v1")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	e := &cachestore.Entry{
		Status: 200,
		Header: http.Header{"Content-Type": []string{"image/jpeg"}},
		Body:   []byte("jpeg bytes"),
	}
	if err := images.Put("cached-images/abc", e); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	w := get(t, g, "/cached-images/abc", false)
	if w.Code != http.StatusOK || w.Body.String() != "jpeg bytes" {
		t.Errorf("photo = %d %q", w.Code, w.Body.String())
	}
	if w.Header().Get("Content-Type") != "image/jpeg" {
		t.Errorf("Content-Type = %q", w.Header().Get("Content-Type"))
	}

	// A missing photo is a 404 and never a network fetch.
	before := origin.fetchCount()
	if w := get(t, g, "/cached-images/missing", false); w.Code != http.StatusNotFound {
		t.Errorf("missing photo = %d, want 404", w.Code)
	}
	if origin.fetchCount() != before {
		t.Error("missing photo triggered a network fetch")
	}
}

func TestNonGetPassesThrough(t *testing.T) {
	g, _, _ := setupGateway(t)
	installAndActivate(t, g)

	r := httptest.NewRequest(http.MethodPost, "/pages/edit.html", strings.NewReader("x"))
	w := httptest.NewRecorder()
	g.ServeHTTP(w, r)
	// The test origin answers every method it can reach.
	if w.Code != http.StatusOK {
		t.Errorf("POST = %d, want pass-through 200", w.Code)
	}
}
