package offline

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httputil"
	"net/url"

	"github.com/maruel/placedb/internal/cachestore"
)

// Origin is the app shell's source of truth. The gateway fetches assets from
// it during install and revalidation, and forwards to it whatever it does not
// intercept.
type Origin interface {
	http.Handler
	// Fetch performs one live GET for path (which may carry a query string)
	// and returns the captured response.
	Fetch(ctx context.Context, path string) (*cachestore.Entry, error)
}

// HandlerOrigin serves the shell from an in-process handler, typically the
// embedded frontend.
type HandlerOrigin struct {
	Handler http.Handler
}

func (h *HandlerOrigin) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.Handler.ServeHTTP(w, r)
}

func (h *HandlerOrigin) Fetch(ctx context.Context, path string) (*cachestore.Entry, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	rec := &entryRecorder{header: http.Header{}}
	h.Handler.ServeHTTP(rec, req)
	return rec.entry(), nil
}

// entryRecorder captures a handler's response as a cache entry.
type entryRecorder struct {
	status int
	header http.Header
	body   bytes.Buffer
}

func (r *entryRecorder) Header() http.Header { return r.header }

func (r *entryRecorder) WriteHeader(status int) {
	if r.status == 0 {
		r.status = status
	}
}

func (r *entryRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.body.Write(b)
}

func (r *entryRecorder) entry() *cachestore.Entry {
	status := r.status
	if status == 0 {
		status = http.StatusOK
	}
	return &cachestore.Entry{Status: status, Header: r.header.Clone(), Body: r.body.Bytes()}
}

// URLOrigin proxies to a remote shell origin.
type URLOrigin struct {
	Base   *url.URL
	Client *http.Client

	proxy *httputil.ReverseProxy
}

// NewURLOrigin parses base and returns an origin proxying to it.
func NewURLOrigin(base string, client *http.Client) (*URLOrigin, error) {
	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("invalid upstream origin %q: %w", base, err)
	}
	if client == nil {
		client = http.DefaultClient
	}
	proxy := httputil.NewSingleHostReverseProxy(u)
	return &URLOrigin{Base: u, Client: client, proxy: proxy}, nil
}

func (o *URLOrigin) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	o.proxy.ServeHTTP(w, r)
}

func (o *URLOrigin) Fetch(ctx context.Context, path string) (*cachestore.Entry, error) {
	u := o.Base.JoinPath()
	ref, err := url.Parse(path)
	if err != nil {
		return nil, err
	}
	u = u.ResolveReference(ref)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := o.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	return &cachestore.Entry{Status: resp.StatusCode, Header: resp.Header.Clone(), Body: body}, nil
}
