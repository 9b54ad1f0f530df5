// Package frontend embeds the places journal app shell.
//
// Unlike a single-page app there is no index.html fallback: the shell is a
// set of real pages, and unknown paths are a 404 so the offline gateway can
// apply its own fallback chain.
package frontend

import (
	"embed"
	"io/fs"
	"net/http"
	"strings"
)

// Files contains the embedded web frontend.
//
//go:embed static
var Files embed.FS

// Handler serves the embedded shell pages and assets.
func Handler() http.Handler {
	sub, err := fs.Sub(Files, "static")
	if err != nil {
		panic(err)
	}
	fileServer := http.FileServerFS(sub)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Cache static assets briefly; documents always revalidate.
		if containsDot(r.URL.Path) && !strings.HasSuffix(r.URL.Path, ".html") {
			w.Header().Set("Cache-Control", "public, max-age=3600")
		} else {
			w.Header().Set("Cache-Control", "no-cache")
		}
		fileServer.ServeHTTP(w, r)
	})
}

// containsDot checks if the last path segment has a file extension.
func containsDot(path string) bool {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return false
		}
		if path[i] == '.' {
			return true
		}
	}
	return false
}
