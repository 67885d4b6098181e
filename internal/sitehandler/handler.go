// Package sitehandler serves the active built site from a content snapshot.
package sitehandler

import (
	"io"
	"io/fs"
	"net/http"

	"github.com/keithlinneman/linnemanlabs-book/internal/pathutil"
)

type Handler struct {
	opts Options
}

func New(opts Options) (*Handler, error) {
	opts.setDefaults()
	if err := opts.validate(); err != nil {
		return nil, err
	}
	return &Handler{opts: opts}, nil
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		if !h.fallback(w, r) {
			w.Header().Set("Allow", "GET, HEAD")
			w.Header().Set("Cache-Control", "no-store")
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
		return
	}

	snap, ok := h.opts.Content.Get()
	if !ok {
		w.Header().Set("Cache-Control", "no-store")
		w.Header().Set("Retry-After", "60")
		serveWithStatus(w, r, http.StatusServiceUnavailable, h.opts.FallbackFS, h.opts.MaintenanceFile)
		return
	}

	var t target
	if rel, inside := pathutil.Unmount(h.opts.BasePath, r.URL.Path); inside {
		t = lookup(snap.FS, rel)
	}

	switch t.outcome {
	case found:
		if cc := h.opts.cachePolicy(t.name); cc != "" {
			w.Header().Set("Cache-Control", cc)
		}
		http.ServeFileFS(w, r, snap.FS, t.name)
	case canonicalize:
		loc := h.opts.BasePath + t.name
		if r.URL.RawQuery != "" {
			loc += "?" + r.URL.RawQuery
		}
		http.Redirect(w, r, loc, http.StatusPermanentRedirect)
	default:
		if !h.fallback(w, r) {
			h.notFound(w, r, snap.FS)
		}
	}
}

func (h *Handler) fallback(w http.ResponseWriter, r *http.Request) bool {
	return h.opts.Fallback != nil && h.opts.Fallback.ServeFallback(w, r)
}

// notFound serves the site's own 404 page, then the embedded one, then
// plain text.
func (h *Handler) notFound(w http.ResponseWriter, r *http.Request, site fs.FS) {
	w.Header().Set("Cache-Control", "no-store")
	pages := []struct {
		fsys fs.FS
		name string
	}{
		{site, h.opts.Site404File},
		{h.opts.FallbackFS, h.opts.Fallback404File},
	}
	for _, p := range pages {
		if isFile(p.fsys, p.name) {
			serveWithStatus(w, r, http.StatusNotFound, p.fsys, p.name)
			return
		}
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusNotFound)
	_, _ = io.WriteString(w, "404 page not found")
}

// forcedStatus replaces the status of the first WriteHeader call.
type forcedStatus struct {
	http.ResponseWriter
	status int
	forced bool
}

func (w *forcedStatus) WriteHeader(code int) {
	if !w.forced {
		w.forced = true
		code = w.status
	}
	w.ResponseWriter.WriteHeader(code)
}

func serveWithStatus(w http.ResponseWriter, r *http.Request, status int, fsys fs.FS, name string) {
	// ServeFileFS redirects requests for ".../index.html", so serve the
	// page under its own name rather than the request path
	r2 := r.Clone(r.Context())
	r2.URL.Path = "/" + name
	http.ServeFileFS(&forcedStatus{ResponseWriter: w, status: status}, r2, fsys, name)
}
