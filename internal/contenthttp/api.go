// Package contenthttp serves read-only JSON about the active site bundle:
// its manifest, a short summary and the page index.
package contenthttp

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/keithlinneman/linnemanlabs-book/internal/content"
	"github.com/keithlinneman/linnemanlabs-book/internal/httpmw"
	"github.com/keithlinneman/linnemanlabs-book/internal/log"
)

// Prefix is where the API is mounted. It sits outside the site base path so
// the redirect and rewrite tables never see it.
const Prefix = "/_book/content"

// SnapshotProvider defines the interface for getting content snapshots
type SnapshotProvider interface {
	Get() (*content.Snapshot, bool)
}

// API implements the content endpoints
type API struct {
	content SnapshotProvider
	logger  log.Logger
}

// NewAPI creates a new content API handler
func NewAPI(content SnapshotProvider, logger log.Logger) *API {
	if logger == nil {
		logger = log.Nop()
	}
	return &API{
		content: content,
		logger:  logger,
	}
}

// RegisterRoutes attaches the content endpoints to the router
func (api *API) RegisterRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(httpmw.Scope("content"))
		r.Get(Prefix, api.HandleContent)
		r.Get(Prefix+"/summary", api.HandleSummary)
		r.Get(Prefix+"/pages", api.HandlePages)
	})
}

// ContentResponse is the full manifest plus runtime details.
type ContentResponse struct {
	Manifest *content.Manifest `json:"manifest,omitempty"`
	Runtime  RuntimeInfo       `json:"runtime"`
	Error    string            `json:"error,omitempty"`
}

// RuntimeInfo describes how this server got the active bundle.
type RuntimeInfo struct {
	LoadedAt   time.Time      `json:"loaded_at"`
	ServerTime time.Time      `json:"server_time"`
	Source     content.Source `json:"source"`
	SHA256     string         `json:"sha256,omitempty"`
	Version    string         `json:"version,omitempty"`
	SignedBy   string         `json:"signed_by,omitempty"`
}

// SummaryResponse is a lightweight summary for page footers.
type SummaryResponse struct {
	Version     string    `json:"version"`
	SHA256      string    `json:"sha256"`
	BasePath    string    `json:"base_path"`
	BuiltAt     time.Time `json:"built_at"`
	Pages       int       `json:"pages"`
	TotalFiles  int       `json:"total_files"`
	TotalSize   int64     `json:"total_size"`
	Diagnostics int       `json:"diagnostics"`
	Source      string    `json:"source"`
	Signed      bool      `json:"signed"`
	LoadedAt    time.Time `json:"loaded_at"`
}

// PagesResponse lists every built page in manifest order.
type PagesResponse struct {
	Version string                 `json:"version"`
	Pages   []content.ManifestPage `json:"pages"`
}

// HandleContent serves the manifest of the active bundle
func (api *API) HandleContent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	snap, ok := api.content.Get()
	if !ok {
		api.writeJSON(ctx, w, http.StatusServiceUnavailable, ContentResponse{
			Runtime: RuntimeInfo{
				ServerTime: time.Now().UTC().Truncate(time.Second),
			},
			Error: "no content loaded",
		})
		return
	}

	resp := ContentResponse{
		Manifest: snap.Manifest,
		Runtime:  runtimeInfo(snap),
	}
	if snap.Manifest == nil {
		resp.Error = "manifest not available for this bundle"
	}

	api.logger.Debug(ctx, "served content manifest",
		"version", snap.Meta.Version,
		"sha256", snap.Meta.SHA256,
	)

	api.writeJSON(ctx, w, http.StatusOK, resp)
}

// HandleSummary serves a short description of the active bundle
func (api *API) HandleSummary(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	snap, ok := api.content.Get()
	if !ok {
		api.writeError(ctx, w, http.StatusServiceUnavailable, "no content loaded")
		return
	}

	resp := SummaryResponse{
		Version:  snap.Meta.Version,
		SHA256:   snap.Meta.SHA256,
		Source:   string(snap.Meta.Source),
		Signed:   snap.Meta.SignedBy != "",
		LoadedAt: snap.LoadedAt.UTC().Truncate(time.Second),
	}
	if m := snap.Manifest; m != nil {
		if resp.Version == "" {
			resp.Version = m.Version
		}
		resp.BasePath = m.BasePath
		resp.BuiltAt = m.BuiltAt
		resp.Pages = m.Summary.Pages
		resp.TotalFiles = m.Summary.TotalFiles
		resp.TotalSize = m.Summary.TotalSize
		resp.Diagnostics = m.Diagnostics
	}

	api.writeJSON(ctx, w, http.StatusOK, resp)
}

// HandlePages serves the page index used by client-side search and navigation
func (api *API) HandlePages(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	snap, ok := api.content.Get()
	if !ok {
		api.writeError(ctx, w, http.StatusServiceUnavailable, "no content loaded")
		return
	}
	if snap.Manifest == nil {
		api.writeError(ctx, w, http.StatusNotFound, "manifest not available for this bundle")
		return
	}

	pages := snap.Manifest.Pages
	if pages == nil {
		pages = []content.ManifestPage{}
	}
	api.writeJSON(ctx, w, http.StatusOK, PagesResponse{
		Version: snap.Manifest.Version,
		Pages:   pages,
	})
}

func runtimeInfo(snap *content.Snapshot) RuntimeInfo {
	return RuntimeInfo{
		LoadedAt:   snap.LoadedAt.UTC().Truncate(time.Second),
		ServerTime: time.Now().UTC().Truncate(time.Second),
		Source:     snap.Meta.Source,
		SHA256:     snap.Meta.SHA256,
		Version:    snap.Meta.Version,
		SignedBy:   snap.Meta.SignedBy,
	}
}

func (api *API) writeError(ctx context.Context, w http.ResponseWriter, status int, msg string) {
	api.writeJSON(ctx, w, status, map[string]string{"error": msg})
}

func (api *API) writeJSON(ctx context.Context, w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		api.logger.Warn(ctx, "failed to encode JSON response", "error", err)
	}
}
