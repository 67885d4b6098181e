package contenthttp

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"testing/fstest"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/keithlinneman/linnemanlabs-book/internal/content"
)

// test stubs

type stubSnapshotProvider struct {
	snap *content.Snapshot
	ok   bool
}

func (s *stubSnapshotProvider) Get() (*content.Snapshot, bool) {
	return s.snap, s.ok
}

func noContentProvider() *stubSnapshotProvider {
	return &stubSnapshotProvider{nil, false}
}

func testManifest() *content.Manifest {
	return &content.Manifest{
		Schema:   content.ManifestSchema,
		Version:  "2026.10.1",
		BasePath: "/v2",
		BuiltAt:  time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC),
		Summary: content.ManifestSummary{
			TotalFiles: 3,
			TotalSize:  2048,
			Pages:      2,
		},
		Pages: []content.ManifestPage{
			{Route: "/", Source: "page.mdx", Title: "Welcome"},
			{Route: "/learn/basics", Source: "(guides)/learn/basics/page.mdx", Title: "Basics", Number: "2.1"},
		},
		Diagnostics: 1,
	}
}

func contentProvider() *stubSnapshotProvider {
	return &stubSnapshotProvider{
		snap: &content.Snapshot{
			FS: fstest.MapFS{},
			Meta: content.Meta{
				SHA256:   "abc123def456",
				Source:   content.SourceS3,
				Version:  "2026.10.1",
				SignedBy: "alias/book-signing",
			},
			Manifest: testManifest(),
			LoadedAt: time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC),
		},
		ok: true,
	}
}

func contentProviderNoManifest() *stubSnapshotProvider {
	return &stubSnapshotProvider{
		snap: &content.Snapshot{
			FS:       fstest.MapFS{},
			Meta:     content.Meta{SHA256: "deadbeef", Source: content.SourceSeed, Version: "seed"},
			LoadedAt: time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC),
		},
		ok: true,
	}
}

func serve(api *API, target string) *httptest.ResponseRecorder {
	r := chi.NewRouter()
	api.RegisterRoutes(r)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest("GET", target, nil))
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("parse JSON: %v\nbody: %s", err, rec.Body.String())
	}
	return v
}

func TestNewAPI_NilLogger(t *testing.T) {
	api := NewAPI(noContentProvider(), nil)
	if api.logger == nil {
		t.Fatal("logger should default to Nop, not nil")
	}
}

func TestHandleContent(t *testing.T) {
	rec := serve(NewAPI(contentProvider(), nil), Prefix)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json; charset=utf-8" {
		t.Fatalf("Content-Type = %q", ct)
	}
	if cc := rec.Header().Get("Cache-Control"); cc != "no-cache" {
		t.Fatalf("Cache-Control = %q", cc)
	}
	resp := decode[ContentResponse](t, rec)
	if resp.Manifest == nil || resp.Manifest.Version != "2026.10.1" {
		t.Fatalf("manifest = %+v", resp.Manifest)
	}
	if resp.Runtime.SHA256 != "abc123def456" || resp.Runtime.Source != content.SourceS3 {
		t.Fatalf("runtime = %+v", resp.Runtime)
	}
	if resp.Runtime.SignedBy != "alias/book-signing" {
		t.Fatalf("signed_by = %q", resp.Runtime.SignedBy)
	}
	if resp.Error != "" {
		t.Fatalf("unexpected error %q", resp.Error)
	}
}

func TestHandleContent_NoContent(t *testing.T) {
	rec := serve(NewAPI(noContentProvider(), nil), Prefix)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", rec.Code)
	}
	resp := decode[ContentResponse](t, rec)
	if resp.Error != "no content loaded" || resp.Runtime.ServerTime.IsZero() {
		t.Fatalf("resp = %+v", resp)
	}
}

func TestHandleContent_NoManifest(t *testing.T) {
	rec := serve(NewAPI(contentProviderNoManifest(), nil), Prefix)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	resp := decode[ContentResponse](t, rec)
	if resp.Manifest != nil || resp.Error == "" {
		t.Fatalf("resp = %+v", resp)
	}
}

func TestHandleSummary(t *testing.T) {
	rec := serve(NewAPI(contentProvider(), nil), Prefix+"/summary")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	got := decode[SummaryResponse](t, rec)
	want := SummaryResponse{
		Version:     "2026.10.1",
		SHA256:      "abc123def456",
		BasePath:    "/v2",
		BuiltAt:     time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC),
		Pages:       2,
		TotalFiles:  3,
		TotalSize:   2048,
		Diagnostics: 1,
		Source:      "s3",
		Signed:      true,
		LoadedAt:    time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC),
	}
	if got != want {
		t.Fatalf("summary = %+v\nwant      %+v", got, want)
	}
}

func TestHandleSummary_FallsBackToMeta(t *testing.T) {
	rec := serve(NewAPI(contentProviderNoManifest(), nil), Prefix+"/summary")
	got := decode[SummaryResponse](t, rec)
	if got.Version != "seed" || got.SHA256 != "deadbeef" || got.Pages != 0 || got.Signed {
		t.Fatalf("summary = %+v", got)
	}
}

func TestHandleSummary_NoContent(t *testing.T) {
	rec := serve(NewAPI(noContentProvider(), nil), Prefix+"/summary")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := decode[map[string]string](t, rec)["error"]; got != "no content loaded" {
		t.Fatalf("error = %q", got)
	}
}

func TestHandlePages(t *testing.T) {
	rec := serve(NewAPI(contentProvider(), nil), Prefix+"/pages")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	got := decode[PagesResponse](t, rec)
	if len(got.Pages) != 2 || got.Pages[1].Route != "/learn/basics" || got.Pages[1].Number != "2.1" {
		t.Fatalf("pages = %+v", got.Pages)
	}
}

func TestHandlePages_EmptyIsArray(t *testing.T) {
	p := contentProvider()
	p.snap.Manifest.Pages = nil
	rec := serve(NewAPI(p, nil), Prefix+"/pages")
	if body := rec.Body.String(); body != `{"version":"2026.10.1","pages":[]}`+"\n" {
		t.Fatalf("body = %s", body)
	}
}

func TestHandlePages_NoManifest(t *testing.T) {
	rec := serve(NewAPI(contentProviderNoManifest(), nil), Prefix+"/pages")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rec.Code)
	}
}
