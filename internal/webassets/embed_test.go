package webassets

import (
	"html/template"
	"io/fs"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/keithlinneman/linnemanlabs-book/internal/content"
	"github.com/keithlinneman/linnemanlabs-book/internal/sitehandler"
)

func TestEmbeddedPages(t *testing.T) {
	seed, ok := SeedSiteFS()
	if !ok {
		t.Fatal("seed site has no index.html")
	}

	tests := []struct {
		name    string
		fsys    fs.FS
		file    string
		mention string
	}{
		{"maintenance", FallbackFS(), "maintenance.html", "maintenance"},
		{"not found", FallbackFS(), "404.html", "not found"},
		{"seed index", seed, "index.html", "<html"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := fs.ReadFile(tt.fsys, tt.file)
			if err != nil {
				t.Fatalf("read %s: %v", tt.file, err)
			}
			if !strings.Contains(strings.ToLower(string(data)), tt.mention) {
				t.Fatalf("%s does not mention %q", tt.file, tt.mention)
			}
		})
	}
}

func TestEmbeddedFS_Isolated(t *testing.T) {
	seed, _ := SeedSiteFS()
	for name, probe := range map[string]struct {
		fsys fs.FS
		path string
	}{
		"fallback parent": {FallbackFS(), "../seed"},
		"fallback seed":   {FallbackFS(), "seed/index.html"},
		"seed fallback":   {seed, "maintenance.html"},
		"seed layout":     {seed, "../layout/page.html"},
	} {
		if _, err := fs.Stat(probe.fsys, probe.path); err == nil {
			t.Errorf("%s: %s is reachable", name, probe.path)
		}
	}
}

func TestFallbackFS_ServedBySiteHandler(t *testing.T) {
	mgr := content.NewManager()
	h, err := sitehandler.New(sitehandler.Options{Content: mgr, FallbackFS: FallbackFS()})
	if err != nil {
		t.Fatalf("sitehandler rejected the embedded fallback pages: %v", err)
	}

	get := func() *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest("GET", "/missing", nil))
		return rec
	}

	if rec := get(); rec.Code != http.StatusServiceUnavailable || !strings.Contains(strings.ToLower(rec.Body.String()), "maintenance") {
		t.Fatalf("no content: status = %d body = %q", rec.Code, rec.Body.String())
	}

	mgr.Set(content.Snapshot{FS: fstest.MapFS{"index.html": {Data: []byte("home")}}})
	if rec := get(); rec.Code != http.StatusNotFound || !strings.Contains(rec.Body.String(), "Page not found") {
		t.Fatalf("missing page: status = %d body = %q", rec.Code, rec.Body.String())
	}
}

func TestLayoutTemplate_Renders(t *testing.T) {
	tmpl, err := LayoutTemplate(nil, "")
	if err != nil {
		t.Fatalf("LayoutTemplate: %v", err)
	}

	type item struct {
		Title, Path, Number string
		Children            []item
	}
	type heading struct {
		Level    int
		ID, Text string
	}
	data := map[string]any{
		"SiteName":    "Docs",
		"Title":       "Basics",
		"Description": "Learn the basics",
		"Version":     "1.2.3",
		"BasePath":    "/v2",
		"Number":      "2.1",
		"Content":     template.HTML("<h1>Basics</h1>"),
		"Nav": []item{
			{Title: "Intro", Path: "/", Number: "1"},
			{Title: "Learn", Number: "2", Children: []item{{Title: "Basics", Path: "/learn/basics", Number: "2.1"}}},
		},
		"Headings": []heading{{1, "basics", "Basics"}, {2, "setup", "Setup"}},
	}

	var buf strings.Builder
	if err := tmpl.ExecuteTemplate(&buf, PageLayout, data); err != nil {
		t.Fatalf("execute: %v", err)
	}
	out := buf.String()
	for _, want := range []string{
		"<title>Basics | Docs</title>",
		`href="/v2/learn/basics"`,
		"2.1. Basics",
		`data-page-number="2.1"`,
		"<h1>Basics</h1>",
		`href="#setup"`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestLayoutTemplate_Override(t *testing.T) {
	fsys := fstest.MapFS{"layout.html": &fstest.MapFile{Data: []byte(`<p>{{ .Title }}</p>`)}}
	tmpl, err := LayoutTemplate(fsys, "layout.html")
	if err != nil {
		t.Fatalf("LayoutTemplate: %v", err)
	}
	var buf strings.Builder
	if err := tmpl.ExecuteTemplate(&buf, PageLayout, map[string]any{"Title": "<x>"}); err != nil {
		t.Fatal(err)
	}
	if buf.String() != "<p>&lt;x&gt;</p>" {
		t.Fatalf("output = %q", buf.String())
	}

	if _, err := LayoutTemplate(fsys, "missing.html"); err == nil {
		t.Fatal("expected error for missing override")
	}
}
