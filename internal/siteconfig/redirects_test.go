package siteconfig

import (
	"context"
	"net/http"
	"strings"
	"testing"
)

func compileDefaultRedirects(t *testing.T, basePath string) *RedirectTable {
	t.Helper()
	rd, err := Redirects(context.Background())
	if err != nil {
		t.Fatalf("Redirects: %v", err)
	}
	tbl, err := CompileRedirects(basePath, rd)
	if err != nil {
		t.Fatalf("CompileRedirects: %v", err)
	}
	return tbl
}

func TestRedirects_Table(t *testing.T) {
	rd, err := Redirects(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(rd) != len(legacySections)+1 {
		t.Fatalf("len = %d, want %d", len(rd), len(legacySections)+1)
	}
	for _, r := range rd {
		if !r.Permanent {
			t.Errorf("%s is not permanent", r.Source)
		}
		if !r.BasePath {
			t.Errorf("%s is not mounted under the base path", r.Source)
		}
		if r.StatusCode() != http.StatusPermanentRedirect {
			t.Errorf("%s status = %d", r.Source, r.StatusCode())
		}
	}
	last := rd[len(rd)-1]
	if last.Source != "/more-resources/examples" || last.Destination != "/resources/examples" {
		t.Fatalf("last rule = %+v", last)
	}
}

func TestRedirects_WildcardSectionsThenExact(t *testing.T) {
	tbl := compileDefaultRedirects(t, "")
	src := tbl.Sources()
	if len(src) != 9 {
		t.Fatalf("len = %d, want 8 wildcard rules plus 1 exact", len(src))
	}
	for i, s := range src[:8] {
		if !strings.HasSuffix(s, "/:path*") {
			t.Errorf("rule %d = %q, want a wildcard rule", i, s)
		}
	}
	if src[8] != "/more-resources/examples" {
		t.Fatalf("last rule = %q, want the exact examples rule", src[8])
	}
	// the exact rule is listed after the overlapping wildcard and still wins
	if dest, _, _ := tbl.Resolve("/more-resources/examples"); dest != "/resources/examples" {
		t.Fatalf("dest = %q", dest)
	}
}

func TestRedirect_StatusCode_Temporary(t *testing.T) {
	if got := (Redirect{}).StatusCode(); got != http.StatusTemporaryRedirect {
		t.Fatalf("StatusCode = %d, want 307", got)
	}
}

func TestRedirectTable_LegacySections(t *testing.T) {
	tbl := compileDefaultRedirects(t, "")

	for _, s := range legacySections {
		t.Run(s, func(t *testing.T) {
			dest, status, ok := tbl.Resolve("/" + s + "/x/y")
			if !ok {
				t.Fatalf("no match for /%s/x/y", s)
			}
			if want := "/learn/" + s + "/x/y"; dest != want {
				t.Errorf("dest = %q, want %q", dest, want)
			}
			if status != http.StatusPermanentRedirect {
				t.Errorf("status = %d", status)
			}

			dest, _, ok = tbl.Resolve("/" + s)
			if !ok || dest != "/learn/"+s {
				t.Errorf("bare section: dest = %q ok = %v", dest, ok)
			}
		})
	}
}

func TestRedirectTable_ExactRuleWins(t *testing.T) {
	tbl := compileDefaultRedirects(t, "")

	dest, status, ok := tbl.Resolve("/more-resources/examples")
	if !ok {
		t.Fatal("no match")
	}
	if dest != "/resources/examples" {
		t.Fatalf("dest = %q, want /resources/examples", dest)
	}
	if status != http.StatusPermanentRedirect {
		t.Fatalf("status = %d", status)
	}

	dest, _, _ = tbl.Resolve("/more-resources/examples/deeper")
	if dest != "/learn/more-resources/examples/deeper" {
		t.Fatalf("deeper path dest = %q", dest)
	}
}

func TestRedirectTable_BasePath(t *testing.T) {
	tbl := compileDefaultRedirects(t, "/v2")

	dest, _, ok := tbl.Resolve("/v2/basics/install")
	if !ok || dest != "/v2/learn/basics/install" {
		t.Fatalf("dest = %q ok = %v", dest, ok)
	}
	if _, _, ok := tbl.Resolve("/basics/install"); ok {
		t.Fatal("rule must not match outside the base path")
	}
	dest, _, ok = tbl.Resolve("/v2/more-resources/examples")
	if !ok || dest != "/v2/resources/examples" {
		t.Fatalf("exact dest = %q ok = %v", dest, ok)
	}
}

func TestRedirectTable_NoMatch(t *testing.T) {
	tbl := compileDefaultRedirects(t, "")
	for _, p := range []string{"/", "/learn/basics", "/basicsx", "/resources/examples"} {
		if dest, _, ok := tbl.Resolve(p); ok {
			t.Errorf("%s unexpectedly redirected to %s", p, dest)
		}
	}
	var nilTable *RedirectTable
	if _, _, ok := nilTable.Resolve("/basics"); ok {
		t.Fatal("nil table matched")
	}
}

func TestRedirectTable_DotSegments(t *testing.T) {
	tbl := compileDefaultRedirects(t, "/v2")
	for _, p := range []string{
		"/v2/basics/../../../x",
		"/v2/basics/./intro",
		"/v2/more-resources/%2e%2e/admin",
	} {
		if dest, _, ok := tbl.Resolve(p); ok {
			t.Errorf("%s unexpectedly redirected to %s", p, dest)
		}
	}
}

func TestRedirectTable_EncodedSlash(t *testing.T) {
	tbl := compileDefaultRedirects(t, "/v2")
	dest, _, ok := tbl.Resolve("/v2/basics/a%2Fb")
	if !ok || dest != "/v2/learn/basics/a%2Fb" {
		t.Fatalf("dest = %q ok = %v", dest, ok)
	}
}

func TestCompileRedirects_InvalidRule(t *testing.T) {
	_, err := CompileRedirects("", []Redirect{{Source: "/a/:x", Destination: "/b/:y"}})
	if err == nil {
		t.Fatal("expected error for uncaptured destination parameter")
	}
}

func TestRedirectTable_Sources(t *testing.T) {
	tbl := compileDefaultRedirects(t, "/v2")
	src := tbl.Sources()
	if len(src) != tbl.Len() {
		t.Fatalf("Sources len = %d, Len = %d", len(src), tbl.Len())
	}
	if src[0] != "/v2/advanced-development/:path*" {
		t.Fatalf("first source = %q", src[0])
	}
}
