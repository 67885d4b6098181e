package siterouter

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"testing/fstest"

	"github.com/keithlinneman/linnemanlabs-book/internal/content"
	"github.com/keithlinneman/linnemanlabs-book/internal/log"
	"github.com/keithlinneman/linnemanlabs-book/internal/siteconfig"
	"github.com/keithlinneman/linnemanlabs-book/internal/sitehandler"
)

type countingMetrics struct {
	mu          sync.Mutex
	redirects   map[int]int
	rewrites    map[string]int
	proxyErrors int
}

func newCountingMetrics() *countingMetrics {
	return &countingMetrics{redirects: map[int]int{}, rewrites: map[string]int{}}
}

func (m *countingMetrics) IncRedirect(status int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.redirects[status]++
}

func (m *countingMetrics) IncRewrite(tier string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rewrites[tier]++
}

func (m *countingMetrics) IncProxyError() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.proxyErrors++
}

// upstream records what the proxied sub-site receives.
type upstream struct {
	*httptest.Server
	mu   sync.Mutex
	last *http.Request
}

func newUpstream(t *testing.T) *upstream {
	t.Helper()
	u := &upstream{}
	u.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u.mu.Lock()
		u.last = r.Clone(context.Background())
		u.mu.Unlock()
		w.Header().Set("Content-Type", "text/plain")
		_, _ = io.WriteString(w, "upstream "+r.URL.Path)
	}))
	t.Cleanup(u.Close)
	return u
}

func (u *upstream) lastRequest() *http.Request {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.last
}

type testStack struct {
	handler http.Handler
	metrics *countingMetrics
}

func newStack(t *testing.T, vars map[string]string) *testStack {
	t.Helper()
	env := siteconfig.LoadEnv(func(k string) (string, bool) {
		v, ok := vars[k]
		return v, ok
	})
	cfg := siteconfig.Base(env)
	tables, err := Compile(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}

	mgr := content.NewManager()
	mgr.Set(content.Snapshot{FS: fstest.MapFS{
		"index.html":                    {Data: []byte("<h1>Home</h1>")},
		"learn/basics/index.html":       {Data: []byte("<h1>Basics</h1>")},
		"learn/basics/intro/index.html": {Data: []byte("<h1>Intro</h1>")},
		"resources/examples/index.html": {Data: []byte("<h1>Examples</h1>")},
		"404.html":                      {Data: []byte("<h1>Missing</h1>")},
	}})

	m := newCountingMetrics()
	rt := New(Options{Logger: log.Nop(), Tables: tables, Metrics: m})
	site, err := sitehandler.New(sitehandler.Options{
		Content:    mgr,
		FallbackFS: fstest.MapFS{"maintenance.html": {Data: []byte("down")}},
		BasePath:   cfg.BasePath,
		Fallback:   rt,
	})
	if err != nil {
		t.Fatalf("sitehandler.New: %v", err)
	}
	return &testStack{handler: rt.Wrap(site), metrics: m}
}

func (s *testStack) do(method, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

func TestRouter_Redirects(t *testing.T) {
	s := newStack(t, nil)

	tests := []struct {
		path string
		want string
	}{
		{"/v2/basics", "/v2/learn/basics"},
		{"/v2/basics/intro", "/v2/learn/basics/intro"},
		{"/v2/storefront-development/checkout/step", "/v2/learn/storefront-development/checkout/step"},
		{"/v2/more-resources/examples", "/v2/resources/examples"},
		{"/v2/more-resources/other", "/v2/learn/more-resources/other"},
		{"/v2/basics/intro?tab=2", "/v2/learn/basics/intro?tab=2"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := s.do("GET", tt.path)
			if rec.Code != http.StatusPermanentRedirect {
				t.Fatalf("status = %d, want 308", rec.Code)
			}
			if loc := rec.Header().Get("Location"); loc != tt.want {
				t.Fatalf("Location = %q, want %q", loc, tt.want)
			}
		})
	}
	if s.metrics.redirects[http.StatusPermanentRedirect] != len(tests) {
		t.Fatalf("redirect metrics = %v", s.metrics.redirects)
	}
}

func TestRouter_RedirectsOnlyUnderBasePath(t *testing.T) {
	s := newStack(t, nil)
	if rec := s.do("GET", "/basics/intro"); rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestRouter_ServesSite(t *testing.T) {
	s := newStack(t, nil)

	rec := s.do("GET", "/v2/learn/basics/intro")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "Intro") {
		t.Fatalf("status = %d body = %q", rec.Code, rec.Body.String())
	}
	if len(s.metrics.rewrites) != 0 {
		t.Fatalf("existing page must not be rewritten: %v", s.metrics.rewrites)
	}
}

func TestRouter_FallbackRewriteProxies(t *testing.T) {
	up := newUpstream(t)
	s := newStack(t, map[string]string{
		siteconfig.EnvResourcesURL: up.URL,
		siteconfig.EnvAPIURL:       up.URL,
	})

	tests := []struct {
		method string
		target string
		path   string
		query  string
	}{
		{"GET", "/v2/resources", "/v2/resources", ""},
		{"GET", "/v2/resources/commerce/products?limit=5", "/v2/resources/commerce/products", "limit=5"},
		{"GET", "/v2/api/store/carts", "/v2/api/store/carts", ""},
		{"POST", "/v2/api/admin/products", "/v2/api/admin/products", ""},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.target, func(t *testing.T) {
			rec := s.do(tt.method, tt.target)
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d body = %q", rec.Code, rec.Body.String())
			}
			got := up.lastRequest()
			if got.Method != tt.method || got.URL.Path != tt.path || got.URL.RawQuery != tt.query {
				t.Fatalf("upstream saw %s %s?%s", got.Method, got.URL.Path, got.URL.RawQuery)
			}
			if got.Header.Get("X-Forwarded-Host") == "" {
				t.Fatal("X-Forwarded-Host not set")
			}
		})
	}
	if s.metrics.rewrites[TierFallback] != len(tests) {
		t.Fatalf("rewrite metrics = %v", s.metrics.rewrites)
	}
}

func TestRouter_RewriteKeepsEncodedSlash(t *testing.T) {
	up := newUpstream(t)
	s := newStack(t, map[string]string{siteconfig.EnvAPIURL: up.URL})

	rec := s.do("GET", "/v2/api/files/a%2Fb.txt?v=1")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body = %q", rec.Code, rec.Body.String())
	}
	got := up.lastRequest()
	if got == nil {
		t.Fatal("upstream not called")
	}
	if want := "/v2/api/files/a%2Fb.txt?v=1"; got.RequestURI != want {
		t.Fatalf("upstream RequestURI = %q, want %q", got.RequestURI, want)
	}
}

func TestRouter_DotSegmentsNotRouted(t *testing.T) {
	up := newUpstream(t)
	s := newStack(t, map[string]string{
		siteconfig.EnvAPIURL:       up.URL,
		siteconfig.EnvResourcesURL: up.URL,
	})

	for _, target := range []string{
		"/v2/api/../../admin",
		"/v2/api/store/../../../admin/secret",
		"/v2/api/%2e%2e/%2e%2e/admin",
		"/v2/resources/./commerce",
		"/v2/basics/../../../x",
		"/v2/more-resources/%2E%2E/x",
	} {
		t.Run(target, func(t *testing.T) {
			rec := s.do("GET", target)
			if rec.Code != http.StatusNotFound {
				t.Fatalf("status = %d, want 404 (Location %q)", rec.Code, rec.Header().Get("Location"))
			}
		})
	}
	if got := up.lastRequest(); got != nil {
		t.Fatalf("upstream called with %s", got.RequestURI)
	}
	if len(s.metrics.redirects) != 0 || len(s.metrics.rewrites) != 0 {
		t.Fatalf("redirects = %v rewrites = %v", s.metrics.redirects, s.metrics.rewrites)
	}
}

func TestRouter_StaticFileWinsOverFallback(t *testing.T) {
	up := newUpstream(t)
	s := newStack(t, map[string]string{siteconfig.EnvResourcesURL: up.URL})

	rec := s.do("GET", "/v2/resources/examples")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "Examples") {
		t.Fatalf("status = %d body = %q", rec.Code, rec.Body.String())
	}
	if up.lastRequest() != nil {
		t.Fatal("upstream must not be called when a file matches")
	}
}

func TestRouter_DisabledRewriteNotMatched(t *testing.T) {
	up := newUpstream(t)
	s := newStack(t, map[string]string{siteconfig.EnvUserGuideURL: up.URL})

	if rec := s.do("GET", "/user-guide/orders"); rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	if up.lastRequest() != nil {
		t.Fatal("disabled rewrite reached upstream")
	}
}

func TestRouter_ProxyError(t *testing.T) {
	dead := httptest.NewServer(http.NotFoundHandler())
	deadURL := dead.URL
	dead.Close()

	s := newStack(t, map[string]string{siteconfig.EnvAPIURL: deadURL})
	rec := s.do("GET", "/v2/api/store/carts")
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", rec.Code)
	}
	if s.metrics.proxyErrors != 1 {
		t.Fatalf("proxy errors = %d", s.metrics.proxyErrors)
	}
}

func TestRouter_NonGETWithoutRewrite(t *testing.T) {
	s := newStack(t, nil)
	if rec := s.do("POST", "/v2/learn/basics"); rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", rec.Code)
	}
}

func TestRouter_LocalRewrite(t *testing.T) {
	set, err := siteconfig.CompileRewrites("/v2", []siteconfig.Rewrite{
		{Source: "/guide/:path*", Destination: "/learn/:path*", BasePath: true},
		{Source: "/loop/:path*", Destination: "/loop/:path*", BasePath: true},
	})
	if err != nil {
		t.Fatal(err)
	}
	mgr := content.NewManager()
	mgr.Set(content.Snapshot{FS: fstest.MapFS{
		"index.html":              {Data: []byte("home")},
		"learn/basics/index.html": {Data: []byte("basics")},
	}})
	rt := New(Options{Tables: &Tables{Fallback: set}})
	site, err := sitehandler.New(sitehandler.Options{
		Content:    mgr,
		FallbackFS: fstest.MapFS{"maintenance.html": {Data: []byte("down")}},
		BasePath:   "/v2",
		Fallback:   rt,
	})
	if err != nil {
		t.Fatal(err)
	}
	h := rt.Wrap(site)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/v2/guide/basics", nil))
	if rec.Code != http.StatusOK || rec.Body.String() != "basics" {
		t.Fatalf("status = %d body = %q", rec.Code, rec.Body.String())
	}

	// a rewrite onto a missing path is served once, not re-rewritten
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/v2/loop/x", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestCompile_NilHooks(t *testing.T) {
	tables, err := Compile(context.Background(), siteconfig.Config{BasePath: "/v2"})
	if err != nil {
		t.Fatal(err)
	}
	rt := New(Options{Tables: tables})
	rec := httptest.NewRecorder()
	rt.ServeHTTP(rec, httptest.NewRequest("GET", "/v2", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404 without a site", rec.Code)
	}
}
