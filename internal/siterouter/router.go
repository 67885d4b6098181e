// Package siterouter puts the site configuration's URL tables in front of
// the built site.
//
// Request order:
//  1. legacy redirects
//  2. beforeFiles rewrites
//  3. the built site (sitehandler)
//  4. afterFiles then fallback rewrites, only when no file matched
//
// Rewrites to an absolute URL are reverse proxied. Rewrites to a local path
// are served from the site under the rewritten path. Tables match the escaped
// request path, so encoded slashes survive into the destination and paths
// with dot segments never match a rule.
package siterouter

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/keithlinneman/linnemanlabs-book/internal/httpmw"
	"github.com/keithlinneman/linnemanlabs-book/internal/log"
	"github.com/keithlinneman/linnemanlabs-book/internal/siteconfig"
	"github.com/keithlinneman/linnemanlabs-book/internal/xerrors"
)

// Rewrite tiers, also used as metric labels.
const (
	TierBeforeFiles = "beforeFiles"
	TierAfterFiles  = "afterFiles"
	TierFallback    = "fallback"
)

// Metrics observes routing decisions.
type Metrics interface {
	IncRedirect(status int)
	IncRewrite(tier string)
	IncProxyError()
}

// Tables are the compiled URL tables of a site configuration.
type Tables struct {
	Redirects   *siteconfig.RedirectTable
	BeforeFiles *siteconfig.RewriteSet
	AfterFiles  *siteconfig.RewriteSet
	Fallback    *siteconfig.RewriteSet
}

// Compile resolves the configuration's redirect and rewrite hooks and
// compiles them against its base path.
func Compile(ctx context.Context, cfg siteconfig.Config) (*Tables, error) {
	t := &Tables{}
	if cfg.Redirects != nil {
		rs, err := cfg.Redirects(ctx)
		if err != nil {
			return nil, xerrors.Wrap(err, "load redirects")
		}
		if t.Redirects, err = siteconfig.CompileRedirects(cfg.BasePath, rs); err != nil {
			return nil, err
		}
	}
	if cfg.Rewrites != nil {
		rt, err := cfg.Rewrites(ctx)
		if err != nil {
			return nil, xerrors.Wrap(err, "load rewrites")
		}
		if t.BeforeFiles, err = siteconfig.CompileRewrites(cfg.BasePath, rt.BeforeFiles); err != nil {
			return nil, xerrors.Wrap(err, TierBeforeFiles)
		}
		if t.AfterFiles, err = siteconfig.CompileRewrites(cfg.BasePath, rt.AfterFiles); err != nil {
			return nil, xerrors.Wrap(err, TierAfterFiles)
		}
		if t.Fallback, err = siteconfig.CompileRewrites(cfg.BasePath, rt.Fallback); err != nil {
			return nil, xerrors.Wrap(err, TierFallback)
		}
	}
	return t, nil
}

type Options struct {
	Logger  log.Logger
	Tables  *Tables
	Metrics Metrics

	// Proxy forwards rewrites with absolute destinations. Defaults to
	// NewProxy(Logger, Metrics).
	Proxy http.Handler
}

// Router applies redirects and rewrites around the site handler.
type Router struct {
	site    http.Handler
	tables  *Tables
	proxy   http.Handler
	metrics Metrics
	logger  log.Logger
}

// New returns a Router. Call Wrap with the site handler once it exists;
// the site handler needs the Router as its sitehandler.Fallback.
func New(opts Options) *Router {
	if opts.Logger == nil {
		opts.Logger = log.Nop()
	}
	if opts.Tables == nil {
		opts.Tables = &Tables{}
	}
	if opts.Proxy == nil {
		opts.Proxy = NewProxy(opts.Logger, opts.Metrics)
	}
	return &Router{
		tables:  opts.Tables,
		proxy:   opts.Proxy,
		metrics: opts.Metrics,
		logger:  opts.Logger,
	}
}

// Wrap sets the site handler and returns the router.
func (rt *Router) Wrap(site http.Handler) *Router {
	rt.site = site
	return rt
}

func (rt *Router) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if dest, status, ok := rt.tables.Redirects.Resolve(r.URL.EscapedPath()); ok {
		httpmw.SetRoute(ctx, "redirect")
		if rt.metrics != nil {
			rt.metrics.IncRedirect(status)
		}
		http.Redirect(w, r, withQuery(dest, r.URL.RawQuery), status)
		return
	}

	if rt.rewrite(w, r, TierBeforeFiles, rt.tables.BeforeFiles) {
		return
	}

	if rt.site == nil {
		http.NotFound(w, r)
		return
	}
	httpmw.SetRoute(ctx, "static")
	rt.site.ServeHTTP(w, r)
}

// ServeFallback implements sitehandler.Fallback.
func (rt *Router) ServeFallback(w http.ResponseWriter, r *http.Request) bool {
	if rewritten(r.Context()) {
		return false
	}
	return rt.rewrite(w, r, TierAfterFiles, rt.tables.AfterFiles) ||
		rt.rewrite(w, r, TierFallback, rt.tables.Fallback)
}

func (rt *Router) rewrite(w http.ResponseWriter, r *http.Request, tier string, set *siteconfig.RewriteSet) bool {
	dest, source, ok := set.Match(r.URL.EscapedPath())
	if !ok {
		return false
	}
	ctx := r.Context()
	httpmw.SetRoute(ctx, "rewrite")
	if rt.metrics != nil {
		rt.metrics.IncRewrite(tier)
	}
	log.FromContext(ctx).Debug(ctx, "rewriting request", "tier", tier, "source", source, "destination", dest)

	if isAbsoluteURL(dest) {
		rt.proxy.ServeHTTP(w, withDestination(r, dest))
		return true
	}

	// local rewrite: serve the rewritten path once, without further rewrites
	if rt.site == nil {
		return false
	}
	u, err := url.Parse(dest)
	if err != nil {
		return false
	}
	r2 := r.Clone(markRewritten(ctx))
	r2.URL.Path = u.Path
	r2.URL.RawPath = u.RawPath
	if u.RawQuery != "" {
		r2.URL.RawQuery = joinQuery(u.RawQuery, r.URL.RawQuery)
	}
	rt.site.ServeHTTP(w, r2)
	return true
}

func isAbsoluteURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

func withQuery(dest, rawQuery string) string {
	if rawQuery == "" || strings.Contains(dest, "?") {
		return dest
	}
	return dest + "?" + rawQuery
}

func joinQuery(a, b string) string {
	switch {
	case a == "":
		return b
	case b == "":
		return a
	}
	return a + "&" + b
}

type rewrittenKey struct{}

func markRewritten(ctx context.Context) context.Context {
	return context.WithValue(ctx, rewrittenKey{}, true)
}

func rewritten(ctx context.Context) bool {
	v, _ := ctx.Value(rewrittenKey{}).(bool)
	return v
}
