package httpmw

import (
	"context"
	"net/http"
	"path"
	"strings"

	"github.com/go-chi/chi/v5"
)

// RouteUnmatched labels requests no handler named.
const RouteUnmatched = "unmatched"

type routeKey struct{}

type routeHolder struct{ name string }

// TrackRoute lets handlers below it name the route they served, so logs,
// spans and metrics share one low-cardinality label. It also seeds a chi
// route context that the router reuses, which keeps RoutePattern readable
// after the router returns.
func TrackRoute(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if chi.RouteContext(ctx) == nil {
			ctx = context.WithValue(ctx, chi.RouteCtxKey, chi.NewRouteContext())
		}
		ctx = context.WithValue(ctx, routeKey{}, &routeHolder{})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// SetRoute names the route serving the request, e.g. "redirect" or
// "static". It is a no-op outside TrackRoute.
func SetRoute(ctx context.Context, name string) {
	if h, ok := ctx.Value(routeKey{}).(*routeHolder); ok {
		h.name = name
	}
}

// Route returns the chi pattern of an explicit route, else the name set
// with SetRoute, else RouteUnmatched. Raw paths are never returned.
func Route(r *http.Request) string {
	ctx := r.Context()
	if rc := chi.RouteContext(ctx); rc != nil {
		// the site is mounted as the router's NotFound handler and has no pattern
		if p := rc.RoutePattern(); p != "" && p != "/*" {
			return p
		}
	}
	if h, ok := ctx.Value(routeKey{}).(*routeHolder); ok && h.name != "" {
		return h.name
	}
	return RouteUnmatched
}

// probePaths are hit by load balancers every few seconds.
var probePaths = map[string]bool{
	"/-/healthy": true,
	"/-/ready":   true,
	"/healthz":   true,
	"/readyz":    true,
}

// quietExts are page assets: images, fonts, styles and scripts.
var quietExts = map[string]bool{
	".css": true, ".js": true, ".map": true,
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".webp": true, ".avif": true, ".svg": true, ".ico": true,
	".woff": true, ".woff2": true, ".ttf": true,
}

// IsQuietPath reports whether p is a probe or a page asset. Those requests
// are neither traced nor access logged.
func IsQuietPath(p string) bool {
	if probePaths[p] || p == "/robots.txt" {
		return true
	}
	return quietExts[strings.ToLower(path.Ext(p))]
}
