package opshttp

import (
	"cmp"
	"context"
	"net"
	"net/http"
	"net/http/pprof"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/keithlinneman/linnemanlabs-book/internal/health"
	"github.com/keithlinneman/linnemanlabs-book/internal/httpserver"
	"github.com/keithlinneman/linnemanlabs-book/internal/log"
)

// NewHandler builds the admin routes. Unconfigured endpoints answer 404;
// /debug/pprof/ is shadowed rather than left to a catch-all.
func NewHandler(L log.Logger, opts *Options) http.Handler {
	r := chi.NewRouter()
	r.Use(privateOnly(L))

	r.Get("/healthz", health.HealthzHandler(opts.Health))
	r.Get("/readyz", health.ReadyzHandler(opts.Readiness))
	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", opts.Metrics)
	}
	if opts.Config != nil {
		r.Method(http.MethodGet, "/config", opts.Config)
	}

	r.Route("/debug/pprof", func(r chi.Router) {
		if !opts.EnablePprof {
			r.HandleFunc("/*", http.NotFound)
			return
		}
		r.HandleFunc("/cmdline", pprof.Cmdline)
		r.HandleFunc("/profile", pprof.Profile)
		r.HandleFunc("/symbol", pprof.Symbol)
		r.HandleFunc("/trace", pprof.Trace)
		r.HandleFunc("/*", pprof.Index)
	})
	return r
}

// Start serves the admin routes on opts.Port.
func Start(ctx context.Context, L log.Logger, opts *Options) (func(context.Context) error, error) {
	srv := httpserver.NewServer(":"+strconv.Itoa(cmp.Or(opts.Port, DefaultPort)), NewHandler(L, opts))
	// profile and trace stream for up to their seconds parameter
	srv.WriteTimeout = 60 * time.Second
	L.Info(ctx, "ops endpoints", "pprof", opts.EnablePprof, "metrics", opts.Metrics != nil)
	return httpserver.Listen(ctx, L, "ops", srv)
}

// privateOnly rejects peers outside loopback, private and link-local
// ranges. It reads the TCP peer only, never forwarded headers.
func privateOnly(L log.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip, ok := peerIP(r.RemoteAddr)
			if !ok || !(ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast()) {
				L.Warn(r.Context(), "ops request rejected", "remote_addr", r.RemoteAddr, "path", r.URL.Path)
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func peerIP(remote string) (net.IP, bool) {
	host, _, err := net.SplitHostPort(remote)
	if err != nil {
		return nil, false
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return nil, false
	}
	if v4 := ip.To4(); v4 != nil {
		ip = v4
	}
	return ip, true
}
