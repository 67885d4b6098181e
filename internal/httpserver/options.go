package httpserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/keithlinneman/linnemanlabs-book/internal/health"
	"github.com/keithlinneman/linnemanlabs-book/internal/httpmw"
	"github.com/keithlinneman/linnemanlabs-book/internal/log"
)

type Options struct {
	Logger       log.Logger
	Port         int
	UseRecoverMW bool
	OnPanic      func()
	MetricsMW    func(http.Handler) http.Handler
	RateLimitMW  func(http.Handler) http.Handler
	ClientIPOpts httpmw.ClientIPOptions
	Health       health.Probe
	Readiness    health.Probe
	ContentInfo  httpmw.ContentInfo
	Security     httpmw.SecurityOptions

	// MaxBodyBytes caps request bodies. Rewrites forward bodies to proxied
	// sub-sites, so this is not tiny. Default 1 MiB.
	MaxBodyBytes int64

	// APIRoutes registers explicit routes ahead of the site.
	APIRoutes func(chi.Router)

	// SiteHandler serves every request no explicit route matched: the docs
	// site, its legacy redirects and fallback rewrites.
	SiteHandler http.Handler
}
