// Package cfg defines the command line flags of the server and builder.
// Every flag can also come from the environment: flag "http-port" reads
// BOOK_HTTP_PORT, and an explicit flag wins over the environment.
package cfg

import (
	"errors"
	"flag"
	"fmt"
	"net"
	"net/url"
	"time"
)

// EnvPrefix is prepended to flag names when reading them from the environment.
const EnvPrefix = "BOOK_"

// Content modes for the server.
const (
	ModeSeed   = "seed"   // embedded seed site only
	ModeLocal  = "local"  // build the content directory at startup
	ModeBundle = "bundle" // a bundle file written by the builder
	ModeS3     = "s3"     // published bundles from S3, located through SSM
)

var modes = []string{ModeSeed, ModeLocal, ModeBundle, ModeS3}

// problems collects every invalid setting so one run reports them all.
type problems []error

func (p *problems) add(ok bool, format string, args ...any) {
	if !ok {
		*p = append(*p, fmt.Errorf(format, args...))
	}
}

func (p *problems) merge(errs []error) { *p = append(*p, errs...) }

func (p problems) err() error { return errors.Join(p...) }

// App is the server configuration.
type App struct {
	Logging
	Build
	Bundle

	HTTPPort        int
	AdminPort       int
	EnablePprof     bool
	EnablePyroscope bool
	EnableTracing   bool
	PyroServer      string
	PyroTenantID    string
	OTLPEndpoint    string
	TraceSample     float64

	ContentMode          string
	BundleFile           string
	Watch                bool
	EnableContentUpdates bool
	ContentPollInterval  time.Duration

	TrustedProxyHops int
	RateLimitRPS     float64
	RateLimitBurst   int
}

// Register binds the server flags to fs.
func Register(fs *flag.FlagSet, c *App) {
	registerLogging(fs, &c.Logging, true)
	registerBuild(fs, &c.Build)
	registerBundle(fs, &c.Bundle)

	fs.IntVar(&c.HTTPPort, "http-port", 8080, "site listen TCP port")
	fs.IntVar(&c.AdminPort, "admin-port", 9000, "ops listen TCP port (health, metrics, pprof)")
	fs.BoolVar(&c.EnablePprof, "enable-pprof", true, "serve /debug/pprof on the ops port")
	fs.BoolVar(&c.EnableTracing, "enable-tracing", false, "export traces over OTLP gRPC to otlp-endpoint")
	fs.BoolVar(&c.EnablePyroscope, "enable-pyroscope", false, "push continuous profiles to pyro-server")
	fs.Float64Var(&c.TraceSample, "trace-sample", 0.0, "trace sampling ratio (0..1)")
	fs.StringVar(&c.PyroServer, "pyro-server", "", "pyroscope server URL")
	fs.StringVar(&c.PyroTenantID, "pyro-tenant", "", "pyroscope tenant (X-Scope-OrgID)")
	fs.StringVar(&c.OTLPEndpoint, "otlp-endpoint", "", "OTLP gRPC collector (host:port)")

	fs.StringVar(&c.ContentMode, "content-mode", ModeLocal, "where site content comes from: seed|local|bundle|s3")
	fs.StringVar(&c.BundleFile, "bundle-file", "site.tar.gz", "bundle written by the builder (bundle mode)")
	fs.BoolVar(&c.Watch, "watch", false, "reload when content-dir or bundle-file changes (local and bundle modes)")
	fs.BoolVar(&c.EnableContentUpdates, "enable-content-updates", true, "poll SSM for new bundles (s3 mode)")
	fs.DurationVar(&c.ContentPollInterval, "content-poll-interval", 30*time.Second, "bundle poll interval (s3 mode)")

	fs.IntVar(&c.TrustedProxyHops, "trusted-proxy-hops", 1, "reverse proxies trusted to append X-Forwarded-For")
	fs.Float64Var(&c.RateLimitRPS, "rate-limit-rps", 10, "per-client request refill rate")
	fs.IntVar(&c.RateLimitBurst, "rate-limit-burst", 30, "per-client request burst")
}

func validPort(p int) bool { return p >= 1 && p <= 65535 }

// Validate reports every invalid setting in c, or nil.
func Validate(c App) error {
	var p problems
	p.add(validPort(c.HTTPPort), "invalid %s %d (want 1..65535)", envName("http-port"), c.HTTPPort)
	p.add(validPort(c.AdminPort), "invalid %s %d (want 1..65535)", envName("admin-port"), c.AdminPort)
	p.add(c.AdminPort != c.HTTPPort, "%s and %s must differ (both %d)", envName("admin-port"), envName("http-port"), c.HTTPPort)
	p.merge(c.Logging.validate())

	p.add(c.TraceSample >= 0 && c.TraceSample <= 1, "invalid %s %.3f (want 0..1)", envName("trace-sample"), c.TraceSample)
	if c.EnablePyroscope {
		u, err := url.Parse(c.PyroServer)
		p.add(err == nil && u.Scheme != "" && u.Host != "", "%s must be a URL when profiling is enabled (got %q)", envName("pyro-server"), c.PyroServer)
		p.add(c.PyroTenantID != "", "%s is required when profiling is enabled", envName("pyro-tenant"))
	}
	if c.EnableTracing {
		// the gRPC exporter takes host:port without a scheme
		_, _, err := net.SplitHostPort(c.OTLPEndpoint)
		p.add(err == nil, "%s must be host:port when tracing is enabled (got %q)", envName("otlp-endpoint"), c.OTLPEndpoint)
	}

	switch c.ContentMode {
	case ModeSeed:
	case ModeLocal:
		p.merge(c.Build.validate())
	case ModeBundle:
		p.add(c.BundleFile != "", "%s is required in bundle mode", envName("bundle-file"))
	case ModeS3:
		p.merge(c.Bundle.validate())
		p.add(!c.EnableContentUpdates || c.ContentPollInterval >= time.Second,
			"%s must be at least 1s (got %s)", envName("content-poll-interval"), c.ContentPollInterval)
	default:
		p.add(false, "invalid %s %q (want one of %v)", envName("content-mode"), c.ContentMode, modes)
	}
	p.add(!c.Watch || c.ContentMode == ModeLocal || c.ContentMode == ModeBundle,
		"%s needs content mode local or bundle", envName("watch"))

	p.add(c.TrustedProxyHops >= 0, "invalid %s %d (want >= 0)", envName("trusted-proxy-hops"), c.TrustedProxyHops)
	p.add(c.RateLimitRPS > 0 && c.RateLimitBurst >= 1, "%s and %s must be positive (got %.2f, %d)",
		envName("rate-limit-rps"), envName("rate-limit-burst"), c.RateLimitRPS, c.RateLimitBurst)
	return p.err()
}
