// Package metrics owns the server's Prometheus registry. Application
// metrics are prefixed with Namespace; the Go and process collectors are
// not. Labels are limited to bounded values (method, route name, status,
// tier) so raw request paths never become series.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/keithlinneman/linnemanlabs-book/internal/version"
)

// Namespace prefixes every application metric name.
const Namespace = "book"

type ServerMetrics struct {
	reg     *prometheus.Registry
	handler http.Handler

	// http
	inflight       prometheus.Gauge
	reqTotal       *prometheus.CounterVec
	reqDur         *prometheus.HistogramVec
	respBytes      *prometheus.HistogramVec
	errorsTotal    *prometheus.CounterVec
	httpPanicTotal prometheus.Counter
	rlDenied       prometheus.Counter
	rlCapacity     prometheus.Counter

	// process
	buildInfo       *prometheus.GaugeVec
	profilingActive prometheus.Gauge

	// content
	contentSource          *prometheus.GaugeVec
	contentLoadedTimestamp prometheus.Gauge
	contentBundleInfo      *prometheus.GaugeVec
	watcherPollsTotal      prometheus.Counter
	watcherSwapsTotal      prometheus.Counter
	watcherErrorsTotal     *prometheus.CounterVec
	bundleLoadDuration     prometheus.Histogram
	watcherLastSuccessTs   prometheus.Gauge
	watcherStale           prometheus.Gauge

	// site routing and builds
	redirectsTotal     *prometheus.CounterVec
	rewritesTotal      *prometheus.CounterVec
	proxyErrorsTotal   prometheus.Counter
	buildDuration      prometheus.Histogram
	buildPages         prometheus.Gauge
	buildFailuresTotal prometheus.Counter
	diagnosticsTotal   *prometheus.CounterVec
}

// New creates a registry holding the Go and process collectors plus every
// application metric.
func New() *ServerMetrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(prometheus.WrapRegistererWithPrefix(Namespace+"_", reg))

	m := &ServerMetrics{
		reg: reg,

		inflight: f.NewGauge(prometheus.GaugeOpts{
			Name: "http_inflight_requests",
			Help: "Current number of in-flight HTTP requests",
		}),
		reqTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "HTTP requests by method, route name and status",
		}, []string{"method", "route", "status"}),
		reqDur: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Request latency by method and route name",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"method", "route"}),
		respBytes: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_response_size_bytes",
			Help:    "Response size by method and route name",
			Buckets: prometheus.ExponentialBuckets(256, 4, 10),
		}, []string{"method", "route"}),
		errorsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "http_errors_total",
			Help: "5xx responses by method and route name",
		}, []string{"method", "route"}),
		httpPanicTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "http_panic_total",
			Help: "Recovered handler panics",
		}),
		rlDenied: f.NewCounter(prometheus.CounterOpts{
			Name: "http_requests_rate_limited_total",
			Help: "Requests rejected by the rate limiter",
		}),
		rlCapacity: f.NewCounter(prometheus.CounterOpts{
			Name: "http_requests_rate_limited_capacity_total",
			Help: "Times the rate limiter reached its visitor capacity",
		}),

		buildInfo: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "build_info",
			Help: "Build metadata (value is always 1)",
		}, []string{"app", "component", "version", "commit", "commit_date", "build_id", "build_date", "vcs_dirty", "go_version"}),
		profilingActive: f.NewGauge(prometheus.GaugeOpts{
			Name: "profiling_active",
			Help: "Whether continuous profiling is running (1) or not (0)",
		}),

		contentSource: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "content_source_info",
			Help: "Source of the served site: seed, local or s3 (value is always 1)",
		}, []string{"source"}),
		contentLoadedTimestamp: f.NewGauge(prometheus.GaugeOpts{
			Name: "content_loaded_timestamp_seconds",
			Help: "Unix time the served site was loaded",
		}),
		contentBundleInfo: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "content_bundle_info",
			Help: "Digest of the served site (value is always 1)",
		}, []string{"sha256"}),
		watcherPollsTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "content_watcher_polls_total",
			Help: "Content watcher poll cycles",
		}),
		watcherSwapsTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "content_watcher_swaps_total",
			Help: "Sites swapped in by a watcher",
		}),
		watcherErrorsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "content_watcher_errors_total",
			Help: "Watcher errors by type",
		}, []string{"type"}),
		bundleLoadDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "content_bundle_load_duration_seconds",
			Help:    "Time to download, verify and extract a bundle",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60},
		}),
		watcherLastSuccessTs: f.NewGauge(prometheus.GaugeOpts{
			Name: "content_watcher_last_success_timestamp_seconds",
			Help: "Unix time of the last successful poll",
		}),
		watcherStale: f.NewGauge(prometheus.GaugeOpts{
			Name: "content_watcher_stale",
			Help: "Whether the S3 watcher has gone stale (1) or not (0)",
		}),

		redirectsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "site_redirects_total",
			Help: "Legacy redirects served by status code",
		}, []string{"status"}),
		rewritesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "site_rewrites_total",
			Help: "Rewritten requests by tier",
		}, []string{"tier"}),
		proxyErrorsTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "site_proxy_errors_total",
			Help: "Proxied rewrites that failed upstream",
		}),
		buildDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "site_build_duration_seconds",
			Help:    "Time to compile the content directory",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		buildPages: f.NewGauge(prometheus.GaugeOpts{
			Name: "site_build_pages",
			Help: "Pages in the last successful build",
		}),
		buildFailuresTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "site_build_failures_total",
			Help: "Failed site builds",
		}),
		diagnosticsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "site_content_diagnostics_total",
			Help: "Content diagnostics by pipeline plugin",
		}, []string{"plugin"}),
	}
	m.handler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{EnableOpenMetrics: true})
	return m
}

// Handler serves the registry for the ops listener.
func (m *ServerMetrics) Handler() http.Handler { return m.handler }

// Registry exposes the registry to tests and extra collectors.
func (m *ServerMetrics) Registry() *prometheus.Registry { return m.reg }

// SetBuildInfoFromVersion publishes the binary's version labels.
func (m *ServerMetrics) SetBuildInfoFromVersion(app, component string, vi version.Info) {
	m.buildInfo.With(prometheus.Labels{
		"app":         app,
		"component":   component,
		"version":     vi.Version,
		"commit":      vi.Commit,
		"commit_date": vi.CommitDate,
		"build_id":    vi.BuildId,
		"build_date":  vi.BuildDate,
		"go_version":  vi.GoVersion,
		"vcs_dirty":   vi.Dirty(),
	}).Set(1)
}

func (m *ServerMetrics) SetProfilingActive(active bool) { m.profilingActive.Set(boolGauge(active)) }

func (m *ServerMetrics) IncHttpPanic() { m.httpPanicTotal.Inc() }

func (m *ServerMetrics) IncRateLimitDenied() { m.rlDenied.Inc() }

func (m *ServerMetrics) IncRateLimitCapacity() { m.rlCapacity.Inc() }

// SetContentSource replaces the source label of the served site.
func (m *ServerMetrics) SetContentSource(source string) {
	m.contentSource.Reset()
	m.contentSource.WithLabelValues(source).Set(1)
}

func (m *ServerMetrics) SetContentLoadedTimestamp(t time.Time) {
	m.contentLoadedTimestamp.Set(float64(t.Unix()))
}

// SetContentBundle replaces the digest label of the served site. An empty
// digest (seed content) clears it.
func (m *ServerMetrics) SetContentBundle(sha256 string) {
	m.contentBundleInfo.Reset()
	if sha256 != "" {
		m.contentBundleInfo.WithLabelValues(sha256).Set(1)
	}
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
