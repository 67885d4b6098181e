package main

import (
	"context"

	"github.com/keithlinneman/linnemanlabs-book/internal/cfg"
	"github.com/keithlinneman/linnemanlabs-book/internal/log"
	"github.com/keithlinneman/linnemanlabs-book/internal/metrics"
	"github.com/keithlinneman/linnemanlabs-book/internal/otelx"
	"github.com/keithlinneman/linnemanlabs-book/internal/prof"
	v "github.com/keithlinneman/linnemanlabs-book/internal/version"
)

// startTelemetry starts profiling and tracing. Neither is fatal: a failed
// agent is logged and the server runs without it. The returned func stops
// both.
func startTelemetry(ctx context.Context, L log.Logger, conf cfg.App, vi v.Info, m *metrics.ServerMetrics) func() {
	stopProf, err := prof.Start(ctx, prof.Options{
		Enabled:       conf.EnablePyroscope,
		AppName:       v.AppName,
		ServerAddress: conf.PyroServer,
		TenantID:      conf.PyroTenantID,
		Tags: map[string]string{
			"app":       v.AppName,
			"component": "server",
			"version":   vi.Version,
			"commit":    vi.Commit,
			"build_id":  vi.BuildId,
		},
	})
	if err != nil {
		L.Error(ctx, err, "pyroscope start failed", "pyro_server", conf.PyroServer)
	}
	m.SetProfilingActive(conf.EnablePyroscope && err == nil)

	// the collector is on localhost, plaintext is fine
	shutdownOTEL, err := otelx.Init(ctx, otelx.Options{
		Enabled:   conf.EnableTracing,
		Endpoint:  conf.OTLPEndpoint,
		Insecure:  true,
		Sample:    conf.TraceSample,
		Service:   v.AppName,
		Component: "server",
		Version:   vi.Version,
	})
	if err != nil {
		L.Error(ctx, err, "otel init failed, tracing disabled")
		shutdownOTEL = func(context.Context) error { return nil }
	}

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), otelFlushTimeout)
		defer cancel()
		if err := shutdownOTEL(ctx); err != nil {
			L.Error(ctx, err, "otel shutdown")
		}
		stopProf()
	}
}
