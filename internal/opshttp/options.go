// Package opshttp serves the admin listener: metrics, probes, the composed
// site configuration and optional pprof. Only loopback, private and
// link-local peers are served.
package opshttp

import (
	"net/http"

	"github.com/keithlinneman/linnemanlabs-book/internal/health"
)

// DefaultPort is used when Options.Port is zero.
const DefaultPort = 9000

type Options struct {
	Port        int
	Metrics     http.Handler
	EnablePprof bool
	Health      health.Probe
	Readiness   health.Probe

	// Config serves the composed site configuration at /config.
	Config http.Handler
}
