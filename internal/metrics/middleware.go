package metrics

import (
	"context"
	"net/http"
	"strconv"

	"github.com/felixge/httpsnoop"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"

	"github.com/keithlinneman/linnemanlabs-book/internal/httpmw"
)

// Middleware counts requests by method, route and status, and observes
// latency and response size. Routes come from httpmw.Route so unmatched
// paths share one label.
func (m *ServerMetrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.inflight.Inc()
		snoop := httpsnoop.CaptureMetrics(next, w, r)
		m.inflight.Dec()

		route := httpmw.Route(r)
		m.reqTotal.WithLabelValues(r.Method, route, strconv.Itoa(snoop.Code)).Inc()
		if snoop.Code >= http.StatusInternalServerError {
			m.errorsTotal.WithLabelValues(r.Method, route).Inc()
		}
		observe(r.Context(), m.reqDur.WithLabelValues(r.Method, route), snoop.Duration.Seconds())
		m.respBytes.WithLabelValues(r.Method, route).Observe(float64(snoop.Written))
	})
}

// observe attaches the trace ID of a sampled request as an exemplar.
func observe(ctx context.Context, o prometheus.Observer, v float64) {
	sc := trace.SpanContextFromContext(ctx)
	if eo, ok := o.(prometheus.ExemplarObserver); ok && sc.IsValid() && sc.IsSampled() {
		eo.ObserveWithExemplar(v, prometheus.Labels{"trace_id": sc.TraceID().String()})
		return
	}
	o.Observe(v)
}
