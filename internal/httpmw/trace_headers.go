package httpmw

import (
	"net/http"

	"go.opentelemetry.io/otel/trace"
)

// Trace correlation headers set on responses with a valid span.
const (
	HeaderTraceID = "X-Trace-Id"
	HeaderSpanID  = "X-Span-Id"
)

// TraceResponseHeaders echoes the request's trace and span IDs so a reader
// reporting a broken page can quote them.
func TraceResponseHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if sc := trace.SpanContextFromContext(r.Context()); sc.IsValid() {
			w.Header().Set(HeaderTraceID, sc.TraceID().String())
			w.Header().Set(HeaderSpanID, sc.SpanID().String())
		}
		next.ServeHTTP(w, r)
	})
}
