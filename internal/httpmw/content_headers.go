package httpmw

import (
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Response headers naming the content build that served a request.
const (
	HeaderContentVersion = "X-Book-Content-Version"
	HeaderContentHash    = "X-Book-Content-Hash"
)

// shortHashLen is how much of the bundle digest goes in the header.
const shortHashLen = 12

// ContentInfo reports the content build currently being served.
type ContentInfo interface {
	ContentVersion() string
	ContentHash() string
}

// ContentHeaders stamps each response with the live content version and a
// short digest, and copies both onto the request span. The values are read
// per request since the content can be swapped at any time.
func ContentHeaders(info ContentInfo) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if info == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			version, hash := info.ContentVersion(), info.ContentHash()
			if version != "" {
				w.Header().Set(HeaderContentVersion, version)
			}
			if hash != "" {
				short := hash
				if len(short) > shortHashLen {
					short = short[:shortHashLen]
				}
				w.Header().Set(HeaderContentHash, short)
			}
			if span := trace.SpanFromContext(r.Context()); span.IsRecording() {
				span.SetAttributes(
					attribute.String("book.content.version", version),
					attribute.String("book.content.hash", hash),
				)
			}
			next.ServeHTTP(w, r)
		})
	}
}
