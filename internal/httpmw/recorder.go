package httpmw

import (
	"bufio"
	"context"
	"net"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/keithlinneman/linnemanlabs-book/internal/xerrors"
)

const tracerName = "book/httpmw"

// recorder captures what a handler sent. When the request span is sampled
// the response body is timed in a "response.write" child span opened at the
// first byte.
type recorder struct {
	http.ResponseWriter
	ctx   context.Context
	begin time.Time

	code    int
	size    int64
	first   time.Duration // time to first byte, zero until then
	blocked time.Duration // time spent inside the underlying writer
	failed  error

	span trace.Span
}

func newRecorder(w http.ResponseWriter, r *http.Request, begin time.Time) *recorder {
	return &recorder{ResponseWriter: w, ctx: r.Context(), begin: begin}
}

func (rec *recorder) status() int {
	if rec.code == 0 {
		return http.StatusOK
	}
	return rec.code
}

func (rec *recorder) firstByte() {
	if rec.first != 0 {
		return
	}
	rec.first = max(time.Since(rec.begin), time.Nanosecond)
	if trace.SpanFromContext(rec.ctx).IsRecording() {
		_, rec.span = otel.Tracer(tracerName).Start(rec.ctx, "response.write",
			trace.WithAttributes(attribute.Float64("http.server.ttfb_seconds", rec.first.Seconds())))
	}
}

// timed runs fn against the underlying writer and charges its duration to
// blocked.
func (rec *recorder) timed(fn func()) {
	t := time.Now()
	fn()
	rec.blocked += time.Since(t)
}

func (rec *recorder) WriteHeader(code int) {
	rec.firstByte()
	if rec.code == 0 {
		rec.code = code
	}
	rec.timed(func() { rec.ResponseWriter.WriteHeader(code) })
}

func (rec *recorder) Write(b []byte) (n int, err error) {
	rec.firstByte()
	if rec.code == 0 {
		rec.code = http.StatusOK
	}
	rec.timed(func() { n, err = rec.ResponseWriter.Write(b) })
	rec.size += int64(n)
	if rec.failed == nil {
		rec.failed = err
	}
	return n, err
}

// finish closes the write span, if one was opened.
func (rec *recorder) finish() {
	if rec.span == nil {
		return
	}
	defer rec.span.End()
	rec.span.SetAttributes(
		attribute.Int("http.response.status_code", rec.status()),
		attribute.Int64("http.response.body.size", rec.size),
		attribute.Float64("http.server.write.block_seconds", rec.blocked.Seconds()),
	)
	if rec.failed != nil {
		rec.span.RecordError(rec.failed)
		rec.span.SetStatus(codes.Error, rec.failed.Error())
	}
}

// Flush lets the rewrite proxy stream upstream responses.
func (rec *recorder) Flush() {
	if f, ok := rec.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rec *recorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := rec.ResponseWriter.(http.Hijacker); ok {
		return h.Hijack()
	}
	return nil, nil, xerrors.New("httpmw: response writer cannot be hijacked")
}

func (rec *recorder) Unwrap() http.ResponseWriter { return rec.ResponseWriter }
