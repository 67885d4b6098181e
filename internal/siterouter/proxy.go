package siterouter

import (
	"context"
	"errors"
	"net/http"
	"net/http/httputil"
	"net/url"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/keithlinneman/linnemanlabs-book/internal/log"
	"github.com/keithlinneman/linnemanlabs-book/internal/xerrors"
)

type destinationKey struct{}

// withDestination attaches the resolved rewrite target to the request.
func withDestination(r *http.Request, dest string) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), destinationKey{}, dest))
}

func destinationFrom(ctx context.Context) (string, bool) {
	d, ok := ctx.Value(destinationKey{}).(string)
	return d, ok && d != ""
}

// NewProxy returns a reverse proxy that forwards each request to the
// destination its rewrite resolved to. The client keeps seeing its own URL.
func NewProxy(L log.Logger, m Metrics) http.Handler {
	if L == nil {
		L = log.Nop()
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	// stay under the public server's write timeout
	transport.ResponseHeaderTimeout = 8 * time.Second

	return &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			dest, _ := destinationFrom(pr.In.Context())
			target, err := url.Parse(dest)
			if err != nil {
				// ErrorHandler reports it once the transport refuses the URL
				pr.Out.URL.Host = ""
				return
			}
			pr.Out.URL.Scheme = target.Scheme
			pr.Out.URL.Host = target.Host
			pr.Out.URL.Path = target.Path
			pr.Out.URL.RawPath = target.RawPath
			pr.Out.URL.RawQuery = joinQuery(target.RawQuery, pr.In.URL.RawQuery)
			pr.Out.Host = target.Host
			pr.SetXForwarded()
		},
		Transport: otelhttp.NewTransport(transport,
			otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
				return "rewrite " + r.Method + " " + r.URL.Host
			}),
		),
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			ctx := r.Context()
			if errors.Is(err, context.Canceled) {
				// client went away
				w.WriteHeader(499)
				return
			}
			if m != nil {
				m.IncProxyError()
			}
			dest, _ := destinationFrom(ctx)
			L.Error(ctx, xerrors.Wrap(err, "rewrite proxy"), "upstream request failed", "destination", dest)
			w.Header().Set("Cache-Control", "no-store")
			http.Error(w, http.StatusText(http.StatusBadGateway), http.StatusBadGateway)
		},
	}
}
