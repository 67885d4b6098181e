package httpmw

import (
	"net/http"
	"strings"
)

// SecurityOptions tunes the response policy for docs pages.
type SecurityOptions struct {
	// ImageOrigins are extra origins pages may load images from, such as
	// the Cloudinary delivery host.
	ImageOrigins []string

	// HSTS sends Strict-Transport-Security and upgrade-insecure-requests.
	// Leave it off for plain-http local previews.
	HSTS bool
}

// ContentSecurityPolicy renders the policy for opts. Generated pages carry
// no scripts; the fallback pages use one inline style block.
func ContentSecurityPolicy(opts SecurityOptions) string {
	img := append([]string{"'self'", "data:"}, opts.ImageOrigins...)
	directives := []string{
		"default-src 'self'",
		"script-src 'self'",
		"style-src 'self' 'unsafe-inline'",
		"img-src " + strings.Join(img, " "),
		"font-src 'self'",
		"base-uri 'self'",
		"form-action 'self'",
		"frame-ancestors 'none'",
		"object-src 'none'",
	}
	if opts.HSTS {
		directives = append(directives, "upgrade-insecure-requests")
	}
	return strings.Join(directives, "; ")
}

// SecurityHeaders sets the security headers on every response, proxied
// ones included.
func SecurityHeaders(opts SecurityOptions) func(http.Handler) http.Handler {
	csp := ContentSecurityPolicy(opts)
	// cross-origin images do not send CORP, so require-corp would block them
	coep := "require-corp"
	if len(opts.ImageOrigins) > 0 {
		coep = "credentialless"
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			if opts.HSTS {
				h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains; preload")
			}
			h.Set("Content-Security-Policy", csp)
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("X-Frame-Options", "DENY")
			h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
			h.Set("Permissions-Policy", "accelerometer=(), camera=(), geolocation=(), gyroscope=(), magnetometer=(), microphone=(), payment=(), usb=()")
			h.Set("X-Permitted-Cross-Domain-Policies", "none")
			h.Set("Cross-Origin-Embedder-Policy", coep)
			h.Set("Cross-Origin-Opener-Policy", "same-origin")
			h.Set("Cross-Origin-Resource-Policy", "same-origin")
			next.ServeHTTP(w, r)
		})
	}
}
