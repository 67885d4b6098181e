package siteconfig

import (
	"context"
	"net/http"
)

// Redirect sends the client to Destination. Permanent controls whether the
// response is cacheable by clients and crawlers (308) or not (307).
type Redirect struct {
	Source      string `json:"source"`
	Destination string `json:"destination"`
	Permanent   bool   `json:"permanent"`
	// BasePath prefixes Source and Destination with the site base path.
	BasePath bool `json:"basePath"`
}

// StatusCode is the HTTP status sent for the redirect.
func (r Redirect) StatusCode() int {
	if r.Permanent {
		return http.StatusPermanentRedirect
	}
	return http.StatusTemporaryRedirect
}

// legacySections moved under /learn/.
var legacySections = []string{
	"advanced-development",
	"basics",
	"customization",
	"debugging-and-testing",
	"deployment",
	"first-customizations",
	"more-resources",
	"storefront-development",
}

// Redirects builds the legacy URL redirect table.
func Redirects(_ context.Context) ([]Redirect, error) {
	out := make([]Redirect, 0, len(legacySections)+1)
	for _, s := range legacySections {
		out = append(out, Redirect{
			Source:      "/" + s + "/:path*",
			Destination: "/learn/" + s + "/:path*",
			Permanent:   true,
			BasePath:    true,
		})
	}
	out = append(out, Redirect{
		Source:      "/more-resources/examples",
		Destination: "/resources/examples",
		Permanent:   true,
		BasePath:    true,
	})
	return out, nil
}
