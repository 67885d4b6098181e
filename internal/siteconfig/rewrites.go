package siteconfig

import (
	"context"
)

// Rewrite forwards matching requests to Destination without changing the
// URL the client sees.
type Rewrite struct {
	Source      string `json:"source"`
	Destination string `json:"destination"`
	// BasePath prefixes Source and Destination with the site base path.
	// Proxied sub-sites set it to false: their URLs are already absolute.
	BasePath bool `json:"basePath"`
	// Disabled rules stay in the table but are never matched.
	Disabled bool `json:"disabled,omitempty"`
}

// RewriteTable groups rules by when they are consulted. Fallback rules only
// apply once no static route matched the request.
type RewriteTable struct {
	BeforeFiles []Rewrite `json:"beforeFiles"`
	AfterFiles  []Rewrite `json:"afterFiles"`
	Fallback    []Rewrite `json:"fallback"`
}

// Rewrites builds the rewrite table for env.
func Rewrites(_ context.Context, env Env) (RewriteTable, error) {
	resources := env.ResourcesOrigin()
	api := env.APIOrigin()

	return RewriteTable{
		Fallback: []Rewrite{
			{
				Source:      "/v2/resources",
				Destination: resources + "/v2/resources",
				BasePath:    false,
			},
			{
				Source:      "/v2/resources/:path*",
				Destination: resources + "/v2/resources/:path*",
				BasePath:    false,
			},
			{
				Source:      "/v2/api/:path*",
				Destination: api + "/v2/api/:path*",
				BasePath:    false,
			},
			// re-enable once the user guide is published
			{
				Source:      "/user-guide",
				Destination: env.UserGuideURL + "/user-guide",
				BasePath:    false,
				Disabled:    true,
			},
			{
				Source:      "/user-guide/:path*",
				Destination: env.UserGuideURL + "/user-guide/:path*",
				BasePath:    false,
				Disabled:    true,
			},
		},
	}, nil
}
