// Package siteconfig declares the documentation site: which files are pages,
// the ordered content plugin pipeline, the rewrite and redirect tables, and
// the environment parameters substituted into them.
//
// Everything here is evaluated once at startup. The resulting Config is
// consumed by the site builder (pages, pipeline) and the site router
// (rewrites, redirects).
package siteconfig

import (
	"context"
	"errors"
	"path"
	"regexp"
	"strings"

	"github.com/keithlinneman/linnemanlabs-book/internal/xerrors"
)

// ErrAlreadyComposed is returned when the content compiler is registered twice.
var ErrAlreadyComposed = errors.New("siteconfig: content compiler already registered")

// ContentExtension matches the documents handled by the content compiler.
var ContentExtension = regexp.MustCompile(`\.mdx?$`)

// ContentOptions registers the content compiler with a Config.
type ContentOptions struct {
	Extension *regexp.Regexp
	Pipeline  []PluginEntry
	// JSX passes embedded JSX/HTML blocks through to the output.
	JSX bool
}

// Config is the composed site configuration.
type Config struct {
	PageExtensions    []string
	TranspilePackages []string
	BasePath          string

	Rewrites  func(context.Context) (RewriteTable, error)
	Redirects func(context.Context) ([]Redirect, error)

	// Content is nil until WithContent has been applied.
	Content *ContentOptions
}

// Base returns the site configuration without a content compiler.
func Base(env Env) Config {
	return Config{
		PageExtensions:    []string{"js", "jsx", "mdx", "ts", "tsx"},
		TranspilePackages: []string{"docs-ui"},
		BasePath:          env.BasePath,
		Rewrites: func(ctx context.Context) (RewriteTable, error) {
			return Rewrites(ctx, env)
		},
		Redirects: Redirects,
	}
}

// WithContent returns a wrapper that registers the content compiler. The
// wrapper refuses a Config that already has one.
func WithContent(opts ContentOptions) func(Config) (Config, error) {
	return func(c Config) (Config, error) {
		if c.Content != nil {
			return c, ErrAlreadyComposed
		}
		if opts.Extension == nil {
			opts.Extension = ContentExtension
		}
		o := opts
		o.Pipeline = append([]PluginEntry(nil), opts.Pipeline...)
		c.Content = &o
		return c, nil
	}
}

// New evaluates the full site configuration for env.
func New(env Env, sidebar *Sidebar) (Config, error) {
	c, err := WithContent(ContentOptions{
		Extension: ContentExtension,
		Pipeline:  Pipeline(env, sidebar),
		JSX:       true,
	})(Base(env))
	if err != nil {
		return Config{}, xerrors.Wrap(err, "compose site config")
	}
	return c, nil
}

// IsPage reports whether name is a page entry file ("page.<ext>" with an
// allowed extension).
func (c Config) IsPage(name string) bool {
	base := path.Base(name)
	ext := strings.TrimPrefix(path.Ext(base), ".")
	if ext == "" || strings.TrimSuffix(base, "."+ext) != "page" {
		return false
	}
	for _, e := range c.PageExtensions {
		if e == ext {
			return true
		}
	}
	return false
}

// Compiles reports whether the content compiler handles name.
func (c Config) Compiles(name string) bool {
	return c.Content != nil && c.Content.Extension != nil && c.Content.Extension.MatchString(name)
}

// Description is the serializable view of a Config.
type Description struct {
	PageExtensions    []string      `json:"pageExtensions"`
	TranspilePackages []string      `json:"transpilePackages"`
	BasePath          string        `json:"basePath"`
	Rewrites          RewriteTable  `json:"rewrites"`
	Redirects         []Redirect    `json:"redirects"`
	Content           *ContentEntry `json:"content,omitempty"`
}

// ContentEntry is the serializable view of ContentOptions.
type ContentEntry struct {
	Extension string        `json:"extension"`
	Pipeline  []PluginEntry `json:"rehypePlugins"`
	JSX       bool          `json:"jsx"`
}

// Describe resolves the async providers and returns the serializable view.
func (c Config) Describe(ctx context.Context) (Description, error) {
	d := Description{
		PageExtensions:    c.PageExtensions,
		TranspilePackages: c.TranspilePackages,
		BasePath:          c.BasePath,
	}
	if c.Rewrites != nil {
		rw, err := c.Rewrites(ctx)
		if err != nil {
			return d, xerrors.Wrap(err, "resolve rewrites")
		}
		d.Rewrites = rw
	}
	if c.Redirects != nil {
		rd, err := c.Redirects(ctx)
		if err != nil {
			return d, xerrors.Wrap(err, "resolve redirects")
		}
		d.Redirects = rd
	}
	if c.Content != nil {
		d.Content = &ContentEntry{
			Extension: c.Content.Extension.String(),
			Pipeline:  c.Content.Pipeline,
			JSX:       c.Content.JSX,
		}
	}
	return d, nil
}

// RouteFor maps a page file, relative to the content root, to its route.
// Route group directories such as "(guides)" do not contribute a segment.
func RouteFor(file string) string {
	dir := path.Dir(path.Clean("/" + strings.TrimPrefix(file, "/")))
	var segs []string
	for _, s := range strings.Split(dir, "/") {
		if s == "" || (strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")")) {
			continue
		}
		segs = append(segs, s)
	}
	return "/" + strings.Join(segs, "/")
}
