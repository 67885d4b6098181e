// Package sitebuild compiles a content directory into a servable site.
//
// Page documents ("page.mdx") are run through the content
// pipeline and wrapped in the page layout. Other files are copied as
// assets. Route group directories such as "(guides)" are dropped from
// output paths. The result is an in-memory filesystem with a manifest.json,
// ready to be bundled or served directly.
package sitebuild

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"path"
	"runtime"
	"sort"
	"strings"
	"testing/fstest"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"golang.org/x/sync/errgroup"

	"github.com/keithlinneman/linnemanlabs-book/internal/content"
	"github.com/keithlinneman/linnemanlabs-book/internal/cryptoutil"
	"github.com/keithlinneman/linnemanlabs-book/internal/log"
	"github.com/keithlinneman/linnemanlabs-book/internal/mdx"
	"github.com/keithlinneman/linnemanlabs-book/internal/siteconfig"
	"github.com/keithlinneman/linnemanlabs-book/internal/webassets"
	"github.com/keithlinneman/linnemanlabs-book/internal/xerrors"
)

var (
	// ErrBrokenLinks is returned in strict mode when any page links to a
	// missing file.
	ErrBrokenLinks = errors.New("sitebuild: broken links")

	// ErrDuplicateRoute is returned when two page files map to one route.
	ErrDuplicateRoute = errors.New("sitebuild: duplicate route")
)

// Metrics observes builds.
type Metrics interface {
	ObserveBuild(seconds float64, pages int, err error)
	IncDiagnostic(plugin string)
}

type Options struct {
	Logger  log.Logger
	Config  siteconfig.Config
	Sidebar *siteconfig.Sidebar

	// Source is the content root.
	Source fs.FS

	// Exclude holds doublestar patterns matched against paths relative to
	// Source.
	Exclude []string

	// Concurrency bounds parallel page compiles. Zero uses GOMAXPROCS.
	Concurrency int

	// Layout optionally names a template in Source replacing the built-in
	// page layout.
	Layout string

	SiteName      string
	Version       string
	BuiltAt       time.Time
	IncludeDrafts bool
	StrictLinks   bool

	Metrics Metrics
}

// PageInfo describes one compiled page.
type PageInfo struct {
	File        string `json:"file"`
	Route       string `json:"route"`
	Output      string `json:"output"`
	Title       string `json:"title,omitempty"`
	Number      string `json:"number,omitempty"`
	Diagnostics int    `json:"diagnostics,omitempty"`
}

// Site is a built site.
type Site struct {
	FS          fstest.MapFS
	Pages       []PageInfo
	Assets      int
	Diagnostics []mdx.Diagnostic
	Manifest    *content.Manifest
}

// Snapshot wraps the site for a content.Manager. Unbundled builds are
// identified by the digest of their manifest.
func (s *Site) Snapshot(src content.Source) *content.Snapshot {
	meta := content.Meta{
		Version: s.Manifest.Version,
		BuiltAt: s.Manifest.BuiltAt,
		Source:  src,
	}
	if f, ok := s.FS[content.ManifestFilePath]; ok {
		meta.SHA256 = cryptoutil.SHA256Hex(f.Data)
	}
	return &content.Snapshot{
		FS:       s.FS,
		Manifest: s.Manifest,
		Meta:     meta,
	}
}

// pageJob is one page document to compile.
type pageJob struct {
	file  string
	route string
}

// Build compiles opts.Source. In strict mode a site with broken links is
// still returned together with an error wrapping ErrBrokenLinks.
func Build(ctx context.Context, opts Options) (site *Site, err error) {
	start := time.Now()
	if opts.Logger == nil {
		opts.Logger = log.Nop()
	}
	if opts.Source == nil {
		return nil, xerrors.New("sitebuild: Source is required")
	}
	if opts.BuiltAt.IsZero() {
		opts.BuiltAt = time.Now().UTC()
	}
	if opts.SiteName == "" {
		opts.SiteName = "Documentation"
	}
	if opts.Metrics != nil {
		defer func() {
			pages := 0
			if site != nil {
				pages = len(site.Pages)
			}
			opts.Metrics.ObserveBuild(time.Since(start).Seconds(), pages, err)
		}()
	}
	for _, p := range opts.Exclude {
		if !doublestar.ValidatePattern(p) {
			return nil, xerrors.Newf("sitebuild: invalid exclude pattern %q", p)
		}
	}

	compiler, err := mdx.New(opts.Config, mdx.Options{Source: opts.Source})
	if err != nil {
		return nil, xerrors.Wrap(err, "content compiler")
	}
	layout, err := webassets.LayoutTemplate(opts.Source, opts.Layout)
	if err != nil {
		return nil, xerrors.Wrap(err, "page layout")
	}

	out := fstest.MapFS{}
	jobs, assets, err := scan(ctx, opts, out)
	if err != nil {
		return nil, err
	}

	results := make([]*mdx.Result, len(jobs))
	g, gctx := errgroup.WithContext(ctx)
	limit := opts.Concurrency
	if limit <= 0 {
		limit = runtime.GOMAXPROCS(0)
	}
	g.SetLimit(limit)
	for i, j := range jobs {
		g.Go(func() error {
			src, err := fs.ReadFile(opts.Source, j.file)
			if err != nil {
				return xerrors.Wrapf(err, "read %s", j.file)
			}
			res, err := compiler.Compile(gctx, mdx.Page{File: j.file, Route: j.route}, src)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	site = &Site{FS: out, Assets: assets}
	for i, j := range jobs {
		res := results[i]
		if res.FrontMatter.Draft && !opts.IncludeDrafts {
			opts.Logger.Debug(ctx, "skipping draft page", "file", j.file)
			continue
		}
		output := outputPath(j.route)
		html, err := render(layout, opts, j.route, res)
		if err != nil {
			return nil, xerrors.Wrapf(err, "render %s", j.file)
		}
		out[output] = &fstest.MapFile{Data: html, Mode: 0o644}

		site.Pages = append(site.Pages, PageInfo{
			File:        j.file,
			Route:       j.route,
			Output:      output,
			Title:       res.Title,
			Number:      res.Number,
			Diagnostics: len(res.Diagnostics),
		})
		site.Diagnostics = append(site.Diagnostics, res.Diagnostics...)
	}

	if _, ok := out["index.html"]; !ok {
		html, err := renderIndex(layout, opts, site.Pages)
		if err != nil {
			return nil, xerrors.Wrap(err, "render generated index")
		}
		out["index.html"] = &fstest.MapFile{Data: html, Mode: 0o644}
		opts.Logger.Warn(ctx, "content has no root page, generated a contents page")
	}

	if err := writeManifest(site, opts); err != nil {
		return nil, err
	}

	broken := 0
	for _, d := range site.Diagnostics {
		opts.Logger.Warn(ctx, "content diagnostic",
			"plugin", string(d.Plugin),
			"file", d.File,
			"line", d.Line,
			"target", d.Target,
			"message", d.Message,
		)
		if opts.Metrics != nil {
			opts.Metrics.IncDiagnostic(string(d.Plugin))
		}
		if d.Plugin == siteconfig.PluginBrokenLinkChecker {
			broken++
		}
	}

	opts.Logger.Info(ctx, "site built",
		"pages", len(site.Pages),
		"assets", site.Assets,
		"diagnostics", len(site.Diagnostics),
		"took", time.Since(start).String(),
	)

	if opts.StrictLinks && broken > 0 {
		return site, fmt.Errorf("%w: %d in %d pages", ErrBrokenLinks, broken, pagesWithDiagnostics(site.Pages))
	}
	return site, nil
}

// scan walks the content root, copies assets into out and returns the page
// documents to compile in path order.
func scan(ctx context.Context, opts Options, out fstest.MapFS) ([]pageJob, int, error) {
	var jobs []pageJob
	routes := map[string]string{}
	assets := 0

	err := fs.WalkDir(opts.Source, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if p == "." {
			return nil
		}
		if excluded(opts.Exclude, p) {
			if d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		name := d.Name()
		if d.IsDir() {
			if strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_") || name == "node_modules" {
				return fs.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(name, ".") || p == siteconfig.SidebarFile || p == opts.Layout {
			return nil
		}

		switch {
		case opts.Config.IsPage(p) && opts.Config.Compiles(p):
			route := siteconfig.RouteFor(p)
			if prev, dup := routes[route]; dup {
				return xerrors.Wrapf(ErrDuplicateRoute, "%s: %s and %s", route, prev, p)
			}
			routes[route] = p
			jobs = append(jobs, pageJob{file: p, route: route})

		case opts.Config.IsPage(p):
			opts.Logger.Warn(ctx, "page is not handled by the content compiler, skipping", "file", p)

		case opts.Config.Compiles(p) || isSourceCode(opts.Config, p):
			// partials and components are not routed

		default:
			data, err := fs.ReadFile(opts.Source, p)
			if err != nil {
				return xerrors.Wrapf(err, "read %s", p)
			}
			out[assetPath(p)] = &fstest.MapFile{Data: data, Mode: 0o644}
			assets++
		}
		return nil
	})
	if err != nil {
		return nil, 0, xerrors.Wrap(err, "scan content")
	}
	return jobs, assets, nil
}

func excluded(patterns []string, p string) bool {
	for _, pat := range patterns {
		if ok, _ := doublestar.Match(pat, p); ok {
			return true
		}
	}
	return false
}

func isSourceCode(cfg siteconfig.Config, p string) bool {
	ext := strings.TrimPrefix(path.Ext(p), ".")
	for _, e := range cfg.PageExtensions {
		if e == ext {
			return true
		}
	}
	return false
}

// outputPath maps a route to its index.html.
func outputPath(route string) string {
	r := strings.Trim(route, "/")
	if r == "" {
		return "index.html"
	}
	return r + "/index.html"
}

// assetPath drops route group segments so assets sit next to their pages.
func assetPath(p string) string {
	dir := strings.TrimPrefix(siteconfig.RouteFor(p), "/")
	if dir == "" {
		return path.Base(p)
	}
	return dir + "/" + path.Base(p)
}

// pageData is the layout's view of a page.
type pageData struct {
	SiteName    string
	Title       string
	Description string
	Number      string
	Route       string
	BasePath    string
	Version     string
	Content     template.HTML
	Headings    []mdx.Heading
	Nav         []siteconfig.SidebarItem
}

func newPageData(opts Options, route string) pageData {
	d := pageData{
		SiteName: opts.SiteName,
		Route:    route,
		BasePath: opts.Config.BasePath,
		Version:  opts.Version,
	}
	if opts.Sidebar != nil {
		d.Nav = opts.Sidebar.Items
	}
	return d
}

func render(layout *template.Template, opts Options, route string, res *mdx.Result) ([]byte, error) {
	d := newPageData(opts, route)
	d.Title = res.Title
	d.Description = res.FrontMatter.Description
	d.Number = res.Number
	d.Headings = res.Headings
	// compiler output is trusted markup
	d.Content = template.HTML(res.HTML)

	var b strings.Builder
	if err := layout.ExecuteTemplate(&b, webassets.PageLayout, d); err != nil {
		return nil, err
	}
	return []byte(b.String()), nil
}

var indexList = template.Must(template.New("index").Parse(
	`<h1>Contents</h1>
<ul>
{{- range .Pages }}
<li><a href="{{ $.BasePath }}{{ .Route }}">{{ if .Number }}{{ .Number }}. {{ end }}{{ if .Title }}{{ .Title }}{{ else }}{{ .Route }}{{ end }}</a></li>
{{- end }}
</ul>
`))

func renderIndex(layout *template.Template, opts Options, pages []PageInfo) ([]byte, error) {
	sorted := append([]PageInfo(nil), pages...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Route < sorted[j].Route })

	var list strings.Builder
	if err := indexList.Execute(&list, map[string]any{"BasePath": opts.Config.BasePath, "Pages": sorted}); err != nil {
		return nil, err
	}
	d := newPageData(opts, "/")
	d.Title = "Contents"
	d.Content = template.HTML(list.String())

	var b strings.Builder
	if err := layout.ExecuteTemplate(&b, webassets.PageLayout, d); err != nil {
		return nil, err
	}
	return []byte(b.String()), nil
}

func writeManifest(site *Site, opts Options) error {
	m, err := content.NewManifest(site.FS, opts.Version, opts.Config.BasePath, opts.BuiltAt)
	if err != nil {
		return err
	}
	for _, p := range site.Pages {
		m.AddPage(content.ManifestPage{Route: p.Route, Source: p.File, Title: p.Title, Number: p.Number})
	}
	m.Diagnostics = len(site.Diagnostics)
	data, err := m.Marshal()
	if err != nil {
		return err
	}
	site.FS[content.ManifestFilePath] = &fstest.MapFile{Data: data, Mode: 0o644}
	site.Manifest = m
	return nil
}

func pagesWithDiagnostics(pages []PageInfo) int {
	n := 0
	for _, p := range pages {
		if p.Diagnostics > 0 {
			n++
		}
	}
	return n
}
