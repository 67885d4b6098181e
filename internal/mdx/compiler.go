package mdx

import (
	"bytes"
	"context"
	"errors"
	"io/fs"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer"
	"github.com/yuin/goldmark/renderer/html"
	"github.com/yuin/goldmark/text"
	"github.com/yuin/goldmark/util"

	"github.com/keithlinneman/linnemanlabs-book/internal/siteconfig"
	"github.com/keithlinneman/linnemanlabs-book/internal/xerrors"
)

var (
	ErrNoContent     = errors.New("mdx: config has no content compiler")
	ErrUnknownPlugin = errors.New("mdx: unknown plugin")
	ErrBadOptions    = errors.New("mdx: invalid plugin options")
)

// Options are compiler-wide inputs that are not part of the plugin options.
type Options struct {
	// Source is the content tree used to check relative file links. Nil
	// disables the check.
	Source fs.FS
}

// Page identifies the document being compiled.
type Page struct {
	// File is the slash-separated path relative to the content root.
	File string
	// Route is the URL path of the page without the base path.
	Route string
}

// Heading is a heading found in the compiled document.
type Heading struct {
	Level int    `json:"level"`
	ID    string `json:"id"`
	Text  string `json:"text"`
}

// Result is a compiled document.
type Result struct {
	HTML        []byte
	FrontMatter FrontMatter
	// Title is the front matter title, or the text of the first h1.
	Title       string
	Number      string
	Headings    []Heading
	Diagnostics []Diagnostic
}

// Compiler turns page documents into HTML.
type Compiler struct {
	md       goldmark.Markdown
	cfg      siteconfig.Config
	source   fs.FS
	plugins  []siteconfig.PluginName
	basePath string
}

// New resolves cfg's pipeline against the plugin registry.
func New(cfg siteconfig.Config, opts Options) (*Compiler, error) {
	if cfg.Content == nil {
		return nil, ErrNoContent
	}

	steps := make(pipeline, 0, len(cfg.Content.Pipeline))
	var nodeRenderers []util.PrioritizedValue
	names := make([]siteconfig.PluginName, 0, len(cfg.Content.Pipeline))
	for _, e := range cfg.Content.Pipeline {
		factory, ok := registry[e.Name]
		if !ok {
			return nil, xerrors.Wrapf(ErrUnknownPlugin, "%s", e.Name)
		}
		t, err := factory(e.Options)
		if err != nil {
			return nil, xerrors.Wrapf(err, "plugin %s", e.Name)
		}
		if r, ok := t.(interface{ NodeRenderers() []util.PrioritizedValue }); ok {
			nodeRenderers = append(nodeRenderers, r.NodeRenderers()...)
		}
		steps = append(steps, t)
		names = append(names, e.Name)
	}

	rendererOpts := []renderer.Option{renderer.WithNodeRenderers(nodeRenderers...)}
	if cfg.Content.JSX {
		rendererOpts = append(rendererOpts, html.WithUnsafe())
	}

	md := goldmark.New(
		goldmark.WithExtensions(extension.GFM),
		goldmark.WithParserOptions(
			parser.WithAttribute(),
			parser.WithASTTransformers(util.Prioritized(steps, 100)),
		),
		goldmark.WithRendererOptions(rendererOpts...),
	)

	return &Compiler{
		md:       md,
		cfg:      cfg,
		source:   opts.Source,
		plugins:  names,
		basePath: cfg.BasePath,
	}, nil
}

// Plugins returns the resolved pipeline in application order.
func (c *Compiler) Plugins() []siteconfig.PluginName {
	return append([]siteconfig.PluginName(nil), c.plugins...)
}

// Compile renders src, the raw contents of page.File.
func (c *Compiler) Compile(ctx context.Context, page Page, src []byte) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	fm, body, fmLines, err := splitFrontMatter(src)
	if err != nil {
		return nil, xerrors.Wrapf(err, "front matter %s", page.File)
	}

	st := &pageState{
		page:       page,
		cfg:        c.cfg,
		source:     c.source,
		basePath:   c.basePath,
		lineOffset: fmLines,
		slugs:      newSlugger(),
	}
	pc := parser.NewContext()
	pc.Set(stateKey, st)

	var buf bytes.Buffer
	if err := c.md.Convert(body, &buf, parser.WithContext(pc)); err != nil {
		return nil, xerrors.Wrapf(err, "render %s", page.File)
	}

	res := &Result{
		HTML:        buf.Bytes(),
		FrontMatter: fm,
		Title:       fm.Title,
		Number:      st.number,
		Headings:    st.headings,
		Diagnostics: st.diags,
	}
	if res.Title == "" {
		for _, h := range st.headings {
			if h.Level == 1 {
				res.Title = h.Text
				break
			}
		}
	}
	return res, nil
}

var stateKey = parser.NewContextKey()

// pageState is the per-document state shared by the pipeline steps.
type pageState struct {
	page       Page
	cfg        siteconfig.Config
	source     fs.FS
	basePath   string
	lineOffset int

	slugs    *slugger
	headings []Heading
	number   string
	diags    []Diagnostic
}

func stateFrom(pc parser.Context) *pageState {
	if st, ok := pc.Get(stateKey).(*pageState); ok {
		return st
	}
	return &pageState{slugs: newSlugger()}
}

func (st *pageState) report(plugin siteconfig.PluginName, n ast.Node, src []byte, target, msg string) {
	st.diags = append(st.diags, Diagnostic{
		Plugin:  plugin,
		File:    st.page.File,
		Line:    lineOf(n, src) + st.lineOffset,
		Target:  target,
		Message: msg,
	})
}

// pipeline applies its steps in order as a single transform so goldmark's
// priority sort cannot reorder them.
type pipeline []parser.ASTTransformer

func (p pipeline) Transform(doc *ast.Document, reader text.Reader, pc parser.Context) {
	for _, t := range p {
		t.Transform(doc, reader, pc)
	}
}
