package mdx

import (
	"regexp"
	"strings"

	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/text"

	"github.com/keithlinneman/linnemanlabs-book/internal/siteconfig"
)

// crossProjectRe matches "!area!" optionally followed by a path.
var crossProjectRe = regexp.MustCompile(`^!([A-Za-z0-9_-]+)!(/.*)?$`)

type crossProjectLinks struct {
	opts *siteconfig.CrossProjectLinksOptions
}

func newCrossProjectLinks(opts any) (parser.ASTTransformer, error) {
	o, err := optionsAs[siteconfig.CrossProjectLinksOptions](opts, siteconfig.PluginCrossProjectLinks)
	if err != nil {
		return nil, err
	}
	return crossProjectLinks{opts: o}, nil
}

func (t crossProjectLinks) Transform(doc *ast.Document, reader text.Reader, pc parser.Context) {
	st := stateFrom(pc)
	src := reader.Source()
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		link, ok := n.(*ast.Link)
		if !ok {
			return ast.WalkContinue, nil
		}
		dest := string(link.Destination)
		resolved, known, ok := t.resolve(dest)
		if !ok {
			return ast.WalkContinue, nil
		}
		if !known {
			st.report(siteconfig.PluginCrossProjectLinks, n, src, dest, "unknown project")
		}
		link.Destination = []byte(resolved)
		return ast.WalkContinue, nil
	})
}

// resolve expands "!area!/rest". known is false when area has no
// configured project; the area name is then used as the path.
func (t crossProjectLinks) resolve(dest string) (out string, known, ok bool) {
	m := crossProjectRe.FindStringSubmatch(dest)
	if m == nil {
		return "", false, false
	}
	area, rest := m[1], m[2]

	proj, known := t.opts.ProjectURLs[area]
	p := strings.Trim(proj.Path, "/")
	if p == "" {
		p = area
	}

	base := proj.URL
	if t.opts.UseBaseURL || base == "" {
		base = t.opts.BaseURL
	}
	base = strings.TrimSuffix(base, "/")
	return base + "/" + p + rest, known, true
}
