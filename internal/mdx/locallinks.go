package mdx

import (
	"path"

	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/text"

	"github.com/keithlinneman/linnemanlabs-book/internal/siteconfig"
)

// localLinks rewrites relative links to page files into route URLs.
type localLinks struct{}

func (localLinks) Transform(doc *ast.Document, _ text.Reader, pc parser.Context) {
	st := stateFrom(pc)
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		link, ok := n.(*ast.Link)
		if !ok {
			return ast.WalkContinue, nil
		}
		if out, ok := st.localRoute(string(link.Destination)); ok {
			link.Destination = []byte(out)
		}
		return ast.WalkContinue, nil
	})
}

func (st *pageState) localRoute(dest string) (string, bool) {
	if !isRelative(dest) {
		return "", false
	}
	p, suffix := splitTarget(dest)
	target := path.Join(path.Dir(st.page.File), p)
	if !st.cfg.IsPage(target) {
		return "", false
	}
	return withBase(st.basePath, siteconfig.RouteFor(target)) + suffix, true
}
