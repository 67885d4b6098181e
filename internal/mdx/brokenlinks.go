package mdx

import (
	"errors"
	"io/fs"
	"net/url"
	"path"

	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/text"

	"github.com/keithlinneman/linnemanlabs-book/internal/siteconfig"
)

// brokenLinks reports relative links to files missing from the content tree.
type brokenLinks struct{}

func (brokenLinks) Transform(doc *ast.Document, reader text.Reader, pc parser.Context) {
	st := stateFrom(pc)
	if st.source == nil {
		return
	}
	src := reader.Source()
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		var dest string
		switch l := n.(type) {
		case *ast.Link:
			dest = string(l.Destination)
		case *ast.Image:
			dest = string(l.Destination)
		default:
			return ast.WalkContinue, nil
		}
		if !isRelative(dest) {
			return ast.WalkContinue, nil
		}
		p, _ := splitTarget(dest)
		if u, err := url.PathUnescape(p); err == nil {
			p = u
		}
		// Directory links are resolved by the browser against the route.
		if path.Ext(p) == "" {
			return ast.WalkContinue, nil
		}
		target := path.Join(path.Dir(st.page.File), p)
		if !fs.ValidPath(target) {
			st.report(siteconfig.PluginBrokenLinkChecker, n, src, dest, "link leaves the content root")
			return ast.WalkContinue, nil
		}
		if _, err := fs.Stat(st.source, target); err != nil {
			msg := "broken link"
			if !errors.Is(err, fs.ErrNotExist) {
				msg = "cannot stat link target: " + err.Error()
			}
			st.report(siteconfig.PluginBrokenLinkChecker, n, src, dest, msg)
		}
		return ast.WalkContinue, nil
	})
}
