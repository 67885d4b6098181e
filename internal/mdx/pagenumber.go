package mdx

import (
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/text"

	"github.com/keithlinneman/linnemanlabs-book/internal/siteconfig"
)

// pageNumber marks the first h1 with the page's sidebar chapter number.
type pageNumber struct {
	sidebar *siteconfig.Sidebar
}

func newPageNumber(opts any) (parser.ASTTransformer, error) {
	o, err := optionsAs[siteconfig.PageNumberOptions](opts, siteconfig.PluginPageNumber)
	if err != nil {
		return nil, err
	}
	return pageNumber{sidebar: o.Sidebar}, nil
}

func (t pageNumber) Transform(doc *ast.Document, _ text.Reader, pc parser.Context) {
	st := stateFrom(pc)
	num, ok := t.sidebar.NumberFor(st.page.Route)
	if !ok {
		return
	}
	st.number = num
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if h, ok := n.(*ast.Heading); ok && entering && h.Level == 1 {
			h.SetAttributeString("data-page-number", []byte(num))
			return ast.WalkStop, nil
		}
		return ast.WalkContinue, nil
	})
}
