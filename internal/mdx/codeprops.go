package mdx

import (
	"bytes"
	"strings"

	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer"
	"github.com/yuin/goldmark/renderer/html"
	"github.com/yuin/goldmark/text"
	"github.com/yuin/goldmark/util"

	"github.com/keithlinneman/linnemanlabs-book/internal/siteconfig"
)

// codeProps turns the meta string of fenced code blocks into attributes
// rendered on the configured tag.
type codeProps struct {
	tag string
}

func newCodeProps(opts any) (parser.ASTTransformer, error) {
	o, err := optionsAs[siteconfig.CodePropsOptions](opts, siteconfig.PluginCodeProps)
	if err != nil {
		return nil, err
	}
	tag := o.TagName
	if tag == "" {
		tag = "code"
	}
	if tag != "code" && tag != "pre" {
		return nil, ErrBadOptions
	}
	return codeProps{tag: tag}, nil
}

func (codeProps) Transform(doc *ast.Document, reader text.Reader, _ parser.Context) {
	src := reader.Source()
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		cb, ok := n.(*ast.FencedCodeBlock)
		if !ok || cb.Info == nil {
			return ast.WalkContinue, nil
		}
		info := cb.Info.Segment.Value(src)
		i := bytes.IndexByte(info, ' ')
		if i < 0 {
			return ast.WalkSkipChildren, nil
		}
		for _, p := range parseMeta(string(info[i+1:])) {
			cb.SetAttributeString(p.name, []byte(p.value))
		}
		return ast.WalkSkipChildren, nil
	})
}

// NodeRenderers replaces the default fenced code block renderer.
func (t codeProps) NodeRenderers() []util.PrioritizedValue {
	return []util.PrioritizedValue{util.Prioritized(&codeBlockRenderer{tag: t.tag}, 100)}
}

type codeBlockRenderer struct {
	tag string
}

func (r *codeBlockRenderer) RegisterFuncs(reg renderer.NodeRendererFuncRegisterer) {
	reg.Register(ast.KindFencedCodeBlock, r.render)
}

func (r *codeBlockRenderer) render(w util.BufWriter, src []byte, node ast.Node, entering bool) (ast.WalkStatus, error) {
	if !entering {
		return ast.WalkContinue, nil
	}
	n := node.(*ast.FencedCodeBlock)

	_, _ = w.WriteString("<pre")
	if r.tag == "pre" {
		html.RenderAttributes(w, n, nil)
	}
	_, _ = w.WriteString("><code")
	if lang := n.Language(src); len(lang) > 0 {
		_, _ = w.WriteString(` class="language-`)
		html.DefaultWriter.Write(w, lang)
		_ = w.WriteByte('"')
	}
	if r.tag == "code" {
		html.RenderAttributes(w, n, nil)
	}
	_ = w.WriteByte('>')

	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		html.DefaultWriter.RawWrite(w, seg.Value(src))
	}
	_, _ = w.WriteString("</code></pre>\n")
	return ast.WalkSkipChildren, nil
}

type metaProp struct {
	name  string
	value string
}

// parseMeta splits a fence meta string such as
// `title="Install" highlights={[["1"]]} noReport` into props. Bare words
// become "true". Names that are not valid attribute names are dropped.
func parseMeta(meta string) []metaProp {
	var out []metaProp
	s := strings.TrimSpace(meta)
	for s != "" {
		end := strings.IndexAny(s, "= \t")
		if end < 0 {
			end = len(s)
		}
		name := s[:end]
		s = s[end:]

		value := "true"
		if strings.HasPrefix(s, "=") {
			value, s = metaValue(s[1:])
		}
		if validAttrName(name) {
			out = append(out, metaProp{name: name, value: value})
		}
		s = strings.TrimLeft(s, " \t")
	}
	return out
}

// metaValue reads a quoted, braced or bare value from the start of s.
func metaValue(s string) (value, rest string) {
	if s == "" {
		return "", ""
	}
	switch s[0] {
	case '"', '\'':
		q := s[0]
		for i := 1; i < len(s); i++ {
			if s[i] == '\\' {
				i++
				continue
			}
			if s[i] == q {
				return strings.ReplaceAll(s[1:i], `\`+string(q), string(q)), s[i+1:]
			}
		}
		return s[1:], ""
	case '{':
		depth := 0
		for i := 0; i < len(s); i++ {
			switch s[i] {
			case '{':
				depth++
			case '}':
				depth--
				if depth == 0 {
					return s[1:i], s[i+1:]
				}
			}
		}
		return s[1:], ""
	}
	end := strings.IndexAny(s, " \t")
	if end < 0 {
		return s, ""
	}
	return s[:end], s[end:]
}

func validAttrName(name string) bool {
	if name == "" || strings.EqualFold(name, "class") || strings.HasPrefix(strings.ToLower(name), "on") {
		return false
	}
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == ':':
		default:
			return false
		}
	}
	return true
}
