package mdx

import (
	"strconv"
	"strings"
	"unicode"

	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/text"
)

// headingSlug assigns GitHub-style ids to headings and records the outline.
type headingSlug struct{}

func (headingSlug) Transform(doc *ast.Document, reader text.Reader, pc parser.Context) {
	st := stateFrom(pc)
	src := reader.Source()
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		h, ok := n.(*ast.Heading)
		if !ok {
			return ast.WalkContinue, nil
		}
		txt := nodeText(h, src)

		var id string
		if v, ok := h.AttributeString("id"); ok {
			switch v := v.(type) {
			case []byte:
				id = string(v)
			case string:
				id = v
			}
			st.slugs.reserve(id)
		} else if id = st.slugs.slug(txt); id != "" {
			h.SetAttributeString("id", []byte(id))
		}

		st.headings = append(st.headings, Heading{Level: h.Level, ID: id, Text: txt})
		return ast.WalkSkipChildren, nil
	})
}

// slugger generates unique slugs within one document.
type slugger struct {
	occurrences map[string]int
}

func newSlugger() *slugger {
	return &slugger{occurrences: make(map[string]int)}
}

func (s *slugger) slug(value string) string {
	base := githubSlug(value)
	if base == "" {
		return ""
	}
	out := base
	for {
		if _, taken := s.occurrences[out]; !taken {
			break
		}
		s.occurrences[base]++
		out = base + "-" + strconv.Itoa(s.occurrences[base])
	}
	s.occurrences[out] = 0
	return out
}

func (s *slugger) reserve(id string) {
	if _, ok := s.occurrences[id]; !ok {
		s.occurrences[id] = 0
	}
}

// githubSlug lowercases value, drops punctuation and replaces spaces with
// hyphens.
func githubSlug(value string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(value) {
		switch {
		case r == ' ':
			b.WriteByte('-')
		case r == '-' || r == '_':
			b.WriteRune(r)
		case unicode.IsLetter(r) || unicode.IsNumber(r) || unicode.Is(unicode.M, r):
			b.WriteRune(r)
		}
	}
	return b.String()
}
