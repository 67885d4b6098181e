package mdx

import (
	"bytes"
	"strings"

	"github.com/yuin/goldmark/ast"
)

// nodeText returns the plain text of n's inline children.
func nodeText(n ast.Node, src []byte) string {
	var b strings.Builder
	_ = ast.Walk(n, func(c ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch t := c.(type) {
		case *ast.Text:
			b.Write(t.Segment.Value(src))
			if t.SoftLineBreak() || t.HardLineBreak() {
				b.WriteByte(' ')
			}
		case *ast.String:
			b.Write(t.Value)
		case *ast.AutoLink:
			b.Write(t.Label(src))
			return ast.WalkSkipChildren, nil
		case *ast.RawHTML:
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
	return strings.TrimSpace(b.String())
}

// lineOf returns the 1-based source line of the block containing n, or 0.
func lineOf(n ast.Node, src []byte) int {
	for c := n; c != nil; c = c.Parent() {
		if c.Type() != ast.TypeBlock {
			continue
		}
		lines := c.Lines()
		if lines == nil || lines.Len() == 0 {
			continue
		}
		start := lines.At(0).Start
		if start > len(src) {
			return 0
		}
		return bytes.Count(src[:start], []byte("\n")) + 1
	}
	return 0
}

// splitTarget splits a link destination into path and suffix (query and
// fragment, including the separator).
func splitTarget(dest string) (p, suffix string) {
	if i := strings.IndexAny(dest, "?#"); i >= 0 {
		return dest[:i], dest[i:]
	}
	return dest, ""
}

// isRelative reports whether dest is a relative path reference.
func isRelative(dest string) bool {
	if dest == "" || strings.HasPrefix(dest, "#") || strings.HasPrefix(dest, "/") || strings.HasPrefix(dest, "?") {
		return false
	}
	if strings.HasPrefix(dest, "!") {
		return false
	}
	if i := strings.IndexAny(dest, ":/?#"); i >= 0 && dest[i] == ':' {
		return false
	}
	return true
}

// withBase prefixes route with basePath.
func withBase(basePath, route string) string {
	if basePath == "" || basePath == "/" {
		return route
	}
	if route == "/" {
		return basePath
	}
	return basePath + route
}
