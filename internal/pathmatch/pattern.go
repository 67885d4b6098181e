// Package pathmatch implements the small path pattern language used by the
// redirect and rewrite tables.
//
// A pattern is a slash separated list of segments. Each segment is either a
// literal, a named parameter ":name" matching exactly one segment, or a named
// wildcard ":name*" matching zero or more trailing segments. Destinations are
// templates that may be absolute URLs ("https://host/v2/:path*") or plain paths
// and may only reference names captured by the source.
package pathmatch

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ErrInvalidPattern is returned (wrapped) for patterns that cannot be compiled.
var ErrInvalidPattern = errors.New("pathmatch: invalid pattern")

type segKind int

const (
	segLiteral segKind = iota
	segParam
	segWildcard
)

type segment struct {
	kind segKind
	// literal text for segLiteral, parameter name otherwise
	text string
}

// Params holds captured values keyed by parameter name. Values are escaped
// path text as it appeared in the request, so an encoded slash stays inside
// its segment. Wildcard captures hold the matched segments joined with "/"
// (empty when nothing matched).
type Params map[string]string

// Pattern is a compiled source pattern.
type Pattern struct {
	raw   string
	segs  []segment
	names []string
}

// Compile parses a source pattern such as "/v2/api/:path*".
func Compile(pattern string) (*Pattern, error) {
	if !strings.HasPrefix(pattern, "/") {
		return nil, fmt.Errorf("%w: %q must start with /", ErrInvalidPattern, pattern)
	}
	segs, names, err := parseSegments(pattern, strings.TrimPrefix(pattern, "/"))
	if err != nil {
		return nil, err
	}
	return &Pattern{raw: pattern, segs: segs, names: names}, nil
}

// MustCompile is like Compile but panics on error. Intended for static tables.
func MustCompile(pattern string) *Pattern {
	p, err := Compile(pattern)
	if err != nil {
		panic(err)
	}
	return p
}

func parseSegments(raw, p string) ([]segment, []string, error) {
	if p == "" {
		return nil, nil, nil
	}
	parts := strings.Split(strings.TrimSuffix(p, "/"), "/")
	segs := make([]segment, 0, len(parts))
	var names []string
	seen := make(map[string]bool)
	for i, part := range parts {
		if part == "" {
			return nil, nil, fmt.Errorf("%w: %q has an empty segment", ErrInvalidPattern, raw)
		}
		if !strings.HasPrefix(part, ":") {
			segs = append(segs, segment{kind: segLiteral, text: part})
			continue
		}
		name := part[1:]
		kind := segParam
		if strings.HasSuffix(name, "*") {
			kind = segWildcard
			name = strings.TrimSuffix(name, "*")
			if i != len(parts)-1 {
				return nil, nil, fmt.Errorf("%w: %q wildcard :%s* must be the last segment", ErrInvalidPattern, raw, name)
			}
		}
		if !validName(name) {
			return nil, nil, fmt.Errorf("%w: %q has invalid parameter name %q", ErrInvalidPattern, raw, name)
		}
		if seen[name] {
			return nil, nil, fmt.Errorf("%w: %q repeats parameter :%s", ErrInvalidPattern, raw, name)
		}
		seen[name] = true
		names = append(names, name)
		segs = append(segs, segment{kind: kind, text: name})
	}
	return segs, names, nil
}

func validName(name string) bool {
	if name == "" {
		return false
	}
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
		default:
			return false
		}
	}
	return true
}

// String returns the pattern as written.
func (p *Pattern) String() string { return p.raw }

// Names returns the parameter names in the order they appear.
func (p *Pattern) Names() []string { return append([]string(nil), p.names...) }

// HasWildcard reports whether the pattern ends in a ":name*" segment.
func (p *Pattern) HasWildcard() bool {
	return len(p.segs) > 0 && p.segs[len(p.segs)-1].kind == segWildcard
}

// IsExact reports whether the pattern contains only literal segments.
func (p *Pattern) IsExact() bool { return len(p.names) == 0 }

// Match matches an escaped request path (url.URL.EscapedPath) against the
// pattern. A single trailing slash on the path is ignored. Paths with "." or
// ".." segments, plain or percent-encoded, never match.
func (p *Pattern) Match(escapedPath string) (Params, bool) {
	if !strings.HasPrefix(escapedPath, "/") {
		return nil, false
	}
	trimmed := strings.TrimSuffix(strings.TrimPrefix(escapedPath, "/"), "/")
	var parts []string
	if trimmed != "" {
		parts = strings.Split(trimmed, "/")
	}
	for _, part := range parts {
		if seg, err := url.PathUnescape(part); err != nil || seg == "." || seg == ".." {
			return nil, false
		}
	}

	params := make(Params, len(p.names))
	for i, seg := range p.segs {
		switch seg.kind {
		case segWildcard:
			if i > len(parts) {
				return nil, false
			}
			params[seg.text] = strings.Join(parts[i:], "/")
			return params, true
		case segParam:
			if i >= len(parts) || parts[i] == "" {
				return nil, false
			}
			params[seg.text] = parts[i]
		default:
			if i >= len(parts) {
				return nil, false
			}
			if lit, _ := url.PathUnescape(parts[i]); lit != seg.text {
				return nil, false
			}
		}
	}
	if len(parts) != len(p.segs) {
		return nil, false
	}
	return params, true
}

// Template is a compiled destination.
type Template struct {
	raw    string
	origin string // scheme://host for absolute destinations, "" for paths
	segs   []segment
	names  []string
}

// CompileTemplate parses a destination such as "https://localhost:3001/v2/api/:path*"
// or "/learn/basics/:path*".
func CompileTemplate(dest string) (*Template, error) {
	origin, p := "", dest
	if strings.Contains(dest, "://") {
		u, err := url.Parse(dest)
		if err != nil {
			return nil, fmt.Errorf("%w: destination %q: %v", ErrInvalidPattern, dest, err)
		}
		if u.Scheme == "" || u.Host == "" {
			return nil, fmt.Errorf("%w: destination %q is not an absolute URL", ErrInvalidPattern, dest)
		}
		if u.RawQuery != "" || u.Fragment != "" {
			return nil, fmt.Errorf("%w: destination %q must not carry a query or fragment", ErrInvalidPattern, dest)
		}
		origin = u.Scheme + "://" + u.Host
		p = u.Path
		if p == "" {
			p = "/"
		}
	}
	if !strings.HasPrefix(p, "/") {
		return nil, fmt.Errorf("%w: destination %q must be an absolute URL or start with /", ErrInvalidPattern, dest)
	}
	segs, names, err := parseSegments(dest, strings.TrimPrefix(p, "/"))
	if err != nil {
		return nil, err
	}
	return &Template{raw: dest, origin: origin, segs: segs, names: names}, nil
}

// String returns the template as written.
func (t *Template) String() string { return t.raw }

// Names returns the placeholder names in the order they appear.
func (t *Template) Names() []string { return append([]string(nil), t.names...) }

// IsAbsolute reports whether the destination carries its own origin.
func (t *Template) IsAbsolute() bool { return t.origin != "" }

// Expand substitutes params into the template. Captured segments that are
// already valid escaped path text are written as they are; anything else is
// path-escaped. An empty wildcard capture drops its segment entirely.
func (t *Template) Expand(params Params) string {
	var b strings.Builder
	b.WriteString(t.origin)
	for _, seg := range t.segs {
		switch seg.kind {
		case segLiteral:
			b.WriteByte('/')
			b.WriteString(seg.text)
		case segParam:
			b.WriteByte('/')
			b.WriteString(escapeSegment(params[seg.text]))
		case segWildcard:
			v := params[seg.text]
			if v == "" {
				continue
			}
			for part := range strings.SplitSeq(v, "/") {
				b.WriteByte('/')
				b.WriteString(escapeSegment(part))
			}
		}
	}
	if b.Len() == len(t.origin) {
		b.WriteByte('/')
	}
	return b.String()
}

func escapeSegment(s string) string {
	if isEscapedSegment(s) {
		return s
	}
	return url.PathEscape(s)
}

// isEscapedSegment reports whether s is valid as one escaped path segment:
// RFC 3986 pchar characters and well-formed percent escapes only.
func isEscapedSegment(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		case strings.IndexByte("-._~!$&'()*+,;=:@", c) >= 0:
		case c == '%':
			if i+2 >= len(s) || !isHex(s[i+1]) || !isHex(s[i+2]) {
				return false
			}
			i += 2
		default:
			return false
		}
	}
	return true
}

func isHex(c byte) bool {
	return c >= '0' && c <= '9' || c >= 'a' && c <= 'f' || c >= 'A' && c <= 'F'
}
