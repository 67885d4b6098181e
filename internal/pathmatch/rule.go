package pathmatch

import "fmt"

// Rule pairs a source pattern with a destination template.
type Rule struct {
	Source      *Pattern
	Destination *Template
}

// NewRule compiles source and destination and checks that every placeholder
// used by the destination is captured by the source with the same kind.
func NewRule(source, destination string) (*Rule, error) {
	src, err := Compile(source)
	if err != nil {
		return nil, err
	}
	dst, err := CompileTemplate(destination)
	if err != nil {
		return nil, err
	}
	if err := check(src, dst); err != nil {
		return nil, err
	}
	return &Rule{Source: src, Destination: dst}, nil
}

func check(src *Pattern, dst *Template) error {
	kinds := make(map[string]segKind, len(src.segs))
	for _, s := range src.segs {
		if s.kind != segLiteral {
			kinds[s.text] = s.kind
		}
	}
	for _, s := range dst.segs {
		if s.kind == segLiteral {
			continue
		}
		k, ok := kinds[s.text]
		if !ok {
			return fmt.Errorf("%w: destination %q uses :%s which source %q does not capture",
				ErrInvalidPattern, dst.raw, s.text, src.raw)
		}
		if k != s.kind {
			return fmt.Errorf("%w: :%s is a wildcard in only one of %q and %q",
				ErrInvalidPattern, s.text, src.raw, dst.raw)
		}
	}
	return nil
}

// Apply matches reqPath and returns the expanded destination.
func (r *Rule) Apply(reqPath string) (string, bool) {
	params, ok := r.Source.Match(reqPath)
	if !ok {
		return "", false
	}
	return r.Destination.Expand(params), true
}
