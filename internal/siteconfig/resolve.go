package siteconfig

import (
	"github.com/keithlinneman/linnemanlabs-book/internal/pathmatch"
	"github.com/keithlinneman/linnemanlabs-book/internal/pathutil"
	"github.com/keithlinneman/linnemanlabs-book/internal/xerrors"
)

type compiledRedirect struct {
	Redirect
	rule *pathmatch.Rule
}

// RedirectTable is the request-time form of a redirect list.
type RedirectTable struct {
	rules []compiledRedirect
}

// CompileRedirects validates every rule and mounts base-path rules under basePath.
func CompileRedirects(basePath string, redirects []Redirect) (*RedirectTable, error) {
	t := &RedirectTable{rules: make([]compiledRedirect, 0, len(redirects))}
	for i, r := range redirects {
		src, dst := r.Source, r.Destination
		if r.BasePath {
			src = pathutil.Mount(basePath, src)
			dst = pathutil.Mount(basePath, dst)
		}
		rule, err := pathmatch.NewRule(src, dst)
		if err != nil {
			return nil, xerrors.Wrapf(err, "redirect %d (%s)", i, r.Source)
		}
		t.rules = append(t.rules, compiledRedirect{Redirect: r, rule: rule})
	}
	return t, nil
}

// Len returns the number of rules in the table.
func (t *RedirectTable) Len() int { return len(t.rules) }

// Resolve returns the destination and status code for reqPath, an escaped
// request path. Rules whose source has no parameters win over parameterized
// ones, otherwise the first matching rule in table order applies.
func (t *RedirectTable) Resolve(reqPath string) (dest string, status int, ok bool) {
	if t == nil {
		return "", 0, false
	}
	for _, r := range t.rules {
		if !r.rule.Source.IsExact() {
			continue
		}
		if d, ok := r.rule.Apply(reqPath); ok {
			return d, r.StatusCode(), true
		}
	}
	for _, r := range t.rules {
		if r.rule.Source.IsExact() {
			continue
		}
		if d, ok := r.rule.Apply(reqPath); ok {
			return d, r.StatusCode(), true
		}
	}
	return "", 0, false
}

// Sources returns the compiled source patterns in table order.
func (t *RedirectTable) Sources() []string {
	out := make([]string, 0, len(t.rules))
	for _, r := range t.rules {
		out = append(out, r.rule.Source.String())
	}
	return out
}

type compiledRewrite struct {
	Rewrite
	rule *pathmatch.Rule
}

// RewriteSet is the request-time form of one tier of the rewrite table.
type RewriteSet struct {
	rules []compiledRewrite
}

// CompileRewrites validates the active rules of one tier. Disabled rules are
// skipped and never matched.
func CompileRewrites(basePath string, rewrites []Rewrite) (*RewriteSet, error) {
	s := &RewriteSet{rules: make([]compiledRewrite, 0, len(rewrites))}
	for i, r := range rewrites {
		if r.Disabled {
			continue
		}
		src, dst := r.Source, r.Destination
		if r.BasePath {
			src = pathutil.Mount(basePath, src)
			dst = pathutil.Mount(basePath, dst)
		}
		rule, err := pathmatch.NewRule(src, dst)
		if err != nil {
			return nil, xerrors.Wrapf(err, "rewrite %d (%s)", i, r.Source)
		}
		s.rules = append(s.rules, compiledRewrite{Rewrite: r, rule: rule})
	}
	return s, nil
}

// Len returns the number of active rules.
func (s *RewriteSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.rules)
}

// Match returns the rewritten destination and the source pattern that
// produced it for the first matching rule. reqPath is the escaped request
// path; captured segments reach the destination without re-escaping.
func (s *RewriteSet) Match(reqPath string) (dest, source string, ok bool) {
	if s == nil {
		return "", "", false
	}
	for _, r := range s.rules {
		if d, ok := r.rule.Apply(reqPath); ok {
			return d, r.rule.Source.String(), true
		}
	}
	return "", "", false
}
