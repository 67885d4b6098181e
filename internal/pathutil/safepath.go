// Package pathutil holds URL path helpers shared by the site config and
// the site handler.
package pathutil

import "strings"

// HasDotSegments reports whether any path segment is "." or "..".
func HasDotSegments(p string) bool {
	for seg := range strings.SplitSeq(p, "/") {
		if seg == "." || seg == ".." {
			return true
		}
	}
	return false
}

// Safe reports whether p can be mapped onto a filesystem: no NUL bytes,
// no backslashes and no dot segments.
func Safe(p string) bool {
	return !strings.ContainsAny(p, "\x00\\") && !strings.Contains(p, "..") && !HasDotSegments(p)
}
