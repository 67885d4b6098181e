package pathutil

import "strings"

// Mount prefixes p with the mount point base. Absolute URLs and an empty
// or root base leave p unchanged.
func Mount(base, p string) string {
	if base == "" || base == "/" || strings.Contains(p, "://") {
		return p
	}
	if p == "/" {
		return base
	}
	return base + p
}

// Unmount returns p relative to the mount point base, and false when p is
// not under it. "/v2" and "/v2/" both unmount to "/".
func Unmount(base, p string) (string, bool) {
	if base == "" || base == "/" {
		return p, true
	}
	if p == base {
		return "/", true
	}
	rest, ok := strings.CutPrefix(p, base)
	if !ok || !strings.HasPrefix(rest, "/") {
		return "", false
	}
	return rest, true
}
