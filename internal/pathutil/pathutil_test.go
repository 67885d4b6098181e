package pathutil

import (
	"strings"
	"testing"
)

func TestHasDotSegments(t *testing.T) {
	tests := map[string]bool{
		"/learn/basics":  false,
		"/learn/./intro": true,
		"/learn/../up":   true,
		".":              true,
		"..":             true,
		"/...":           false,
		"/.well-known":   false,
		"/learn/.":       true,
		"/../":           true,
	}
	for p, want := range tests {
		if got := HasDotSegments(p); got != want {
			t.Errorf("HasDotSegments(%q) = %v, want %v", p, got, want)
		}
	}
}

func TestSafe(t *testing.T) {
	tests := map[string]bool{
		"/learn/basics":      true,
		"/.well-known/x":     true,
		"/learn/../x":        false,
		"/learn/..x":         false,
		"/learn\\basics":     false,
		"/index.html\x00.md": false,
	}
	for p, want := range tests {
		if got := Safe(p); got != want {
			t.Errorf("Safe(%q) = %v, want %v", p, got, want)
		}
	}
}

func TestMount(t *testing.T) {
	tests := []struct{ base, p, want string }{
		{"/v2", "/learn", "/v2/learn"},
		{"/v2", "/", "/v2"},
		{"", "/learn", "/learn"},
		{"/", "/learn", "/learn"},
		{"/v2", "https://example.com/x", "https://example.com/x"},
	}
	for _, tt := range tests {
		if got := Mount(tt.base, tt.p); got != tt.want {
			t.Errorf("Mount(%q, %q) = %q, want %q", tt.base, tt.p, got, tt.want)
		}
	}
}

func TestUnmount(t *testing.T) {
	tests := []struct {
		base, p string
		want    string
		ok      bool
	}{
		{"", "/learn", "/learn", true},
		{"/", "/learn", "/learn", true},
		{"/v2", "/v2", "/", true},
		{"/v2", "/v2/", "/", true},
		{"/v2", "/v2/learn/basics", "/learn/basics", true},
		{"/v2", "/v20/learn", "", false},
		{"/v2", "/learn", "", false},
	}
	for _, tt := range tests {
		got, ok := Unmount(tt.base, tt.p)
		if got != tt.want || ok != tt.ok {
			t.Errorf("Unmount(%q, %q) = %q, %v; want %q, %v", tt.base, tt.p, got, ok, tt.want, tt.ok)
		}
	}
}

func FuzzMountRoundTrip(f *testing.F) {
	for _, s := range []string{"/", "/learn", "/learn/basics/", "//x"} {
		f.Add("/v2", s)
	}
	f.Fuzz(func(t *testing.T, base, p string) {
		if base == "" || !strings.HasPrefix(base, "/") || strings.HasSuffix(base, "/") || !strings.HasPrefix(p, "/") || strings.Contains(p, "://") {
			t.Skip()
		}
		got, ok := Unmount(base, Mount(base, p))
		if !ok || got != p {
			t.Fatalf("Unmount(Mount(%q, %q)) = %q, %v", base, p, got, ok)
		}
	})
}
