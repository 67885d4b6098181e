package webassets

import (
	"embed"
	"fmt"
	"html/template"
	"io/fs"
)

// fallback/ and seed/ must exist and have at least one file each to satisfy go:embed
//
//go:embed fallback seed layout
var embedded embed.FS

// PageLayout is the template name executed for every page.
const PageLayout = "page.html"

func FallbackFS() fs.FS {
	sub, err := fs.Sub(embedded, "fallback")
	if err != nil {
		panic(fmt.Errorf("webassets: fallback subfs: %w", err))
	}
	return sub
}

// SeedSiteFS returns (fs, true) only if seed looks like a real site (has index.html)
func SeedSiteFS() (fs.FS, bool) {
	sub, err := fs.Sub(embedded, "seed")
	if err != nil {
		return nil, false
	}
	if _, err := fs.Stat(sub, "index.html"); err != nil {
		return nil, false
	}
	return sub, true
}

// LayoutTemplate parses the built-in page layout. A non-empty override
// replaces it with a template read from overrideFS.
func LayoutTemplate(overrideFS fs.FS, override string) (*template.Template, error) {
	t := template.New(PageLayout).Funcs(template.FuncMap{"navScope": navScope})
	if override != "" && overrideFS != nil {
		data, err := fs.ReadFile(overrideFS, override)
		if err != nil {
			return nil, fmt.Errorf("webassets: read layout %s: %w", override, err)
		}
		return t.Parse(string(data))
	}
	return t.ParseFS(embedded, "layout/"+PageLayout)
}

// navScope carries the base path into the recursive nav template.
func navScope(basePath string, items any) map[string]any {
	return map[string]any{"BasePath": basePath, "Items": items}
}
