package sitehandler

import (
	"io/fs"
	"path"
	"strings"

	"github.com/keithlinneman/linnemanlabs-book/internal/content"
	"github.com/keithlinneman/linnemanlabs-book/internal/pathutil"
)

type outcome int

const (
	missing outcome = iota
	found
	canonicalize
)

// target is where a request path lands inside a built site. For found it
// names a file; for canonicalize it holds the slashless route to redirect
// to, relative to the mount point.
type target struct {
	outcome outcome
	name    string
}

// lookup maps a mount-relative path onto the site. Routes have no trailing
// slash: "/learn/basics" is learn/basics/index.html and "/learn/basics/"
// canonicalizes to it.
func lookup(fsys fs.FS, urlPath string) target {
	p := "/" + strings.TrimPrefix(urlPath, "/")
	if !pathutil.Safe(p) {
		return target{}
	}

	clean := path.Clean(p)
	if clean == "/" {
		return fileIf(fsys, "index.html")
	}
	name := clean[1:]

	if strings.HasSuffix(p, "/") {
		if isFile(fsys, name+"/index.html") {
			return target{outcome: canonicalize, name: clean}
		}
		return target{}
	}
	if path.Ext(name) != "" {
		return fileIf(fsys, name)
	}
	if t := fileIf(fsys, name+"/index.html"); t.outcome == found {
		return t
	}
	return fileIf(fsys, name)
}

func fileIf(fsys fs.FS, name string) target {
	if isFile(fsys, name) {
		return target{outcome: found, name: name}
	}
	return target{}
}

func isFile(fsys fs.FS, name string) bool {
	if name == "" || !fs.ValidPath(name) {
		return false
	}
	fi, err := fs.Stat(fsys, name)
	return err == nil && !fi.IsDir()
}

var assetExts = map[string]bool{
	".css": true, ".js": true, ".mjs": true, ".map": true,
	".png": true, ".jpg": true, ".jpeg": true, ".webp": true, ".avif": true,
	".gif": true, ".svg": true, ".ico": true,
	".woff": true, ".woff2": true, ".ttf": true, ".eot": true,
}

// cachePolicy picks the Cache-Control value for a file in the site.
// Pages revalidate, fingerprinted assets are immutable, anything else
// gets a short lifetime.
func (o *Options) cachePolicy(name string) string {
	if name == content.ManifestFilePath {
		return o.HTMLCacheControl
	}
	ext := strings.ToLower(path.Ext(name))
	switch {
	case ext == "" || ext == ".html":
		return o.HTMLCacheControl
	case assetExts[ext]:
		return o.AssetCacheControl
	default:
		return o.OtherCacheControl
	}
}
