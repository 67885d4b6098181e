package sitehandler

import (
	"errors"
	"fmt"
	"io/fs"
	"net/http"

	"github.com/keithlinneman/linnemanlabs-book/internal/content"
	"github.com/keithlinneman/linnemanlabs-book/internal/log"
)

var ErrInvalidOptions = errors.New("sitehandler: invalid options")

const (
	defaultMaintenancePage = "maintenance.html"
	defaultNotFoundPage    = "404.html"

	defaultPageCache  = "no-cache"
	defaultAssetCache = "public, max-age=31536000, immutable"
	defaultOtherCache = "public, max-age=3600"
)

// SnapshotProvider returns the active built site, if any.
type SnapshotProvider interface {
	Get() (*content.Snapshot, bool)
}

// Fallback gets a chance to serve requests the built site cannot: paths
// with no file and methods other than GET and HEAD. It reports whether it
// wrote a response.
type Fallback interface {
	ServeFallback(w http.ResponseWriter, r *http.Request) bool
}

type Options struct {
	Logger   log.Logger
	Content  SnapshotProvider
	Fallback Fallback

	// FallbackFS holds the pages served without a snapshot. It must
	// contain MaintenanceFile; Fallback404File is optional.
	FallbackFS fs.FS

	// BasePath is the site mount point ("/v2"). Empty mounts at the root.
	BasePath string

	MaintenanceFile string
	Fallback404File string
	// Site404File is looked up in the active snapshot before Fallback404File.
	Site404File string

	HTMLCacheControl  string
	AssetCacheControl string
	OtherCacheControl string
}

func (o *Options) setDefaults() {
	if o.Logger == nil {
		o.Logger = log.Nop()
	}
	if o.BasePath == "/" {
		o.BasePath = ""
	}
	orDefault(&o.MaintenanceFile, defaultMaintenancePage)
	orDefault(&o.Fallback404File, defaultNotFoundPage)
	orDefault(&o.Site404File, defaultNotFoundPage)
	orDefault(&o.HTMLCacheControl, defaultPageCache)
	orDefault(&o.AssetCacheControl, defaultAssetCache)
	orDefault(&o.OtherCacheControl, defaultOtherCache)
}

func orDefault(s *string, def string) {
	if *s == "" {
		*s = def
	}
}

func (o *Options) validate() error {
	switch {
	case o.Content == nil:
		return invalid("Content is nil")
	case o.FallbackFS == nil:
		return invalid("FallbackFS is nil")
	case o.BasePath != "" && (o.BasePath[0] != '/' || o.BasePath[len(o.BasePath)-1] == '/'):
		return invalid("BasePath %q must start with and not end with /", o.BasePath)
	}
	// a mispackaged binary should fail at boot, not at the first outage
	if !isFile(o.FallbackFS, o.MaintenanceFile) {
		return invalid("fallback FS has no %q", o.MaintenanceFile)
	}
	return nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidOptions, fmt.Sprintf(format, args...))
}
