package siteconfig

import (
	"os"

	"github.com/joho/godotenv"

	"github.com/keithlinneman/linnemanlabs-book/internal/xerrors"
)

// Environment variable names read by LoadEnv.
const (
	EnvBaseURL             = "BOOK_BASE_URL"
	EnvResourcesURL        = "BOOK_RESOURCES_URL"
	EnvAPIURL              = "BOOK_API_URL"
	EnvBasePath            = "BOOK_BASE_PATH"
	EnvCloudinaryCloudName = "CLOUDINARY_CLOUD_NAME"
	EnvBuildEnv            = "BOOK_ENV"
	EnvPlatformEnv         = "PLATFORM_ENV"
	EnvUserGuideURL        = "BOOK_USER_GUIDE_URL"
)

const (
	// DefaultBasePath is the mount point used when BOOK_BASE_PATH is unset.
	DefaultBasePath = "/v2"

	// DefaultProxyOrigin is the local development origin for proxied sub-sites.
	DefaultProxyOrigin = "https://localhost:3001"

	// ProductionEnv is the value either environment signal uses for a production build.
	ProductionEnv = "production"
)

// LookupFunc matches os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// Env holds the external parameters substituted into the tables. Values are
// captured once; nothing re-reads the environment after LoadEnv returns.
type Env struct {
	BaseURL             string
	ResourcesURL        string
	APIURL              string
	BasePath            string
	CloudinaryCloudName string
	BuildEnv            string
	PlatformEnv         string
	UserGuideURL        string
}

// LoadEnv reads all parameters through lookup. A nil lookup uses os.LookupEnv.
func LoadEnv(lookup LookupFunc) Env {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	return Env{
		BaseURL:             valueOr(lookup, EnvBaseURL, ""),
		ResourcesURL:        valueOr(lookup, EnvResourcesURL, ""),
		APIURL:              valueOr(lookup, EnvAPIURL, ""),
		BasePath:            valueOr(lookup, EnvBasePath, DefaultBasePath),
		CloudinaryCloudName: valueOr(lookup, EnvCloudinaryCloudName, ""),
		BuildEnv:            valueOr(lookup, EnvBuildEnv, ""),
		PlatformEnv:         valueOr(lookup, EnvPlatformEnv, ""),
		UserGuideURL:        valueOr(lookup, EnvUserGuideURL, ""),
	}
}

// valueOr returns the value of key when present and non-empty, else def.
func valueOr(lookup LookupFunc, key, def string) string {
	if v, ok := lookup(key); ok && v != "" {
		return v
	}
	return def
}

// LoadDotEnv loads KEY=VALUE pairs from path into the process environment
// without overriding variables that are already set. A missing file is not
// an error so the same binary runs with or without one.
func LoadDotEnv(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return xerrors.Wrapf(err, "stat env file %s", path)
	}
	if err := godotenv.Load(path); err != nil {
		return xerrors.Wrapf(err, "load env file %s", path)
	}
	return nil
}

// Production is true when either the build environment or the hosting
// platform environment reports a production build.
func (e Env) Production() bool {
	return e.BuildEnv == ProductionEnv || e.PlatformEnv == ProductionEnv
}

// ResourcesOrigin is the resources sub-site origin used by the rewrite table.
func (e Env) ResourcesOrigin() string {
	if e.ResourcesURL != "" {
		return e.ResourcesURL
	}
	return DefaultProxyOrigin
}

// APIOrigin is the API reference origin used by the rewrite table.
func (e Env) APIOrigin() string {
	if e.APIURL != "" {
		return e.APIURL
	}
	return DefaultProxyOrigin
}
