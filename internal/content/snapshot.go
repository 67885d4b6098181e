package content

import (
	"io/fs"
	"time"
)

// Source records where a snapshot came from.
type Source string

const (
	SourceUnknown Source = "unknown"
	SourceSeed    Source = "seed"
	SourceLocal   Source = "local"
	SourceS3      Source = "s3"
	SourceBundle  Source = "bundle" // a bundle file written by the builder
)

// Snapshot is one immutable build of the site.
type Snapshot struct {
	FS       fs.FS
	Meta     Meta
	Manifest *Manifest
	LoadedAt time.Time
}

// Meta describes a snapshot's provenance.
type Meta struct {
	Version    string    `json:"version,omitempty"`
	SHA256     string    `json:"sha256,omitempty"`
	BuiltAt    time.Time `json:"built_at,omitempty"`
	VerifiedAt time.Time `json:"verified_at,omitempty"`
	Source     Source    `json:"source,omitempty"`

	// SignedBy is the KMS key that signed the bundle, empty when unsigned.
	SignedBy string `json:"signed_by,omitempty"`
}

// ShortHash abbreviates a bundle digest to 12 characters for logs.
func ShortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}
