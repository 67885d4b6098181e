// Package content manages the lifecycle of built site bundles.
//
// A bundle is the reproducible tar.gz of a built site (pages, assets and
// manifest.json), addressed by the hex SHA-256 of its bytes. The builder
// writes bundles with [WriteBundle] and may publish them; servers obtain
// them from a local file ([ReadBundle]) or from S3 through a [Loader],
// which follows the hash named by an SSM parameter and checks the
// detached signature when a verifier is configured.
//
// The [Manager] holds the active [Snapshot]. A [Watcher] polls for newly
// published hashes and a [DirWatcher] reloads on filesystem changes; both
// validate a candidate before swapping it in and keep the current
// snapshot on any failure.
package content
