package content

import (
	"errors"
	"io/fs"

	"github.com/keithlinneman/linnemanlabs-book/internal/xerrors"
)

// ErrInvalidSnapshot wraps every ValidateSnapshot failure.
var ErrInvalidSnapshot = errors.New("invalid content snapshot")

// ValidationOptions selects the checks ValidateSnapshot runs on top of
// the home page check. The zero value runs only that one.
type ValidationOptions struct {
	MinFiles        int  // fewer regular files fail; 0 skips the count
	RequireManifest bool // a missing manifest.json fails
	VerifyManifest  bool // every manifest digest must match its file
}

// DefaultValidationOptions is what the S3 watcher applies to published
// bundles.
func DefaultValidationOptions() ValidationOptions {
	return ValidationOptions{MinFiles: 2, RequireManifest: true, VerifyManifest: true}
}

// ValidateSnapshot reports the first reason snap must not be served.
func ValidateSnapshot(snap *Snapshot, opts ValidationOptions) error {
	if err := validate(snap, opts); err != nil {
		return xerrors.Wrapf(errors.Join(ErrInvalidSnapshot, err), "validate")
	}
	return nil
}

func validate(snap *Snapshot, opts ValidationOptions) error {
	switch {
	case snap == nil:
		return xerrors.New("snapshot is nil")
	case snap.FS == nil:
		return xerrors.New("snapshot has nil filesystem")
	}

	home, err := fs.Stat(snap.FS, "index.html")
	switch {
	case err != nil:
		return xerrors.Wrap(err, "index.html not found")
	case home.Size() == 0:
		return xerrors.New("index.html is empty")
	}

	if opts.MinFiles > 0 {
		n, err := regularFiles(snap.FS)
		if err != nil {
			return xerrors.Wrap(err, "count files")
		}
		if n < opts.MinFiles {
			return xerrors.Newf("bundle has %d files, minimum is %d", n, opts.MinFiles)
		}
	}

	switch {
	case snap.Manifest == nil && opts.RequireManifest:
		return xerrors.Newf("%s is required but missing", ManifestFilePath)
	case snap.Manifest != nil && opts.VerifyManifest:
		return snap.Manifest.Verify(snap.FS)
	}
	return nil
}

func regularFiles(fsys fs.FS) (n int, err error) {
	err = fs.WalkDir(fsys, ".", func(_ string, d fs.DirEntry, err error) error {
		if err == nil && d.Type().IsRegular() {
			n++
		}
		return err
	})
	return n, err
}
