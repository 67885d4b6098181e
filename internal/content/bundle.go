package content

import (
	"archive/tar"
	"bytes"
	"errors"
	"io"
	"io/fs"
	"path"
	"strings"
	"testing/fstest"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/keithlinneman/linnemanlabs-book/internal/cryptoutil"
	"github.com/keithlinneman/linnemanlabs-book/internal/xerrors"
)

// limits bound a bundle's archive size, any single file in it and the
// sum of its extracted files.
type limits struct {
	archive int64
	file    int64
	total   int64
}

var bundleLimits = limits{
	archive: 50 << 20,
	file:    10 << 20,
	total:   100 << 20,
}

// ErrTooLarge reports a bundle or bundle entry over its size limit.
var ErrTooLarge = errors.New("exceeds size limit")

func tooLarge(what string, n, limit int64) error {
	return xerrors.Wrapf(ErrTooLarge, "%s is %d bytes, limit %d", what, n, limit)
}

// readHashed reads at most limit bytes from r and returns them with their
// hex SHA-256.
func readHashed(r io.Reader, limit int64) ([]byte, string, error) {
	d := cryptoutil.NewDigest()
	data, err := io.ReadAll(io.TeeReader(io.LimitReader(r, limit+1), d))
	if err != nil {
		return nil, "", err
	}
	if int64(len(data)) > limit {
		return nil, "", tooLarge("content", int64(len(data)), limit)
	}
	return data, d.Hex(), nil
}

// entryName validates a tar entry name and returns its cleaned form. An
// empty name means the entry is the archive root and carries nothing.
func entryName(raw string) (string, error) {
	name := path.Clean(raw)
	switch {
	case name == ".":
		return "", nil
	case path.IsAbs(name):
		return "", xerrors.Newf("absolute path in archive: %s", raw)
	case strings.Contains(name, ".."):
		return "", xerrors.Newf("path traversal in archive: %s", raw)
	}
	return name, nil
}

// unpack extracts a tar.gz into memory. Only directories and regular
// files are accepted; links and devices fail the whole bundle.
func unpack(data []byte, lim limits) (fstest.MapFS, error) {
	gr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, xerrors.Wrap(err, "open gzip")
	}
	defer gr.Close()

	out := fstest.MapFS{}
	var total int64
	tr := tar.NewReader(gr)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, xerrors.Wrap(err, "read tar header")
		}
		name, err := entryName(hdr.Name)
		if err != nil {
			return nil, err
		}
		if name == "" || hdr.Typeflag == tar.TypeDir {
			continue
		}
		if hdr.Typeflag != tar.TypeReg {
			return nil, xerrors.Newf("unsupported entry %s (type %q)", name, hdr.Typeflag)
		}
		if hdr.Size > lim.file {
			return nil, tooLarge(name, hdr.Size, lim.file)
		}

		body, err := io.ReadAll(io.LimitReader(tr, lim.file+1))
		if err != nil {
			return nil, xerrors.Wrapf(err, "read %s", name)
		}
		if int64(len(body)) > lim.file {
			return nil, tooLarge(name, int64(len(body)), lim.file)
		}
		if total += int64(len(body)); total > lim.total {
			return nil, tooLarge("extracted site", total, lim.total)
		}
		out[name] = &fstest.MapFile{Data: body, Mode: hdr.FileInfo().Mode().Perm()}
	}
}

// OpenBundle checks data against expectedHash and extracts it to memory.
// An empty expectedHash skips the digest check.
func OpenBundle(data []byte, expectedHash string) (fs.FS, string, error) {
	if n := int64(len(data)); n > bundleLimits.archive {
		return nil, "", tooLarge("bundle", n, bundleLimits.archive)
	}
	hash := cryptoutil.SHA256Hex(data)
	if expectedHash != "" && !cryptoutil.HashEqual(hash, expectedHash) {
		return nil, hash, xerrors.Newf("checksum mismatch: expected %s, got %s", expectedHash, hash)
	}
	fsys, err := unpack(data, bundleLimits)
	if err != nil {
		return nil, hash, xerrors.Wrap(err, "extract bundle")
	}
	return fsys, hash, nil
}

// WriteBundle packs every regular file in fsys into a tar.gz on w and
// returns the hex SHA-256 and length of what it wrote. The archive depends
// only on paths and contents, so rebuilding unchanged content reproduces
// the same hash.
func WriteBundle(w io.Writer, fsys fs.FS) (string, int64, error) {
	d := cryptoutil.NewDigest()
	gw, err := gzip.NewWriterLevel(io.MultiWriter(w, d), gzip.BestCompression)
	if err != nil {
		return "", 0, xerrors.Wrap(err, "gzip writer")
	}
	tw := tar.NewWriter(gw)

	var total int64
	// WalkDir visits entries in lexical order
	err = fs.WalkDir(fsys, ".", func(p string, e fs.DirEntry, err error) error {
		if err != nil || e.IsDir() {
			return err
		}
		if !e.Type().IsRegular() {
			return xerrors.Newf("unsupported file type: %s", p)
		}
		data, err := fs.ReadFile(fsys, p)
		if err != nil {
			return xerrors.Wrapf(err, "read %s", p)
		}
		if n := int64(len(data)); n > bundleLimits.file {
			return tooLarge(p, n, bundleLimits.file)
		}
		if total += int64(len(data)); total > bundleLimits.total {
			return tooLarge("site", total, bundleLimits.total)
		}
		return addFile(tw, p, data)
	})
	if err != nil {
		return "", 0, err
	}
	if err := tw.Close(); err != nil {
		return "", 0, xerrors.Wrap(err, "close tar")
	}
	if err := gw.Close(); err != nil {
		return "", 0, xerrors.Wrap(err, "close gzip")
	}
	if d.Len() > bundleLimits.archive {
		return "", d.Len(), tooLarge("bundle", d.Len(), bundleLimits.archive)
	}
	return d.Hex(), d.Len(), nil
}

// addFile writes one entry with a fixed mode, owner and timestamp.
func addFile(tw *tar.Writer, name string, data []byte) error {
	err := tw.WriteHeader(&tar.Header{
		Typeflag: tar.TypeReg,
		Name:     name,
		Mode:     0o644,
		Size:     int64(len(data)),
		ModTime:  time.Unix(0, 0),
		Format:   tar.FormatPAX,
	})
	if err != nil {
		return xerrors.Wrapf(err, "tar header %s", name)
	}
	_, err = tw.Write(data)
	return xerrors.Wrapf(err, "tar write %s", name)
}
