package content

import (
	"encoding/json"
	"io/fs"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/keithlinneman/linnemanlabs-book/internal/cryptoutil"
	"github.com/keithlinneman/linnemanlabs-book/internal/xerrors"
)

// ManifestSchema identifies the manifest.json layout.
const ManifestSchema = "book.site-manifest/v1"

// ManifestFilePath is the location of the manifest inside a bundle.
const ManifestFilePath = "manifest.json"

// Manifest describes a built site. It is written by the builder as the last
// file of the site and lists every other file with its digest.
type Manifest struct {
	Schema      string          `json:"schema"`
	Version     string          `json:"version"`
	BasePath    string          `json:"base_path"`
	BuiltAt     time.Time       `json:"built_at"`
	Summary     ManifestSummary `json:"summary"`
	Files       []ManifestFile  `json:"files"`
	Pages       []ManifestPage  `json:"pages,omitempty"`
	Diagnostics int             `json:"diagnostics"`
}

type ManifestSummary struct {
	TotalFiles int            `json:"total_files"`
	TotalSize  int64          `json:"total_size"`
	Pages      int            `json:"pages"`
	FileTypes  map[string]int `json:"file_types"`
}

type ManifestFile struct {
	Path   string `json:"path"`
	SHA256 string `json:"sha256"`
	Size   int64  `json:"size"`
	Type   string `json:"type"`
}

// ManifestPage maps a compiled source file to its route.
type ManifestPage struct {
	Route  string `json:"route"`
	Source string `json:"source"`
	Title  string `json:"title,omitempty"`
	Number string `json:"number,omitempty"`
}

// NewManifest hashes every file in fsys except the manifest itself.
func NewManifest(fsys fs.FS, version, basePath string, builtAt time.Time) (*Manifest, error) {
	m := &Manifest{
		Schema:   ManifestSchema,
		Version:  version,
		BasePath: basePath,
		BuiltAt:  builtAt.UTC(),
		Summary:  ManifestSummary{FileTypes: map[string]int{}},
	}
	err := fs.WalkDir(fsys, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || p == ManifestFilePath {
			return nil
		}
		data, err := fs.ReadFile(fsys, p)
		if err != nil {
			return xerrors.Wrapf(err, "read %s", p)
		}
		typ := fileType(p)
		m.Files = append(m.Files, ManifestFile{
			Path:   p,
			SHA256: cryptoutil.SHA256Hex(data),
			Size:   int64(len(data)),
			Type:   typ,
		})
		m.Summary.TotalFiles++
		m.Summary.TotalSize += int64(len(data))
		m.Summary.FileTypes[typ]++
		return nil
	})
	if err != nil {
		return nil, xerrors.Wrap(err, "walk site")
	}
	sort.Slice(m.Files, func(i, j int) bool { return m.Files[i].Path < m.Files[j].Path })
	return m, nil
}

// AddPage records a compiled page.
func (m *Manifest) AddPage(p ManifestPage) {
	m.Pages = append(m.Pages, p)
	m.Summary.Pages = len(m.Pages)
}

// Marshal renders the manifest as indented JSON.
func (m *Manifest) Marshal() ([]byte, error) {
	sort.Slice(m.Pages, func(i, j int) bool { return m.Pages[i].Route < m.Pages[j].Route })
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, xerrors.Wrap(err, "marshal manifest")
	}
	return append(data, '\n'), nil
}

// Verify checks that every listed file exists in fsys with the recorded
// digest.
func (m *Manifest) Verify(fsys fs.FS) error {
	for _, f := range m.Files {
		data, err := fs.ReadFile(fsys, f.Path)
		if err != nil {
			return xerrors.Wrapf(err, "manifest file %s", f.Path)
		}
		if !cryptoutil.HashEqual(cryptoutil.SHA256Hex(data), f.SHA256) {
			return xerrors.Newf("manifest file %s: digest mismatch", f.Path)
		}
	}
	return nil
}

// LoadManifest reads and parses manifest.json from fsys.
func LoadManifest(fsys fs.FS) (*Manifest, error) {
	data, err := fs.ReadFile(fsys, ManifestFilePath)
	if err != nil {
		return nil, xerrors.Wrapf(err, "read %s", ManifestFilePath)
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, xerrors.Wrapf(err, "parse %s", ManifestFilePath)
	}
	if m.Schema != ManifestSchema {
		return nil, xerrors.Newf("%s: unsupported schema %q", ManifestFilePath, m.Schema)
	}
	return &m, nil
}

func fileType(p string) string {
	ext := strings.TrimPrefix(strings.ToLower(path.Ext(p)), ".")
	if ext == "" {
		return "other"
	}
	return ext
}
