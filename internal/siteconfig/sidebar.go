package siteconfig

import (
	"bytes"
	"errors"
	"io"
	"io/fs"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/keithlinneman/linnemanlabs-book/internal/xerrors"
)

// SidebarFile is the sidebar definition looked up in the content root.
const SidebarFile = "sidebar.yaml"

// SidebarItem is one entry of the navigation tree.
type SidebarItem struct {
	Title    string        `yaml:"title" json:"title"`
	Path     string        `yaml:"path,omitempty" json:"path,omitempty"`
	Children []SidebarItem `yaml:"children,omitempty" json:"children,omitempty"`

	// Number is the hierarchical chapter number ("2.3"), assigned on parse.
	Number string `yaml:"-" json:"number"`
}

// Sidebar is the navigation tree used to number pages.
type Sidebar struct {
	Items []SidebarItem `yaml:"items" json:"items"`

	byPath map[string]string
}

// ParseSidebar decodes a YAML sidebar and assigns chapter numbers.
func ParseSidebar(data []byte) (*Sidebar, error) {
	var s Sidebar
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil && !errors.Is(err, io.EOF) {
		return nil, xerrors.Wrap(err, "decode sidebar")
	}
	s.index()
	return &s, nil
}

// LoadSidebar reads SidebarFile from fsys. A missing file yields an empty
// sidebar, not an error.
func LoadSidebar(fsys fs.FS) (*Sidebar, error) {
	data, err := fs.ReadFile(fsys, SidebarFile)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			s := &Sidebar{}
			s.index()
			return s, nil
		}
		return nil, xerrors.Wrapf(err, "read %s", SidebarFile)
	}
	return ParseSidebar(data)
}

func (s *Sidebar) index() {
	s.byPath = make(map[string]string)
	numberItems(s.Items, "", s.byPath)
}

func numberItems(items []SidebarItem, prefix string, byPath map[string]string) {
	for i := range items {
		n := strconv.Itoa(i + 1)
		if prefix != "" {
			n = prefix + "." + n
		}
		items[i].Number = n
		if p := normalizeRoute(items[i].Path); p != "" {
			if _, dup := byPath[p]; !dup {
				byPath[p] = n
			}
		}
		numberItems(items[i].Children, n, byPath)
	}
}

// NumberFor returns the chapter number of the page at route.
func (s *Sidebar) NumberFor(route string) (string, bool) {
	if s == nil || s.byPath == nil {
		return "", false
	}
	n, ok := s.byPath[normalizeRoute(route)]
	return n, ok
}

func normalizeRoute(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return ""
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 {
		p = strings.TrimSuffix(p, "/")
	}
	return p
}
