package mdx

import (
	"bytes"

	"gopkg.in/yaml.v3"

	"github.com/keithlinneman/linnemanlabs-book/internal/xerrors"
)

// FrontMatter is the YAML block at the top of a document.
type FrontMatter struct {
	Title       string         `yaml:"title" json:"title,omitempty"`
	Description string         `yaml:"description" json:"description,omitempty"`
	Tags        []string       `yaml:"tags" json:"tags,omitempty"`
	Draft       bool           `yaml:"draft" json:"draft,omitempty"`
	Params      map[string]any `yaml:",inline" json:"params,omitempty"`
}

var fmDelim = []byte("---")

// splitFrontMatter separates a leading "---" delimited YAML block from the
// document body. It also returns the number of source lines removed.
func splitFrontMatter(src []byte) (FrontMatter, []byte, int, error) {
	var fm FrontMatter
	first, rest, ok := cutLine(src)
	if !ok || !bytes.Equal(bytes.TrimRight(first, " \t\r"), fmDelim) {
		return fm, src, 0, nil
	}

	lines := 1
	var block []byte
	for {
		line, next, more := cutLine(rest)
		lines++
		if bytes.Equal(bytes.TrimRight(line, " \t\r"), fmDelim) {
			if err := yaml.Unmarshal(block, &fm); err != nil {
				return fm, nil, 0, xerrors.Wrap(err, "decode yaml")
			}
			return fm, next, lines, nil
		}
		if !more {
			return fm, nil, 0, xerrors.New("unterminated front matter")
		}
		block = append(block, line...)
		block = append(block, '\n')
		rest = next
	}
}

// cutLine returns the first line of b (without the newline) and the
// remainder. ok is false when b has no newline.
func cutLine(b []byte) (line, rest []byte, ok bool) {
	if i := bytes.IndexByte(b, '\n'); i >= 0 {
		return b[:i], b[i+1:], true
	}
	return b, nil, false
}
