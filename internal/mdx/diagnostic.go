package mdx

import (
	"fmt"

	"github.com/keithlinneman/linnemanlabs-book/internal/siteconfig"
)

// Diagnostic is a non-fatal problem found while compiling a document.
type Diagnostic struct {
	Plugin  siteconfig.PluginName `json:"plugin"`
	File    string                `json:"file"`
	Line    int                   `json:"line"`
	Target  string                `json:"target,omitempty"`
	Message string                `json:"message"`
}

func (d Diagnostic) String() string {
	s := fmt.Sprintf("%s:%d: %s", d.File, d.Line, d.Message)
	if d.Target != "" {
		s += " (" + d.Target + ")"
	}
	return s
}
