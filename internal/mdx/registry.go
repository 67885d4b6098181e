package mdx

import (
	"github.com/yuin/goldmark/parser"

	"github.com/keithlinneman/linnemanlabs-book/internal/siteconfig"
	"github.com/keithlinneman/linnemanlabs-book/internal/xerrors"
)

// Factory builds a pipeline step from its declared options.
type Factory func(opts any) (parser.ASTTransformer, error)

var registry = map[siteconfig.PluginName]Factory{
	siteconfig.PluginCrossProjectLinks: newCrossProjectLinks,
	siteconfig.PluginBrokenLinkChecker: func(any) (parser.ASTTransformer, error) { return brokenLinks{}, nil },
	siteconfig.PluginLocalLinks:        func(any) (parser.ASTTransformer, error) { return localLinks{}, nil },
	siteconfig.PluginCodeProps:         newCodeProps,
	siteconfig.PluginHeadingSlug:       func(any) (parser.ASTTransformer, error) { return headingSlug{}, nil },
	siteconfig.PluginCloudinaryImg:     newCloudinary,
	siteconfig.PluginPageNumber:        newPageNumber,
}

// Registered reports whether name resolves to a pipeline step.
func Registered(name siteconfig.PluginName) bool {
	_, ok := registry[name]
	return ok
}

func optionsAs[T any](opts any, name siteconfig.PluginName) (*T, error) {
	o, ok := opts.(*T)
	if !ok || o == nil {
		return nil, xerrors.Wrapf(ErrBadOptions, "%s: got %T", name, opts)
	}
	return o, nil
}
