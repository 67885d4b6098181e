package sitebuild

import (
	"io/fs"

	"github.com/keithlinneman/linnemanlabs-book/internal/siteconfig"
	"github.com/keithlinneman/linnemanlabs-book/internal/xerrors"
)

// Configure reads the sidebar from src and evaluates the site configuration
// for env. The sidebar is re-read on every call so rebuilds pick up edits.
func Configure(src fs.FS, env siteconfig.Env) (siteconfig.Config, *siteconfig.Sidebar, error) {
	sidebar, err := siteconfig.LoadSidebar(src)
	if err != nil {
		return siteconfig.Config{}, nil, xerrors.Wrap(err, "load sidebar")
	}
	cfg, err := siteconfig.New(env, sidebar)
	if err != nil {
		return siteconfig.Config{}, nil, err
	}
	return cfg, sidebar, nil
}
