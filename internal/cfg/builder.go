package cfg

import "flag"

// Builder is the bundle builder configuration.
type Builder struct {
	Logging
	Build
	Bundle

	Output      string
	Version     string
	Publish     bool
	PrintConfig bool
}

// RegisterBuilder binds the builder flags to fs.
func RegisterBuilder(fs *flag.FlagSet, c *Builder) {
	registerLogging(fs, &c.Logging, false)
	registerBuild(fs, &c.Build)
	registerBundle(fs, &c.Bundle)

	fs.StringVar(&c.Output, "output", "site.tar.gz", "bundle output path")
	fs.StringVar(&c.Version, "version", "", "content version recorded in the manifest (default: build time)")
	fs.BoolVar(&c.Publish, "publish", false, "upload the bundle to S3 and point the SSM parameter at it")
	fs.BoolVar(&c.PrintConfig, "print-config", false, "print the evaluated site configuration as JSON and exit")
}

// ValidateBuilder reports every invalid builder setting, or nil.
func ValidateBuilder(c Builder) error {
	var p problems
	p.merge(c.Logging.validate())
	p.merge(c.Build.validate())
	p.add(c.PrintConfig || c.Output != "", "%s is required", envName("output"))
	if c.Publish {
		p.merge(c.Bundle.validate())
	}
	return p.err()
}
