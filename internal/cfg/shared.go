package cfg

import (
	"flag"
	"os"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/keithlinneman/linnemanlabs-book/internal/log"
)

// Logging holds the flags shared by every binary.
type Logging struct {
	LogJSON           bool
	LogLevel          string
	StacktraceLevel   string
	IncludeErrorLinks bool
	MaxErrorLinks     int
}

func registerLogging(fs *flag.FlagSet, c *Logging, jsonDefault bool) {
	fs.BoolVar(&c.LogJSON, "log-json", jsonDefault, "JSON logs (true) or text (false)")
	fs.StringVar(&c.LogLevel, "log-level", "info", "debug|info|warn|error")
	fs.StringVar(&c.StacktraceLevel, "stacktrace-level", "error", "lowest level that logs a stack trace")
	fs.BoolVar(&c.IncludeErrorLinks, "include-error-links", true, "log where each error in a chain was wrapped")
	fs.IntVar(&c.MaxErrorLinks, "max-error-links", 5, "error links logged per record (1..64)")
}

func (c Logging) validate() []error {
	var p problems
	_, err := log.ParseLevel(c.LogLevel)
	p.add(err == nil, "invalid %s: %v", envName("log-level"), err)
	if c.StacktraceLevel != "" {
		_, err := log.ParseLevel(c.StacktraceLevel)
		p.add(err == nil, "invalid %s: %v", envName("stacktrace-level"), err)
	}
	p.add(!c.IncludeErrorLinks || (c.MaxErrorLinks >= 1 && c.MaxErrorLinks <= 64),
		"%s must be 1..64 (got %d)", envName("max-error-links"), c.MaxErrorLinks)
	return p
}

// Build holds the flags that control compiling a content directory.
type Build struct {
	ContentDir    string
	EnvFile       string
	Layout        string
	Exclude       string
	IncludeDrafts bool
	StrictLinks   bool
	Concurrency   int
}

func registerBuild(fs *flag.FlagSet, c *Build) {
	fs.StringVar(&c.ContentDir, "content-dir", "content", "content directory (pages, assets, sidebar.yaml)")
	fs.StringVar(&c.EnvFile, "env-file", ".env", "dotenv file with site parameters, a missing file is ignored")
	fs.StringVar(&c.Layout, "layout", "", "page layout template inside content-dir (default: embedded layout)")
	fs.StringVar(&c.Exclude, "exclude", "", "comma separated glob patterns of content files to skip")
	fs.BoolVar(&c.IncludeDrafts, "include-drafts", false, "build pages marked draft: true")
	fs.BoolVar(&c.StrictLinks, "strict-links", false, "fail the build on broken links")
	fs.IntVar(&c.Concurrency, "build-concurrency", 0, "pages compiled in parallel (0 = GOMAXPROCS)")
}

// ExcludePatterns splits Exclude into its glob patterns.
func (c Build) ExcludePatterns() []string {
	var out []string
	for p := range strings.SplitSeq(c.Exclude, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (c Build) validate() []error {
	var p problems
	st, err := os.Stat(c.ContentDir)
	p.add(c.ContentDir != "" && err == nil && st.IsDir(), "%s %q is not a directory", envName("content-dir"), c.ContentDir)
	p.add(c.Concurrency >= 0, "invalid %s %d (want >= 0)", envName("build-concurrency"), c.Concurrency)
	for _, pat := range c.ExcludePatterns() {
		p.add(doublestar.ValidatePattern(pat), "invalid %s pattern %q", envName("exclude"), pat)
	}
	return p
}

// Bundle locates published bundles.
type Bundle struct {
	SSMParam      string
	S3Bucket      string
	S3Prefix      string
	SigningKeyARN string
}

func registerBundle(fs *flag.FlagSet, c *Bundle) {
	fs.StringVar(&c.SSMParam, "content-ssm-param", "/app/book/server/content/stable/release/id", "SSM parameter holding the current bundle hash")
	fs.StringVar(&c.S3Bucket, "content-s3-bucket", "", "S3 bucket holding content bundles")
	fs.StringVar(&c.S3Prefix, "content-s3-prefix", "apps/book/content/bundles", "S3 key prefix of content bundles")
	fs.StringVar(&c.SigningKeyARN, "content-signing-key-arn", "", "KMS key ARN that signs content bundles")
}

func (c Bundle) validate() []error {
	var p problems
	for _, f := range []struct{ flag, val string }{
		{"content-ssm-param", c.SSMParam},
		{"content-s3-bucket", c.S3Bucket},
		{"content-s3-prefix", c.S3Prefix},
	} {
		p.add(f.val != "", "%s is required", envName(f.flag))
	}
	return p
}
