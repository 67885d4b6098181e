// Command builder compiles a content directory into a site bundle and
// optionally publishes it for the servers to pick up.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/kms"

	"github.com/keithlinneman/linnemanlabs-book/internal/cfg"
	"github.com/keithlinneman/linnemanlabs-book/internal/content"
	"github.com/keithlinneman/linnemanlabs-book/internal/cryptoutil"
	"github.com/keithlinneman/linnemanlabs-book/internal/log"
	"github.com/keithlinneman/linnemanlabs-book/internal/sitebuild"
	"github.com/keithlinneman/linnemanlabs-book/internal/siteconfig"
	v "github.com/keithlinneman/linnemanlabs-book/internal/version"
	"github.com/keithlinneman/linnemanlabs-book/internal/xerrors"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var conf cfg.Builder
	cfg.RegisterBuilder(flag.CommandLine, &conf)
	flag.Parse()

	cfg.FillFromEnv(flag.CommandLine, cfg.EnvPrefix, func(format string, args ...any) {
		fmt.Fprintf(os.Stderr, format+"\n", args...)
	})
	if err := cfg.ValidateBuilder(conf); err != nil {
		fmt.Fprintln(os.Stderr, "config error:", err)
		os.Exit(2)
	}

	if err := siteconfig.LoadDotEnv(conf.EnvFile); err != nil {
		fmt.Fprintln(os.Stderr, "env file error:", err)
		os.Exit(2)
	}
	env := siteconfig.LoadEnv(nil)

	L, err := newLogger(conf.Logging)
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger init error:", err)
		os.Exit(2)
	}
	defer L.Sync()
	ctx = log.WithContext(ctx, L)

	if err := run(ctx, L, conf, env); err != nil {
		L.Error(ctx, err, "build failed")
		os.Exit(1)
	}
}

func run(ctx context.Context, L log.Logger, conf cfg.Builder, env siteconfig.Env) error {
	src := os.DirFS(conf.ContentDir)
	siteCfg, sidebar, err := sitebuild.Configure(src, env)
	if err != nil {
		return err
	}

	if conf.PrintConfig {
		d, err := siteCfg.Describe(ctx)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(d)
	}

	builtAt := time.Now().UTC()
	version := conf.Version
	if version == "" {
		version = builtAt.Format("20060102T150405Z")
	}

	site, err := sitebuild.Build(ctx, sitebuild.Options{
		Logger:        L.With("component", "sitebuild"),
		Config:        siteCfg,
		Sidebar:       sidebar,
		Source:        src,
		Exclude:       conf.ExcludePatterns(),
		Concurrency:   conf.Concurrency,
		Layout:        conf.Layout,
		Version:       version,
		BuiltAt:       builtAt,
		IncludeDrafts: conf.IncludeDrafts,
		StrictLinks:   conf.StrictLinks,
	})
	if err != nil {
		if errors.Is(err, sitebuild.ErrBrokenLinks) {
			for _, d := range site.Diagnostics {
				L.Warn(ctx, d.Message, "file", d.File, "plugin", d.Plugin)
			}
		}
		return err
	}

	var buf bytes.Buffer
	hash, n, err := content.WriteBundle(&buf, site.FS)
	if err != nil {
		return xerrors.Wrap(err, "write bundle")
	}
	if err := writeFile(conf.Output, buf.Bytes()); err != nil {
		return err
	}
	L.Info(ctx, "wrote content bundle",
		"output", conf.Output,
		"hash", hash,
		"bytes", n,
		"version", version,
		"pages", len(site.Pages),
		"assets", site.Assets,
		"diagnostics", len(site.Diagnostics),
	)

	if !conf.Publish {
		return nil
	}
	return publish(ctx, L, conf.Bundle, hash, buf.Bytes())
}

func publish(ctx context.Context, L log.Logger, b cfg.Bundle, hash string, bundle []byte) error {
	awsCfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return xerrors.Wrap(err, "load AWS config")
	}
	var signer content.BundleSigner
	if b.SigningKeyARN != "" {
		signer = cryptoutil.NewKMSSigner(kms.NewFromConfig(awsCfg), b.SigningKeyARN)
	} else {
		L.Warn(ctx, "content-signing-key-arn not set, publishing an unsigned bundle")
	}
	pub, err := content.NewPublisher(ctx, content.PublisherOptions{
		Logger:    L.With("component", "publisher"),
		SSMParam:  b.SSMParam,
		S3Bucket:  b.S3Bucket,
		S3Prefix:  b.S3Prefix,
		Signer:    signer,
		AWSConfig: &awsCfg,
	})
	if err != nil {
		return err
	}
	return pub.Publish(ctx, hash, bundle)
}

// writeFile replaces path atomically so a server watching the output never
// reads a partial bundle.
func writeFile(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".bundle-*")
	if err != nil {
		return xerrors.Wrap(err, "create temp bundle")
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return xerrors.Wrap(err, "write bundle")
	}
	if err := tmp.Close(); err != nil {
		return xerrors.Wrap(err, "close bundle")
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return xerrors.Wrapf(err, "rename bundle to %s", path)
	}
	return nil
}

func newLogger(c cfg.Logging) (log.Logger, error) {
	lvl, err := log.ParseLevel(c.LogLevel)
	if err != nil {
		return nil, err
	}
	stackLvl := lvl
	if c.StacktraceLevel != "" {
		if stackLvl, err = log.ParseLevel(c.StacktraceLevel); err != nil {
			return nil, err
		}
	}
	lg, err := log.New(log.Options{
		App:               v.AppName,
		Version:           v.Version,
		Commit:            v.Commit,
		BuildId:           v.BuildId,
		Level:             lvl,
		StacktraceLevel:   stackLvl,
		JsonFormat:        c.LogJSON,
		MaxErrorLinks:     c.MaxErrorLinks,
		IncludeErrorLinks: c.IncludeErrorLinks,
		Writer:            os.Stderr,
	})
	if err != nil {
		return nil, err
	}
	return lg.With("component", "builder"), nil
}
