package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/kms"

	"github.com/keithlinneman/linnemanlabs-book/internal/cfg"
	"github.com/keithlinneman/linnemanlabs-book/internal/content"
	"github.com/keithlinneman/linnemanlabs-book/internal/cryptoutil"
	"github.com/keithlinneman/linnemanlabs-book/internal/log"
	"github.com/keithlinneman/linnemanlabs-book/internal/metrics"
	"github.com/keithlinneman/linnemanlabs-book/internal/sitebuild"
	"github.com/keithlinneman/linnemanlabs-book/internal/siteconfig"
	"github.com/keithlinneman/linnemanlabs-book/internal/webassets"
	"github.com/keithlinneman/linnemanlabs-book/internal/xerrors"
)

// contentSetup is what every content mode needs from run.
type contentSetup struct {
	L      log.Logger
	conf   cfg.App
	env    siteconfig.Env
	mgr    *content.Manager
	m      *metrics.ServerMetrics
	onSwap func(hash, version string)
}

// updatesFailed reports whether a content update loop stopped for a reason
// other than shutdown.
func updatesFailed(err error) bool {
	return err != nil && !errors.Is(err, context.Canceled)
}

// loadSeed serves the embedded seed site until real content is loaded.
func loadSeed(ctx context.Context, L log.Logger, mgr *content.Manager) {
	seedFS, ok := webassets.SeedSiteFS()
	if !ok {
		L.Info(ctx, "no embedded seed site, serving maintenance until content loads")
		return
	}
	mgr.Set(content.Snapshot{
		FS:   seedFS,
		Meta: content.Meta{Source: content.SourceSeed, Version: "initial-seed"},
	})
	L.Info(ctx, "serving embedded seed site")
}

// setupContent loads the initial content for the configured mode and
// returns the background updater to run, if any. Failing to load content
// is not fatal: the seed or maintenance page keeps serving.
func setupContent(ctx context.Context, L log.Logger, conf cfg.App, env siteconfig.Env, mgr *content.Manager, m *metrics.ServerMetrics) (func(context.Context) error, error) {
	s := &contentSetup{L: L, conf: conf, env: env, mgr: mgr, m: m}
	s.onSwap = func(hash, version string) {
		m.SetContentBundle(hash)
		m.SetContentSource(string(mgr.Source()))
		m.SetContentLoadedTimestamp(time.Now())
	}

	switch conf.ContentMode {
	case cfg.ModeLocal:
		return s.watched(ctx, conf.ContentDir, s.buildLocal)
	case cfg.ModeBundle:
		return s.watched(ctx, filepath.Dir(conf.BundleFile), s.readBundleFile)
	case cfg.ModeS3:
		return s.s3(ctx)
	}
	return nil, nil
}

// install validates an initial snapshot and makes it active. Failures are
// logged and leave the seed in place.
func (s *contentSetup) install(ctx context.Context, snap *content.Snapshot, err error) {
	if err == nil {
		err = content.ValidateSnapshot(snap, content.ValidationOptions{RequireManifest: true})
	}
	if err != nil {
		s.L.Error(ctx, err, "initial content unavailable, serving seed content", "mode", s.conf.ContentMode)
		return
	}
	s.mgr.Set(*snap)
	s.L.Info(ctx, "initial content loaded",
		"mode", s.conf.ContentMode,
		"version", snap.Meta.Version,
		"hash", content.ShortHash(snap.Meta.SHA256),
		"files", snap.Manifest.Summary.TotalFiles,
	)
}

// watched loads once through load and, with -watch, reloads whenever dir
// changes.
func (s *contentSetup) watched(ctx context.Context, dir string, load content.RebuildFunc) (func(context.Context) error, error) {
	snap, err := load(ctx)
	s.install(ctx, snap, err)
	if !s.conf.Watch {
		return nil, nil
	}
	dw, err := content.NewDirWatcher(content.DirWatcherOptions{
		Logger:  s.L.With("component", "dirwatch"),
		Dir:     dir,
		Rebuild: load,
		Manager: s.mgr,
		OnSwap:  s.onSwap,
		Metrics: s.m,
	})
	if err != nil {
		return nil, err
	}
	return dw.Run, nil
}

func (s *contentSetup) buildLocal(ctx context.Context) (*content.Snapshot, error) {
	src := os.DirFS(s.conf.ContentDir)
	siteCfg, sidebar, err := sitebuild.Configure(src, s.env)
	if err != nil {
		return nil, err
	}
	site, err := sitebuild.Build(ctx, sitebuild.Options{
		Logger:        s.L.With("component", "sitebuild"),
		Config:        siteCfg,
		Sidebar:       sidebar,
		Source:        src,
		Exclude:       s.conf.ExcludePatterns(),
		Concurrency:   s.conf.Concurrency,
		Layout:        s.conf.Layout,
		Version:       "local-" + time.Now().UTC().Format("20060102T150405Z"),
		IncludeDrafts: s.conf.IncludeDrafts,
		StrictLinks:   s.conf.StrictLinks,
		Metrics:       s.m,
	})
	if err != nil {
		return nil, err
	}
	return site.Snapshot(content.SourceLocal), nil
}

func (s *contentSetup) readBundleFile(context.Context) (*content.Snapshot, error) {
	f, err := os.Open(s.conf.BundleFile)
	if err != nil {
		return nil, xerrors.Wrap(err, "open bundle file")
	}
	defer f.Close()
	return content.ReadBundle(f, "")
}

func (s *contentSetup) s3(ctx context.Context) (func(context.Context) error, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, xerrors.Wrap(err, "load AWS config")
	}

	var verifier content.BundleVerifier
	if arn := s.conf.SigningKeyARN; arn != "" {
		verifier = cryptoutil.NewKMSVerifier(kms.NewFromConfig(awsCfg), arn)
	} else {
		s.L.Warn(ctx, "content-signing-key-arn not set, bundle signatures will not be verified")
	}

	loader, err := content.NewLoader(ctx, content.LoaderOptions{
		Logger:    s.L.With("component", "content"),
		SSMParam:  s.conf.SSMParam,
		S3Bucket:  s.conf.S3Bucket,
		S3Prefix:  s.conf.S3Prefix,
		Verifier:  verifier,
		AWSConfig: &awsCfg,
	})
	if err != nil {
		return nil, err
	}

	start := time.Now()
	snap, err := loader.Load(ctx)
	if err == nil {
		s.m.ObserveBundleLoadDuration(time.Since(start).Seconds())
	}
	s.install(ctx, snap, err)

	if !s.conf.EnableContentUpdates {
		return nil, nil
	}
	w := content.NewWatcher(&content.WatcherOptions{
		Logger:       s.L.With("component", "watcher"),
		Loader:       loader,
		Manager:      s.mgr,
		PollInterval: s.conf.ContentPollInterval,
		OnSwap:       s.onSwap,
		Metrics:      s.m,
	})
	return w.Run, nil
}
