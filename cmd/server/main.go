// Command server serves the documentation site: built pages from the
// content manager, the legacy redirect table and the fallback rewrites
// that proxy to the resources and API origins.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/keithlinneman/linnemanlabs-book/internal/cfg"
	"github.com/keithlinneman/linnemanlabs-book/internal/content"
	"github.com/keithlinneman/linnemanlabs-book/internal/contenthttp"
	"github.com/keithlinneman/linnemanlabs-book/internal/health"
	"github.com/keithlinneman/linnemanlabs-book/internal/httpmw"
	"github.com/keithlinneman/linnemanlabs-book/internal/httpserver"
	"github.com/keithlinneman/linnemanlabs-book/internal/log"
	"github.com/keithlinneman/linnemanlabs-book/internal/mdx"
	"github.com/keithlinneman/linnemanlabs-book/internal/metrics"
	"github.com/keithlinneman/linnemanlabs-book/internal/opshttp"
	"github.com/keithlinneman/linnemanlabs-book/internal/ratelimit"
	"github.com/keithlinneman/linnemanlabs-book/internal/siteconfig"
	"github.com/keithlinneman/linnemanlabs-book/internal/sitehandler"
	"github.com/keithlinneman/linnemanlabs-book/internal/siterouter"
	"github.com/keithlinneman/linnemanlabs-book/internal/webassets"
	v "github.com/keithlinneman/linnemanlabs-book/internal/version"
)

// lbDrain is how long readiness fails before listeners close, so the load
// balancer notices first.
const lbDrain = 10 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var conf cfg.App
	var showVersion bool
	cfg.Register(flag.CommandLine, &conf)
	flag.BoolVar(&showVersion, "V", false, "print version and build information and exit")
	flag.Parse()

	if showVersion {
		fmt.Println(v.Get().String())
		return
	}

	cfg.FillFromEnv(flag.CommandLine, cfg.EnvPrefix, func(format string, args ...any) {
		fmt.Fprintf(os.Stderr, format+"\n", args...)
	})
	if err := cfg.Validate(conf); err != nil {
		fmt.Fprintln(os.Stderr, "config error:", err)
		os.Exit(2)
	}

	// base path, proxied origins and image settings may come from a dotenv file
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
		L.Error(context.Background(), err, "server exited")
		os.Exit(1)
	}
	L.Info(context.Background(), "shutdown complete")
}

func run(ctx context.Context, L log.Logger, conf cfg.App, env siteconfig.Env) error {
	vi := v.Get()
	L.Info(ctx, "starting book server",
		"version", vi.Version,
		"commit", vi.Commit,
		"build_id", vi.BuildId,
		"go_version", vi.GoVersion,
		"http_port", conf.HTTPPort,
		"admin_port", conf.AdminPort,
		"content_mode", conf.ContentMode,
		"base_path", env.BasePath,
		"production", env.Production(),
	)

	m := metrics.New()
	m.SetBuildInfoFromVersion(v.AppName, "server", vi)
	shutdownTelemetry := startTelemetry(ctx, L, conf, vi, m)
	defer shutdownTelemetry()

	contentMgr := content.NewManager()
	loadSeed(ctx, L, contentMgr)
	runContent, err := setupContent(ctx, L, conf, env, contentMgr, m)
	if err != nil {
		return err
	}
	m.SetContentSource(string(contentMgr.Source()))
	m.SetContentBundle(contentMgr.ContentHash())
	if t := contentMgr.LoadedAt(); !t.IsZero() {
		m.SetContentLoadedTimestamp(t)
	}

	// redirect and rewrite tables depend only on env, compile them once
	siteCfg := siteconfig.Base(env)
	tables, err := siterouter.Compile(ctx, siteCfg)
	if err != nil {
		return err
	}
	L.Info(ctx, "site routing tables compiled",
		"redirects", tables.Redirects.Len(),
		"rewrites_before_files", tables.BeforeFiles.Len(),
		"rewrites_after_files", tables.AfterFiles.Len(),
		"rewrites_fallback", tables.Fallback.Len(),
	)
	router := siterouter.New(siterouter.Options{Logger: L, Tables: tables, Metrics: m})

	site, err := sitehandler.New(sitehandler.Options{
		Logger:     L,
		Content:    contentMgr,
		FallbackFS: webassets.FallbackFS(),
		BasePath:   siteCfg.BasePath,
		Fallback:   router,
	})
	if err != nil {
		return err
	}

	configJSON, err := describeConfig(ctx, env, conf)
	if err != nil {
		return err
	}

	var gate health.ShutdownGate
	readiness := health.All(
		gate.Probe(),
		health.Named("content", health.CheckFunc(func(context.Context) error { return contentMgr.ReadyErr() })),
	)

	limiter := ratelimit.New(ratelimit.Options{
		PerSecond: conf.RateLimitRPS,
		Burst:     conf.RateLimitBurst,
		Exempt:    func(r *http.Request) bool { return httpmw.IsQuietPath(r.URL.Path) },
		OnDenied: func(ip string, first bool) {
			m.IncRateLimitDenied()
			if first {
				L.Warn(ctx, "rate limit triggered", "ip", ip)
			}
		},
		OnCapacity: func() {
			m.IncRateLimitCapacity()
			L.Warn(ctx, "rate limiter visitor table full, rejecting new addresses until a sweep")
		},
	})

	stopSite, err := httpserver.Start(ctx, httpserver.Options{
		Port:         conf.HTTPPort,
		Health:       health.Fixed(true, ""),
		Readiness:    readiness,
		APIRoutes:    contenthttp.NewAPI(contentMgr, L).RegisterRoutes,
		SiteHandler:  router.Wrap(site),
		UseRecoverMW: true,
		OnPanic:      m.IncHttpPanic,
		MetricsMW:    m.Middleware,
		RateLimitMW:  limiter.Middleware,
		ClientIPOpts: httpmw.ClientIPOptions{TrustedHops: conf.TrustedProxyHops},
		Logger:       L,
		ContentInfo:  contentMgr,
		Security: httpmw.SecurityOptions{
			HSTS:         env.Production(),
			ImageOrigins: []string{"https://" + mdx.CloudinaryHost},
		},
	})
	if err != nil {
		return err
	}

	// the ops listener rejects public clients in its own middleware
	stopOps, err := opshttp.Start(ctx, L, &opshttp.Options{
		Port:        conf.AdminPort,
		Metrics:     m.Handler(),
		EnablePprof: conf.EnablePprof,
		Health:      health.Fixed(true, ""),
		Readiness:   readiness,
		Config:      jsonHandler(configJSON),
	})
	if err != nil {
		_ = stopSite(context.Background())
		return err
	}

	if err := notifySystemd(); err != nil {
		L.Debug(ctx, "systemd notify skipped", "reason", err.Error())
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return limiter.Run(gctx) })
	if runContent != nil {
		g.Go(func() error {
			// losing updates leaves the current content serving
			if err := runContent(gctx); updatesFailed(err) {
				L.Error(gctx, err, "content updates stopped")
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		drain := lbDrain
		if conf.ContentMode == cfg.ModeLocal {
			drain = 0
		}
		return shutdown(L, &gate, drain, stopSite, stopOps)
	})
	return g.Wait()
}

// shutdown fails readiness, waits out the drain unless a second signal
// arrives, then stops both listeners.
func shutdown(L log.Logger, gate *health.ShutdownGate, drain time.Duration, stops ...func(context.Context) error) error {
	ctx := context.Background()
	L.Info(ctx, "shutdown signal received")
	gate.Set("draining")

	if drain > 0 {
		L.Info(ctx, "draining load balancer", "drain", drain.String())
		force := make(chan os.Signal, 1)
		signal.Notify(force, os.Interrupt, syscall.SIGTERM)
		select {
		case <-time.After(drain):
		case <-force:
			L.Warn(ctx, "second signal received, skipping drain")
		}
		signal.Stop(force)
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	var first error
	for _, stop := range stops {
		if err := stop(ctx); err != nil {
			L.Error(ctx, err, "listener shutdown")
			if first == nil {
				first = err
			}
		}
	}
	return first
}
