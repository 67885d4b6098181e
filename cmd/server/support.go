package main

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/keithlinneman/linnemanlabs-book/internal/cfg"
	"github.com/keithlinneman/linnemanlabs-book/internal/log"
	"github.com/keithlinneman/linnemanlabs-book/internal/siteconfig"
	v "github.com/keithlinneman/linnemanlabs-book/internal/version"
	"github.com/keithlinneman/linnemanlabs-book/internal/xerrors"
)

const otelFlushTimeout = 5 * time.Second

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
	})
	if err != nil {
		return nil, err
	}
	return lg.With("component", "server"), nil
}

// describeConfig renders the composed site configuration served on the
// ops listener. Only local mode has a sidebar on disk to include.
func describeConfig(ctx context.Context, env siteconfig.Env, conf cfg.App) ([]byte, error) {
	sidebar := &siteconfig.Sidebar{}
	if conf.ContentMode == cfg.ModeLocal {
		if sb, err := siteconfig.LoadSidebar(os.DirFS(conf.ContentDir)); err == nil {
			sidebar = sb
		}
	}
	c, err := siteconfig.New(env, sidebar)
	if err != nil {
		return nil, err
	}
	d, err := c.Describe(ctx)
	if err != nil {
		return nil, err
	}
	return json.MarshalIndent(d, "", "  ")
}

func jsonHandler(body []byte) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.Header().Set("Cache-Control", "no-store")
		_, _ = w.Write(body)
	})
}

// notifySystemd sends READY=1 when running as a Type=notify unit.
func notifySystemd() error {
	addr := os.Getenv("NOTIFY_SOCKET")
	if addr == "" {
		return xerrors.New("NOTIFY_SOCKET not set")
	}
	conn, err := net.Dial("unixgram", addr)
	if err != nil {
		return xerrors.Wrap(err, "dial systemd notify socket")
	}
	defer conn.Close()
	if _, err := conn.Write([]byte("READY=1")); err != nil {
		return xerrors.Wrap(err, "write systemd notify socket")
	}
	return nil
}
