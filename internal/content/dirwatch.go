package content

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/keithlinneman/linnemanlabs-book/internal/log"
	"github.com/keithlinneman/linnemanlabs-book/internal/xerrors"
)

// DefaultDebounce coalesces editor save bursts into one rebuild.
const DefaultDebounce = 250 * time.Millisecond

// RebuildFunc builds a fresh snapshot from the watched directory.
type RebuildFunc func(ctx context.Context) (*Snapshot, error)

type DirWatcherOptions struct {
	Logger   log.Logger
	Dir      string
	Rebuild  RebuildFunc
	Manager  *Manager
	Debounce time.Duration

	// Validation defaults to requiring index.html and a manifest.
	Validation *ValidationOptions

	OnSwap  func(hash, version string)
	Metrics WatcherMetrics
}

// DirWatcher rebuilds the site whenever a file under Dir changes and swaps
// the result into the Manager. Failed builds keep the current snapshot.
type DirWatcher struct {
	installer
	dir      string
	rebuild  RebuildFunc
	debounce time.Duration
}

// NewDirWatcher creates a directory watcher. Call Run to start it.
func NewDirWatcher(opts DirWatcherOptions) (*DirWatcher, error) {
	if opts.Dir == "" {
		return nil, xerrors.New("Dir is required")
	}
	if opts.Rebuild == nil || opts.Manager == nil {
		return nil, xerrors.New("Rebuild and Manager are required")
	}
	w := &DirWatcher{
		installer: installer{
			mgr:        opts.Manager,
			validation: ValidationOptions{RequireManifest: true},
			onSwap:     opts.OnSwap,
			metrics:    watcherMetrics(opts.Metrics),
			logger:     opts.Logger,
		},
		dir:      opts.Dir,
		rebuild:  opts.Rebuild,
		debounce: opts.Debounce,
	}
	if w.logger == nil {
		w.logger = log.Nop()
	}
	if opts.Validation != nil {
		w.validation = *opts.Validation
	}
	if w.debounce <= 0 {
		w.debounce = DefaultDebounce
	}
	return w, nil
}

// Run watches until ctx is cancelled.
func (w *DirWatcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return xerrors.Wrap(err, "create fsnotify watcher")
	}
	defer fw.Close()

	n, err := addTree(fw, w.dir)
	if err != nil {
		return err
	}
	w.logger.Info(ctx, "content dir watcher starting", "dir", w.dir, "dirs", n)

	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info(ctx, "content dir watcher stopping", "reason", ctx.Err())
			return ctx.Err()

		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if ignored(ev.Name) {
				continue
			}
			if ev.Has(fsnotify.Create) {
				if fi, err := statDir(ev.Name); err == nil && fi {
					if _, err := addTree(fw, ev.Name); err != nil {
						w.logger.Warn(ctx, "content dir watcher: cannot watch new directory", "dir", ev.Name, "error", err)
					}
				}
			}
			w.logger.Debug(ctx, "content changed", "path", ev.Name, "op", ev.Op.String())
			timer.Reset(w.debounce)

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Error(ctx, err, "content dir watcher error")
			w.metrics.IncWatcherError("fsnotify")

		case <-timer.C:
			w.rebuildOnce(ctx)
		}
	}
}

// rebuildOnce builds and installs; failures keep the current content.
func (w *DirWatcher) rebuildOnce(ctx context.Context) {
	w.metrics.IncWatcherPolls()
	start := time.Now()
	snap, err := w.rebuild(ctx)
	w.metrics.ObserveBundleLoadDuration(time.Since(start).Seconds())
	if err != nil {
		w.logger.Error(ctx, err, "content rebuild failed, keeping current content")
		w.metrics.IncWatcherError("load")
		return
	}
	if err := w.install(ctx, snap); err != nil {
		w.logger.Error(ctx, err, "rebuilt content rejected, keeping current content")
		return
	}
	w.metrics.SetWatcherLastSuccess(float64(time.Now().Unix()))
	w.logger.Debug(ctx, "content rebuilt", "took", time.Since(start).String())
}

// addTree watches dir and every non-hidden directory below it.
func addTree(fw *fsnotify.Watcher, dir string) (int, error) {
	n := 0
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if p != dir && ignored(p) {
			return filepath.SkipDir
		}
		if err := fw.Add(p); err != nil {
			return xerrors.Wrapf(err, "watch %s", p)
		}
		n++
		return nil
	})
	return n, err
}

func statDir(p string) (bool, error) {
	fi, err := os.Stat(p)
	if err != nil {
		return false, err
	}
	return fi.IsDir(), nil
}

// ignored skips dotfiles and editor swap files.
func ignored(p string) bool {
	base := filepath.Base(p)
	return strings.HasPrefix(base, ".") || strings.HasSuffix(base, "~") || strings.HasSuffix(base, ".swp")
}
