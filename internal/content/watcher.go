package content

import (
	"context"
	"time"

	"github.com/keithlinneman/linnemanlabs-book/internal/cryptoutil"
	"github.com/keithlinneman/linnemanlabs-book/internal/log"
	"github.com/keithlinneman/linnemanlabs-book/internal/xerrors"
)

const (
	// DefaultPollInterval is how often the watcher reads the SSM pointer.
	DefaultPollInterval = 30 * time.Second

	// DefaultStaleAfter is how long SSM may stay unreachable before the
	// content is reported stale.
	DefaultStaleAfter = 30 * time.Minute

	maxBackoff = 5 * time.Minute
)

type pollOutcome int

const (
	pollUnchanged pollOutcome = iota
	pollSwapped
	pollFailedSSM  // pointer unreadable, back off
	pollFailedLoad // bundle download or verification failed
	pollRejected   // bundle failed validation
)

// BundleFetcher is the part of Loader the Watcher uses.
type BundleFetcher interface {
	FetchCurrentBundleHash(ctx context.Context) (string, error)
	LoadHash(ctx context.Context, hash string) (*Snapshot, error)
}

type WatcherOptions struct {
	Logger       log.Logger
	Loader       BundleFetcher
	Manager      *Manager
	PollInterval time.Duration

	// Validation defaults to DefaultValidationOptions.
	Validation *ValidationOptions

	// OnSwap runs on the poll goroutine after each swap.
	OnSwap  func(hash, version string)
	Metrics WatcherMetrics

	StaleAfter time.Duration
}

// Watcher polls the SSM pointer and installs each new bundle it names.
// A bundle that fails to load or validate is retried on the next poll;
// the current content keeps serving meanwhile.
type Watcher struct {
	installer
	loader     BundleFetcher
	interval   time.Duration
	staleAfter time.Duration

	current  string
	failures int
	lastOK   time.Time
	stale    bool

	polls, swaps int
}

func NewWatcher(opts *WatcherOptions) *Watcher {
	w := &Watcher{
		installer: installer{
			mgr:        opts.Manager,
			validation: DefaultValidationOptions(),
			onSwap:     opts.OnSwap,
			metrics:    watcherMetrics(opts.Metrics),
			logger:     opts.Logger,
		},
		loader:     opts.Loader,
		interval:   opts.PollInterval,
		staleAfter: opts.StaleAfter,
		lastOK:     time.Now(),
	}
	if w.logger == nil {
		w.logger = log.Nop()
	}
	if opts.Validation != nil {
		w.validation = *opts.Validation
	}
	if w.interval <= 0 {
		w.interval = DefaultPollInterval
	}
	if w.staleAfter <= 0 {
		w.staleAfter = DefaultStaleAfter
	}
	// the bundle loaded at startup is not fetched again
	if snap, ok := opts.Manager.Get(); ok {
		w.current = snap.Meta.SHA256
	}
	return w
}

// Run polls until ctx is done and returns ctx.Err().
func (w *Watcher) Run(ctx context.Context) error {
	w.logger.Info(ctx, "content watcher starting",
		"poll_interval", w.interval.String(),
		"current_hash", ShortHash(w.current),
	)
	timer := time.NewTimer(w.interval)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			w.logger.Info(ctx, "content watcher stopping", "polls", w.polls, "swaps", w.swaps)
			return ctx.Err()
		case <-timer.C:
			timer.Reset(w.next(ctx, w.poll(ctx)))
		}
	}
}

// next records the outcome and picks the delay before the next poll.
func (w *Watcher) next(ctx context.Context, out pollOutcome) time.Duration {
	if out == pollFailedSSM {
		w.failures++
		w.checkStale(ctx)
		d := w.backoff()
		w.logger.Warn(ctx, "content watcher backing off", "consecutive_errors", w.failures, "next_poll_in", d.String())
		return d
	}
	if w.failures > 0 {
		w.logger.Info(ctx, "content watcher recovered", "consecutive_errors", w.failures)
		w.failures = 0
	}
	if w.stale {
		w.stale = false
		w.metrics.SetWatcherStale(false)
		w.logger.Info(ctx, "content freshness restored")
	}
	return w.interval
}

// checkStale reports once when SSM has been unreachable past staleAfter.
func (w *Watcher) checkStale(ctx context.Context) {
	since := time.Since(w.lastOK)
	if w.stale || since <= w.staleAfter {
		return
	}
	w.stale = true
	w.metrics.SetWatcherStale(true)
	w.logger.Error(ctx, xerrors.Newf("last successful SSM read %s ago", since.Truncate(time.Second)),
		"content is stale, cannot confirm the current bundle")
}

// backoff doubles the interval per consecutive failure up to maxBackoff.
func (w *Watcher) backoff() time.Duration {
	if w.failures >= 16 {
		return maxBackoff
	}
	d := w.interval << w.failures
	if d <= 0 || d > maxBackoff {
		return maxBackoff
	}
	return d
}

func (w *Watcher) poll(ctx context.Context) pollOutcome {
	w.polls++
	w.metrics.IncWatcherPolls()

	hash, err := w.loader.FetchCurrentBundleHash(ctx)
	if err != nil {
		w.logger.Error(ctx, err, "read content pointer")
		w.metrics.IncWatcherError("ssm")
		return pollFailedSSM
	}
	w.lastOK = time.Now()
	w.metrics.SetWatcherLastSuccess(float64(w.lastOK.Unix()))

	if cryptoutil.HashEqual(hash, w.current) {
		return pollUnchanged
	}
	w.logger.Info(ctx, "new content bundle published", "old_hash", ShortHash(w.current), "new_hash", ShortHash(hash))

	start := time.Now()
	snap, err := w.loader.LoadHash(ctx, hash)
	w.metrics.ObserveBundleLoadDuration(time.Since(start).Seconds())
	if err != nil {
		w.logger.Error(ctx, err, "load content bundle", "hash", ShortHash(hash))
		w.metrics.IncWatcherError("load")
		return pollFailedLoad
	}

	if err := w.install(ctx, snap); err != nil {
		w.logger.Error(ctx, err, "content bundle rejected, keeping current content",
			"rejected_hash", ShortHash(hash),
			"current_hash", ShortHash(w.current),
		)
		return pollRejected
	}
	w.current = hash
	w.swaps++
	return pollSwapped
}
