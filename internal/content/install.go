package content

import (
	"context"
	"fmt"

	"github.com/keithlinneman/linnemanlabs-book/internal/log"
)

// WatcherMetrics is implemented by the metrics package.
type WatcherMetrics interface {
	IncWatcherPolls()
	IncWatcherSwaps()
	IncWatcherError(errType string)
	ObserveBundleLoadDuration(seconds float64)
	SetWatcherLastSuccess(unixSeconds float64)
	SetWatcherStale(stale bool)
}

type nopWatcherMetrics struct{}

func (nopWatcherMetrics) IncWatcherPolls() {}
func (nopWatcherMetrics) IncWatcherSwaps() {}
func (nopWatcherMetrics) IncWatcherError(string) {}
func (nopWatcherMetrics) ObserveBundleLoadDuration(float64) {}
func (nopWatcherMetrics) SetWatcherLastSuccess(float64) {}
func (nopWatcherMetrics) SetWatcherStale(bool) {}

func watcherMetrics(m WatcherMetrics) WatcherMetrics {
	if m == nil {
		return nopWatcherMetrics{}
	}
	return m
}

// installer validates a candidate snapshot and swaps it into the Manager.
// Both watchers go through it so a rejected build never replaces content.
type installer struct {
	mgr        *Manager
	validation ValidationOptions
	onSwap     func(hash, version string)
	metrics    WatcherMetrics
	logger     log.Logger
}

func (in *installer) install(ctx context.Context, snap *Snapshot) error {
	if err := ValidateSnapshot(snap, in.validation); err != nil {
		in.metrics.IncWatcherError("validation")
		return err
	}
	prev := in.mgr.Swap(*snap)
	in.metrics.IncWatcherSwaps()

	version := in.mgr.ContentVersion()
	var prevHash string
	if prev != nil {
		prevHash = prev.Meta.SHA256
	}
	in.logger.Info(ctx, "content swapped",
		"old_hash", ShortHash(prevHash),
		"new_hash", ShortHash(snap.Meta.SHA256),
		"version", version,
		"source", snap.Meta.Source,
	)
	in.notify(ctx, snap.Meta.SHA256, version)
	return nil
}

// notify runs OnSwap; a panicking callback must not stop the watcher.
func (in *installer) notify(ctx context.Context, hash, version string) {
	if in.onSwap == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			in.logger.Error(ctx, fmt.Errorf("panic: %v", r), "OnSwap callback panicked", "hash", ShortHash(hash))
		}
	}()
	in.onSwap(hash, version)
}
