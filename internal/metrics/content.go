package metrics

// Watcher metrics, shared by the S3 poller and the local directory watcher.

func (m *ServerMetrics) IncWatcherPolls() { m.watcherPollsTotal.Inc() }

func (m *ServerMetrics) IncWatcherSwaps() { m.watcherSwapsTotal.Inc() }

func (m *ServerMetrics) IncWatcherError(errType string) {
	m.watcherErrorsTotal.WithLabelValues(errType).Inc()
}

func (m *ServerMetrics) ObserveBundleLoadDuration(seconds float64) {
	m.bundleLoadDuration.Observe(seconds)
}

func (m *ServerMetrics) SetWatcherLastSuccess(unixSeconds float64) {
	m.watcherLastSuccessTs.Set(unixSeconds)
}

func (m *ServerMetrics) SetWatcherStale(stale bool) { m.watcherStale.Set(boolGauge(stale)) }
