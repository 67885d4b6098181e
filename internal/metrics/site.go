package metrics

import "strconv"

func (m *ServerMetrics) IncRedirect(status int) {
	m.redirectsTotal.WithLabelValues(strconv.Itoa(status)).Inc()
}

func (m *ServerMetrics) IncRewrite(tier string) {
	m.rewritesTotal.WithLabelValues(tier).Inc()
}

func (m *ServerMetrics) IncProxyError() {
	m.proxyErrorsTotal.Inc()
}

// ObserveBuild records a site build. Failed builds leave the page gauge at
// the last good value.
func (m *ServerMetrics) ObserveBuild(seconds float64, pages int, err error) {
	m.buildDuration.Observe(seconds)
	if err != nil {
		m.buildFailuresTotal.Inc()
		return
	}
	m.buildPages.Set(float64(pages))
}

func (m *ServerMetrics) IncDiagnostic(plugin string) {
	m.diagnosticsTotal.WithLabelValues(plugin).Inc()
}
