package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// DashboardMetrics instruments live dashboard sessions and exports.
type DashboardMetrics struct {
	loads        *prometheus.CounterVec
	loadDuration prometheus.Histogram
	stale        prometheus.Counter
	dropped      prometheus.Counter
	exports      *prometheus.CounterVec
}

func newDashboardMetrics(registerer prometheus.Registerer) *DashboardMetrics {
	m := &DashboardMetrics{
		loads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hr_dashboard_loads_total",
			Help: "Dashboard data loads by outcome.",
		}, []string{"outcome"}),
		loadDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "hr_dashboard_load_duration_seconds",
			Help:    "Duration of dashboard data loads.",
			Buckets: prometheus.DefBuckets,
		}),
		stale: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hr_dashboard_stale_responses_total",
			Help: "Load responses discarded because a newer load was issued.",
		}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hr_dashboard_ticks_dropped_total",
			Help: "Auto refresh ticks skipped while a load was in flight.",
		}),
		exports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hr_dashboard_exports_total",
			Help: "Dashboard exports by kind and outcome.",
		}, []string{"kind", "outcome"}),
	}
	registerer.MustRegister(m.loads, m.loadDuration, m.stale, m.dropped, m.exports)
	return m
}

// LoadFinished records a settled load.
func (m *DashboardMetrics) LoadFinished(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.loads.WithLabelValues(outcome).Inc()
	m.loadDuration.Observe(d.Seconds())
}

// StaleDiscarded counts a fenced out response.
func (m *DashboardMetrics) StaleDiscarded() {
	if m != nil {
		m.stale.Inc()
	}
}

// TickDropped counts a skipped timer tick.
func (m *DashboardMetrics) TickDropped() {
	if m != nil {
		m.dropped.Inc()
	}
}

// ExportFinished records an export outcome.
func (m *DashboardMetrics) ExportFinished(kind, outcome string) {
	if m != nil {
		m.exports.WithLabelValues(kind, outcome).Inc()
	}
}
