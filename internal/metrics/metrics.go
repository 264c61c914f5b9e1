package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the collector's Prometheus instruments.
//
// All instruments are registered on a private registry so tests can create
// multiple instances without duplicate-registration panics.
type Metrics struct {
	// CyclesTotal counts completed polling cycles.
	CyclesTotal prometheus.Counter

	// PointsWritten counts points submitted to the sink, per account.
	PointsWritten *prometheus.CounterVec

	// AccountErrors counts recoverable per-account failures,
	// labelled by kind ("timeout" or "error").
	AccountErrors *prometheus.CounterVec

	// BackfillDaysRemaining reports progress through the startup backfill.
	// Zero once backfill completes (or was never configured).
	BackfillDaysRemaining prometheus.Gauge

	registry *prometheus.Registry
}

// New creates and registers the collector's metrics.
func New() *Metrics {
	m := &Metrics{
		CyclesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "vueflux",
			Name:      "cycles_total",
			Help:      "Completed polling cycles.",
		}),
		PointsWritten: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vueflux",
			Name:      "points_written_total",
			Help:      "Usage points submitted to the sink.",
		}, []string{"account"}),
		AccountErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vueflux",
			Name:      "account_errors_total",
			Help:      "Recoverable per-account cycle failures.",
		}, []string{"account", "kind"}),
		BackfillDaysRemaining: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "vueflux",
			Name:      "backfill_days_remaining",
			Help:      "Days of historical backfill still to process.",
		}),
		registry: prometheus.NewRegistry(),
	}

	m.registry.MustRegister(
		m.CyclesTotal,
		m.PointsWritten,
		m.AccountErrors,
		m.BackfillDaysRemaining,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// Handler returns the HTTP handler serving the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
