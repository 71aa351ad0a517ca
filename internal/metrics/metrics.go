// Package metrics exposes prometheus collectors for the alert and digest cycles.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Cycle outcomes recorded on CyclesTotal.
const (
	OutcomeCompleted = "completed"
	OutcomeSkipped   = "skipped"
	OutcomeFailed    = "failed"
)

// Metrics holds all collectors.
type Metrics struct {
	CyclesTotal       *prometheus.CounterVec
	CycleDuration     *prometheus.HistogramVec
	FetchFailures     *prometheus.CounterVec
	AlertsTotal       *prometheus.CounterVec
	NotifyFailures    prometheus.Counter
	StateSaveFailures prometheus.Counter
	StateLoadFailures prometheus.Counter
	TrackedAssets     prometheus.Gauge

	gatherer prometheus.Gatherer
}

// New registers every collector on reg. A nil reg uses a fresh private registry.
func New(reg *prometheus.Registry, namespace string) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	if namespace == "" {
		namespace = "tokenwatch"
	}
	factory := promauto.With(reg)

	return &Metrics{
		CyclesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_total",
			Help:      "Scheduled cycles by task and outcome",
		}, []string{"task", "outcome"}),
		CycleDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cycle_duration_seconds",
			Help:      "Wall time of completed cycles",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"task"}),
		FetchFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fetch",
			Name:      "failures_total",
			Help:      "Quote fetches that were skipped, by reason",
		}, []string{"reason"}),
		AlertsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_total",
			Help:      "Price alerts raised, by direction",
		}, []string{"direction"}),
		NotifyFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notify",
			Name:      "failures_total",
			Help:      "Notifications that could not be delivered",
		}),
		StateSaveFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "state",
			Name:      "save_failures_total",
			Help:      "Cycles whose price record could not be persisted",
		}),
		StateLoadFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "state",
			Name:      "load_failures_total",
			Help:      "Startups that fell back to an empty price record",
		}),
		TrackedAssets: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tracked_assets",
			Help:      "Assets with a persisted last price",
		}),
		gatherer: reg,
	}
}

// Handler serves the registry in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
