package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the indicator explorer.
type Metrics struct {
	// Searches by outcome: found, empty, error
	Searches *prometheus.CounterVec

	// Explorations by resulting view kind
	Explorations *prometheus.CounterVec

	ExploreLatency prometheus.Histogram

	// Downloads by format
	Exports *prometheus.CounterVec
}

func New() *Metrics {
	return &Metrics{
		Searches: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "healthdash_indicator_searches_total",
			Help: "Indicator keyword searches by outcome",
		}, []string{"outcome"}),

		Explorations: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "healthdash_indicator_explorations_total",
			Help: "Indicator explorations by resulting view kind",
		}, []string{"view"}),

		ExploreLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "healthdash_indicator_explore_duration_seconds",
			Help:    "Duration of an indicator exploration including upstream fetches",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20},
		}),

		Exports: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "healthdash_indicator_exports_total",
			Help: "Indicator dataset downloads by format",
		}, []string{"format"}),
	}
}

func (m *Metrics) IncSearch(outcome string) {
	if m != nil {
		m.Searches.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) IncExploration(view string) {
	if m != nil {
		m.Explorations.WithLabelValues(view).Inc()
	}
}

func (m *Metrics) ObserveExplore(d time.Duration) {
	if m != nil {
		m.ExploreLatency.Observe(d.Seconds())
	}
}

func (m *Metrics) IncExport(format string) {
	if m != nil {
		m.Exports.WithLabelValues(format).Inc()
	}
}
