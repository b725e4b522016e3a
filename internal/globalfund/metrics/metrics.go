package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the Global Fund dashboards.
type Metrics struct {
	// Fetches that fell back to an empty dashboard, by dataset
	Degraded *prometheus.CounterVec

	SelectLatency prometheus.Histogram

	// Disbursement rows left after filtering
	SelectedRows prometheus.Histogram

	// Downloads by format
	Exports *prometheus.CounterVec
}

func New() *Metrics {
	return &Metrics{
		Degraded: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "healthdash_globalfund_degraded_total",
			Help: "Global Fund requests served without upstream data, by dataset",
		}, []string{"dataset"}),

		SelectLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "healthdash_globalfund_select_duration_seconds",
			Help:    "Duration of a disbursement selection including upstream fetches",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20},
		}),

		SelectedRows: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "healthdash_globalfund_selected_rows",
			Help:    "Disbursement rows matching the filters",
			Buckets: prometheus.ExponentialBuckets(1, 4, 10),
		}),

		Exports: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "healthdash_globalfund_exports_total",
			Help: "Disbursement downloads by format",
		}, []string{"format"}),
	}
}

func (m *Metrics) IncDegraded(dataset string) {
	if m != nil {
		m.Degraded.WithLabelValues(dataset).Inc()
	}
}

func (m *Metrics) ObserveSelect(d time.Duration) {
	if m != nil {
		m.SelectLatency.Observe(d.Seconds())
	}
}

func (m *Metrics) ObserveRows(n int) {
	if m != nil {
		m.SelectedRows.Observe(float64(n))
	}
}

func (m *Metrics) IncExport(format string) {
	if m != nil {
		m.Exports.WithLabelValues(format).Inc()
	}
}
