package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the process dashboards.
type Metrics struct {
	// Computation time by kind: analysis, clustering
	Duration *prometheus.HistogramVec

	ClusterCount prometheus.Histogram

	// Uploads by outcome: accepted, rejected
	Uploads *prometheus.CounterVec
}

func New() *Metrics {
	return &Metrics{
		Duration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "healthdash_process_duration_seconds",
			Help:    "Duration of process computations by kind",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"kind"}),

		ClusterCount: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "healthdash_process_clusters",
			Help:    "Number of clusters fitted per clustering request",
			Buckets: prometheus.LinearBuckets(1, 1, 10),
		}),

		Uploads: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "healthdash_process_uploads_total",
			Help: "Clustering dataset uploads by outcome",
		}, []string{"outcome"}),
	}
}

func (m *Metrics) ObserveAnalysis(kind string, d time.Duration) {
	if m != nil {
		m.Duration.WithLabelValues(kind).Observe(d.Seconds())
	}
}

func (m *Metrics) ObserveClusters(k int) {
	if m != nil {
		m.ClusterCount.Observe(float64(k))
	}
}

func (m *Metrics) IncUpload(outcome string) {
	if m != nil {
		m.Uploads.WithLabelValues(outcome).Inc()
	}
}
