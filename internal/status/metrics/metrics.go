package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks the availability of the public data APIs.
type Metrics struct {
	Up           *prometheus.GaugeVec
	ProbeLatency *prometheus.HistogramVec
}

func New() *Metrics {
	return &Metrics{
		Up: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "healthdash_upstream_up",
			Help: "1 when the last probe of the API succeeded",
		}, []string{"api"}),
		ProbeLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "healthdash_upstream_probe_duration_seconds",
			Help:    "Duration of API availability probes",
			Buckets: prometheus.DefBuckets,
		}, []string{"api", "up"}),
	}
}

func (m *Metrics) SetUp(api string, up bool) {
	if m == nil {
		return
	}
	v := 0.0
	if up {
		v = 1
	}
	m.Up.WithLabelValues(api).Set(v)
}

func (m *Metrics) ObserveProbe(api string, up bool, d time.Duration) {
	if m == nil {
		return
	}
	label := "false"
	if up {
		label = "true"
	}
	m.ProbeLatency.WithLabelValues(api, label).Observe(d.Seconds())
}
