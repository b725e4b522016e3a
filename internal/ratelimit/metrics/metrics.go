package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Denied *prometheus.CounterVec
}

func New() *Metrics {
	return &Metrics{
		Denied: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "healthdash_ratelimit_denied_total",
			Help: "Requests rejected by the per-IP rate limit, by endpoint class",
		}, []string{"class"}),
	}
}

func (m *Metrics) IncDenied(class string) {
	if m != nil {
		m.Denied.WithLabelValues(class).Inc()
	}
}
