package audit

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for audit publishing.
type Metrics struct {
	Emitted       *prometheus.CounterVec
	Dropped       prometheus.Counter
	SinkFailures  prometheus.Counter
	PendingEvents prometheus.Gauge
}

func NewMetrics() *Metrics {
	return &Metrics{
		Emitted: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "healthdash_audit_events_total",
			Help: "Audit events written to the sink by action",
		}, []string{"action"}),
		Dropped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "healthdash_audit_dropped_total",
			Help: "Audit events dropped because the buffer was full",
		}),
		SinkFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "healthdash_audit_sink_failures_total",
			Help: "Audit events the sink failed to persist",
		}),
		PendingEvents: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "healthdash_audit_pending_events",
			Help: "Audit events waiting in the buffer",
		}),
	}
}

func (m *Metrics) IncEmitted(action Action) {
	if m != nil {
		m.Emitted.WithLabelValues(string(action)).Inc()
	}
}

func (m *Metrics) IncDropped() {
	if m != nil {
		m.Dropped.Inc()
	}
}

func (m *Metrics) IncSinkFailures() {
	if m != nil {
		m.SinkFailures.Inc()
	}
}

func (m *Metrics) SetPending(n int) {
	if m != nil {
		m.PendingEvents.Set(float64(n))
	}
}
