package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for sessions and disclaimer gates.
type Metrics struct {
	SessionsCreated prometheus.Counter

	// Gate transitions by dashboard
	Acknowledgements *prometheus.CounterVec

	// Acknowledgements refused because the dashboard's data source was down
	Refusals *prometheus.CounterVec

	// Requests answered 428 by dashboard
	Blocked *prometheus.CounterVec

	FilterSaves *prometheus.CounterVec
}

func New() *Metrics {
	return &Metrics{
		SessionsCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "healthdash_sessions_created_total",
			Help: "Sessions started",
		}),
		Acknowledgements: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "healthdash_gate_acknowledgements_total",
			Help: "Disclaimer acknowledgements by dashboard",
		}, []string{"dashboard"}),
		Refusals: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "healthdash_gate_refusals_total",
			Help: "Disclaimer acknowledgements refused while the data source was down",
		}, []string{"dashboard"}),
		Blocked: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "healthdash_gate_blocked_total",
			Help: "Requests rejected because the disclaimer was not acknowledged",
		}, []string{"dashboard"}),
		FilterSaves: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "healthdash_filter_saves_total",
			Help: "Saved filter selections by dashboard and pinned flag",
		}, []string{"dashboard", "pinned"}),
	}
}

func (m *Metrics) IncSessionsCreated() {
	if m != nil {
		m.SessionsCreated.Inc()
	}
}

func (m *Metrics) IncAcknowledgement(dashboard string) {
	if m != nil {
		m.Acknowledgements.WithLabelValues(dashboard).Inc()
	}
}

func (m *Metrics) IncRefusal(dashboard string) {
	if m != nil {
		m.Refusals.WithLabelValues(dashboard).Inc()
	}
}

func (m *Metrics) IncBlocked(dashboard string) {
	if m != nil {
		m.Blocked.WithLabelValues(dashboard).Inc()
	}
}

func (m *Metrics) IncFilterSave(dashboard string, pinned bool) {
	if m != nil {
		label := "false"
		if pinned {
			label = "true"
		}
		m.FilterSaves.WithLabelValues(dashboard, label).Inc()
	}
}
