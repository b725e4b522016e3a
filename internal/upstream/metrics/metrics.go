package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	FetchDuration *prometheus.HistogramVec
	FetchErrors   *prometheus.CounterVec
	MemoHits      *prometheus.CounterVec
	MemoMisses    *prometheus.CounterVec
	Coalesced     prometheus.Counter
}

func New() *Metrics {
	return &Metrics{
		FetchDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "healthdash_upstream_fetch_duration_seconds",
			Help:    "Latency of upstream data API calls by host and status code",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 20},
		}, []string{"host", "status"}),
		FetchErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "healthdash_upstream_fetch_errors_total",
			Help: "Upstream data API failures by host and category",
		}, []string{"host", "category"}),
		MemoHits: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "healthdash_memo_hits_total",
			Help: "Memoized fetches served from the cache",
		}, []string{"backend"}),
		MemoMisses: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "healthdash_memo_misses_total",
			Help: "Memoized fetches that went to the upstream",
		}, []string{"backend"}),
		Coalesced: promauto.NewCounter(prometheus.CounterOpts{
			Name: "healthdash_memo_coalesced_total",
			Help: "Concurrent identical fetches that shared one upstream call",
		}),
	}
}

func (m *Metrics) ObserveFetch(host, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.FetchDuration.WithLabelValues(host, status).Observe(d.Seconds())
}

func (m *Metrics) IncFetchError(host, category string) {
	if m == nil {
		return
	}
	m.FetchErrors.WithLabelValues(host, category).Inc()
}

func (m *Metrics) IncMemoHit(backend string) {
	if m == nil {
		return
	}
	m.MemoHits.WithLabelValues(backend).Inc()
}

func (m *Metrics) IncMemoMiss(backend string) {
	if m == nil {
		return
	}
	m.MemoMisses.WithLabelValues(backend).Inc()
}

func (m *Metrics) IncCoalesced() {
	if m == nil {
		return
	}
	m.Coalesced.Inc()
}
