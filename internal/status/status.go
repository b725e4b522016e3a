// Package status probes the public data APIs behind the dashboards. Each API
// sits behind its own circuit breaker so a dead API is not probed on every
// request.
package status

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"healthdash/internal/sources/globalfund"
	"healthdash/internal/sources/who"
	"healthdash/internal/sources/worldbank"
	"healthdash/internal/status/metrics"
	"healthdash/internal/upstream"
	"healthdash/pkg/platform/circuit"
	"healthdash/pkg/requestcontext"
)

const (
	defaultFreshness = 30 * time.Second
	defaultCooldown  = time.Minute
)

// API is one probed data source and the dashboards that depend on it.
type API struct {
	Name       string
	URL        string
	Dashboards []string
}

// Result is the last known state of an API.
type Result struct {
	Name       string            `json:"name"`
	URL        string            `json:"url"`
	Up         bool              `json:"up"`
	StatusCode int               `json:"status_code,omitempty"`
	Category   upstream.Category `json:"category,omitempty"`
	Circuit    circuit.State     `json:"circuit"`
	CheckedAt  time.Time         `json:"checked_at"`
	LatencyMS  int64             `json:"latency_ms"`
	Skipped    bool              `json:"skipped,omitempty"`
}

// Report is the state of every API.
type Report struct {
	Up   bool     `json:"up"`
	APIs []Result `json:"apis"`
}

// DefaultAPIs are the three public APIs, keyed to the dashboard gates.
func DefaultAPIs(whoBase, worldBankBase, globalFundBase string) []API {
	return []API{
		{Name: "WHO", URL: who.IndicatorsURL(whoBase, ""), Dashboards: []string{"who"}},
		{Name: "World Bank", URL: worldbank.CountriesURL(worldBankBase, 1)},
		{Name: "Global Fund", URL: globalfund.ImplementationPeriodsURL(globalFundBase) + "?$top=1", Dashboards: []string{"globalfund"}},
	}
}

type probe struct {
	api     API
	breaker *circuit.Breaker

	mu   sync.Mutex
	last *Result
}

// Service checks API availability and caches results for a short while.
type Service struct {
	fetcher   upstream.Fetcher
	probes    []*probe
	freshness time.Duration
	cooldown  time.Duration
	now       func() time.Time
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

// Option configures the Service.
type Option func(*Service)

// WithFreshness sets how long a probe result is reused.
func WithFreshness(d time.Duration) Option {
	return func(s *Service) {
		s.freshness = d
	}
}

// WithCooldown sets how long an open circuit suppresses probes.
func WithCooldown(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.cooldown = d
		}
	}
}

// WithClock overrides the time source (tests).
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// New builds a status service probing apis through fetcher.
func New(fetcher upstream.Fetcher, apis []API, opts ...Option) (*Service, error) {
	if fetcher == nil {
		return nil, errors.New("fetcher is required")
	}
	if len(apis) == 0 {
		return nil, errors.New("at least one API is required")
	}
	s := &Service{
		fetcher:   fetcher,
		freshness: defaultFreshness,
		cooldown:  defaultCooldown,
		now:       time.Now,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	for _, api := range apis {
		s.probes = append(s.probes, &probe{
			api: api,
			breaker: circuit.New(api.Name,
				circuit.WithFailureThreshold(2),
				circuit.WithSuccessThreshold(1),
				circuit.WithCooldown(s.cooldown),
				circuit.WithClock(s.now),
			),
		})
	}
	return s, nil
}

// Check probes every API concurrently. Fresh results are reused.
func (s *Service) Check(ctx context.Context) (*Report, error) {
	results := make([]Result, len(s.probes))
	g, gctx := errgroup.WithContext(ctx)
	for i, p := range s.probes {
		g.Go(func() error {
			results[i] = s.check(gctx, p)
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	report := &Report{Up: true, APIs: results}
	for _, r := range results {
		report.Up = report.Up && r.Up
	}
	return report, nil
}

// DashboardUp reports whether every API behind dashboard is reachable.
// Dashboards without a probed API are always up.
func (s *Service) DashboardUp(ctx context.Context, dashboard string) bool {
	for _, p := range s.probes {
		if !slices.Contains(p.api.Dashboards, dashboard) {
			continue
		}
		if !s.check(ctx, p).Up {
			return false
		}
	}
	return true
}

func (s *Service) check(ctx context.Context, p *probe) Result {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := s.now()
	if p.last != nil && now.Sub(p.last.CheckedAt) < s.freshness {
		return *p.last
	}

	if !p.breaker.Allow() {
		r := Result{Name: p.api.Name, URL: p.api.URL, Circuit: p.breaker.State(), CheckedAt: now, Skipped: true}
		if p.last != nil {
			r.StatusCode = p.last.StatusCode
			r.Category = p.last.Category
		}
		s.metrics.SetUp(p.api.Name, false)
		return r
	}

	start := s.now()
	_, err := s.fetcher.Get(ctx, p.api.URL)
	r := Result{Name: p.api.Name, URL: p.api.URL, CheckedAt: now, LatencyMS: s.now().Sub(start).Milliseconds()}
	if err != nil {
		var ue *upstream.Error
		if errors.As(err, &ue) {
			r.StatusCode = ue.StatusCode
			r.Category = ue.Category
		} else {
			r.Category = upstream.CategoryInternal
		}
		if r.Category == upstream.CategoryCanceled {
			// The caller went away; this says nothing about the API.
			r.Circuit = p.breaker.State()
			return r
		}
		_, change := p.breaker.RecordFailure()
		if change.Opened {
			s.logger.WarnContext(ctx, "upstream circuit opened",
				"request_id", requestcontext.RequestID(ctx),
				"api", p.api.Name,
				"category", r.Category,
				"status", r.StatusCode,
			)
		}
	} else {
		r.Up = true
		r.StatusCode = 200
		_, change := p.breaker.RecordSuccess()
		if change.Closed {
			s.logger.InfoContext(ctx, "upstream circuit closed", "api", p.api.Name)
		}
	}
	r.Circuit = p.breaker.State()
	s.metrics.SetUp(p.api.Name, r.Up)
	s.metrics.ObserveProbe(p.api.Name, r.Up, time.Duration(r.LatencyMS)*time.Millisecond)

	p.last = &r
	return r
}
