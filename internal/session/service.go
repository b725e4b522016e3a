package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"slices"
	"time"

	"github.com/google/uuid"

	"healthdash/internal/audit"
	"healthdash/internal/session/metrics"
	dErrors "healthdash/pkg/domain-errors"
	"healthdash/pkg/platform/sentinel"
	"healthdash/pkg/requestcontext"
)

const (
	maxFilterKeys   = 16
	maxFilterValues = 64
	maxValueLength  = 200
)

// Probe reports whether the data source behind a dashboard is reachable.
type Probe interface {
	DashboardUp(ctx context.Context, dashboard string) bool
}

// Auditor records gate transitions.
type Auditor interface {
	Emit(ctx context.Context, e audit.Event)
}

// Service manages sessions, disclaimer gates and saved filters.
type Service struct {
	store      Store
	tokens     *Tokens
	ttl        time.Duration
	dashboards []string
	probe      Probe
	auditor    Auditor
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

// Option configures the Service.
type Option func(*Service)

func WithTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithProbe refuses acknowledgements while the dashboard's source is down.
func WithProbe(p Probe) Option {
	return func(s *Service) {
		s.probe = p
	}
}

func WithAuditor(a Auditor) Option {
	return func(s *Service) {
		s.auditor = a
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

// New builds a session service gating the given dashboards.
func New(store Store, tokens *Tokens, dashboards []string, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("session store is required")
	}
	if tokens == nil {
		return nil, errors.New("session tokens are required")
	}
	if len(dashboards) == 0 {
		return nil, errors.New("at least one dashboard is required")
	}
	s := &Service{
		store:      store,
		tokens:     tokens,
		ttl:        24 * time.Hour,
		dashboards: dashboards,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Resolve returns the session behind token. A missing, invalid or expired
// token starts a new session; the returned token is then non-empty and must
// be sent back to the client.
func (s *Service) Resolve(ctx context.Context, token string) (*Session, string, error) {
	now := requestcontext.Now(ctx)
	if token != "" {
		id, err := s.tokens.Parse(token, now)
		if err == nil {
			sess, err := s.store.Get(ctx, id)
			if err == nil {
				return sess, "", nil
			}
			if !errors.Is(err, sentinel.ErrNotFound) {
				return nil, "", fmt.Errorf("load session: %w", err)
			}
		}
	}

	sess := newSession(uuid.NewString(), now, s.ttl)
	if err := s.store.Create(ctx, sess); err != nil {
		return nil, "", fmt.Errorf("create session: %w", err)
	}
	issued, err := s.tokens.Issue(sess.ID, now, sess.ExpiresAt)
	if err != nil {
		return nil, "", fmt.Errorf("sign session token: %w", err)
	}
	s.metrics.IncSessionsCreated()
	return sess, issued, nil
}

// Get returns the session id.
func (s *Service) Get(ctx context.Context, id string) (*Session, error) {
	sess, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, s.storeError(err)
	}
	return sess, nil
}

// Acknowledge opens the disclaimer gate of dashboard. It is refused while the
// dashboard's data source is reported down.
func (s *Service) Acknowledge(ctx context.Context, id, dashboard string) (*Session, error) {
	if err := s.checkDashboard(dashboard); err != nil {
		return nil, err
	}
	if s.probe != nil && !s.probe.DashboardUp(ctx, dashboard) {
		s.metrics.IncRefusal(dashboard)
		return nil, dErrors.New(dErrors.CodeUpstream, "the data source of this dashboard is unavailable, try again later")
	}

	changed := false
	sess, err := s.store.Update(ctx, id, func(sess *Session) error {
		changed = sess.Acknowledge(dashboard, requestcontext.Now(ctx))
		return nil
	})
	if err != nil {
		return nil, s.storeError(err)
	}
	if changed {
		s.metrics.IncAcknowledgement(dashboard)
		if s.auditor != nil {
			s.auditor.Emit(ctx, audit.Event{Action: audit.ActionDisclaimerAcknowledged, Subject: dashboard})
		}
		s.logger.InfoContext(ctx, "disclaimer acknowledged",
			"request_id", requestcontext.RequestID(ctx),
			"session_id", id,
			"dashboard", dashboard,
		)
	}
	return sess, nil
}

// Acknowledged reports whether session id accepted the disclaimer of dashboard.
func (s *Service) Acknowledged(ctx context.Context, id, dashboard string) (bool, error) {
	sess, err := s.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return false, nil
		}
		return false, s.storeError(err)
	}
	return sess.Acknowledged(dashboard), nil
}

// SaveFilters stores the selection of dashboard. Empty values clear it.
func (s *Service) SaveFilters(ctx context.Context, id, dashboard string, values url.Values, pinned bool) (*Session, error) {
	if err := s.checkDashboard(dashboard); err != nil {
		return nil, err
	}
	if err := checkValues(values); err != nil {
		return nil, err
	}
	sess, err := s.store.Update(ctx, id, func(sess *Session) error {
		sess.SetFilters(dashboard, values, pinned, requestcontext.Now(ctx))
		return nil
	})
	if err != nil {
		return nil, s.storeError(err)
	}
	s.metrics.IncFilterSave(dashboard, pinned)
	return sess, nil
}

// Pinned returns the pinned filters of the request's session for dashboard,
// or nil. Store failures degrade to no pinned filters.
func (s *Service) Pinned(ctx context.Context, dashboard string) url.Values {
	id := requestcontext.SessionID(ctx)
	if id == "" {
		return nil
	}
	sess, err := s.store.Get(ctx, id)
	if err != nil {
		if !errors.Is(err, sentinel.ErrNotFound) {
			s.logger.WarnContext(ctx, "pinned filters unavailable", "session_id", id, "error", err)
		}
		return nil
	}
	f, ok := sess.Filters[dashboard]
	if !ok || !f.Pinned {
		return nil
	}
	return f.Values
}

// Dashboards lists the gated dashboards.
func (s *Service) Dashboards() []string {
	return slices.Clone(s.dashboards)
}

func (s *Service) checkDashboard(dashboard string) error {
	if !slices.Contains(s.dashboards, dashboard) {
		return dErrors.New(dErrors.CodeNotFound, fmt.Sprintf("unknown dashboard %q", dashboard))
	}
	return nil
}

func checkValues(values url.Values) error {
	if len(values) > maxFilterKeys {
		return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("at most %d filters can be saved", maxFilterKeys))
	}
	for k, vs := range values {
		if k == "" || len(k) > maxValueLength {
			return dErrors.New(dErrors.CodeValidation, "filter names must be 1 to 200 characters")
		}
		if len(vs) > maxFilterValues {
			return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("filter %q has more than %d values", k, maxFilterValues))
		}
		for _, v := range vs {
			if len(v) > maxValueLength {
				return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("filter %q has a value over %d characters", k, maxValueLength))
			}
		}
	}
	return nil
}

func (s *Service) storeError(err error) error {
	switch {
	case errors.Is(err, sentinel.ErrNotFound), errors.Is(err, sentinel.ErrExpired):
		return dErrors.Wrap(err, dErrors.CodeNotFound, "session not found or expired")
	case errors.Is(err, ErrConflict):
		return dErrors.Wrap(err, dErrors.CodeTooManyRequests, "session is being updated, retry")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, "session store failure")
	}
}
