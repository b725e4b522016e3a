// Package session keeps the per-visitor state of the dashboards: the
// disclaimer gate of each dashboard and the saved filter selections.
package session

import (
	"net/url"
	"time"
)

// GateStatus is the disclaimer state of one dashboard. The only transition is
// NotAcknowledged to Acknowledged.
type GateStatus string

const (
	NotAcknowledged GateStatus = "not_acknowledged"
	Acknowledged    GateStatus = "acknowledged"
)

// Gate is the disclaimer state of a dashboard.
type Gate struct {
	Status         GateStatus `json:"status"`
	AcknowledgedAt *time.Time `json:"acknowledged_at,omitempty"`
}

// FilterState is a saved filter selection. Pinned selections are applied to
// requests that set no filter of their own.
type FilterState struct {
	Values    url.Values `json:"values"`
	Pinned    bool       `json:"pinned"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// Session is the server-side state behind a session cookie.
type Session struct {
	ID        string                 `json:"id"`
	CreatedAt time.Time              `json:"created_at"`
	ExpiresAt time.Time              `json:"expires_at"`
	Gates     map[string]Gate        `json:"gates"`
	Filters   map[string]FilterState `json:"filters"`
}

func newSession(id string, now time.Time, ttl time.Duration) *Session {
	return &Session{
		ID:        id,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
		Gates:     map[string]Gate{},
		Filters:   map[string]FilterState{},
	}
}

// Gate returns the gate of dashboard; unknown gates are not acknowledged.
func (s *Session) Gate(dashboard string) Gate {
	if g, ok := s.Gates[dashboard]; ok {
		return g
	}
	return Gate{Status: NotAcknowledged}
}

// Acknowledged reports whether the disclaimer of dashboard was accepted.
func (s *Session) Acknowledged(dashboard string) bool {
	return s.Gate(dashboard).Status == Acknowledged
}

// Acknowledge accepts the disclaimer of dashboard. It reports false when the
// gate was already open.
func (s *Session) Acknowledge(dashboard string, now time.Time) bool {
	if s.Acknowledged(dashboard) {
		return false
	}
	if s.Gates == nil {
		s.Gates = map[string]Gate{}
	}
	s.Gates[dashboard] = Gate{Status: Acknowledged, AcknowledgedAt: &now}
	return true
}

// SetFilters replaces the saved selection of dashboard. Empty values clear it.
func (s *Session) SetFilters(dashboard string, values url.Values, pinned bool, now time.Time) {
	if s.Filters == nil {
		s.Filters = map[string]FilterState{}
	}
	if len(values) == 0 {
		delete(s.Filters, dashboard)
		return
	}
	s.Filters[dashboard] = FilterState{Values: values, Pinned: pinned, UpdatedAt: now}
}

// Expired reports whether the session lifetime is over at now.
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}
