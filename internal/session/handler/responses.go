package handler

import (
	"net/url"
	"time"

	"healthdash/internal/session"
)

// GateResponse is the disclaimer state of one dashboard.
type GateResponse struct {
	Dashboard      string     `json:"dashboard"`
	Status         string     `json:"status"`
	AcknowledgedAt *time.Time `json:"acknowledged_at,omitempty"`
}

// FilterResponse is one saved selection.
type FilterResponse struct {
	Values url.Values `json:"values"`
	Pinned bool       `json:"pinned"`
}

type SessionResponse struct {
	ExpiresAt time.Time                 `json:"expires_at"`
	Gates     []GateResponse            `json:"gates"`
	Filters   map[string]FilterResponse `json:"filters"`
}

func toResponse(s *session.Session, dashboards []string) SessionResponse {
	resp := SessionResponse{
		ExpiresAt: s.ExpiresAt,
		Gates:     make([]GateResponse, 0, len(dashboards)),
		Filters:   make(map[string]FilterResponse, len(s.Filters)),
	}
	for _, d := range dashboards {
		g := s.Gate(d)
		resp.Gates = append(resp.Gates, GateResponse{Dashboard: d, Status: string(g.Status), AcknowledgedAt: g.AcknowledgedAt})
	}
	for d, f := range s.Filters {
		resp.Filters[d] = FilterResponse{Values: f.Values, Pinned: f.Pinned}
	}
	return resp
}
