// Package models holds the rate limiting vocabulary shared by the stores and
// the middleware.
package models

import (
	"fmt"
	"time"
)

// EndpointClass groups endpoints that share a budget.
type EndpointClass string

const (
	// ClassContact: contact form relay (5 req/hour)
	ClassContact EndpointClass = "contact"
	// ClassUpload: CSV uploads for clustering (20 req/min)
	ClassUpload EndpointClass = "upload"
	// ClassExport: chart and dataset downloads (60 req/min)
	ClassExport EndpointClass = "export"
	// ClassRefresh: reference table reloads (2 req/min)
	ClassRefresh EndpointClass = "refresh"
)

// Limit is a request budget per window.
type Limit struct {
	Requests int
	Window   time.Duration
}

// DefaultLimits are the budgets per client IP.
var DefaultLimits = map[EndpointClass]Limit{
	ClassContact: {Requests: 5, Window: time.Hour},
	ClassUpload:  {Requests: 20, Window: time.Minute},
	ClassExport:  {Requests: 60, Window: time.Minute},
	ClassRefresh: {Requests: 2, Window: time.Minute},
}

// IsValid checks if the endpoint class is one of the supported values.
func (c EndpointClass) IsValid() bool {
	_, ok := DefaultLimits[c]
	return ok
}

// Key is the bucket of one client for one class.
func Key(class EndpointClass, ip string) string {
	return fmt.Sprintf("rl:%s:%s", class, ip)
}

// RateLimitResult is the outcome of one check.
type RateLimitResult struct {
	Allowed    bool      `json:"allowed"`
	Limit      int       `json:"limit"`
	Remaining  int       `json:"remaining"`
	ResetAt    time.Time `json:"reset_at"`
	RetryAfter int       `json:"retry_after,omitempty"` // seconds, only set when not allowed
}
