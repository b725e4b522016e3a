package testutil

import (
	"net/http"
	"time"

	"healthdash/pkg/requestcontext"
)

// WithSessionID adds a dashboard session ID to the request context.
// This simulates what the session middleware does for cookie-carrying requests.
func WithSessionID(req *http.Request, sessionID string) *http.Request {
	return req.WithContext(requestcontext.WithSessionID(req.Context(), sessionID))
}

// WithRequestTime pins the request-scoped clock.
func WithRequestTime(req *http.Request, now time.Time) *http.Request {
	return req.WithContext(requestcontext.WithTime(req.Context(), now))
}
