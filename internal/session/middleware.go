package session

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"healthdash/internal/session/metrics"
	dErrors "healthdash/pkg/domain-errors"
	"healthdash/pkg/platform/httputil"
	"healthdash/pkg/requestcontext"
)

// CookieName is the session cookie carrying the signed session token.
const CookieName = "healthdash_session"

// Resolver loads or starts the session behind a cookie token.
type Resolver interface {
	Resolve(ctx context.Context, token string) (*Session, string, error)
}

// Gatekeeper answers whether a session accepted a dashboard's disclaimer.
type Gatekeeper interface {
	Acknowledged(ctx context.Context, id, dashboard string) (bool, error)
}

// Middleware resolves the session cookie and injects the session ID into the
// request context. A fresh cookie is set whenever a new session was started.
// Store failures are logged and the request continues without a session.
func Middleware(resolver Resolver, secure bool, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			var token string
			if c, err := r.Cookie(CookieName); err == nil {
				token = c.Value
			}

			sess, issued, err := resolver.Resolve(ctx, token)
			if err != nil {
				logger.ErrorContext(ctx, "session unavailable",
					"request_id", requestcontext.RequestID(ctx),
					"error", err,
				)
				next.ServeHTTP(w, r)
				return
			}
			if issued != "" {
				http.SetCookie(w, &http.Cookie{
					Name:     CookieName,
					Value:    issued,
					Path:     "/",
					Expires:  sess.ExpiresAt,
					MaxAge:   int(time.Until(sess.ExpiresAt).Seconds()),
					HttpOnly: true,
					Secure:   secure,
					SameSite: http.SameSiteLaxMode,
				})
			}
			ctx = requestcontext.WithSessionID(ctx, sess.ID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAcknowledged answers 428 disclaimer_required until the session has
// accepted the disclaimer of dashboard.
func RequireAcknowledged(gate Gatekeeper, dashboard string, logger *slog.Logger, m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			id := requestcontext.SessionID(ctx)
			ok := false
			if id != "" {
				var err error
				ok, err = gate.Acknowledged(ctx, id, dashboard)
				if err != nil {
					logger.ErrorContext(ctx, "disclaimer check failed",
						"request_id", requestcontext.RequestID(ctx),
						"session_id", id,
						"dashboard", dashboard,
						"error", err,
					)
					httputil.WriteError(w, err)
					return
				}
			}
			if !ok {
				m.IncBlocked(dashboard)
				httputil.WriteError(w, dErrors.New(dErrors.CodeDisclaimerRequired,
					"acknowledge the disclaimer of this dashboard before reading its data"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
