// Package httpapi assembles the HTTP surface: platform middleware, the session
// cookie, disclaimer gates and the feature handlers.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	contacthandler "healthdash/internal/contact/handler"
	gfhandler "healthdash/internal/globalfund/handler"
	indicatorhandler "healthdash/internal/indicator/handler"
	"healthdash/internal/platform/metrics"
	"healthdash/internal/platform/middleware"
	processhandler "healthdash/internal/process/handler"
	ratelimit "healthdash/internal/ratelimit/middleware"
	"healthdash/internal/ratelimit/models"
	refhandler "healthdash/internal/reference/handler"
	"healthdash/internal/session"
	sessionhandler "healthdash/internal/session/handler"
	sessionmetrics "healthdash/internal/session/metrics"
	statushandler "healthdash/internal/status/handler"
	"healthdash/pkg/platform/httputil"
)

// HealthCheck reports whether a backing service is reachable.
type HealthCheck func(ctx context.Context) error

// SessionService resolves cookies and answers gate checks.
type SessionService interface {
	session.Resolver
	session.Gatekeeper
}

// Deps are the assembled handlers and cross-cutting components.
type Deps struct {
	Logger         *slog.Logger
	Metrics        *metrics.Metrics
	RequestTimeout time.Duration
	Checks         map[string]HealthCheck

	Sessions       SessionService
	SessionMetrics *sessionmetrics.Metrics
	SecureCookie   bool
	Limiter        *ratelimit.Middleware

	Status     *statushandler.Handler
	Session    *sessionhandler.Handler
	Reference  *refhandler.Handler
	Indicators *indicatorhandler.Handler
	GlobalFund *gfhandler.Handler
	Process    *processhandler.Handler
	Contact    *contacthandler.Handler
}

// NewRouter wires every public endpoint.
func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.ClientMetadata)
	r.Use(middleware.Recovery(d.Logger))
	r.Use(middleware.Logger(d.Logger))
	r.Use(middleware.LatencyMiddleware(d.Metrics))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/readyz", readiness(d.Checks))
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		if d.RequestTimeout > 0 {
			r.Use(middleware.Timeout(d.RequestTimeout))
		}
		r.Use(session.Middleware(d.Sessions, d.SecureCookie, d.Logger))

		r.Route("/status", d.Status.Register)
		r.Route("/session", func(r chi.Router) {
			r.Use(middleware.ContentTypeJSON)
			d.Session.Register(r)
		})
		r.Route("/reference", func(r chi.Router) {
			d.Reference.Register(r, d.Limiter.RateLimit(models.ClassRefresh))
		})
		r.Route("/who", func(r chi.Router) {
			r.Use(session.RequireAcknowledged(d.Sessions, indicatorhandler.Dashboard, d.Logger, d.SessionMetrics))
			d.Indicators.Register(r, d.Limiter.RateLimit(models.ClassExport))
		})
		r.Route("/globalfund", func(r chi.Router) {
			r.Use(session.RequireAcknowledged(d.Sessions, gfhandler.Dashboard, d.Logger, d.SessionMetrics))
			d.GlobalFund.Register(r, d.Limiter.RateLimit(models.ClassExport))
		})
		r.Route("/process", func(r chi.Router) {
			d.Process.Register(r, processhandler.Limits{
				Download: d.Limiter.RateLimit(models.ClassExport),
				Upload:   d.Limiter.RateLimit(models.ClassUpload),
			})
		})
		r.Route("/contact", func(r chi.Router) {
			r.Use(d.Limiter.RateLimit(models.ClassContact))
			d.Contact.Register(r)
		})
	})
	return r
}

func readiness(checks map[string]HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		results := make(map[string]string, len(checks))
		for name, check := range checks {
			if err := check(ctx); err != nil {
				status = http.StatusServiceUnavailable
				results[name] = err.Error()
				continue
			}
			results[name] = "ok"
		}
		httputil.WriteJSON(w, status, results)
	}
}
