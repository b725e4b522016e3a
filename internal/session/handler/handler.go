package handler

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"healthdash/internal/session"
	dErrors "healthdash/pkg/domain-errors"
	"healthdash/pkg/platform/httputil"
	"healthdash/pkg/requestcontext"
)

// Service defines the session operations exposed over HTTP.
type Service interface {
	Get(ctx context.Context, id string) (*session.Session, error)
	Acknowledge(ctx context.Context, id, dashboard string) (*session.Session, error)
	SaveFilters(ctx context.Context, id, dashboard string, values url.Values, pinned bool) (*session.Session, error)
	Dashboards() []string
}

type Handler struct {
	service  Service
	validate *validator.Validate
	logger   *slog.Logger
}

// New constructs a session handler.
func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{
		service:  service,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   logger,
	}
}

// Register mounts the session endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Get("/", h.HandleGet)
	r.Post("/{dashboard}/acknowledge", h.HandleAcknowledge)
	r.Put("/filters", h.HandleSaveFilters)
}

// HandleGet handles GET /session.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := sessionID(ctx)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	sess, err := h.service.Get(ctx, id)
	if err != nil {
		h.fail(ctx, w, "session lookup failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toResponse(sess, h.service.Dashboards()))
}

// HandleAcknowledge handles POST /session/{dashboard}/acknowledge.
func (h *Handler) HandleAcknowledge(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := sessionID(ctx)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	dashboard := chi.URLParam(r, "dashboard")
	sess, err := h.service.Acknowledge(ctx, id, dashboard)
	if err != nil {
		h.fail(ctx, w, "disclaimer acknowledgement failed", err, "dashboard", dashboard)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toResponse(sess, h.service.Dashboards()))
}

// HandleSaveFilters handles PUT /session/filters.
func (h *Handler) HandleSaveFilters(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := sessionID(ctx)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if !httputil.IsJSON(r.Header.Get("Content-Type")) {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnsupported, "filters must be sent as application/json"))
		return
	}
	req, err := httputil.DecodeJSON[SaveFiltersRequest](r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := req.Validate(h.validate); err != nil {
		httputil.WriteError(w, err)
		return
	}
	sess, err := h.service.SaveFilters(ctx, id, req.Dashboard, req.Values(), req.Pinned)
	if err != nil {
		h.fail(ctx, w, "saving filters failed", err, "dashboard", req.Dashboard)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toResponse(sess, h.service.Dashboards()))
}

func sessionID(ctx context.Context) (string, error) {
	id := requestcontext.SessionID(ctx)
	if id == "" {
		return "", dErrors.New(dErrors.CodeInternal, "no session on request")
	}
	return id, nil
}

func (h *Handler) fail(ctx context.Context, w http.ResponseWriter, msg string, err error, attrs ...any) {
	attrs = append(attrs,
		"request_id", requestcontext.RequestID(ctx),
		"session_id", requestcontext.SessionID(ctx),
		"error", err,
	)
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		h.logger.ErrorContext(ctx, msg, attrs...)
	} else {
		h.logger.WarnContext(ctx, msg, attrs...)
	}
	httputil.WriteError(w, err)
}
