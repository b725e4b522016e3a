package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"healthdash/internal/status"
	dErrors "healthdash/pkg/domain-errors"
	"healthdash/pkg/platform/httputil"
	"healthdash/pkg/requestcontext"
)

// Service defines the status operations.
type Service interface {
	Check(ctx context.Context) (*status.Report, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts the status endpoint on the router.
func (h *Handler) Register(r chi.Router) {
	r.Get("/", h.HandleStatus)
}

// HandleStatus handles GET /status. It answers 200 when every API is up and
// 502 with the same body otherwise.
func (h *Handler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	report, err := h.service.Check(ctx)
	if err != nil {
		h.logger.WarnContext(ctx, "status check aborted",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeUpstream, "status check did not complete"))
		return
	}
	code := http.StatusOK
	if !report.Up {
		code = http.StatusBadGateway
	}
	httputil.WriteJSON(w, code, report)
}
