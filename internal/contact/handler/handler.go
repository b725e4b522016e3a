package handler

import (
	"context"
	"log/slog"
	"mime"
	"net/http"

	"github.com/go-chi/chi/v5"

	"healthdash/internal/contact"
	dErrors "healthdash/pkg/domain-errors"
	"healthdash/pkg/platform/httputil"
	"healthdash/pkg/requestcontext"
)

const maxFormBytes = 64 << 10

// Service defines the contact relay.
type Service interface {
	Submit(ctx context.Context, sub contact.Submission) error
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts the contact endpoint on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/", h.HandleSubmit)
}

// HandleSubmit handles POST /contact with a JSON or urlencoded body.
func (h *Handler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sub, err := decode(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := h.service.Submit(ctx, sub); err != nil {
		attrs := []any{"request_id", requestcontext.RequestID(ctx), "error", err}
		if dErrors.CodeOf(err) == dErrors.CodeInternal {
			h.logger.ErrorContext(ctx, "contact submission failed", attrs...)
		} else {
			h.logger.WarnContext(ctx, "contact submission rejected", attrs...)
		}
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusAccepted, map[string]string{"status": "sent"})
}

func decode(r *http.Request) (contact.Submission, error) {
	ct := r.Header.Get("Content-Type")
	if httputil.IsJSON(ct) {
		return httputil.DecodeJSON[contact.Submission](r)
	}
	mediaType, _, _ := mime.ParseMediaType(ct)
	if mediaType != "application/x-www-form-urlencoded" {
		return contact.Submission{}, dErrors.New(dErrors.CodeUnsupported, "send the form as JSON or urlencoded fields")
	}
	r.Body = http.MaxBytesReader(nil, r.Body, maxFormBytes)
	if err := r.ParseForm(); err != nil {
		return contact.Submission{}, dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid form body")
	}
	return contact.Submission{
		Name:     r.PostForm.Get("name"),
		Email:    r.PostForm.Get("email"),
		Message:  r.PostForm.Get("message"),
		Honeypot: r.PostForm.Get("_honey"),
	}, nil
}
