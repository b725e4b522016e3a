package handler

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"healthdash/internal/audit"
	"healthdash/internal/globalfund"
	"healthdash/internal/globalfund/metrics"
	"healthdash/internal/render"
	dErrors "healthdash/pkg/domain-errors"
	"healthdash/pkg/platform/httputil"
	"healthdash/pkg/requestcontext"
)

// Dashboard is the gate and filter-state key of the Global Fund dashboards.
const Dashboard = "globalfund"

// Service defines the interface for Global Fund dashboard operations.
type Service interface {
	Grants(ctx context.Context, f globalfund.Filters, by globalfund.Grouping) (*globalfund.GrantsResult, error)
	Disbursements(ctx context.Context, f globalfund.Filters, by globalfund.Grouping) (*globalfund.DisbursementsResult, error)
	Sankey(ctx context.Context, f globalfund.Filters) (*globalfund.Sankey, error)
}

// Auditor records dataset downloads.
type Auditor interface {
	Emit(ctx context.Context, e audit.Event)
}

// Defaults supplies the filters a session pinned for a dashboard.
type Defaults interface {
	Pinned(ctx context.Context, dashboard string) url.Values
}

type Handler struct {
	service  Service
	auditor  Auditor
	defaults Defaults
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

// New constructs a Global Fund handler. auditor and defaults may be nil.
func New(service Service, auditor Auditor, defaults Defaults, logger *slog.Logger, metrics *metrics.Metrics) *Handler {
	return &Handler{
		service:  service,
		auditor:  auditor,
		defaults: defaults,
		logger:   logger,
		metrics:  metrics,
	}
}

// Register mounts the Global Fund endpoints on the router. downloads wraps the
// chart and export routes.
func (h *Handler) Register(r chi.Router, downloads ...func(http.Handler) http.Handler) {
	r.Get("/grants", h.HandleGrants)
	r.Get("/disbursements", h.HandleDisbursements)
	r.Get("/disbursements/sankey", h.HandleSankey)
	r.Group(func(r chi.Router) {
		r.Use(downloads...)
		r.Get("/disbursements/chart.{format}", h.HandleChart)
		r.Get("/disbursements/export.{format}", h.HandleExport)
	})
}

// HandleGrants handles GET /grants.
func (h *Handler) HandleGrants(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	f, by, err := parseFilters(h.filterValues(r))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	result, err := h.service.Grants(ctx, f, by)
	if err != nil {
		h.fail(ctx, w, "grants dashboard failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}

// HandleDisbursements handles GET /disbursements.
func (h *Handler) HandleDisbursements(w http.ResponseWriter, r *http.Request) {
	result, ok := h.disbursements(w, r)
	if !ok {
		return
	}
	httputil.WriteJSON(w, http.StatusOK, DisbursementsResponse{DisbursementsResult: result, Rows: len(result.Rows)})
}

// HandleSankey handles GET /disbursements/sankey.
func (h *Handler) HandleSankey(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	f, _, err := parseFilters(h.filterValues(r))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	result, err := h.service.Sankey(ctx, f)
	if err != nil {
		h.fail(ctx, w, "disbursement flows failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}

// HandleChart handles GET /disbursements/chart.{png,svg}.
func (h *Handler) HandleChart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	format, err := formatParam(r, render.FormatPNG, render.FormatSVG)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	result, ok := h.disbursements(w, r)
	if !ok {
		return
	}
	img, err := render.Chart(result.View, format)
	if err != nil {
		h.fail(ctx, w, "chart rendering failed", err)
		return
	}
	w.Header().Set("Content-Type", render.ContentType(format))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(img)
}

// HandleExport handles GET /disbursements/export.{csv,xlsx}.
func (h *Handler) HandleExport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	format, err := formatParam(r, render.FormatCSV, render.FormatXLSX)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	result, ok := h.disbursements(w, r)
	if !ok {
		return
	}

	table := result.Table()
	var buf bytes.Buffer
	if format == render.FormatCSV {
		err = render.WriteCSV(&buf, table)
	} else {
		err = render.WriteXLSX(&buf, "Disbursements", table)
	}
	if err != nil {
		h.fail(ctx, w, "export failed", err, "format", format)
		return
	}

	h.metrics.IncExport(format)
	if h.auditor != nil {
		h.auditor.Emit(ctx, audit.Event{
			Action:  audit.ActionDatasetExported,
			Subject: "globalfund_disbursements",
			Format:  format,
			Rows:    len(table.Rows),
		})
	}

	httputil.Attachment(w, render.ContentType(format), "disbursements."+format)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func (h *Handler) disbursements(w http.ResponseWriter, r *http.Request) (*globalfund.DisbursementsResult, bool) {
	ctx := r.Context()
	f, by, err := parseFilters(h.filterValues(r))
	if err != nil {
		httputil.WriteError(w, err)
		return nil, false
	}
	result, err := h.service.Disbursements(ctx, f, by)
	if err != nil {
		h.fail(ctx, w, "disbursement dashboard failed", err)
		return nil, false
	}
	return result, true
}

func (h *Handler) fail(ctx context.Context, w http.ResponseWriter, msg string, err error, attrs ...any) {
	attrs = append(attrs, "request_id", requestcontext.RequestID(ctx), "error", err)
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		h.logger.ErrorContext(ctx, msg, attrs...)
	} else {
		h.logger.WarnContext(ctx, msg, attrs...)
	}
	httputil.WriteError(w, err)
}
