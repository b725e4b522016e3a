package handler

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"

	"healthdash/internal/audit"
	"healthdash/internal/indicator"
	"healthdash/internal/indicator/metrics"
	"healthdash/internal/render"
	dErrors "healthdash/pkg/domain-errors"
	"healthdash/pkg/platform/httputil"
	"healthdash/pkg/requestcontext"
)

// Dashboard is the gate and filter-state key of the WHO explorer.
const Dashboard = "who"

// Service defines the interface for indicator operations.
type Service interface {
	Search(ctx context.Context, keyword string) (*indicator.SearchResult, error)
	Explore(ctx context.Context, q indicator.Query) (*indicator.Exploration, error)
	Compare(ctx context.Context, q indicator.CompareQuery) (*indicator.Comparison, error)
}

// Auditor records dataset downloads.
type Auditor interface {
	Emit(ctx context.Context, e audit.Event)
}

// Defaults supplies the filters a session pinned for a dashboard.
type Defaults interface {
	Pinned(ctx context.Context, dashboard string) url.Values
}

// Handler wires WHO explorer endpoints to the indicator service.
type Handler struct {
	service  Service
	auditor  Auditor
	defaults Defaults
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

// New constructs an indicator handler. auditor and defaults may be nil.
func New(service Service, auditor Auditor, defaults Defaults, logger *slog.Logger, metrics *metrics.Metrics) *Handler {
	return &Handler{
		service:  service,
		auditor:  auditor,
		defaults: defaults,
		logger:   logger,
		metrics:  metrics,
	}
}

// Register mounts explorer endpoints on the router. downloads wraps the chart
// and export routes.
func (h *Handler) Register(r chi.Router, downloads ...func(http.Handler) http.Handler) {
	r.Get("/topics", h.HandleTopics)
	r.Get("/indicators", h.HandleSearch)
	r.Get("/indicators/{code}", h.HandleExplore)
	r.Get("/compare", h.HandleCompare)
	r.Group(func(r chi.Router) {
		r.Use(downloads...)
		r.Get("/indicators/{code}/chart.{format}", h.HandleChart)
		r.Get("/indicators/{code}/export.{format}", h.HandleExport)
	})
}

// HandleTopics handles GET /topics.
func (h *Handler) HandleTopics(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"topics": indicator.Topics})
}

// HandleSearch handles GET /indicators?keyword=.
func (h *Handler) HandleSearch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	keyword := r.URL.Query().Get("keyword")

	result, err := h.service.Search(ctx, keyword)
	if err != nil {
		h.fail(ctx, w, "indicator search failed", err, "keyword", keyword)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}

// HandleExplore handles GET /indicators/{code}.
func (h *Handler) HandleExplore(w http.ResponseWriter, r *http.Request) {
	ex, ok := h.explore(w, r)
	if !ok {
		return
	}
	httputil.WriteJSON(w, http.StatusOK, ExploreResponse{Exploration: ex, Rows: len(ex.Records)})
}

// HandleChart handles GET /indicators/{code}/chart.{png,svg}.
func (h *Handler) HandleChart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	format, err := formatParam(r, render.FormatPNG, render.FormatSVG)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	ex, ok := h.explore(w, r)
	if !ok {
		return
	}

	img, err := render.Chart(ex.View, format)
	if err != nil {
		h.fail(ctx, w, "chart rendering failed", err, "code", ex.Code)
		return
	}
	w.Header().Set("Content-Type", render.ContentType(format))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(img)
}

// HandleExport handles GET /indicators/{code}/export.{csv,xlsx}.
func (h *Handler) HandleExport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	format, err := formatParam(r, render.FormatCSV, render.FormatXLSX)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	ex, ok := h.explore(w, r)
	if !ok {
		return
	}

	table := ex.Table()
	var buf bytes.Buffer
	if format == render.FormatCSV {
		err = render.WriteCSV(&buf, table)
	} else {
		err = render.WriteXLSX(&buf, "Indicator", table)
	}
	if err != nil {
		h.fail(ctx, w, "export failed", err, "code", ex.Code, "format", format)
		return
	}

	h.metrics.IncExport(format)
	if h.auditor != nil {
		h.auditor.Emit(ctx, audit.Event{
			Action:  audit.ActionDatasetExported,
			Subject: ex.Code,
			Format:  format,
			Rows:    len(table.Rows),
		})
	}

	httputil.Attachment(w, render.ContentType(format), fmt.Sprintf("%s.%s", ex.Code, format))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

// HandleCompare handles GET /compare?x=&y=.
func (h *Handler) HandleCompare(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q, err := parseCompare(r.URL.Query())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	result, err := h.service.Compare(ctx, q)
	if err != nil {
		h.fail(ctx, w, "indicator comparison failed", err, "x", q.X.Code, "y", q.Y.Code)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}

func (h *Handler) explore(w http.ResponseWriter, r *http.Request) (*indicator.Exploration, bool) {
	ctx := r.Context()
	start := time.Now()
	code := chi.URLParam(r, "code")

	q, err := parseQuery(code, h.filterValues(r))
	if err != nil {
		httputil.WriteError(w, err)
		return nil, false
	}

	ex, err := h.service.Explore(ctx, q)
	if err != nil {
		h.fail(ctx, w, "indicator exploration failed", err, "code", code)
		return nil, false
	}

	h.logger.InfoContext(ctx, "indicator explored",
		"request_id", requestcontext.RequestID(ctx),
		"code", code,
		"view", ex.View.Kind,
		"rows", len(ex.Records),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return ex, true
}

// fail logs and writes err. Client errors log at warn level.
func (h *Handler) fail(ctx context.Context, w http.ResponseWriter, msg string, err error, attrs ...any) {
	attrs = append(attrs, "request_id", requestcontext.RequestID(ctx), "error", err)
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		h.logger.ErrorContext(ctx, msg, attrs...)
	} else {
		h.logger.WarnContext(ctx, msg, attrs...)
	}
	httputil.WriteError(w, err)
}
