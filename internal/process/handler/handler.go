package handler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"

	"github.com/go-chi/chi/v5"

	"healthdash/internal/audit"
	"healthdash/internal/process"
	"healthdash/internal/process/metrics"
	"healthdash/internal/render"
	dErrors "healthdash/pkg/domain-errors"
	"healthdash/pkg/platform/httputil"
	"healthdash/pkg/requestcontext"
)

// MaxUpload bounds the size of an uploaded clustering dataset.
const MaxUpload = 5 << 20

// Service defines the interface for process dashboard operations.
type Service interface {
	Analyze(ctx context.Context, cfg process.Config) (*process.Analysis, error)
	Cluster(ctx context.Context, t render.Table, q process.ClusterQuery) (*process.Clustering, error)
}

// Auditor records dataset downloads.
type Auditor interface {
	Emit(ctx context.Context, e audit.Event)
}

type Handler struct {
	service Service
	auditor Auditor
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func New(service Service, auditor Auditor, logger *slog.Logger, metrics *metrics.Metrics) *Handler {
	return &Handler{
		service: service,
		auditor: auditor,
		logger:  logger,
		metrics: metrics,
	}
}

// Limits wraps the download and upload routes. Nil fields leave them open.
type Limits struct {
	Download func(http.Handler) http.Handler
	Upload   func(http.Handler) http.Handler
}

// Register mounts the process endpoints on the router.
func (h *Handler) Register(r chi.Router, limits Limits) {
	r.Get("/analysis", h.HandleAnalysis)
	r.With(optional(limits.Download)...).Get("/analysis/chart.{format}", h.HandleChart)
	r.With(optional(limits.Download)...).Get("/analysis/export.{format}", h.HandleExport)
	r.With(optional(limits.Upload)...).Post("/clusters", h.HandleClusters)
}

func optional(mw func(http.Handler) http.Handler) []func(http.Handler) http.Handler {
	if mw == nil {
		return nil
	}
	return []func(http.Handler) http.Handler{mw}
}

// HandleAnalysis handles GET /analysis.
func (h *Handler) HandleAnalysis(w http.ResponseWriter, r *http.Request) {
	a, ok := h.analyze(w, r)
	if !ok {
		return
	}
	httputil.WriteJSON(w, http.StatusOK, a)
}

// HandleChart handles GET /analysis/chart.{png,svg}?view=outliers|schedule.
func (h *Handler) HandleChart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	format, err := formatParam(r, render.FormatPNG, render.FormatSVG)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	view := r.URL.Query().Get("view")
	if view != "" && view != "outliers" && view != "schedule" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "view must be outliers or schedule"))
		return
	}
	a, ok := h.analyze(w, r)
	if !ok {
		return
	}

	v := a.Schedule
	if view == "outliers" {
		v = a.Outliers
	}
	img, err := render.Chart(v, format)
	if err != nil {
		h.fail(ctx, w, "chart rendering failed", err)
		return
	}
	w.Header().Set("Content-Type", render.ContentType(format))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(img)
}

// HandleExport handles GET /analysis/export.{csv,xlsx}.
func (h *Handler) HandleExport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	format, err := formatParam(r, render.FormatCSV, render.FormatXLSX)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	a, ok := h.analyze(w, r)
	if !ok {
		return
	}

	table := a.Table()
	var buf bytes.Buffer
	if format == render.FormatCSV {
		err = render.WriteCSV(&buf, table)
	} else {
		err = render.WriteXLSX(&buf, "Process", table)
	}
	if err != nil {
		h.fail(ctx, w, "export failed", err, "format", format)
		return
	}

	if h.auditor != nil {
		h.auditor.Emit(ctx, audit.Event{
			Action:  audit.ActionDatasetExported,
			Subject: "process_analysis",
			Format:  format,
			Rows:    len(table.Rows),
		})
	}
	httputil.Attachment(w, render.ContentType(format), "process."+format)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

// HandleClusters handles POST /clusters with a CSV body or a multipart
// "file" field.
func (h *Handler) HandleClusters(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q, err := parseClusterQuery(r.URL.Query())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, MaxUpload)
	table, err := readUpload(r)
	if err != nil {
		h.metrics.IncUpload("rejected")
		h.fail(ctx, w, "dataset upload rejected", err)
		return
	}
	h.metrics.IncUpload("accepted")

	c, err := h.service.Cluster(ctx, table, q)
	if err != nil {
		h.fail(ctx, w, "clustering failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, c)
}

func (h *Handler) analyze(w http.ResponseWriter, r *http.Request) (*process.Analysis, bool) {
	ctx := r.Context()
	cfg, err := parseConfig(r.URL.Query())
	if err != nil {
		httputil.WriteError(w, err)
		return nil, false
	}
	a, err := h.service.Analyze(ctx, cfg)
	if err != nil {
		h.fail(ctx, w, "process analysis failed", err)
		return nil, false
	}
	return a, true
}

// readUpload decodes the CSV of a text/csv body or of a multipart file field.
func readUpload(r *http.Request) (render.Table, error) {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		return render.Table{}, dErrors.New(dErrors.CodeUnsupported, "content type must be text/csv or multipart/form-data")
	}

	var body io.Reader
	switch mediaType {
	case "text/csv", "text/plain", "application/csv":
		body = r.Body
	case "multipart/form-data":
		file, _, err := r.FormFile("file")
		if err != nil {
			return render.Table{}, uploadError(err, "multipart form must carry a file field")
		}
		defer file.Close()
		body = file
	default:
		return render.Table{}, dErrors.New(dErrors.CodeUnsupported, fmt.Sprintf("unsupported content type %q", mediaType))
	}

	t, err := render.ReadCSV(body)
	if err != nil {
		return render.Table{}, uploadError(err, "dataset is not a valid CSV file")
	}
	return t, nil
}

func uploadError(err error, msg string) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return dErrors.Wrap(err, dErrors.CodeBadRequest, fmt.Sprintf("dataset exceeds %d bytes", MaxUpload))
	}
	return dErrors.Wrap(err, dErrors.CodeValidation, msg)
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
