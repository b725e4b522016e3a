package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"healthdash/internal/dataset"
	"healthdash/internal/reference"
	"healthdash/pkg/platform/httputil"
	pstrings "healthdash/pkg/platform/strings"
	"healthdash/pkg/requestcontext"
)

// Loader provides the reference table.
type Loader interface {
	Load(ctx context.Context) (reference.Table, error)
	Invalidate(ctx context.Context)
}

type Handler struct {
	loader Loader
	logger *slog.Logger
}

func New(loader Loader, logger *slog.Logger) *Handler {
	return &Handler{loader: loader, logger: logger}
}

// Register mounts the reference endpoints on the router. refresh wraps the
// reload endpoint, typically with a rate limit.
func (h *Handler) Register(r chi.Router, refresh ...func(http.Handler) http.Handler) {
	r.Get("/countries", h.HandleCountries)
	r.With(refresh...).Post("/refresh", h.HandleRefresh)
}

// CountriesResponse is the reference table with its filter options.
type CountriesResponse struct {
	Countries    []reference.Country `json:"countries"`
	Regions      []string            `json:"regions"`
	IncomeLevels []string            `json:"income_levels"`
	Warnings     []string            `json:"warnings,omitempty"`
}

// HandleCountries handles GET /reference/countries?region=&income=.
func (h *Handler) HandleCountries(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	table, err := h.loader.Load(ctx)
	if err != nil {
		h.logger.WarnContext(ctx, "reference load aborted",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
	}

	q := r.URL.Query()
	all := table.Countries()
	rows := dataset.Filter(all,
		dataset.In(pstrings.ParseMulti(q["region"]), func(c reference.Country) string { return c.Region }),
		dataset.In(pstrings.ParseMulti(q["income"]), func(c reference.Country) string { return c.IncomeLevel }),
	)
	httputil.WriteJSON(w, http.StatusOK, CountriesResponse{
		Countries:    rows,
		Regions:      dataset.Distinct(all, func(c reference.Country) string { return c.Region }),
		IncomeLevels: dataset.Distinct(all, func(c reference.Country) string { return c.IncomeLevel }),
		Warnings:     table.Warnings,
	})
}

// HandleRefresh handles POST /reference/refresh: the next read rebuilds the
// table from the sources.
func (h *Handler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	h.loader.Invalidate(ctx)
	h.logger.InfoContext(ctx, "reference table invalidated", "request_id", requestcontext.RequestID(ctx))
	w.WriteHeader(http.StatusNoContent)
}
