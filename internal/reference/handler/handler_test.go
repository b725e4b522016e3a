package handler_test

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"healthdash/internal/reference"
	"healthdash/internal/reference/handler"
	"healthdash/pkg/testutil"
)

type stubLoader struct {
	table       reference.Table
	invalidated int
}

func (l *stubLoader) Load(context.Context) (reference.Table, error) { return l.table, nil }
func (l *stubLoader) Invalidate(context.Context)                    { l.invalidated++ }

func setup(l *stubLoader) http.Handler {
	r := chi.NewRouter()
	r.Route("/reference", func(r chi.Router) {
		handler.New(l, slog.New(slog.NewTextHandler(io.Discard, nil))).Register(r)
	})
	return r
}

func TestCountries(t *testing.T) {
	l := &stubLoader{table: reference.NewTable([]reference.Country{
		{Code: "KEN", Name: "Kenya", Region: "Sub-Saharan Africa", IncomeLevel: "Lower middle income country"},
		{Code: "AFG", Name: "Afghanistan", Region: "South Asia", IncomeLevel: "Low income country"},
		{Code: "NGA", Name: "Nigeria", Region: "Sub-Saharan Africa", IncomeLevel: "Lower middle income country"},
	})}

	t.Run("all", func(t *testing.T) {
		rr := testutil.DoRequest(setup(l), httptest.NewRequest(http.MethodGet, "/reference/countries", nil))
		require.Equal(t, http.StatusOK, rr.Code)

		resp := testutil.UnmarshalResponse[handler.CountriesResponse](t, rr)
		require.Len(t, resp.Countries, 3)
		assert.Equal(t, "AFG", resp.Countries[0].Code)
		assert.Equal(t, []string{"South Asia", "Sub-Saharan Africa"}, resp.Regions)
		assert.Equal(t, []string{"Low income country", "Lower middle income country"}, resp.IncomeLevels)
	})

	t.Run("filtered by region", func(t *testing.T) {
		rr := testutil.DoRequest(setup(l), httptest.NewRequest(http.MethodGet, "/reference/countries?region=Sub-Saharan+Africa", nil))
		resp := testutil.UnmarshalResponse[handler.CountriesResponse](t, rr)
		require.Len(t, resp.Countries, 2)
		assert.Len(t, resp.Regions, 2, "options are not narrowed by the filter")
	})

	t.Run("unavailable sources", func(t *testing.T) {
		empty := &stubLoader{table: reference.NewTable(nil, reference.WarningUnavailable)}
		rr := testutil.DoRequest(setup(empty), httptest.NewRequest(http.MethodGet, "/reference/countries", nil))
		require.Equal(t, http.StatusOK, rr.Code)
		resp := testutil.UnmarshalResponse[handler.CountriesResponse](t, rr)
		assert.Empty(t, resp.Countries)
		assert.Equal(t, []string{reference.WarningUnavailable}, resp.Warnings)
	})
}

func TestRefresh(t *testing.T) {
	l := &stubLoader{table: reference.NewTable(nil)}
	rr := testutil.DoRequest(setup(l), httptest.NewRequest(http.MethodPost, "/reference/refresh", nil))
	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Equal(t, 1, l.invalidated)
}
