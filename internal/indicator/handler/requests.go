package handler

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"healthdash/internal/indicator"
	dErrors "healthdash/pkg/domain-errors"
	pstrings "healthdash/pkg/platform/strings"
)

// filterKeys are the query parameters that can be pinned in the session.
var filterKeys = []string{"dim1", "dim2", "country", "from", "to", "hue"}

// filterValues returns the request's filter parameters, or the session's
// pinned ones when the request sets none.
func (h *Handler) filterValues(r *http.Request) url.Values {
	values := r.URL.Query()
	if h.defaults == nil {
		return values
	}
	for _, k := range filterKeys {
		if values.Has(k) {
			return values
		}
	}
	pinned := h.defaults.Pinned(r.Context(), Dashboard)
	for _, k := range filterKeys {
		if v, ok := pinned[k]; ok {
			values[k] = v
		}
	}
	return values
}

// parseQuery builds an explore query from the path and filter parameters.
func parseQuery(code string, values url.Values) (indicator.Query, error) {
	q := indicator.Query{
		Code:      code,
		Name:      values.Get("name"),
		Dim1:      values.Get("dim1"),
		Dim2:      values.Get("dim2"),
		Countries: pstrings.ParseMulti(values["country"]),
	}

	hue, err := indicator.ParseHue(values.Get("hue"))
	if err != nil {
		return q, err
	}
	q.Hue = hue

	if q.FromYear, err = parseYear(values, "from"); err != nil {
		return q, err
	}
	if q.ToYear, err = parseYear(values, "to"); err != nil {
		return q, err
	}
	return q, nil
}

func parseCompare(values url.Values) (indicator.CompareQuery, error) {
	q := indicator.CompareQuery{
		X: indicator.Query{Code: values.Get("x"), Name: values.Get("x_name"), Dim1: values.Get("x_dim1"), Dim2: values.Get("x_dim2")},
		Y: indicator.Query{Code: values.Get("y"), Name: values.Get("y_name"), Dim1: values.Get("y_dim1"), Dim2: values.Get("y_dim2")},
	}
	hue, err := indicator.ParseHue(values.Get("hue"))
	if err != nil {
		return q, err
	}
	q.Hue = hue
	q.X.Hue, q.Y.Hue = hue, hue

	if q.Year, err = parseYear(values, "year"); err != nil {
		return q, err
	}
	return q, nil
}

func parseYear(values url.Values, key string) (int, error) {
	raw := strings.TrimSpace(values.Get(key))
	if raw == "" {
		return 0, nil
	}
	y, err := strconv.Atoi(raw)
	if err != nil || y < 0 || y > 9999 {
		return 0, dErrors.New(dErrors.CodeValidation, fmt.Sprintf("%s must be a year", key))
	}
	return y, nil
}

func formatParam(r *http.Request, allowed ...string) (string, error) {
	format := chi.URLParam(r, "format")
	for _, a := range allowed {
		if format == a {
			return format, nil
		}
	}
	return "", dErrors.New(dErrors.CodeValidation, fmt.Sprintf("format must be one of %s", strings.Join(allowed, ", ")))
}
