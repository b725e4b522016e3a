package handler

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"healthdash/internal/globalfund"
	dErrors "healthdash/pkg/domain-errors"
	pstrings "healthdash/pkg/platform/strings"
)

// filterKeys are the query parameters that can be pinned in the session.
var filterKeys = []string{"component", "pr_type", "region", "country", "from", "to", "active", "by"}

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

func parseFilters(values url.Values) (globalfund.Filters, globalfund.Grouping, error) {
	f := globalfund.Filters{
		Components: pstrings.ParseMulti(values["component"]),
		PRTypes:    pstrings.ParseMulti(values["pr_type"]),
		Regions:    pstrings.ParseMulti(values["region"]),
		Countries:  pstrings.ParseMulti(values["country"]),
	}
	by, err := globalfund.ParseGrouping(values.Get("by"))
	if err != nil {
		return f, "", err
	}
	if raw := values.Get("active"); raw != "" {
		if f.ActiveOnly, err = strconv.ParseBool(raw); err != nil {
			return f, "", dErrors.New(dErrors.CodeValidation, "active must be a boolean")
		}
	}
	if f.FromYear, err = parseYear(values, "from"); err != nil {
		return f, "", err
	}
	if f.ToYear, err = parseYear(values, "to"); err != nil {
		return f, "", err
	}
	return f, by, nil
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
