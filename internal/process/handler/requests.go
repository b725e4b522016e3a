package handler

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"healthdash/internal/process"
	dErrors "healthdash/pkg/domain-errors"
	pstrings "healthdash/pkg/platform/strings"
)

func parseConfig(values url.Values) (process.Config, error) {
	cfg := process.Config{Step: strings.TrimSpace(values.Get("step"))}
	var err error
	if cfg.Steps, err = intParam(values, "steps"); err != nil {
		return cfg, err
	}
	if cfg.Runs, err = intParam(values, "runs"); err != nil {
		return cfg, err
	}
	if cfg.Seed, err = seedParam(values); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func parseClusterQuery(values url.Values) (process.ClusterQuery, error) {
	q := process.ClusterQuery{Columns: pstrings.ParseMulti(values["columns"])}
	var err error
	if q.K, err = intParam(values, "k"); err != nil {
		return q, err
	}
	if q.Seed, err = seedParam(values); err != nil {
		return q, err
	}
	return q, nil
}

func intParam(values url.Values, key string) (int, error) {
	raw := strings.TrimSpace(values.Get(key))
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, dErrors.New(dErrors.CodeValidation, fmt.Sprintf("%s must be an integer", key))
	}
	return n, nil
}

func seedParam(values url.Values) (uint64, error) {
	raw := strings.TrimSpace(values.Get("seed"))
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, dErrors.New(dErrors.CodeValidation, "seed must be a non-negative integer")
	}
	return n, nil
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
