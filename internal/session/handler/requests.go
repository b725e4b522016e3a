package handler

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/go-playground/validator/v10"

	dErrors "healthdash/pkg/domain-errors"
)

// SaveFiltersRequest is the body of PUT /session/filters.
type SaveFiltersRequest struct {
	Dashboard string              `json:"dashboard" validate:"required,max=64"`
	Filters   map[string][]string `json:"filters" validate:"max=16,dive,keys,min=1,max=64,endkeys,max=64"`
	Pinned    bool                `json:"pinned"`
}

// Validate runs the struct rules and reports the first failing field.
func (r *SaveFiltersRequest) Validate(v *validator.Validate) error {
	r.Dashboard = strings.TrimSpace(r.Dashboard)
	if err := v.Struct(r); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("%s failed %s", strings.ToLower(fe.Field()), fe.Tag()))
		}
		return dErrors.Wrap(err, dErrors.CodeValidation, "invalid filters")
	}
	return nil
}

// Values returns the filters without empty entries.
func (r *SaveFiltersRequest) Values() url.Values {
	out := url.Values{}
	for k, vs := range r.Filters {
		for _, v := range vs {
			if v = strings.TrimSpace(v); v != "" {
				out.Add(k, v)
			}
		}
	}
	return out
}
