package handler

import "healthdash/internal/globalfund"

// DisbursementsResponse is the JSON body of GET /disbursements.
type DisbursementsResponse struct {
	*globalfund.DisbursementsResult
	Rows int `json:"rows"`
}
