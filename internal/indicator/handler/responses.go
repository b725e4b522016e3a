package handler

import "healthdash/internal/indicator"

// ExploreResponse is the JSON body of GET /indicators/{code}.
type ExploreResponse struct {
	*indicator.Exploration
	Rows int `json:"rows"`
}
