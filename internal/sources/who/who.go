// Package who is the typed client for the WHO Global Health Observatory OData API.
package who

import (
	"context"
	"errors"
	"net/url"
	"strings"

	"healthdash/internal/sources/odata"
	"healthdash/internal/upstream"
)

// SpatialDimCountry marks observations reported for a single country.
const SpatialDimCountry = "COUNTRY"

// Country is a row of DIMENSION/COUNTRY/DimensionValues.
type Country struct {
	Code  string `json:"Code"`
	Title string `json:"Title"`
}

func (c *Country) Validate() error {
	if c.Code == "" {
		return errors.New("Code is required")
	}
	return nil
}

// Indicator is a row of the Indicator collection.
type Indicator struct {
	IndicatorCode string `json:"IndicatorCode"`
	IndicatorName string `json:"IndicatorName"`
	Language      string `json:"Language,omitempty"`
}

func (i *Indicator) Validate() error {
	if i.IndicatorCode == "" {
		return errors.New("IndicatorCode is required")
	}
	return nil
}

// Observation is one data point of an indicator.
type Observation struct {
	IndicatorCode  string   `json:"IndicatorCode"`
	SpatialDimType string   `json:"SpatialDimType"`
	SpatialDim     string   `json:"SpatialDim"`
	TimeDimType    string   `json:"TimeDimType"`
	TimeDim        *int     `json:"TimeDim"`
	Dim1           string   `json:"Dim1"`
	Dim2           string   `json:"Dim2"`
	Dim3           string   `json:"Dim3"`
	Value          string   `json:"Value"`
	NumericValue   *float64 `json:"NumericValue"`
	Low            *float64 `json:"Low"`
	High           *float64 `json:"High"`
	ParentLocation string   `json:"ParentLocation"`
	ParentTitle    string   `json:"ParentTitle"`
}

func (o *Observation) Validate() error {
	if o.SpatialDimType == "" {
		return errors.New("SpatialDimType is required")
	}
	return nil
}

// CountryCode implements the join key for reference lookups.
func (o Observation) CountryCode() string { return o.SpatialDim }

// Parent returns the WHO parent location, whichever field the API filled.
func (o Observation) Parent() string {
	if o.ParentLocation != "" {
		return o.ParentLocation
	}
	return o.ParentTitle
}

// Client fetches WHO collections through a (memoized) Fetcher.
type Client struct {
	baseURL string
	fetcher upstream.Fetcher
}

func NewClient(baseURL string, fetcher upstream.Fetcher) *Client {
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), fetcher: fetcher}
}

func (c *Client) BaseURL() string { return c.baseURL }

// CountriesURL is the WHO country dimension listing.
func CountriesURL(base string) string {
	return base + "/DIMENSION/COUNTRY/DimensionValues"
}

// IndicatorsURL lists every indicator when keyword is empty, otherwise those
// whose name contains keyword.
func IndicatorsURL(base, keyword string) string {
	if keyword == "" {
		return base + "/Indicator"
	}
	filter := "contains(IndicatorName," + odata.QuoteString(keyword) + ")"
	return base + "/Indicator?$filter=" + url.QueryEscape(filter)
}

// ObservationsURL is the data collection of one indicator.
func ObservationsURL(base, code string) string {
	return base + "/" + url.PathEscape(code)
}

func (c *Client) Countries(ctx context.Context) ([]Country, error) {
	return odata.Collect[Country](ctx, c.fetcher, CountriesURL(c.baseURL))
}

func (c *Client) Indicators(ctx context.Context, keyword string) ([]Indicator, error) {
	return odata.Collect[Indicator](ctx, c.fetcher, IndicatorsURL(c.baseURL, keyword))
}

func (c *Client) Observations(ctx context.Context, code string) ([]Observation, error) {
	return odata.Collect[Observation](ctx, c.fetcher, ObservationsURL(c.baseURL, code))
}
