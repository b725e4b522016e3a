// Package worldbank is the typed client for the World Bank country API.
package worldbank

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"healthdash/internal/upstream"
)

const (
	perPage  = 400
	maxPages = 20

	// aggregateRegion is the region id the API gives to aggregates such as "World".
	aggregateRegion = "NA"
)

var incomeLabels = map[string]string{
	"LIC": "Low income country",
	"HIC": "High income country",
	"LMC": "Lower middle income country",
	"UMC": "Upper middle income country",
	"INX": "Upper middle income country",
}

var regionLabels = map[string]string{
	"LCN": "Latin America & the Caribbean",
	"SAS": "South Asia",
	"SSF": "Sub-Saharan Africa",
	"ECS": "Europe and Central Asia",
	"MEA": "Middle East and North Africa",
	"EAS": "East Asia and Pacific",
	"NAC": "North America",
}

// Ref is an {id, value} pair such as a region or income level.
type Ref struct {
	ID    string `json:"id"`
	Value string `json:"value"`
}

// Economy is one entry of /v2/country.
type Economy struct {
	ID          string `json:"id"`
	ISO2Code    string `json:"iso2Code"`
	Name        string `json:"name"`
	Region      Ref    `json:"region"`
	IncomeLevel Ref    `json:"incomeLevel"`
	CapitalCity string `json:"capitalCity"`
}

// Aggregate reports whether the entry is a regional or income aggregate
// rather than a country.
func (e Economy) Aggregate() bool {
	return strings.TrimSpace(e.Region.ID) == aggregateRegion
}

// RegionLabel maps the region code to its display label; unknown codes map to "".
func (e Economy) RegionLabel() string { return regionLabels[strings.TrimSpace(e.Region.ID)] }

// IncomeLabel maps the income level code to its display label; unknown codes map to "".
func (e Economy) IncomeLabel() string { return incomeLabels[strings.TrimSpace(e.IncomeLevel.ID)] }

type pageInfo struct {
	Page  json.Number `json:"page"`
	Pages json.Number `json:"pages"`
}

type apiMessage struct {
	Message []struct {
		ID    string `json:"id"`
		Value string `json:"value"`
	} `json:"message"`
}

// Client fetches World Bank economies through a (memoized) Fetcher.
type Client struct {
	baseURL string
	fetcher upstream.Fetcher
}

func NewClient(baseURL string, fetcher upstream.Fetcher) *Client {
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), fetcher: fetcher}
}

func (c *Client) BaseURL() string { return c.baseURL }

// CountriesURLs lists every page URL Economies may request, for cache invalidation.
func CountriesURLs(base string) []string {
	urls := make([]string, 0, maxPages)
	for page := 1; page <= maxPages; page++ {
		urls = append(urls, CountriesURL(strings.TrimRight(base, "/"), page))
	}
	return urls
}

// CountriesURL is one page of the economy listing.
func CountriesURL(base string, page int) string {
	q := url.Values{}
	q.Set("format", "json")
	q.Set("per_page", strconv.Itoa(perPage))
	q.Set("page", strconv.Itoa(page))
	return base + "/v2/country?" + q.Encode()
}

// Economies returns every entry including aggregates; callers filter with Aggregate.
func (c *Client) Economies(ctx context.Context) ([]Economy, error) {
	var all []Economy
	for page := 1; ; page++ {
		u := CountriesURL(c.baseURL, page)
		body, err := c.fetcher.Get(ctx, u)
		if err != nil {
			return nil, err
		}
		rows, pages, err := decodePage(body)
		if err != nil {
			return nil, upstream.BadData(hostOf(u), u, err)
		}
		all = append(all, rows...)
		if page >= pages || page >= maxPages {
			return all, nil
		}
	}
}

// decodePage parses the [meta, rows] pair the API answers with.
func decodePage(body []byte) ([]Economy, int, error) {
	var parts []json.RawMessage
	if err := json.Unmarshal(body, &parts); err != nil {
		return nil, 0, err
	}
	if len(parts) == 1 {
		var msg apiMessage
		if err := json.Unmarshal(parts[0], &msg); err == nil && len(msg.Message) > 0 {
			return nil, 0, fmt.Errorf("api error %s: %s", msg.Message[0].ID, msg.Message[0].Value)
		}
	}
	if len(parts) != 2 {
		return nil, 0, fmt.Errorf("expected [meta, rows], got %d elements", len(parts))
	}

	var meta pageInfo
	if err := json.Unmarshal(parts[0], &meta); err != nil {
		return nil, 0, fmt.Errorf("meta: %w", err)
	}
	pages, err := meta.Pages.Int64()
	if err != nil {
		pages = 1
	}

	var rows []Economy
	if err := json.Unmarshal(parts[1], &rows); err != nil {
		return nil, 0, fmt.Errorf("rows: %w", err)
	}
	for i, r := range rows {
		if r.ID == "" {
			return nil, 0, fmt.Errorf("row %d: %w", i, errors.New("id is required"))
		}
	}
	return rows, int(pages), nil
}

func hostOf(rawURL string) string {
	if u, err := url.Parse(rawURL); err == nil {
		return u.Host
	}
	return ""
}
