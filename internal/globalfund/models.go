// Package globalfund builds the Global Fund dashboards: grant implementation
// periods per component and disbursement flows over time.
package globalfund

import (
	"fmt"
	"strings"
	"time"

	"healthdash/internal/render"
	dErrors "healthdash/pkg/domain-errors"
)

const (
	// FallbackRegion labels implementation periods without a country, such
	// as multi-country grants.
	FallbackRegion = "Non-regional IP"
	NotIndicated   = "Not indicated"
	// SankeyRoot is the source node of every disbursement flow.
	SankeyRoot = "Global Fund"

	MsgUnavailable = "Global Fund API cannot be loaded"
	MsgNoGrants    = "No implementation period matches the selected filters"
	MsgNoData      = "No disbursement found for the selected filters"
)

// ComponentOrder is the display order of grant components. Components not
// listed follow in alphabetical order.
var ComponentOrder = []string{"HIV", "Tuberculosis", "Malaria", "TB/HIV", "RSSH", "Multicomponent"}

// Grouping is the breakdown key of the grants dashboard and disbursement views.
type Grouping string

const (
	ByComponent Grouping = "component"
	ByPRType    Grouping = "pr_type"
	ByRegion    Grouping = "region"
	ByCountry   Grouping = "country"
)

// ParseGrouping accepts an empty value as the component breakdown.
func ParseGrouping(s string) (Grouping, error) {
	switch g := Grouping(strings.ToLower(strings.TrimSpace(s))); g {
	case "":
		return ByComponent, nil
	case ByComponent, ByPRType, ByRegion, ByCountry:
		return g, nil
	default:
		return "", dErrors.New(dErrors.CodeValidation, fmt.Sprintf("unknown breakdown %q", s))
	}
}

// Filters is the explicit multi-select state of a Global Fund dashboard. An
// empty selection means no filter.
type Filters struct {
	ActiveOnly bool
	Components []string
	PRTypes    []string
	Regions    []string
	Countries  []string
	FromYear   int
	ToYear     int
}

func (f *Filters) Normalize() error {
	if f.FromYear < 0 || f.ToYear < 0 {
		return dErrors.New(dErrors.CodeValidation, "year range must not be negative")
	}
	if f.FromYear != 0 && f.ToYear != 0 && f.FromYear > f.ToYear {
		return dErrors.New(dErrors.CodeValidation, "from year must not be after to year")
	}
	return nil
}

// Grant is an implementation period joined with its country labels.
type Grant struct {
	ImplementationPeriodID string    `json:"implementation_period_id"`
	GrantNumber            string    `json:"grant_number"`
	GrantID                string    `json:"grant_id"`
	Title                  string    `json:"title"`
	Component              string    `json:"component"`
	Status                 string    `json:"status"`
	Region                 string    `json:"region"`
	IncomeLevel            string    `json:"income_level"`
	Country                string    `json:"country"`
	CountryCode            string    `json:"country_code,omitempty"`
	PrincipalRecipient     string    `json:"principal_recipient"`
	PRType                 string    `json:"pr_type"`
	StartDate              time.Time `json:"start_date"`
	EndDate                time.Time `json:"end_date"`
	Currency               string    `json:"currency,omitempty"`
	Signed                 float64   `json:"signed"`
	Committed              float64   `json:"committed"`
	Disbursed              float64   `json:"disbursed"`
}

func (g Grant) key(by Grouping) string {
	switch by {
	case ByPRType:
		return g.PRType
	case ByRegion:
		return g.Region
	case ByCountry:
		return g.Country
	default:
		return g.Component
	}
}

// GroupMetrics are the headline numbers of one breakdown value.
type GroupMetrics struct {
	Key                   string  `json:"key"`
	Grants                int     `json:"grants"`
	ImplementationPeriods int     `json:"implementation_periods"`
	PrincipalRecipients   int     `json:"principal_recipients"`
	TotalCommitted        float64 `json:"total_committed"`
	TotalDisbursed        float64 `json:"total_disbursed"`
	// DisbursedRatio is disbursed over committed, 0 when nothing was committed.
	DisbursedRatio float64 `json:"disbursed_ratio"`
}

// Options are the values each multi-select offers. Each list is computed
// after the filters above it, so choices narrow as selections are made.
type Options struct {
	Components []string `json:"components"`
	PRTypes    []string `json:"pr_types"`
	Regions    []string `json:"regions"`
	Countries  []string `json:"countries"`
	Years      []int    `json:"years,omitempty"`
}

// GrantsResult is the grants dashboard.
type GrantsResult struct {
	By       Grouping       `json:"by"`
	Options  Options        `json:"options"`
	Groups   []GroupMetrics `json:"groups"`
	Grants   []Grant        `json:"grants"`
	Message  string         `json:"message,omitempty"`
	Warnings []string       `json:"warnings,omitempty"`
}

// Disbursement is one payment joined with its implementation period.
type Disbursement struct {
	ID                     string    `json:"id"`
	ImplementationPeriodID string    `json:"implementation_period_id"`
	GrantNumber            string    `json:"grant_number"`
	Date                   time.Time `json:"date"`
	Amount                 float64   `json:"amount"`
	Component              string    `json:"component"`
	PRType                 string    `json:"pr_type"`
	Region                 string    `json:"region"`
	Country                string    `json:"country"`
	CountryCode            string    `json:"country_code,omitempty"`
}

func (d Disbursement) key(by Grouping) string {
	switch by {
	case ByPRType:
		return d.PRType
	case ByRegion:
		return d.Region
	case ByCountry:
		return d.Country
	default:
		return d.Component
	}
}

// Summary are the headline numbers of the disbursement dashboard. An empty
// selection yields zero values, never an error.
type Summary struct {
	Count       int     `json:"count"`
	TotalAmount float64 `json:"total_amount"`
	FirstRecord string  `json:"first_record"`
	LastRecord  string  `json:"last_record"`
}

// DisbursementsResult is the disbursement dashboard.
type DisbursementsResult struct {
	Summary  Summary        `json:"summary"`
	Options  Options        `json:"options"`
	View     render.View    `json:"view"`
	Rows     []Disbursement `json:"-"`
	Warnings []string       `json:"warnings,omitempty"`
}

// Table is the export form of the filtered disbursements.
func (r *DisbursementsResult) Table() render.Table {
	t := render.Table{Columns: []string{"Date", "Amount", "Component", "PR type", "Region", "Country", "Grant", "Implementation period"}}
	for _, d := range r.Rows {
		t.Rows = append(t.Rows, []string{
			d.Date.Format(time.DateOnly),
			render.FormatFloat(d.Amount),
			d.Component,
			d.PRType,
			d.Region,
			d.Country,
			d.GrantNumber,
			d.ImplementationPeriodID,
		})
	}
	return t
}

// Node is a Sankey node. The same name may appear on several levels, for
// example a "Not indicated" component and a "Not indicated" country.
type Node struct {
	Name  string `json:"name"`
	Level int    `json:"level"`
}

// Flow is one weighted link between node indices.
type Flow struct {
	Source int     `json:"source"`
	Target int     `json:"target"`
	Value  float64 `json:"value"`
}

// Sankey is the disbursement flow Global Fund, component, region, country.
// Nodes are ordered by level, then name.
type Sankey struct {
	Nodes    []Node   `json:"nodes"`
	Links    []Flow   `json:"links"`
	Message  string   `json:"message,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}
