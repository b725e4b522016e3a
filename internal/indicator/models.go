// Package indicator is the WHO indicator explorer: keyword search over the
// GHO catalogue and per-indicator exploration joined with country labels.
package indicator

import (
	"fmt"
	"strings"

	"healthdash/internal/dataset"
	"healthdash/internal/reference"
	"healthdash/internal/render"
	dErrors "healthdash/pkg/domain-errors"
)

// User-facing messages.
const (
	MsgNoIndicator = "No indicator found, try another keyword (e.g. 'HIV')"
	MsgNotDated    = "This indicator is not dated, please select another"
	MsgNoData      = "No data found, please enter a new keyword or select another metric"
	MsgUnavailable = "WHO API data cannot be loaded"
)

const (
	maxKeywordLen = 100
	maxCodeLen    = 64
)

// Hue is the grouping a chart colours its series by.
type Hue string

const (
	HueRegion  Hue = "Region"
	HueIncome  Hue = "Income level"
	HueCountry Hue = "Country"
)

// ParseHue accepts the display name or a short alias. Empty means Region.
func ParseHue(s string) (Hue, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "region":
		return HueRegion, nil
	case "income", "income level", "income_level":
		return HueIncome, nil
	case "country":
		return HueCountry, nil
	default:
		return "", dErrors.New(dErrors.CodeValidation, fmt.Sprintf("hue must be one of region, income, country: got %q", s))
	}
}

// Agg is how values of one year and hue are combined: totals for regional
// groupings, averages per country.
func (h Hue) Agg() dataset.Agg {
	if h == HueCountry {
		return dataset.Mean
	}
	return dataset.Sum
}

// Of returns the hue label of a reference country.
func (h Hue) Of(c reference.Country) string {
	switch h {
	case HueIncome:
		return c.IncomeLevel
	case HueCountry:
		return c.Name
	default:
		return c.Region
	}
}

// Topic is a shortcut to a keyword search.
type Topic struct {
	Name    string `json:"name"`
	Keyword string `json:"keyword"`
}

// Topics are the preset searches offered next to the keyword box.
var Topics = []Topic{
	{Name: "Tuberculosis", Keyword: "tuberculosis"},
	{Name: "Malaria", Keyword: "malaria"},
	{Name: "HIV", Keyword: "HIV"},
}

// Query is the explicit selection behind an exploration. Every field a
// view reads is set here and checked by Normalize before any branch runs.
type Query struct {
	Code      string
	Name      string
	Dim1      string
	Dim2      string
	Countries []string
	FromYear  int
	ToYear    int
	Hue       Hue
}

// Normalize trims and validates the query and fills defaults.
func (q *Query) Normalize() error {
	q.Code = strings.TrimSpace(q.Code)
	if q.Code == "" {
		return dErrors.New(dErrors.CodeValidation, "indicator code is required")
	}
	if len(q.Code) > maxCodeLen {
		return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("indicator code must be at most %d characters", maxCodeLen))
	}
	q.Name = strings.TrimSpace(q.Name)
	q.Dim1 = strings.TrimSpace(q.Dim1)
	q.Dim2 = strings.TrimSpace(q.Dim2)
	if q.Hue == "" {
		q.Hue = HueRegion
	}
	if q.FromYear < 0 || q.ToYear < 0 {
		return dErrors.New(dErrors.CodeValidation, "year range must not be negative")
	}
	if q.FromYear != 0 && q.ToYear != 0 && q.FromYear > q.ToYear {
		return dErrors.New(dErrors.CodeValidation, "from year must not be after to year")
	}
	return nil
}

// Record is one joined observation as shown and exported.
type Record struct {
	Country     string   `json:"country"`
	Code        string   `json:"code"`
	Region      string   `json:"region"`
	IncomeLevel string   `json:"income_level"`
	Dim1        string   `json:"dim1,omitempty"`
	Dim2        string   `json:"dim2,omitempty"`
	Year        *int     `json:"year"`
	Category    string   `json:"category,omitempty"`
	Value       *float64 `json:"value"`
}

func (r Record) CountryCode() string { return r.Code }

// Dimension is a selectable observation dimension. Selected is empty when
// the dimension has a single value and needs no choice.
type Dimension struct {
	Name     string   `json:"name"`
	Options  []string `json:"options"`
	Selected string   `json:"selected,omitempty"`
}

// SearchResult lists the indicators matching a keyword.
type SearchResult struct {
	Keyword    string      `json:"keyword"`
	Indicators []Indicator `json:"indicators"`
	Message    string      `json:"message,omitempty"`
	Warnings   []string    `json:"warnings,omitempty"`
}

// Indicator is a catalogue entry.
type Indicator struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

// Exploration is the result of exploring one indicator.
type Exploration struct {
	Code        string      `json:"code"`
	Hue         Hue         `json:"hue"`
	Categorical bool        `json:"categorical"`
	Dimensions  []Dimension `json:"dimensions,omitempty"`
	Countries   []string    `json:"countries,omitempty"`
	FirstYear   int         `json:"first_year,omitempty"`
	LastYear    int         `json:"last_year,omitempty"`
	View        render.View `json:"view"`
	Records     []Record    `json:"-"`
}

// Table is the export form of the filtered records.
func (e *Exploration) Table() render.Table {
	t := render.Table{Columns: []string{"Country", "Code", "Region", "Income level", "Dim1", "Dim2", "Year", "Category", "Value"}}
	for _, r := range e.Records {
		year, value := "", ""
		if r.Year != nil {
			year = fmt.Sprint(*r.Year)
		}
		if r.Value != nil {
			value = render.FormatFloat(*r.Value)
		}
		t.Rows = append(t.Rows, []string{r.Country, r.Code, r.Region, r.IncomeLevel, r.Dim1, r.Dim2, year, r.Category, value})
	}
	return t
}

// CompareQuery selects two indicators plotted against each other for one year.
type CompareQuery struct {
	X    Query
	Y    Query
	Year int
	Hue  Hue
}

func (q *CompareQuery) Normalize() error {
	if err := q.X.Normalize(); err != nil {
		return err
	}
	if err := q.Y.Normalize(); err != nil {
		return err
	}
	if q.Hue == "" {
		q.Hue = HueRegion
	}
	if q.Year < 0 {
		return dErrors.New(dErrors.CodeValidation, "year must not be negative")
	}
	return nil
}
