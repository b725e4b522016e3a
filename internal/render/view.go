// Package render turns reshaped data into the views the dashboards return:
// JSON chart and table payloads, PNG/SVG charts and CSV/XLSX downloads.
package render

import (
	"healthdash/internal/dataset"
)

// Kind is what a view shows.
type Kind string

const (
	KindChart   Kind = "chart"
	KindTable   Kind = "table"
	KindMessage Kind = "message"
)

// ChartType selects the drawing for a chart view.
type ChartType string

const (
	Line    ChartType = "line"
	Bar     ChartType = "bar"
	Scatter ChartType = "scatter"
)

// View is the presentation payload of one dashboard panel.
type View struct {
	Kind     Kind             `json:"kind"`
	Title    string           `json:"title,omitempty"`
	Chart    ChartType        `json:"chart,omitempty"`
	XLabel   string           `json:"x_label,omitempty"`
	YLabel   string           `json:"y_label,omitempty"`
	Message  string           `json:"message,omitempty"`
	Warnings []string         `json:"warnings,omitempty"`
	Series   []dataset.Series `json:"series,omitempty"`
	Table    *Table           `json:"table,omitempty"`
}

// Message builds an informational view. Empty results and undrawable
// selections end up here instead of failing the request.
func Message(title, msg string, warnings ...string) View {
	return View{Kind: KindMessage, Title: title, Message: msg, Warnings: warnings}
}

// ChartView builds a chart view, falling back to a message view carrying
// emptyMsg when no series has a point.
func ChartView(title string, typ ChartType, series []dataset.Series, emptyMsg string) View {
	if !hasPoints(series) {
		return Message(title, emptyMsg)
	}
	return View{Kind: KindChart, Title: title, Chart: typ, Series: series}
}

// TableView builds a table view, falling back to a message view carrying
// emptyMsg when the table has no rows.
func TableView(title string, t Table, emptyMsg string) View {
	if len(t.Rows) == 0 {
		return Message(title, emptyMsg)
	}
	return View{Kind: KindTable, Title: title, Table: &t}
}

// WithWarnings appends upstream warnings to the view.
func (v View) WithWarnings(w ...string) View {
	v.Warnings = append(v.Warnings, w...)
	return v
}

// Empty reports whether the view has nothing to draw.
func (v View) Empty() bool {
	switch v.Kind {
	case KindChart:
		return !hasPoints(v.Series)
	case KindTable:
		return v.Table == nil || len(v.Table.Rows) == 0
	default:
		return true
	}
}

func hasPoints(series []dataset.Series) bool {
	for _, s := range series {
		if len(s.Points) > 0 {
			return true
		}
	}
	return false
}

// Tabular is anything exportable as a header plus string records.
type Tabular interface {
	Header() []string
	Records() [][]string
}

// Table is a plain rectangular table.
type Table struct {
	Columns []string   `json:"columns"`
	Rows    [][]string `json:"rows"`
}

func (t Table) Header() []string    { return t.Columns }
func (t Table) Records() [][]string { return t.Rows }

// SeriesTable flattens series into long form: one row per point.
func SeriesTable(seriesCol, xCol, yCol string, series []dataset.Series) Table {
	t := Table{Columns: []string{seriesCol, xCol, yCol}}
	for _, s := range series {
		for _, p := range s.Points {
			t.Rows = append(t.Rows, []string{s.Name, p.X, FormatFloat(p.Y)})
		}
	}
	return t
}
