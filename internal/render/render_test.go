package render

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"healthdash/internal/dataset"
)

var sample = []dataset.Series{
	{Name: "Europe", Points: []dataset.Point{{X: "2019", Y: 1.5}, {X: "2020", Y: 2}}},
	{Name: "South Asia", Points: []dataset.Point{{X: "2019", Y: 4}, {X: "2020", Y: 6.25}}},
}

func TestChartViewFallsBackToMessage(t *testing.T) {
	v := ChartView("Deaths", Line, []dataset.Series{{Name: "Europe"}}, "No data found")

	assert.Equal(t, KindMessage, v.Kind)
	assert.Equal(t, "No data found", v.Message)
	assert.True(t, v.Empty())
}

func TestTableViewFallsBackToMessage(t *testing.T) {
	v := TableView("Grants", Table{Columns: []string{"a"}}, "No grants")
	assert.Equal(t, KindMessage, v.Kind)

	v = TableView("Grants", Table{Columns: []string{"a"}, Rows: [][]string{{"1"}}}, "No grants")
	assert.Equal(t, KindTable, v.Kind)
	assert.False(t, v.Empty())
}

func TestCSVRoundTrip(t *testing.T) {
	in := SeriesTable("region", "year", "value", sample)
	in.Rows = append(in.Rows, []string{"Côte d'Ivoire, \"west\"", "2021", "0.1"})

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, in))

	out, err := ReadCSV(&buf)
	require.NoError(t, err)
	assert.Equal(t, in.Columns, out.Columns)
	require.Len(t, out.Rows, len(in.Rows))
	assert.Equal(t, in.Rows, out.Rows)
}

func TestReadCSVRejectsEmpty(t *testing.T) {
	_, err := ReadCSV(bytes.NewReader(nil))
	assert.Error(t, err)
}

func TestWriteXLSX(t *testing.T) {
	in := SeriesTable("region", "year", "value", sample)

	var buf bytes.Buffer
	require.NoError(t, WriteXLSX(&buf, "Indicator", in))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows("Indicator")
	require.NoError(t, err)
	require.Len(t, rows, len(in.Rows)+1)
	assert.Equal(t, in.Columns, rows[0])
	assert.Equal(t, []string{"South Asia", "2020", "6.25"}, rows[4])
}

func TestChart(t *testing.T) {
	cases := []struct {
		name   string
		view   View
		format string
	}{
		{"line png", ChartView("Trend", Line, sample, ""), FormatPNG},
		{"bar svg", ChartView("By region", Bar, sample, ""), FormatSVG},
		{"scatter with nominal axis", ChartView("Strip", Scatter, []dataset.Series{
			{Name: "2019", Points: []dataset.Point{{X: "Europe", Y: 1}, {X: "Africa", Y: 3}}},
		}, ""), FormatPNG},
		{"message", Message("Deaths", "No data found"), FormatSVG},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			b, err := Chart(tc.view, tc.format)
			require.NoError(t, err)
			if tc.format == FormatPNG {
				assert.True(t, bytes.HasPrefix(b, []byte("\x89PNG")))
			} else {
				assert.Contains(t, string(b), "<svg")
			}
		})
	}
}

func TestChartRejectsUnknownFormat(t *testing.T) {
	_, err := Chart(ChartView("Trend", Line, sample, ""), "gif")
	assert.Error(t, err)
}

func TestContentType(t *testing.T) {
	assert.Equal(t, "image/png", ContentType(FormatPNG))
	assert.Equal(t, "text/csv; charset=utf-8", ContentType(FormatCSV))
	assert.Equal(t, "application/octet-stream", ContentType("bin"))
}
