package render

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"strconv"

	"github.com/xuri/excelize/v2"
)

// Export formats.
const (
	FormatCSV  = "csv"
	FormatXLSX = "xlsx"
	FormatPNG  = "png"
	FormatSVG  = "svg"
)

// ContentType returns the media type of a chart or export format.
func ContentType(format string) string {
	switch format {
	case FormatCSV:
		return "text/csv; charset=utf-8"
	case FormatXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case FormatPNG:
		return "image/png"
	case FormatSVG:
		return "image/svg+xml"
	default:
		return "application/octet-stream"
	}
}

// FormatFloat renders a value without exponent noise.
func FormatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// WriteCSV writes t as comma-separated UTF-8 with a header row.
func WriteCSV(w io.Writer, t Tabular) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Header()); err != nil {
		return fmt.Errorf("writing csv header: %w", err)
	}
	if err := cw.WriteAll(t.Records()); err != nil {
		return fmt.Errorf("writing csv records: %w", err)
	}
	return nil
}

// ReadCSV parses a CSV document with a header row.
func ReadCSV(r io.Reader) (Table, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	all, err := cr.ReadAll()
	if err != nil {
		return Table{}, fmt.Errorf("reading csv: %w", err)
	}
	if len(all) == 0 {
		return Table{}, fmt.Errorf("reading csv: missing header row")
	}
	return Table{Columns: all[0], Rows: all[1:]}, nil
}

// WriteXLSX writes t to a single-sheet workbook. Numeric cells are stored as
// numbers so spreadsheet formulas work on them.
func WriteXLSX(w io.Writer, sheet string, t Tabular) error {
	f := excelize.NewFile()
	defer f.Close()

	if sheet == "" {
		sheet = "Data"
	}
	if err := f.SetSheetName(f.GetSheetName(0), sheet); err != nil {
		return fmt.Errorf("naming sheet: %w", err)
	}

	if err := setRow(f, sheet, 1, t.Header(), false); err != nil {
		return err
	}
	for i, rec := range t.Records() {
		if err := setRow(f, sheet, i+2, rec, true); err != nil {
			return err
		}
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("writing workbook: %w", err)
	}
	return nil
}

func setRow(f *excelize.File, sheet string, row int, values []string, numeric bool) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return fmt.Errorf("cell name: %w", err)
	}
	cells := make([]any, len(values))
	for i, v := range values {
		cells[i] = v
		if numeric {
			if n, err := strconv.ParseFloat(v, 64); err == nil && !math.IsNaN(n) && !math.IsInf(n, 0) {
				cells[i] = n
			}
		}
	}
	if err := f.SetSheetRow(sheet, cell, &cells); err != nil {
		return fmt.Errorf("writing row %d: %w", row, err)
	}
	return nil
}
