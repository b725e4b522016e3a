package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"
)

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

// printer writes tables and status lines, colored unless disabled.
type printer struct {
	out    io.Writer
	colors bool
}

func (a *app) printer() *printer {
	colors := !a.noColor
	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		colors = false
	}
	return &printer{out: a.out, colors: colors}
}

func (p *printer) paint(attr color.Attribute, format string, args ...any) string {
	c := color.New(attr)
	if p.colors {
		c.EnableColor()
	} else {
		c.DisableColor()
	}
	return c.Sprintf(format, args...)
}

func (p *printer) Success(format string, args ...any) {
	fmt.Fprintln(p.out, p.paint(color.FgGreen, format, args...))
}

func (p *printer) Warning(format string, args ...any) {
	fmt.Fprintln(p.out, p.paint(color.FgYellow, format, args...))
}

func (p *printer) Error(format string, args ...any) {
	fmt.Fprintln(p.out, p.paint(color.FgRed, format, args...))
}

func (p *printer) Bold(format string, args ...any) {
	fmt.Fprintln(p.out, p.paint(color.Bold, format, args...))
}

// Warnings prints upstream warnings attached to a result.
func (p *printer) Warnings(warnings []string) {
	for _, w := range warnings {
		p.Warning("warning: %s", w)
	}
}

// Table renders rows under headers without borders.
func (p *printer) Table(headers []string, rows [][]string) error {
	table := tablewriter.NewTable(p.out,
		tablewriter.WithConfig(tablewriter.Config{
			Row: tw.CellConfig{
				Formatting: tw.CellFormatting{AutoWrap: tw.WrapNone},
				Alignment:  tw.CellAlignment{Global: tw.AlignLeft},
			},
			Header: tw.CellConfig{
				Formatting: tw.CellFormatting{AutoFormat: tw.On},
				Alignment:  tw.CellAlignment{Global: tw.AlignLeft},
			},
		}),
		tablewriter.WithRendition(tw.Rendition{
			Borders: tw.BorderNone,
			Settings: tw.Settings{
				Separators: tw.Separators{ShowHeader: tw.Off},
			},
		}),
	)
	table.Header(headers)
	if err := table.Bulk(rows); err != nil {
		return err
	}
	return table.Render()
}

func (p *printer) JSON(v any) error {
	enc := json.NewEncoder(p.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
