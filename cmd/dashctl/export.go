package main

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"healthdash/internal/globalfund"
	"healthdash/internal/render"
)

func newExportCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Download a filtered dataset as CSV or XLSX",
	}
	cmd.AddCommand(newExportIndicatorCmd(a), newExportDisbursementsCmd(a))
	return cmd
}

type exportFlags struct {
	format string
	output string
}

func (f *exportFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.format, "format", render.FormatCSV, "csv or xlsx")
	cmd.Flags().StringVarP(&f.output, "output", "o", "", "output file (default <name>.<format>, - for stdout)")
}

func (f *exportFlags) validate() error {
	f.format = strings.ToLower(f.format)
	if f.format != render.FormatCSV && f.format != render.FormatXLSX {
		return fmt.Errorf("unsupported format %q: must be csv or xlsx", f.format)
	}
	return nil
}

func newExportIndicatorCmd(a *app) *cobra.Command {
	var (
		flags queryFlags
		out   exportFlags
	)
	cmd := &cobra.Command{
		Use:   "indicator <code>",
		Short: "Export the observations of a WHO indicator",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := out.validate(); err != nil {
				return err
			}
			q, err := flags.query(args[0])
			if err != nil {
				return err
			}
			ctx, cancel := a.context(cmd)
			defer cancel()

			ex, err := a.indicators.Explore(ctx, q)
			if err != nil {
				return err
			}
			a.printer().Warnings(ex.View.Warnings)
			return a.export(out, ex.Code, "Indicator", ex.Table())
		},
	}
	flags.register(cmd)
	out.register(cmd)
	return cmd
}

func newExportDisbursementsCmd(a *app) *cobra.Command {
	var (
		flags filterFlags
		out   exportFlags
	)
	cmd := &cobra.Command{
		Use:   "disbursements",
		Short: "Export the filtered Global Fund disbursements",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := out.validate(); err != nil {
				return err
			}
			by, err := globalfund.ParseGrouping(flags.by)
			if err != nil {
				return err
			}
			ctx, cancel := a.context(cmd)
			defer cancel()

			res, err := a.grants.Disbursements(ctx, flags.filters(), by)
			if err != nil {
				return err
			}
			a.printer().Warnings(res.Warnings)
			return a.export(out, "disbursements", "Disbursements", res.Table())
		},
	}
	flags.register(cmd)
	out.register(cmd)
	return cmd
}

func (a *app) export(f exportFlags, name, sheet string, t render.Table) error {
	var buf bytes.Buffer
	var err error
	if f.format == render.FormatCSV {
		err = render.WriteCSV(&buf, t)
	} else {
		err = render.WriteXLSX(&buf, sheet, t)
	}
	if err != nil {
		return err
	}

	if f.output == "-" {
		_, err = a.out.Write(buf.Bytes())
		return err
	}
	path := f.output
	if path == "" {
		path = name + "." + f.format
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	a.printer().Success("wrote %d rows to %s", len(t.Rows), path)
	return nil
}
