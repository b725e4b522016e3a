package main

import (
	"github.com/spf13/cobra"

	"healthdash/internal/indicator"
)

func newIndicatorsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "indicators",
		Short: "Search and inspect WHO Global Health Observatory indicators",
	}
	cmd.AddCommand(newIndicatorsSearchCmd(a), newIndicatorsShowCmd(a))
	return cmd
}

func newIndicatorsSearchCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "search <keyword>",
		Short: "List indicators whose name contains the keyword",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := a.context(cmd)
			defer cancel()

			res, err := a.indicators.Search(ctx, args[0])
			if err != nil {
				return err
			}
			p := a.printer()
			if a.jsonOutput {
				return p.JSON(res)
			}
			p.Warnings(res.Warnings)
			if res.Message != "" {
				p.Warning("%s", res.Message)
			}
			rows := make([][]string, 0, len(res.Indicators))
			for _, ind := range res.Indicators {
				rows = append(rows, []string{ind.Code, truncate(ind.Name, 90)})
			}
			return p.Table([]string{"Code", "Name"}, rows)
		},
	}
}

// queryFlags are the selection flags shared by show and export.
type queryFlags struct {
	name      string
	dim1      string
	dim2      string
	countries []string
	from, to  int
	hue       string
}

func (f *queryFlags) register(cmd *cobra.Command) {
	fl := cmd.Flags()
	fl.StringVar(&f.name, "name", "", "indicator display name")
	fl.StringVar(&f.dim1, "dim1", "", "first disaggregation value")
	fl.StringVar(&f.dim2, "dim2", "", "second disaggregation value")
	fl.StringSliceVar(&f.countries, "country", nil, "ISO3 country codes (repeatable or comma separated)")
	fl.IntVar(&f.from, "from", 0, "first year")
	fl.IntVar(&f.to, "to", 0, "last year")
	fl.StringVar(&f.hue, "hue", "", "color dimension: region or income_level")
}

func (f *queryFlags) query(code string) (indicator.Query, error) {
	hue, err := indicator.ParseHue(f.hue)
	if err != nil {
		return indicator.Query{}, err
	}
	return indicator.Query{
		Code:      code,
		Name:      f.name,
		Dim1:      f.dim1,
		Dim2:      f.dim2,
		Countries: f.countries,
		FromYear:  f.from,
		ToYear:    f.to,
		Hue:       hue,
	}, nil
}

func newIndicatorsShowCmd(a *app) *cobra.Command {
	var (
		flags queryFlags
		limit int
	)
	cmd := &cobra.Command{
		Use:   "show <code>",
		Short: "Show the joined observations of one indicator",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
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
			p := a.printer()
			if a.jsonOutput {
				return p.JSON(ex)
			}
			p.Warnings(ex.View.Warnings)
			if ex.View.Message != "" {
				p.Warning("%s", ex.View.Message)
			}
			p.Bold("%s (%d rows)", ex.Code, len(ex.Records))
			if ex.FirstYear != 0 {
				p.Bold("years %d to %d", ex.FirstYear, ex.LastYear)
			}

			t := ex.Table()
			rows := t.Rows
			if limit > 0 && len(rows) > limit {
				rows = rows[:limit]
			}
			if err := p.Table(t.Columns, rows); err != nil {
				return err
			}
			if len(rows) < len(t.Rows) {
				p.Warning("%d more rows; use export for the full table", len(t.Rows)-len(rows))
			}
			return nil
		},
	}
	flags.register(cmd)
	cmd.Flags().IntVar(&limit, "limit", 25, "maximum rows printed, 0 for all")
	return cmd
}
