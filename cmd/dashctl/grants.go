package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"healthdash/internal/globalfund"
	"healthdash/internal/render"
)

// filterFlags are the Global Fund multi-selects.
type filterFlags struct {
	activeOnly bool
	components []string
	prTypes    []string
	regions    []string
	countries  []string
	from, to   int
	by         string
}

func (f *filterFlags) register(cmd *cobra.Command) {
	fl := cmd.Flags()
	fl.StringSliceVar(&f.components, "component", nil, "grant components")
	fl.StringSliceVar(&f.prTypes, "pr-type", nil, "principal recipient types")
	fl.StringSliceVar(&f.regions, "region", nil, "regions")
	fl.StringSliceVar(&f.countries, "country", nil, "country names")
	fl.IntVar(&f.from, "from", 0, "first year")
	fl.IntVar(&f.to, "to", 0, "last year")
	fl.StringVar(&f.by, "by", "", "breakdown: component, pr_type, region or country")
}

func (f *filterFlags) filters() globalfund.Filters {
	return globalfund.Filters{
		ActiveOnly: f.activeOnly,
		Components: f.components,
		PRTypes:    f.prTypes,
		Regions:    f.regions,
		Countries:  f.countries,
		FromYear:   f.from,
		ToYear:     f.to,
	}
}

func newGrantsCmd(a *app) *cobra.Command {
	var flags filterFlags
	cmd := &cobra.Command{
		Use:   "grants",
		Short: "Grant metrics per breakdown value",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			by, err := globalfund.ParseGrouping(flags.by)
			if err != nil {
				return err
			}
			ctx, cancel := a.context(cmd)
			defer cancel()

			res, err := a.grants.Grants(ctx, flags.filters(), by)
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
				return nil
			}
			rows := make([][]string, 0, len(res.Groups))
			for _, g := range res.Groups {
				rows = append(rows, []string{
					g.Key,
					strconv.Itoa(g.Grants),
					strconv.Itoa(g.ImplementationPeriods),
					strconv.Itoa(g.PrincipalRecipients),
					money(g.TotalCommitted),
					money(g.TotalDisbursed),
					fmt.Sprintf("%.1f%%", g.DisbursedRatio*100),
				})
			}
			return p.Table([]string{string(by), "Grants", "IPs", "PRs", "Committed", "Disbursed", "Disbursed %"}, rows)
		},
	}
	flags.register(cmd)
	cmd.Flags().BoolVar(&flags.activeOnly, "active", false, "only implementation periods in progress")
	return cmd
}

func newDisbursementsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "disbursements",
		Short: "Global Fund disbursement flows",
	}
	cmd.AddCommand(newDisbursementsSummaryCmd(a))
	return cmd
}

func newDisbursementsSummaryCmd(a *app) *cobra.Command {
	var flags filterFlags
	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Headline disbursement numbers and yearly totals",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
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
			p := a.printer()
			if a.jsonOutput {
				return p.JSON(res)
			}
			p.Warnings(res.Warnings)
			s := res.Summary
			if err := p.Table([]string{"Disbursements", "Total", "First", "Last"}, [][]string{{
				strconv.Itoa(s.Count), money(s.TotalAmount), s.FirstRecord, s.LastRecord,
			}}); err != nil {
				return err
			}
			if res.View.Kind == render.KindMessage {
				if res.View.Message != "" {
					p.Warning("%s", res.View.Message)
				}
				return nil
			}
			fmt.Fprintln(a.out)
			t := render.SeriesTable(string(by), "Year", "Amount", res.View.Series)
			if res.View.Table != nil {
				t = *res.View.Table
			}
			return p.Table(t.Columns, t.Rows)
		},
	}
	flags.register(cmd)
	return cmd
}

// money formats an amount in millions for terminal reading.
func money(v float64) string {
	return fmt.Sprintf("%.2fM", v/1e6)
}
