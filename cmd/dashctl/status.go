package main

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

// errAPIsDown makes the exit code reflect an outage.
var errAPIsDown = errors.New("one or more APIs are unavailable")

func newStatusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Check the availability of the WHO, World Bank and Global Fund APIs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := a.context(cmd)
			defer cancel()

			report, err := a.status.Check(ctx)
			if err != nil {
				return err
			}
			p := a.printer()
			if a.jsonOutput {
				if err := p.JSON(report); err != nil {
					return err
				}
			} else {
				rows := make([][]string, 0, len(report.APIs))
				for _, r := range report.APIs {
					state := p.paint(colorFor(r.Up), "%s", upLabel(r.Up))
					code := ""
					if r.StatusCode != 0 {
						code = strconv.Itoa(r.StatusCode)
					}
					rows = append(rows, []string{r.Name, state, code, string(r.Category), fmt.Sprintf("%dms", r.LatencyMS)})
				}
				if err := p.Table([]string{"API", "State", "HTTP", "Failure", "Latency"}, rows); err != nil {
					return err
				}
			}
			if !report.Up {
				return errAPIsDown
			}
			return nil
		},
	}
}

func upLabel(up bool) string {
	if up {
		return "UP"
	}
	return "DOWN"
}
