package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"healthdash/internal/globalfund"
	"healthdash/internal/indicator"
	"healthdash/internal/platform/config"
	"healthdash/internal/reference"
	gfsource "healthdash/internal/sources/globalfund"
	"healthdash/internal/sources/who"
	"healthdash/internal/sources/worldbank"
	"healthdash/internal/status"
	"healthdash/internal/upstream"
	"healthdash/internal/upstream/store"
)

// app carries global flags and the services built from them.
type app struct {
	out    io.Writer
	errOut io.Writer

	whoURL        string
	worldBankURL  string
	globalFundURL string
	timeout       time.Duration
	jsonOutput    bool
	noColor       bool
	verbose       bool

	logger     *slog.Logger
	indicators *indicator.Service
	grants     *globalfund.Service
	status     *status.Service
}

func newRootCmd(out, errOut io.Writer) *cobra.Command {
	a := &app{out: out, errOut: errOut}

	root := &cobra.Command{
		Use:   "dashctl",
		Short: "Query WHO, World Bank and Global Fund data from the terminal",
		Long: `dashctl runs the dashboard queries without the web server.

Example usage:
  dashctl status                          # Check the three public APIs
  dashctl indicators search malaria       # Find WHO indicators by keyword
  dashctl indicators show MALARIA_EST_INCIDENCE --country NGA,GHA
  dashctl grants --by region              # Grant metrics per region
  dashctl disbursements summary --component Malaria
  dashctl export indicator WHOSIS_000001 --format xlsx -o life.xlsx`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init()
		},
	}
	root.SetOut(out)
	root.SetErr(errOut)

	f := root.PersistentFlags()
	f.StringVar(&a.whoURL, "who-url", envOr("WHO_BASE_URL", config.DefaultWHOBaseURL), "WHO GHO OData base URL")
	f.StringVar(&a.worldBankURL, "worldbank-url", envOr("WORLDBANK_BASE_URL", config.DefaultWorldBankURL), "World Bank API base URL")
	f.StringVar(&a.globalFundURL, "globalfund-url", envOr("GLOBALFUND_BASE_URL", config.DefaultGlobalFundURL), "Global Fund data service base URL")
	f.DurationVar(&a.timeout, "timeout", config.DefaultUpstreamTimeout, "timeout of each upstream request")
	f.BoolVar(&a.jsonOutput, "json", false, "output as JSON")
	f.BoolVar(&a.noColor, "no-color", false, "disable colored output")
	f.BoolVarP(&a.verbose, "verbose", "v", false, "verbose logging on stderr")

	root.AddCommand(
		newStatusCmd(a),
		newIndicatorsCmd(a),
		newGrantsCmd(a),
		newDisbursementsCmd(a),
		newExportCmd(a),
	)
	return root
}

func (a *app) init() error {
	level := slog.LevelWarn
	if a.verbose {
		level = slog.LevelDebug
	}
	a.logger = slog.New(slog.NewTextHandler(a.errOut, &slog.HandlerOptions{Level: level}))

	if a.timeout <= 0 {
		return errors.New("--timeout must be positive")
	}
	whoBase := strings.TrimRight(a.whoURL, "/")
	wbBase := strings.TrimRight(a.worldBankURL, "/")
	gfBase := strings.TrimRight(a.globalFundURL, "/")

	client := upstream.NewClient(upstream.WithTimeout(a.timeout), upstream.WithLogger(a.logger))
	// One invocation fetches the reference bodies once even when several
	// commands share them.
	memo, err := upstream.NewMemo(client, store.NewInMemoryStore(config.DefaultMemoSize, config.DefaultMemoTTL),
		upstream.WithMemoLogger(a.logger))
	if err != nil {
		return err
	}

	whoSrc := who.NewClient(whoBase, memo)
	loader, err := reference.NewLoader(whoSrc, worldbank.NewClient(wbBase, memo), reference.WithLogger(a.logger))
	if err != nil {
		return err
	}
	if a.indicators, err = indicator.New(whoSrc, loader, indicator.WithLogger(a.logger)); err != nil {
		return err
	}
	if a.grants, err = globalfund.New(gfsource.NewClient(gfBase, memo), loader, globalfund.WithLogger(a.logger)); err != nil {
		return err
	}
	a.status, err = status.New(client, status.DefaultAPIs(whoBase, wbBase, gfBase), status.WithLogger(a.logger))
	return err
}

// context bounds a whole command, which may issue several upstream calls.
func (a *app) context(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), 4*a.timeout)
}
