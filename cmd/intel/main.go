// Command intel builds design matrices from the fact store, records live forecasts and
// walk-forward backtests, and exports recorded runs for review.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/chineduezebuiroh/realestate-intel/series"
)

func main() {
	a := &app{}
	err := newRootCmd(a).Execute()
	if cerr := a.close(context.Background()); cerr != nil && err == nil {
		err = cerr
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", describe(err))
		os.Exit(1)
	}
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "intel",
		Short: "Forecast and backtest housing and economic series",
		Long: `Builds lagged design matrices from the long-format fact store, fits a model family,
records live forecasts as active runs and walk-forward backtests as inactive runs.
Settings are read from INTEL_* environment variables and overridden by flags.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
	}

	root.PersistentFlags().StringVar(&a.profileMode, "profile", "", "write a cpu or mem profile to the working directory")
	root.PersistentFlags().BoolVar(&a.trace, "trace", false, "print spans to stderr")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "debug, info, warn or error (overrides INTEL_LOG_LEVEL)")
	root.PersistentFlags().StringVar(&a.metricsPath, "metrics-textfile", "", "write prometheus metrics here on exit (overrides INTEL_METRICS_TEXTFILE)")

	root.AddCommand(initDBCmd(a))
	root.AddCommand(loadCmd(a))
	root.AddCommand(discoverCmd(a))
	root.AddCommand(forecastCmd(a))
	root.AddCommand(backtestCmd(a))
	root.AddCommand(batchCmd(a))
	root.AddCommand(exportCmd(a))
	root.AddCommand(plotCmd(a))
	return root
}

// describe renders the errors a user can act on without a stack of wrapping context
func describe(err error) string {
	var histErr *series.InsufficientHistoryError
	if errors.As(err, &histErr) {
		return fmt.Sprintf("not enough history: %s", histErr)
	}
	var nfErr *series.NotFoundError
	if errors.As(err, &nfErr) {
		return fmt.Sprintf("unknown series %s: check the metric, geo and property type", nfErr.Key)
	}
	return err.Error()
}
