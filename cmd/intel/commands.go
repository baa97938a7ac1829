package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	forecaster "github.com/chineduezebuiroh/realestate-intel"
	"github.com/chineduezebuiroh/realestate-intel/backtest"
	"github.com/chineduezebuiroh/realestate-intel/forecast"
	"github.com/chineduezebuiroh/realestate-intel/report"
	"github.com/chineduezebuiroh/realestate-intel/runs"
	"github.com/chineduezebuiroh/realestate-intel/series"
	"github.com/chineduezebuiroh/realestate-intel/stats"
	"github.com/chineduezebuiroh/realestate-intel/store"
)

func initDBCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "init-db",
		Short: "Create the fact and run tables if they do not exist",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			db, dialect, err := a.open(ctx)
			if err != nil {
				return err
			}
			if err := store.NewSQL(db, dialect).EnsureSchema(ctx); err != nil {
				return err
			}
			if err := runs.NewSQLRecorder(db, dialect).EnsureSchema(ctx); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "schema ready")
			return nil
		},
	}
}

func loadCmd(a *app) *cobra.Command {
	var source string
	cmd := &cobra.Command{
		Use:   "load <file.csv>...",
		Short: "Upsert fact rows from CSV files with metric_id, geo_id, property_type_id, date and value columns",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			mem := store.NewMemory()
			var n int
			for _, path := range args {
				f, err := os.Open(path)
				if err != nil {
					return err
				}
				read, err := store.LoadCSV(f, mem)
				f.Close()
				if err != nil {
					return fmt.Errorf("loading %s, %w", path, err)
				}
				n += read
			}

			db, dialect, err := a.open(ctx)
			if err != nil {
				return err
			}
			sqlStore := store.NewSQL(db, dialect)
			catalog, err := mem.Catalog(ctx)
			if err != nil {
				return err
			}
			for _, key := range catalog.Keys {
				pts, err := mem.Query(ctx, key)
				if err != nil {
					return err
				}
				if err := sqlStore.Upsert(ctx, key, source, pts); err != nil {
					return err
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "loaded %d observations across %d series\n", n, len(catalog.Keys))
			return nil
		},
	}
	cmd.Flags().StringVar(&source, "source", "csv", "source id stored with every row")
	return cmd
}

func discoverCmd(a *app) *cobra.Command {
	var tf targetFlags
	var ff forecastFlags
	var withVIF bool
	cmd := &cobra.Command{
		Use:   "discover",
		Short: "List the candidate features for a target",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			target, err := tf.Key()
			if err != nil {
				return err
			}
			opt, err := ff.options(cmd, a.cfg.Forecast)
			if err != nil {
				return err
			}
			opt.Universal = true
			f, err := a.forecaster(ctx, opt)
			if err != nil {
				return err
			}
			candidates, err := f.Candidates(ctx, target)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, c := range candidates {
				fmt.Fprintf(out, "%s lags=%v\n", c.Name, c.Lags)
			}
			fmt.Fprintf(out, "%d candidates for %s\n", len(candidates), target)
			if !withVIF {
				return nil
			}

			m, err := f.Matrix(ctx, target)
			if err != nil {
				return err
			}
			vif, err := stats.VarianceInflationFactor(m.X)
			if err != nil {
				return err
			}
			for i, name := range m.Columns.Strings() {
				fmt.Fprintf(out, "  %s vif=%.2f\n", name, vif[i])
			}
			return nil
		},
	}
	tf.register(cmd)
	ff.register(cmd, false)
	cmd.Flags().BoolVar(&withVIF, "vif", false, "build the selected matrix and print each column's variance inflation factor")
	return cmd
}

func forecastCmd(a *app) *cobra.Command {
	var tf targetFlags
	var ff forecastFlags
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "forecast",
		Short: "Fit on all history and record an active forecast run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			target, err := tf.Key()
			if err != nil {
				return err
			}
			opt, err := ff.options(cmd, a.cfg.Forecast)
			if err != nil {
				return err
			}
			f, err := a.forecaster(ctx, opt)
			if err != nil {
				return err
			}
			res, err := f.Forecast(ctx, target)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), res)
			}
			printForecast(cmd.OutOrStdout(), res)
			return nil
		},
	}
	tf.register(cmd)
	ff.register(cmd, false)
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the result as JSON")
	return cmd
}

func backtestCmd(a *app) *cobra.Command {
	var tf targetFlags
	var ff forecastFlags
	var reportPath string
	cmd := &cobra.Command{
		Use:   "backtest",
		Short: "Replay the model from historical anchors and record inactive runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			target, err := tf.Key()
			if err != nil {
				return err
			}
			opt, err := ff.options(cmd, a.cfg.Forecast)
			if err != nil {
				return err
			}
			f, err := a.forecaster(ctx, opt)
			if err != nil {
				return err
			}
			rep, err := f.Backtest(ctx, target)
			if err != nil {
				return err
			}
			printBacktest(cmd.OutOrStdout(), rep)
			if reportPath == "" {
				return nil
			}
			out, err := os.Create(reportPath)
			if err != nil {
				return err
			}
			defer out.Close()
			return writeJSON(out, rep)
		},
	}
	tf.register(cmd)
	ff.register(cmd, true)
	cmd.Flags().StringVar(&reportPath, "report", "", "also write the backtest report as JSON to this path")
	return cmd
}

func exportCmd(a *app) *cobra.Command {
	var tf targetFlags
	var rf runFilterFlags
	var out string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write a target's actuals, runs, predictions and scores to an XLSX workbook",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			actual, freq, rps, err := a.reportData(cmd, tf, rf)
			if err != nil {
				return err
			}
			f, err := os.Create(out)
			if err != nil {
				return err
			}
			defer f.Close()
			if err := report.ExportXLSX(f, actual, freq, rps); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %d runs to %s\n", len(rps), out)
			return nil
		},
	}
	tf.register(cmd)
	rf.register(cmd)
	cmd.Flags().StringVarP(&out, "out", "o", "runs.xlsx", "workbook path")
	return cmd
}

func plotCmd(a *app) *cobra.Command {
	var tf targetFlags
	var rf runFilterFlags
	var out string
	cmd := &cobra.Command{
		Use:   "plot",
		Short: "Render a target's actuals and recorded forecasts as an HTML chart",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			actual, freq, rps, err := a.reportData(cmd, tf, rf)
			if err != nil {
				return err
			}
			f, err := os.Create(out)
			if err != nil {
				return err
			}
			defer f.Close()
			if err := report.Plot(f, actual, freq, rps); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %d runs to %s\n", len(rps), out)
			return nil
		},
	}
	tf.register(cmd)
	rf.register(cmd)
	cmd.Flags().StringVarP(&out, "out", "o", "runs.html", "chart path")
	return cmd
}

// runFilterFlags narrow the runs read back for reporting
type runFilterFlags struct {
	active   bool
	backtest bool
	model    string
	freq     string
}

func (r *runFilterFlags) register(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&r.active, "active", false, "only live forecast runs")
	cmd.Flags().BoolVar(&r.backtest, "backtests", false, "only backtest runs")
	cmd.Flags().StringVar(&r.model, "model-name", "", "only runs recorded under this model name, e.g. gbm_backtest")
	cmd.Flags().StringVar(&r.freq, "freq", "auto", "period used to match predictions to actuals, auto infers it from the actuals")
}

func (a *app) reportData(cmd *cobra.Command, tf targetFlags, rf runFilterFlags) (*series.Series, series.Frequency, []report.RunPredictions, error) {
	ctx := cmd.Context()
	target, err := tf.Key()
	if err != nil {
		return nil, nil, nil, err
	}
	freq, err := series.ParseFrequency(rf.freq)
	if err != nil {
		return nil, nil, nil, err
	}
	r, err := a.factStore(ctx)
	if err != nil {
		return nil, nil, nil, err
	}
	actual, err := store.NewAccessor(r).Load(ctx, target, 0)
	if err != nil {
		return nil, nil, nil, err
	}
	if freq == nil {
		if freq, err = series.InferFrequency(actual.T); err != nil {
			return nil, nil, nil, err
		}
	}
	rec, err := a.recorder(ctx)
	if err != nil {
		return nil, nil, nil, err
	}
	rps, err := report.Collect(ctx, rec, runs.Filter{
		Target:       &target,
		ActiveOnly:   rf.active,
		BacktestOnly: rf.backtest,
		ModelName:    rf.model,
	})
	if err != nil {
		return nil, nil, nil, err
	}
	return actual, freq, rps, nil
}

// forecaster wires the store, recorder, metrics and tracing into a Forecaster
func (a *app) forecaster(ctx context.Context, opt *forecaster.Options) (*forecaster.Forecaster, error) {
	r, err := a.factStore(ctx)
	if err != nil {
		return nil, err
	}
	rec, err := a.recorder(ctx)
	if err != nil {
		return nil, err
	}
	f, err := forecaster.New(r, rec, opt)
	if err != nil {
		return nil, err
	}
	f.WithMetrics(a.metrics)
	if a.tp != nil {
		f.WithTracerProvider(a.tp)
	}
	return f, nil
}

func printForecast(w io.Writer, res *forecaster.Result) {
	fmt.Fprintf(w, "run_id=%d\n", res.RunID)
	for _, s := range res.Steps {
		fmt.Fprintf(w, "  %s step=%d y_hat=%.4f%s\n", s.Date.Format(time.DateOnly), s.Step, s.Point, bounds(s))
	}
}

func printBacktest(w io.Writer, rep *backtest.Report) {
	for _, f := range rep.Folds {
		switch {
		case f.Skipped:
			fmt.Fprintf(w, "anchor=%s skipped\n", f.AnchorDate.Format(time.DateOnly))
		case f.Error != "":
			fmt.Fprintf(w, "anchor=%s failed: %s\n", f.AnchorDate.Format(time.DateOnly), f.Error)
		default:
			fmt.Fprintf(w, "run_id=%d anchor=%s horizon=%d\n", f.RunID, f.AnchorDate.Format(time.DateOnly), f.Horizon)
		}
	}
	for _, s := range rep.ByStep {
		fmt.Fprintf(w, "  step=%d n=%d mae=%.4f rmse=%.4f mape=%.4f\n", s.Step, s.N, s.MAE, s.RMSE, s.MAPE)
	}
}

func bounds(s forecast.Step) string {
	if s.Lower == nil || s.Upper == nil {
		return ""
	}
	return fmt.Sprintf(" lo=%.4f hi=%.4f", *s.Lower, *s.Upper)
}

func writeJSON(w io.Writer, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	b = append(b, '\n')
	_, err = w.Write(b)
	return err
}
