package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/chineduezebuiroh/realestate-intel/backtest"
	"github.com/chineduezebuiroh/realestate-intel/feature"
	"github.com/chineduezebuiroh/realestate-intel/report"
	"github.com/chineduezebuiroh/realestate-intel/series"
	"github.com/chineduezebuiroh/realestate-intel/store"
)

const defaultBatchConcurrency = 4

var (
	ErrEmptyBatch     = errors.New("batch file lists no targets")
	ErrMalformedBatch = errors.New("malformed batch target")
	ErrBadThreshold   = errors.New("refresh thresholds cannot be negative")
)

// batchFile lists targets to forecast in one invocation. Per target settings override the
// file wide ones, which override the configured defaults. Command line flags override all.
//
// With max_age_days or max_mape set, a target whose latest live run is younger than
// max_age_days and whose first three predictions score a MAPE, in percent, of at most
// max_mape keeps that run instead of being refit.
type batchFile struct {
	Model       string        `yaml:"model"`
	Backtest    bool          `yaml:"backtest"`
	Concurrency int           `yaml:"concurrency"`
	MaxAgeDays  int           `yaml:"max_age_days"`
	MaxMAPE     float64       `yaml:"max_mape"`
	Targets     []batchTarget `yaml:"targets"`
}

// refreshPolicy returns nil when every target is refit unconditionally
func (bf *batchFile) refreshPolicy() *report.RefreshPolicy {
	if bf.MaxAgeDays == 0 && bf.MaxMAPE == 0 {
		return nil
	}
	return &report.RefreshPolicy{
		MaxAge:  time.Duration(bf.MaxAgeDays) * 24 * time.Hour,
		MaxMAPE: bf.MaxMAPE / 100,
		Steps:   report.DefaultRefreshSteps,
	}
}

type batchTarget struct {
	series.Key `yaml:",inline"`

	Model    string         `yaml:"model"`
	Features []feature.Spec `yaml:"features"`
}

func parseBatchFile(r io.Reader) (*batchFile, error) {
	var bf batchFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&bf); err != nil {
		return nil, fmt.Errorf("decoding batch file, %w", err)
	}
	if len(bf.Targets) == 0 {
		return nil, ErrEmptyBatch
	}
	if bf.MaxAgeDays < 0 || bf.MaxMAPE < 0 {
		return nil, ErrBadThreshold
	}
	for i, t := range bf.Targets {
		if t.Metric == "" || t.Geo == "" {
			return nil, fmt.Errorf("target %d needs metric_id and geo_id, %w", i, ErrMalformedBatch)
		}
		bf.Targets[i].Key = t.Key.Normalize()
		for j := range t.Features {
			t.Features[j].Source = t.Features[j].Source.Normalize()
		}
		if err := feature.Validate(t.Features); err != nil {
			return nil, fmt.Errorf("target %d %s, %w", i, bf.Targets[i].Key, err)
		}
	}
	if bf.Concurrency <= 0 {
		bf.Concurrency = defaultBatchConcurrency
	}
	return &bf, nil
}

// batchOutcome is the printed result of one target
type batchOutcome struct {
	target  series.Key
	runIDs  []int64
	kept    int64
	skipped error
}

func batchCmd(a *app) *cobra.Command {
	var ff forecastFlags
	var targetsPath string
	var concurrency int
	var withBacktest, force bool
	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Forecast every target of a YAML file concurrently",
		Long: `Forecasts, and optionally backtests, every target listed in a YAML file. Targets run
concurrently and independently. A target that is missing from the store or has too
little history is reported and skipped; any other failure stops the batch. When the file
sets max_age_days or max_mape, targets with a current live run keep it unless --force.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(targetsPath)
			if err != nil {
				return err
			}
			bf, err := parseBatchFile(f)
			f.Close()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("concurrency") {
				bf.Concurrency = concurrency
			}
			if cmd.Flags().Changed("backtest") {
				bf.Backtest = withBacktest
			}
			if force {
				bf.MaxAgeDays, bf.MaxMAPE = 0, 0
			}

			outcomes, err := a.runBatch(cmd, &ff, bf)
			out := cmd.OutOrStdout()
			var refreshed, kept, skipped int
			for _, o := range outcomes {
				for _, id := range o.runIDs {
					fmt.Fprintf(out, "target=%s run_id=%d\n", o.target, id)
				}
				if len(o.runIDs) > 0 {
					refreshed++
				}
				if o.kept > 0 {
					kept++
					fmt.Fprintf(out, "target=%s kept run_id=%d\n", o.target, o.kept)
				}
				if o.skipped != nil {
					skipped++
					fmt.Fprintf(out, "target=%s skipped: %s\n", o.target, describe(o.skipped))
				}
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "%d targets, %d refreshed, %d kept, %d skipped\n", len(bf.Targets), refreshed, kept, skipped)
			return nil
		},
	}
	ff.register(cmd, true)
	cmd.Flags().StringVar(&targetsPath, "targets", "targets.yaml", "YAML file listing the targets")
	cmd.Flags().IntVar(&concurrency, "concurrency", defaultBatchConcurrency, "targets processed at once")
	cmd.Flags().BoolVar(&withBacktest, "backtest", false, "also backtest every target")
	cmd.Flags().BoolVar(&force, "force", false, "refit every target regardless of max_age_days and max_mape")
	return cmd
}

// runBatch returns one outcome per target in file order. Outcomes of targets that never
// ran because the batch stopped early are empty.
func (a *app) runBatch(cmd *cobra.Command, ff *forecastFlags, bf *batchFile) ([]batchOutcome, error) {
	// open the shared store and cache before any worker needs them
	if _, err := a.factStore(cmd.Context()); err != nil {
		return nil, err
	}

	outcomes := make([]batchOutcome, len(bf.Targets))
	var mu sync.Mutex

	g, ctx := errgroup.WithContext(cmd.Context())
	g.SetLimit(bf.Concurrency)
	for i, t := range bf.Targets {
		g.Go(func() error {
			o := batchOutcome{target: t.Key}
			var err error
			if o.kept, err = a.currentRun(ctx, bf, t.Key); err == nil && o.kept == 0 {
				o.runIDs, err = a.runTarget(ctx, cmd, ff, bf, t)
			}
			if err != nil {
				if !skippable(err) {
					return fmt.Errorf("target %s, %w", t.Key, err)
				}
				o.skipped = err
			}
			mu.Lock()
			outcomes[i] = o
			mu.Unlock()
			return nil
		})
	}
	err := g.Wait()
	return outcomes, err
}

// skippable errors are a property of the target's data rather than of the batch
func skippable(err error) bool {
	return errors.Is(err, series.ErrNotFound) ||
		errors.Is(err, series.ErrInsufficientHistory) ||
		errors.Is(err, backtest.ErrNoUsableAnchors)
}

// currentRun returns the id of target's live run when the batch refresh policy keeps it,
// or 0 when the target should be refit
func (a *app) currentRun(ctx context.Context, bf *batchFile, target series.Key) (int64, error) {
	policy := bf.refreshPolicy()
	if policy == nil {
		return 0, nil
	}
	r, err := a.factStore(ctx)
	if err != nil {
		return 0, err
	}
	actual, err := store.NewAccessor(r).Load(ctx, target, 0)
	if err != nil {
		return 0, err
	}
	rec, err := a.recorder(ctx)
	if err != nil {
		return 0, err
	}
	st, err := policy.Check(ctx, rec, target, actual, time.Now())
	if err != nil {
		return 0, err
	}
	slog.Info("checked live run", "target", target, "refresh", st.Refresh, "reason", st.Reason)
	if st.Refresh {
		return 0, nil
	}
	return st.Latest.ID, nil
}

func (a *app) runTarget(ctx context.Context, cmd *cobra.Command, ff *forecastFlags, bf *batchFile, t batchTarget) ([]int64, error) {
	cfg := a.cfg.Forecast
	if bf.Model != "" {
		cfg.Model = bf.Model
	}
	if t.Model != "" {
		cfg.Model = t.Model
	}
	opt, err := ff.options(cmd, cfg)
	if err != nil {
		return nil, err
	}
	opt.Features = t.Features

	f, err := a.forecaster(ctx, opt)
	if err != nil {
		return nil, err
	}
	res, err := f.Forecast(ctx, t.Key)
	if err != nil {
		return nil, err
	}
	ids := []int64{res.RunID}
	if !bf.Backtest {
		return ids, nil
	}
	rep, err := f.Backtest(ctx, t.Key)
	if err != nil {
		return ids, err
	}
	return append(ids, rep.RunIDs()...), nil
}
