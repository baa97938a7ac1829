package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	forecaster "github.com/chineduezebuiroh/realestate-intel"
	"github.com/chineduezebuiroh/realestate-intel/config"
	"github.com/chineduezebuiroh/realestate-intel/feature"
	"github.com/chineduezebuiroh/realestate-intel/forecast"
	"github.com/chineduezebuiroh/realestate-intel/model"
	"github.com/chineduezebuiroh/realestate-intel/series"
)

// execute runs one command line against a fresh app the way main does
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	a := &app{}
	root := newRootCmd(a)
	root.SetArgs(args)
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	err := root.ExecuteContext(context.Background())
	require.NoError(t, a.close(context.Background()))
	return out.String(), err
}

// seed points the process at a new sqlite file holding four years of a rising monthly
// price and a mortgage rate series
func seed(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("INTEL_DB_DSN", filepath.Join(dir, "intel.db"))

	var b strings.Builder
	b.WriteString("metric_id,geo_id,property_type_id,date,value\n")
	first := time.Date(2016, 1, 31, 0, 0, 0, 0, time.UTC)
	for k := 0; k < 48; k++ {
		d := series.Monthly.Add(first, k).Format(time.DateOnly)
		fmt.Fprintf(&b, "median_sale_price,dc,all,%s,%g\n", d, 100+2*float64(k))
		fmt.Fprintf(&b, "mortgage_rate,us,all,%s,%g\n", d, 3+0.01*float64(k%5))
	}
	csvPath := filepath.Join(dir, "facts.csv")
	require.NoError(t, os.WriteFile(csvPath, []byte(b.String()), 0o644))

	out, err := execute(t, "init-db")
	require.NoError(t, err)
	assert.Contains(t, out, "schema ready")

	out, err = execute(t, "load", csvPath)
	require.NoError(t, err)
	assert.Contains(t, out, "loaded 96 observations across 2 series")
	return dir
}

func TestForecastBacktestExport(t *testing.T) {
	dir := seed(t)

	out, err := execute(t, "forecast", "--target", "median_sale_price/dc", "--model", "ols", "--lags", "1", "--horizon", "3")
	require.NoError(t, err)
	assert.Contains(t, out, "run_id=1\n")
	assert.Contains(t, out, "step=3")

	out, err = execute(t, "backtest", "--metric", "median_sale_price", "--geo", "dc",
		"--model", "ols", "--lags", "1", "--horizon", "3", "--min-train-len", "24", "--max-anchors", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "run_id=2 ")
	assert.Contains(t, out, "run_id=3 ")
	assert.Contains(t, out, "step=1 n=2")

	xlsx := filepath.Join(dir, "runs.xlsx")
	out, err = execute(t, "export", "--target", "median_sale_price/dc", "-o", xlsx)
	require.NoError(t, err)
	assert.Contains(t, out, "wrote 3 runs")
	assert.FileExists(t, xlsx)

	html := filepath.Join(dir, "runs.html")
	out, err = execute(t, "plot", "--target", "median_sale_price/dc", "--backtests", "-o", html)
	require.NoError(t, err)
	assert.Contains(t, out, "wrote 2 runs")
	assert.FileExists(t, html)

	out, err = execute(t, "discover", "--target", "median_sale_price/dc", "--lags", "1,12")
	require.NoError(t, err)
	assert.Contains(t, out, "mortgage_rate/us/all lags=[1 12]")
	assert.Contains(t, out, "1 candidates")

	out, err = execute(t, "discover", "--target", "median_sale_price/dc", "--lags", "1", "--select", "greedy", "--vif")
	require.NoError(t, err)
	assert.Contains(t, out, "median_sale_price_lag1 vif=")
	assert.Contains(t, out, "mortgage_rate/us/all_lag1 vif=")
}

func TestCommandErrors(t *testing.T) {
	seed(t)

	testData := map[string]struct {
		args     []string
		expected string
	}{
		"unknown series": {
			args:     []string{"forecast", "--target", "median_rent/dc", "--model", "ols"},
			expected: "unknown series median_rent/dc/all",
		},
		"short history": {
			args:     []string{"forecast", "--target", "median_sale_price/dc", "--model", "ols", "--min-obs", "100"},
			expected: "not enough history",
		},
		"no target": {
			args:     []string{"forecast", "--model", "ols"},
			expected: ErrNoTarget.Error(),
		},
		"unknown model": {
			args:     []string{"forecast", "--target", "median_sale_price/dc", "--model", "prophet"},
			expected: "prophet",
		},
	}

	for name, td := range testData {
		t.Run(name, func(t *testing.T) {
			_, err := execute(t, td.args...)
			require.Error(t, err)
			assert.Contains(t, describe(err), td.expected)
		})
	}
}

func TestBatch(t *testing.T) {
	dir := seed(t)
	targets := filepath.Join(dir, "targets.yaml")
	require.NoError(t, os.WriteFile(targets, []byte(`
model: ols
concurrency: 2
targets:
  - metric_id: median_sale_price
    geo_id: dc
    features:
      - name: rate
        source: {metric_id: mortgage_rate, geo_id: us}
        lags: [1]
  - metric_id: median_rent
    geo_id: dc
`), 0o644))

	out, err := execute(t, "batch", "--targets", targets, "--lags", "1", "--horizon", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "target=median_sale_price/dc/all run_id=1")
	assert.Contains(t, out, "target=median_rent/dc/all skipped: unknown series")
	assert.Contains(t, out, "2 targets, 1 refreshed, 0 kept, 1 skipped")
}

func TestBatchRefreshPolicy(t *testing.T) {
	dir := seed(t)
	targets := filepath.Join(dir, "targets.yaml")
	require.NoError(t, os.WriteFile(targets, []byte(`
model: ols
max_age_days: 30
max_mape: 15
targets:
  - {metric_id: median_sale_price, geo_id: dc}
`), 0o644))
	batch := func(extra ...string) string {
		t.Helper()
		args := append([]string{"batch", "--targets", targets, "--lags", "1", "--horizon", "2"}, extra...)
		out, err := execute(t, args...)
		require.NoError(t, err)
		return out
	}

	out := batch()
	assert.Contains(t, out, "target=median_sale_price/dc/all run_id=1")
	assert.Contains(t, out, "1 targets, 1 refreshed, 0 kept, 0 skipped")

	// young and nothing realized to score yet
	out = batch()
	assert.Contains(t, out, "target=median_sale_price/dc/all kept run_id=1")
	assert.Contains(t, out, "1 targets, 0 refreshed, 1 kept, 0 skipped")

	out = batch("--force")
	assert.Contains(t, out, "target=median_sale_price/dc/all run_id=2")

	// the two forecast months arrive far from the predicted trend
	var b strings.Builder
	b.WriteString("metric_id,geo_id,property_type_id,date,value\n")
	first := time.Date(2016, 1, 31, 0, 0, 0, 0, time.UTC)
	for k := 48; k < 50; k++ {
		fmt.Fprintf(&b, "median_sale_price,dc,all,%s,500\n", series.Monthly.Add(first, k).Format(time.DateOnly))
	}
	csvPath := filepath.Join(dir, "late.csv")
	require.NoError(t, os.WriteFile(csvPath, []byte(b.String()), 0o644))
	_, err := execute(t, "load", csvPath)
	require.NoError(t, err)

	out = batch()
	assert.Contains(t, out, "target=median_sale_price/dc/all run_id=3")
	assert.Contains(t, out, "1 targets, 1 refreshed, 0 kept, 0 skipped")
}

func TestParseBatchFile(t *testing.T) {
	testData := map[string]struct {
		input       string
		expectedLen int
		expectedCon int
		err         error
	}{
		"defaults": {
			input:       "targets:\n  - {metric_id: median_sale_price, geo_id: dc}\n",
			expectedLen: 1,
			expectedCon: defaultBatchConcurrency,
		},
		"concurrency": {
			input:       "concurrency: 8\ntargets:\n  - {metric_id: a, geo_id: b}\n  - {metric_id: c, geo_id: d, property_type_id: sfr}\n",
			expectedLen: 2,
			expectedCon: 8,
		},
		"no targets": {
			input: "model: gbm\n",
			err:   ErrEmptyBatch,
		},
		"missing geo": {
			input: "targets:\n  - {metric_id: median_sale_price}\n",
			err:   ErrMalformedBatch,
		},
		"negative threshold": {
			input: "max_age_days: -1\ntargets:\n  - {metric_id: a, geo_id: b}\n",
			err:   ErrBadThreshold,
		},
		"feature without lags": {
			input: "targets:\n  - metric_id: a\n    geo_id: b\n    features:\n      - {name: x, source: {metric_id: c, geo_id: d}}\n",
			err:   feature.ErrNoLags,
		},
	}

	for name, td := range testData {
		t.Run(name, func(t *testing.T) {
			bf, err := parseBatchFile(strings.NewReader(td.input))
			if td.err != nil {
				assert.ErrorIs(t, err, td.err)
				return
			}
			require.NoError(t, err)
			assert.Len(t, bf.Targets, td.expectedLen)
			assert.Equal(t, td.expectedCon, bf.Concurrency)
			for _, tg := range bf.Targets {
				assert.NotEmpty(t, tg.PropertyType)
			}
		})
	}

	_, err := parseBatchFile(strings.NewReader("targets: []\nunknown: 1\n"))
	assert.Error(t, err)
}

func TestTargetFlagsKey(t *testing.T) {
	testData := map[string]struct {
		flags    targetFlags
		expected series.Key
		err      error
	}{
		"key": {
			flags:    targetFlags{key: "median_sale_price/dc/sfr"},
			expected: series.NewKey("median_sale_price", "dc", "sfr"),
		},
		"components": {
			flags:    targetFlags{metric: "median_sale_price", geo: "dc", propertyType: "all"},
			expected: series.NewKey("median_sale_price", "dc", ""),
		},
		"malformed key": {
			flags: targetFlags{key: "median_sale_price"},
			err:   series.ErrMalformedKey,
		},
		"missing geo": {
			flags: targetFlags{metric: "median_sale_price"},
			err:   ErrNoTarget,
		},
	}

	for name, td := range testData {
		t.Run(name, func(t *testing.T) {
			k, err := td.flags.Key()
			if td.err != nil {
				assert.ErrorIs(t, err, td.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, td.expected, k)
		})
	}
}

func TestBuildOptions(t *testing.T) {
	cfg := config.ForecastConfig{
		Model:        "sarima",
		Freq:         "quarterly",
		Horizon:      6,
		MinTrainLen:  36,
		MaxAnchors:   2,
		AnchorStep:   6,
		Lags:         []int{1, 12},
		Select:       "lasso",
		MaxFeatures:  4,
		Universal:    true,
		Extrapolator: "drift",
	}
	opt, err := buildOptions(cfg, 30, []int{40})
	require.NoError(t, err)

	assert.Equal(t, model.NameSARIMAX, opt.Family.Name)
	assert.Equal(t, series.Quarterly, opt.Freq)
	assert.Equal(t, 6, opt.Horizon)
	assert.Equal(t, 30, opt.MinObs)
	assert.Equal(t, []int{1, 12}, opt.Lags)
	assert.Equal(t, forecaster.SelectLasso, opt.Selection)
	assert.Equal(t, 4, opt.MaxFeatures)
	assert.True(t, opt.Universal)
	assert.IsType(t, forecast.Drift{}, opt.Extrapolator)

	assert.Equal(t, 6, opt.Backtest.Horizon)
	assert.Equal(t, 36, opt.Backtest.MinTrainLen)
	assert.Equal(t, 2, opt.Backtest.MaxAnchors)
	assert.Equal(t, 6, opt.Backtest.Step)
	assert.Equal(t, []int{40}, opt.Backtest.Anchors)
	assert.IsType(t, forecast.Drift{}, opt.Backtest.Extrapolator)

	cfg.Freq = "auto"
	opt, err = buildOptions(cfg, 30, nil)
	require.NoError(t, err)
	assert.Nil(t, opt.Freq)

	cfg.Freq = "fortnightly"
	_, err = buildOptions(cfg, 30, nil)
	assert.ErrorIs(t, err, series.ErrUnknownFrequency)

	cfg.Freq = "auto"
	cfg.Select = "random"
	_, err = buildOptions(cfg, 30, nil)
	assert.ErrorIs(t, err, forecaster.ErrUnknownSelection)
}
