package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	forecaster "github.com/chineduezebuiroh/realestate-intel"
	"github.com/chineduezebuiroh/realestate-intel/config"
	"github.com/chineduezebuiroh/realestate-intel/feature"
	"github.com/chineduezebuiroh/realestate-intel/forecast"
	"github.com/chineduezebuiroh/realestate-intel/model"
	"github.com/chineduezebuiroh/realestate-intel/series"
)

var ErrNoTarget = errors.New("a target is required, use --target or --metric and --geo")

// targetFlags addresses one series either as metric/geo/property_type or by component
type targetFlags struct {
	key          string
	metric       string
	geo          string
	propertyType string
}

func (t *targetFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&t.key, "target", "", "target series as metric/geo[/property_type]")
	cmd.Flags().StringVar(&t.metric, "metric", "", "target metric id")
	cmd.Flags().StringVar(&t.geo, "geo", "", "target geo id")
	cmd.Flags().StringVar(&t.propertyType, "property-type", series.DefaultPropertyType, "target property type id")
}

func (t *targetFlags) Key() (series.Key, error) {
	if t.key != "" {
		return series.ParseKey(t.key)
	}
	if t.metric == "" || t.geo == "" {
		return series.Key{}, ErrNoTarget
	}
	return series.NewKey(t.metric, t.geo, t.propertyType), nil
}

// forecastFlags override the INTEL_FORECAST_* settings when set
type forecastFlags struct {
	model        string
	freq         string
	horizon      int
	lags         []int
	selection    string
	maxFeatures  int
	universal    bool
	extrapolator string
	minObs       int

	minTrainLen int
	maxAnchors  int
	anchorStep  int
	anchors     []int
}

func (f *forecastFlags) register(cmd *cobra.Command, backtest bool) {
	fs := cmd.Flags()
	fs.StringVar(&f.model, "model", "", fmt.Sprintf("model family, one of %v", model.Names()))
	fs.StringVar(&f.freq, "freq", "auto", "period of the target: auto, monthly, quarterly, annual or a duration such as 168h")
	fs.IntVar(&f.horizon, "horizon", 0, "periods to forecast")
	fs.IntSliceVar(&f.lags, "lags", nil, "lags of the target and of every discovered feature")
	fs.StringVar(&f.selection, "select", "", "feature selection: none, greedy, importance or lasso")
	fs.IntVar(&f.maxFeatures, "max-features", 0, "cap on selected candidate features")
	fs.BoolVar(&f.universal, "universal", false, "consider every other series in the store as a feature")
	fs.StringVar(&f.extrapolator, "extrapolator", "", "how exogenous features are extended: carry or drift")
	fs.IntVar(&f.minObs, "min-obs", forecaster.DefaultMinObs, "fewest design matrix rows accepted")
	if !backtest {
		return
	}
	fs.IntVar(&f.minTrainLen, "min-train-len", 0, "fewest training rows at an anchor")
	fs.IntVar(&f.maxAnchors, "max-anchors", 0, "most anchors to backtest from")
	fs.IntVar(&f.anchorStep, "anchor-step", 0, "periods between anchors")
	fs.IntSliceVar(&f.anchors, "anchors", nil, "explicit anchor row indices instead of selection")
}

// options merges flags that were set over the configured forecast settings
func (f *forecastFlags) options(cmd *cobra.Command, cfg config.ForecastConfig) (*forecaster.Options, error) {
	fs := cmd.Flags()
	if fs.Changed("model") {
		cfg.Model = f.model
	}
	if fs.Changed("freq") {
		cfg.Freq = f.freq
	}
	if fs.Changed("horizon") {
		cfg.Horizon = f.horizon
	}
	if fs.Changed("lags") {
		cfg.Lags = f.lags
	}
	if fs.Changed("select") {
		cfg.Select = f.selection
	}
	if fs.Changed("max-features") {
		cfg.MaxFeatures = f.maxFeatures
	}
	if fs.Changed("universal") {
		cfg.Universal = f.universal
	}
	if fs.Changed("extrapolator") {
		cfg.Extrapolator = f.extrapolator
	}
	if fs.Changed("min-train-len") {
		cfg.MinTrainLen = f.minTrainLen
	}
	if fs.Changed("max-anchors") {
		cfg.MaxAnchors = f.maxAnchors
	}
	if fs.Changed("anchor-step") {
		cfg.AnchorStep = f.anchorStep
	}
	return buildOptions(cfg, f.minObs, f.anchors)
}

func buildOptions(cfg config.ForecastConfig, minObs int, anchors []int) (*forecaster.Options, error) {
	family, err := model.Lookup(cfg.Model)
	if err != nil {
		return nil, err
	}
	sel, err := forecaster.ParseSelection(cfg.Select)
	if err != nil {
		return nil, err
	}
	ext, err := forecast.ParseExtrapolator(cfg.Extrapolator)
	if err != nil {
		return nil, err
	}
	freq, err := series.ParseFrequency(cfg.Freq)
	if err != nil {
		return nil, err
	}

	opt := forecaster.NewDefaultOptions()
	opt.Family = family
	opt.Freq = freq
	opt.Horizon = cfg.Horizon
	opt.MinObs = minObs
	opt.Lags = append([]int(nil), cfg.Lags...)
	if len(opt.Lags) == 0 {
		opt.Lags = append([]int(nil), feature.DefaultLagScheme...)
	}
	opt.Universal = cfg.Universal
	opt.Selection = sel
	opt.MaxFeatures = cfg.MaxFeatures
	opt.Extrapolator = ext

	opt.Backtest.Horizon = cfg.Horizon
	opt.Backtest.MinTrainLen = cfg.MinTrainLen
	opt.Backtest.MaxAnchors = cfg.MaxAnchors
	opt.Backtest.Step = cfg.AnchorStep
	opt.Backtest.Anchors = anchors
	opt.Backtest.Extrapolator = ext
	return opt.Validate()
}
