package forecaster

import (
	"errors"
	"fmt"
	"strings"

	"github.com/chineduezebuiroh/realestate-intel/backtest"
	"github.com/chineduezebuiroh/realestate-intel/feature"
	"github.com/chineduezebuiroh/realestate-intel/forecast"
	"github.com/chineduezebuiroh/realestate-intel/model"
	"github.com/chineduezebuiroh/realestate-intel/series"
)

var (
	ErrUnknownSelection   = errors.New("unknown feature selection")
	ErrNonPositiveHorizon = errors.New("horizon must be positive")
	ErrNonPositiveMinObs  = errors.New("minimum observations must be positive")
	ErrNegativeMaxFeature = errors.New("maximum features cannot be negative")
)

// DefaultMinObs is the fewest design matrix rows a fit accepts, two years of months
const DefaultMinObs = 24

// Selection chooses how candidate features are narrowed before fitting
type Selection int

const (
	// SelectNone uses every candidate and fails if any one cuts history below the minimum
	SelectNone Selection = iota

	// SelectGreedy admits candidates in order while the matrix keeps enough rows
	SelectGreedy

	// SelectImportance ranks greedily admitted candidates by gradient boosted importance
	SelectImportance

	// SelectLasso ranks greedily admitted candidates by standardized lasso coefficients
	SelectLasso
)

func (s Selection) String() string {
	switch s {
	case SelectGreedy:
		return "greedy"
	case SelectImportance:
		return "importance"
	case SelectLasso:
		return "lasso"
	}
	return "none"
}

// ParseSelection is the inverse of String
func ParseSelection(s string) (Selection, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return SelectNone, nil
	case "greedy":
		return SelectGreedy, nil
	case "importance", "xgb":
		return SelectImportance, nil
	case "lasso":
		return SelectLasso, nil
	}
	return SelectNone, fmt.Errorf("%q, %w", s, ErrUnknownSelection)
}

// Options configures how a Forecaster builds its matrix, which model it fits and how far
// it forecasts
type Options struct {
	Family model.Family

	// Freq fixes the period of the target and every feature. Nil infers it from the
	// target's dates on each build.
	Freq series.Frequency

	Horizon int
	MinObs  int

	// Lags are the self-lags of the target. Empty means feature.DefaultLagScheme.
	Lags []int

	// Features are exogenous specs added to the self-lags
	Features []feature.Spec

	// Universal adds one candidate per other key in the store
	Universal bool
	Discover  feature.DiscoverOptions

	Selection   Selection
	MaxFeatures int

	Extrapolator forecast.Extrapolator
	Backtest     *backtest.Options
}

// NewDefaultOptions fits the gradient boosted family on self-lags at the target's inferred
// frequency
func NewDefaultOptions() *Options {
	family, _ := model.GBM(nil)
	return &Options{
		Family:       family,
		Horizon:      12,
		MinObs:       DefaultMinObs,
		Lags:         append([]int(nil), feature.DefaultLagScheme...),
		Extrapolator: forecast.CarryForward{},
		Backtest:     backtest.NewDefaultOptions(),
	}
}

// Validate fills unset fields with defaults and checks the rest
func (o *Options) Validate() (*Options, error) {
	def := NewDefaultOptions()
	if o == nil {
		return def, nil
	}
	opt := *o
	if opt.Family.Name == "" {
		opt.Family = def.Family
	}
	if opt.Horizon <= 0 {
		return nil, ErrNonPositiveHorizon
	}
	if opt.MinObs <= 0 {
		return nil, ErrNonPositiveMinObs
	}
	if opt.MaxFeatures < 0 {
		return nil, ErrNegativeMaxFeature
	}
	if len(opt.Lags) == 0 {
		opt.Lags = def.Lags
	}
	if opt.Extrapolator == nil {
		opt.Extrapolator = def.Extrapolator
	}

	// backtests extrapolate the same way as live forecasts unless told otherwise
	bt := def.Backtest
	bt.Extrapolator = opt.Extrapolator
	if opt.Backtest != nil {
		cp := *opt.Backtest
		if cp.Extrapolator == nil {
			cp.Extrapolator = opt.Extrapolator
		}
		bt = &cp
	}
	bt, err := bt.Validate()
	if err != nil {
		return nil, fmt.Errorf("invalid backtest options, %w", err)
	}
	opt.Backtest = bt
	return &opt, nil
}
