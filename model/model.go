// Package model names the model families a forecast or backtest can fit and builds fresh,
// unfitted instances of them.
package model

import (
	"errors"
	"fmt"
	"strings"

	"github.com/goccy/go-json"
	"gonum.org/v1/gonum/mat"

	"github.com/chineduezebuiroh/realestate-intel/gbm"
	"github.com/chineduezebuiroh/realestate-intel/linearmodel"
	"github.com/chineduezebuiroh/realestate-intel/sarimax"
)

var (
	ErrUnknownFamily = errors.New("unknown model family")
	ErrWrongStrategy = errors.New("model family does not support this forecasting strategy")
)

// Regressor maps one feature row to one prediction. Multi-step forecasts feed predictions
// back in as lags.
type Regressor interface {
	Fit(x mat.Matrix, y []float64) error
	Predict(x mat.Matrix) ([]float64, error)
}

// ExogModel forecasts the whole horizon in one call given future exogenous rows
type ExogModel interface {
	Fit(y []float64, exog mat.Matrix) error
	Forecast(h int, futureExog mat.Matrix) (point, lower, upper []float64, err error)
}

// Strategy is how a family produces multi-step forecasts
type Strategy int

const (
	// Iterative predicts one step at a time
	Iterative Strategy = iota
	// Direct forecasts every step at once from carried-forward exogenous rows
	Direct
)

func (s Strategy) String() string {
	if s == Direct {
		return "direct"
	}
	return "iterative"
}

// Family describes a model type, its version and hyperparameters
type Family struct {
	Name     string
	Version  string
	Strategy Strategy
	Params   any

	newRegressor func() (Regressor, error)
	newExog      func() (ExogModel, error)
}

// NewRegressor returns a fresh unfitted regressor
func (f Family) NewRegressor() (Regressor, error) {
	if f.newRegressor == nil {
		return nil, fmt.Errorf("%s is %s, %w", f.Name, f.Strategy, ErrWrongStrategy)
	}
	return f.newRegressor()
}

// NewExogModel returns a fresh unfitted exogenous model
func (f Family) NewExogModel() (ExogModel, error) {
	if f.newExog == nil {
		return nil, fmt.Errorf("%s is %s, %w", f.Name, f.Strategy, ErrWrongStrategy)
	}
	return f.newExog()
}

// ParamsJSON encodes the family hyperparameters for run records
func (f Family) ParamsJSON() ([]byte, error) {
	return json.Marshal(f.Params)
}

// NewIterativeFamily wraps a regressor constructor as a family
func NewIterativeFamily(name, version string, params any, fn func() (Regressor, error)) Family {
	return Family{Name: name, Version: version, Strategy: Iterative, Params: params, newRegressor: fn}
}

// NewDirectFamily wraps an exogenous model constructor as a family
func NewDirectFamily(name, version string, params any, fn func() (ExogModel, error)) Family {
	return Family{Name: name, Version: version, Strategy: Direct, Params: params, newExog: fn}
}

const (
	NameGBM     = "gbm"
	NameLasso   = "lasso"
	NameOLS     = "ols"
	NameSARIMAX = "sarimax"
)

// GBM returns the boosted tree family
func GBM(opt *gbm.Options) (Family, error) {
	opt, err := opt.Validate()
	if err != nil {
		return Family{}, err
	}
	return Family{
		Name:     NameGBM,
		Version:  "v1",
		Strategy: Iterative,
		Params:   opt,
		newRegressor: func() (Regressor, error) {
			return gbm.New(opt)
		},
	}, nil
}

// Lasso returns the L1 regularized linear family
func Lasso(opt *linearmodel.LassoOptions) (Family, error) {
	opt, err := opt.Validate()
	if err != nil {
		return Family{}, err
	}
	return Family{
		Name:     NameLasso,
		Version:  "v1",
		Strategy: Iterative,
		Params:   opt,
		newRegressor: func() (Regressor, error) {
			// WarmStartBeta is fit state and must not leak between folds
			o := *opt
			o.WarmStartBeta = nil
			l, err := linearmodel.NewLassoRegression(&o)
			if err != nil {
				return nil, err
			}
			return &linear{Model: l}, nil
		},
	}, nil
}

// OLS returns the ordinary least squares family
func OLS(opt *linearmodel.OLSOptions) (Family, error) {
	opt, err := opt.Validate()
	if err != nil {
		return Family{}, err
	}
	return Family{
		Name:     NameOLS,
		Version:  "v1",
		Strategy: Iterative,
		Params:   opt,
		newRegressor: func() (Regressor, error) {
			o, err := linearmodel.NewOLSRegression(opt)
			if err != nil {
				return nil, err
			}
			return &linear{Model: o}, nil
		},
	}, nil
}

// SARIMAX returns the seasonal ARX family with exogenous lag columns
func SARIMAX(opt *sarimax.Options) (Family, error) {
	opt, err := opt.Validate()
	if err != nil {
		return Family{}, err
	}
	return Family{
		Name:     NameSARIMAX,
		Version:  "v1",
		Strategy: Direct,
		Params:   opt,
		newExog: func() (ExogModel, error) {
			return sarimax.New(opt)
		},
	}, nil
}

// Names lists the known family names
func Names() []string {
	return []string{NameGBM, NameLasso, NameOLS, NameSARIMAX}
}

// Lookup returns the named family with default hyperparameters
func Lookup(name string) (Family, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case NameGBM, "xgb":
		return GBM(nil)
	case NameLasso:
		return Lasso(nil)
	case NameOLS:
		return OLS(nil)
	case NameSARIMAX, "sarima":
		return SARIMAX(nil)
	}
	return Family{}, fmt.Errorf("%q not one of %v, %w", name, Names(), ErrUnknownFamily)
}
