// Package selection ranks design matrix columns so incremental construction can keep the
// most useful features.
package selection

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/chineduezebuiroh/realestate-intel/gbm"
	"github.com/chineduezebuiroh/realestate-intel/linearmodel"
	mat_ "github.com/chineduezebuiroh/realestate-intel/mat"
)

// ImportanceRanker scores columns by the split gain of a boosted tree fit
type ImportanceRanker struct {
	Options *gbm.Options
}

// NewImportanceRanker uses a smaller, seeded ensemble than the forecasting default
func NewImportanceRanker() *ImportanceRanker {
	opt := gbm.NewDefaultOptions()
	opt.Estimators = 200
	return &ImportanceRanker{Options: opt}
}

func (r *ImportanceRanker) Rank(x mat.Matrix, y []float64) ([]float64, error) {
	reg, err := gbm.New(r.Options)
	if err != nil {
		return nil, err
	}
	if err := reg.Fit(x, y); err != nil {
		return nil, fmt.Errorf("unable to fit importance model, %w", err)
	}
	return reg.FeatureImportance(), nil
}

// LassoRanker scores columns by the absolute coefficients of a lasso fit on standardized
// columns so scales of different series are comparable
type LassoRanker struct {
	Options *linearmodel.LassoOptions
}

func NewLassoRanker() *LassoRanker {
	opt := linearmodel.NewDefaultLassoOptions()
	opt.Lambda = 0.1
	return &LassoRanker{Options: opt}
}

func (r *LassoRanker) Rank(x mat.Matrix, y []float64) ([]float64, error) {
	if x == nil || len(y) == 0 {
		return nil, linearmodel.ErrNoTrainingMatrix
	}
	xs, _, _ := mat_.Standardize(x)

	// center and scale the target so lambda means the same thing for every target
	mean, std := stat.MeanStdDev(y, nil)
	if std == 0 || math.IsNaN(std) {
		std = 1
	}
	ys := make([]float64, len(y))
	for i, v := range y {
		ys[i] = (v - mean) / std
	}

	// Lambda is per observation
	opt := *r.Options
	opt.WarmStartBeta = nil
	opt.Lambda *= float64(len(ys))
	l, err := linearmodel.NewLassoRegression(&opt)
	if err != nil {
		return nil, err
	}
	if err := l.Fit(xs, mat.NewDense(len(ys), 1, ys)); err != nil {
		return nil, fmt.Errorf("unable to fit lasso ranker, %w", err)
	}
	coef := l.Coef()
	imp := make([]float64, len(coef))
	for i, c := range coef {
		imp[i] = math.Abs(c)
	}
	return imp, nil
}
