// Package stats holds design matrix diagnostics.
package stats

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/chineduezebuiroh/realestate-intel/linearmodel"
)

var (
	ErrMinimumFeatures = errors.New("need at least 2 features to compute VIF")
	ErrFeatureLen      = errors.New("must have at least 3 rows to compute VIF")
)

// VarianceInflationFactor regresses every column of x on the remaining columns plus an
// intercept and returns 1/(1-R^2) per column. A column fully explained by the others gets
// +Inf and a constant column gets NaN.
func VarianceInflationFactor(x mat.Matrix) ([]float64, error) {
	m, n := x.Dims()
	if n < 2 {
		return nil, ErrMinimumFeatures
	}
	if m < 3 {
		return nil, ErrFeatureLen
	}

	vif := make([]float64, n)
	others := mat.NewDense(m, n-1, nil)
	for j := 0; j < n; j++ {
		c := 0
		for k := 0; k < n; k++ {
			if k == j {
				continue
			}
			others.SetCol(c, mat.Col(nil, k, x))
			c++
		}
		target := mat.Col(nil, j, x)

		ols, err := linearmodel.NewOLSRegression(nil)
		if err != nil {
			return nil, err
		}
		if err := ols.Fit(others, mat.NewDense(m, 1, target)); err != nil {
			return nil, fmt.Errorf("regressing column %d, %w", j, err)
		}
		predicted, err := ols.Predict(others)
		if err != nil {
			return nil, fmt.Errorf("predicting column %d, %w", j, err)
		}

		r2 := stat.RSquaredFrom(predicted, target, nil)
		if r2 >= 1 {
			vif[j] = math.Inf(1)
			continue
		}
		vif[j] = 1 / (1 - r2)
	}
	return vif, nil
}
