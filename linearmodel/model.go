// Package linearmodel is a collection of linear regression fitting implementations used
// by the ols and lasso model families and by lasso feature ranking.
package linearmodel

import (
	"gonum.org/v1/gonum/mat"
)

type Model interface {
	Fit(x, y mat.Matrix) error
	Predict(x mat.Matrix) ([]float64, error)
	Score(x, y mat.Matrix) (float64, error)
	Intercept() float64
	Coef() []float64
}

// predict evaluates intercept + x * coef
func predict(x mat.Matrix, intercept float64, coef []float64) ([]float64, error) {
	if x == nil {
		return nil, ErrNoDesignMatrix
	}
	m, n := x.Dims()
	if n != len(coef) {
		return nil, errFeatureLen(n, len(coef))
	}

	res := make([]float64, m)
	if n > 0 {
		var out mat.VecDense
		out.MulVec(x, mat.NewVecDense(n, coef))
		copy(res, out.RawVector().Data)
	}
	for i := range res {
		res[i] += intercept
	}
	return res, nil
}
