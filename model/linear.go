package model

import (
	"gonum.org/v1/gonum/mat"

	"github.com/chineduezebuiroh/realestate-intel/linearmodel"
)

// linear adapts a linearmodel.Model to take the target as a plain slice
type linear struct {
	linearmodel.Model
}

func (l *linear) Fit(x mat.Matrix, y []float64) error {
	if x == nil {
		return linearmodel.ErrNoTrainingMatrix
	}
	if len(y) == 0 {
		return linearmodel.ErrNoTargetMatrix
	}
	return l.Model.Fit(x, mat.NewDense(len(y), 1, y))
}
