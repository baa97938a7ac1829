// Package mat holds dense matrix helpers shared by the design matrix builder and the
// model families.
package mat

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

var (
	ErrEmptyArray  = errors.New("empty array")
	ErrColMismatch = errors.New("column size mismatch")
)

// NewDenseFromArray builds a row-major dense matrix from a slice of rows
func NewDenseFromArray(x [][]float64) (*mat.Dense, error) {
	m := len(x)

	n := -1
	for i, row := range x {
		if n >= 0 && len(row) != n {
			return nil, fmt.Errorf("at row %d, %w", i, ErrColMismatch)
		}
		if n < 0 {
			n = len(row)
		}
	}
	if m == 0 || n <= 0 {
		return nil, ErrEmptyArray
	}

	// flatten to row order
	data := make([]float64, 0, m*n)
	for _, row := range x {
		data = append(data, row...)
	}
	return mat.NewDense(m, n, data), nil
}

// WithIntercept returns x with a constant 1.0 column prepended
func WithIntercept(x mat.Matrix) *mat.Dense {
	m, _ := x.Dims()
	ones := make([]float64, m)
	floats.AddConst(1.0, ones)
	onesMx := mat.NewDense(1, m, ones)

	var xWithOnes mat.Dense
	xWithOnes.Stack(onesMx, x.T())
	return mat.DenseCopyOf(xWithOnes.T())
}

// Standardize returns x with every column centered and scaled to unit variance along
// with the column means and standard deviations. Constant columns are only centered.
func Standardize(x mat.Matrix) (*mat.Dense, []float64, []float64) {
	m, n := x.Dims()
	out := mat.NewDense(m, n, nil)
	means := make([]float64, n)
	stds := make([]float64, n)
	for j := 0; j < n; j++ {
		col := mat.Col(nil, j, x)
		mean, std := stat.MeanStdDev(col, nil)
		if std == 0 || math.IsNaN(std) {
			std = 1
		}
		means[j] = mean
		stds[j] = std
		floats.AddConst(-mean, col)
		floats.Scale(1/std, col)
		out.SetCol(j, col)
	}
	return out, means, stds
}
