package mat

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

func TestNewDenseFromArray(t *testing.T) {
	testData := map[string]struct {
		err error
		x   [][]float64
		m   int
		n   int
	}{
		"nil input": {
			err: ErrEmptyArray,
		},
		"empty rows": {
			err: ErrEmptyArray,
			x:   [][]float64{{}, {}},
		},
		"single element": {
			x: [][]float64{{1}},
			m: 1, n: 1,
		},
		"one row multiple cols": {
			x: [][]float64{{1, 2, 3}},
			m: 1, n: 3,
		},
		"multiple rows and cols": {
			x: [][]float64{{1, 2, 3}, {4, 5, 6}},
			m: 2, n: 3,
		},
		"inconsistent cols": {
			err: ErrColMismatch,
			x:   [][]float64{{1, 2, 3}, {4, 5}},
		},
	}

	for name, td := range testData {
		t.Run(name, func(t *testing.T) {
			mx, err := NewDenseFromArray(td.x)
			if td.err != nil {
				assert.ErrorIs(t, err, td.err)
				return
			}
			require.NoError(t, err)

			m, n := mx.Dims()
			assert.Equal(t, td.m, m, "m")
			assert.Equal(t, td.n, n, "n")
			for ri, row := range td.x {
				assert.Equal(t, row, mat.Row(nil, ri, mx), "array")
			}
		})
	}
}

func TestWithIntercept(t *testing.T) {
	x := mat.NewDense(2, 2, []float64{3, 4, 5, 6})
	res := WithIntercept(x)

	r, c := res.Dims()
	assert.Equal(t, 2, r)
	assert.Equal(t, 3, c)
	assert.Equal(t, []float64{1, 3, 4}, mat.Row(nil, 0, res))
	assert.Equal(t, []float64{1, 5, 6}, mat.Row(nil, 1, res))
}

func TestStandardize(t *testing.T) {
	x := mat.NewDense(4, 2, []float64{
		1, 7,
		2, 7,
		3, 7,
		4, 7,
	})
	res, means, stds := Standardize(x)

	assert.Equal(t, []float64{2.5, 7}, means)
	assert.Equal(t, 1.0, stds[1])

	col := mat.Col(nil, 0, res)
	mean, std := stat.MeanStdDev(col, nil)
	assert.InDelta(t, 0, mean, 1e-12)
	assert.InDelta(t, 1, std, 1e-12)
	assert.Equal(t, []float64{0, 0, 0, 0}, mat.Col(nil, 1, res))
}
