package stats

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestVarianceInflationFactor(t *testing.T) {
	const n = 30
	a := make([]float64, n)
	b := make([]float64, n)
	for k := 0; k < n; k++ {
		a[k] = float64(k % 3)
		b[k] = float64(k % 5)
	}

	t.Run("uncorrelated columns", func(t *testing.T) {
		x := mat.NewDense(n, 2, nil)
		x.SetCol(0, a)
		x.SetCol(1, b)

		vif, err := VarianceInflationFactor(x)
		require.NoError(t, err)
		require.Len(t, vif, 2)
		// every residue pair appears equally often so the columns are uncorrelated
		assert.InDeltaSlice(t, []float64{1, 1}, vif, 1e-6)
	})

	t.Run("column is a sum of others", func(t *testing.T) {
		sum := make([]float64, n)
		for k := range sum {
			sum[k] = a[k] + 2*b[k] + float64(k%7)
		}
		c := make([]float64, n)
		for k := range c {
			c[k] = float64(k % 7)
		}
		x := mat.NewDense(n, 4, nil)
		x.SetCol(0, a)
		x.SetCol(1, b)
		x.SetCol(2, c)
		x.SetCol(3, sum)

		vif, err := VarianceInflationFactor(x)
		require.NoError(t, err)
		assert.True(t, math.IsInf(vif[3], 1) || vif[3] > 1e6, "got %f", vif[3])
	})
}

func TestVarianceInflationFactorErrors(t *testing.T) {
	testData := map[string]struct {
		x   mat.Matrix
		err error
	}{
		"single column": {
			x:   mat.NewDense(5, 1, nil),
			err: ErrMinimumFeatures,
		},
		"too few rows": {
			x:   mat.NewDense(2, 2, []float64{1, 2, 3, 4}),
			err: ErrFeatureLen,
		},
	}

	for name, td := range testData {
		t.Run(name, func(t *testing.T) {
			_, err := VarianceInflationFactor(td.x)
			assert.ErrorIs(t, err, td.err)
		})
	}
}
