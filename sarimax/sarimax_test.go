package sarimax

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

func TestOptionsValidate(t *testing.T) {
	testData := map[string]struct {
		opt *Options
		err error
	}{
		"nil defaults":      {nil, nil},
		"negative order":    {&Options{P: -1, Alpha: 0.05}, ErrNegativeOrder},
		"seasonal period":   {&Options{SD: 1, Period: 1, Alpha: 0.05}, ErrInvalidPeriod},
		"alpha zero":        {&Options{Alpha: 0}, ErrInvalidAlpha},
		"alpha one":         {&Options{Alpha: 1}, ErrInvalidAlpha},
		"plain differenced": {&Options{D: 1, Alpha: 0.1}, nil},
	}
	for name, td := range testData {
		t.Run(name, func(t *testing.T) {
			opt, err := td.opt.Validate()
			if td.err != nil {
				assert.ErrorIs(t, err, td.err)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, opt)
		})
	}
}

func TestDiffOperator(t *testing.T) {
	testData := map[string]struct {
		d, sd, s int
		expected []float64
	}{
		"identity":       {0, 0, 0, []float64{1}},
		"first":          {1, 0, 0, []float64{1, -1}},
		"second":         {2, 0, 0, []float64{1, -2, 1}},
		"seasonal":       {0, 1, 4, []float64{1, 0, 0, 0, -1}},
		"first seasonal": {1, 1, 4, []float64{1, -1, 0, 0, -1, 1}},
	}
	for name, td := range testData {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, td.expected, diffOperator(td.d, td.sd, td.s))
		})
	}
}

func TestPsiWeights(t *testing.T) {
	testData := map[string]struct {
		opt      *Options
		ar, sar  []float64
		expected []float64
	}{
		"random walk": {
			opt:      &Options{D: 1},
			expected: []float64{1, 1, 1, 1},
		},
		"ar one": {
			opt:      &Options{P: 1},
			ar:       []float64{0.5},
			expected: []float64{1, 0.5, 0.25, 0.125},
		},
		"ar one differenced": {
			opt:      &Options{P: 1, D: 1},
			ar:       []float64{0.5},
			expected: []float64{1, 1.5, 1.75, 1.875},
		},
		"seasonal difference": {
			opt:      &Options{SD: 1, Period: 4},
			expected: []float64{1, 0, 0, 0, 1, 0, 0, 0, 1},
		},
		"seasonal ar": {
			opt:      &Options{SP: 1, Period: 2},
			sar:      []float64{0.5},
			expected: []float64{1, 0, 0.5, 0, 0.25},
		},
	}
	for name, td := range testData {
		t.Run(name, func(t *testing.T) {
			m := &Model{opt: td.opt, poly: diffOperator(td.opt.D, td.opt.SD, td.opt.Period), ar: td.ar, sar: td.sar}
			assert.InDeltaSlice(t, td.expected, m.psiWeights(len(td.expected)), 1e-12)
		})
	}
}

func TestForecastIntervalFollowsPsiWeights(t *testing.T) {
	// a stationary ar(1) interval levels off instead of growing like a random walk
	y := make([]float64, 80)
	y[0] = 10
	for i := 1; i < len(y); i++ {
		y[i] = 10 + 0.5*(y[i-1]-10) + math.Sin(1.3*float64(i*i))
	}
	m, err := New(&Options{P: 1, Alpha: 0.05})
	require.NoError(t, err)
	require.NoError(t, m.Fit(y, nil))

	h := 12
	point, lower, upper, err := m.Forecast(h, nil)
	require.NoError(t, err)
	require.Len(t, point, h)

	psi := m.psiWeights(h)
	z := distuv.UnitNormal.Quantile(0.975)
	var variance float64
	for step := 0; step < h; step++ {
		variance += psi[step] * psi[step]
		assert.InDelta(t, z*m.Sigma()*math.Sqrt(variance), upper[step]-point[step], 1e-6)
		assert.InDelta(t, upper[step]-point[step], point[step]-lower[step], 1e-9)
	}
	assert.Less(t, upper[h-1]-point[h-1], z*m.Sigma()*math.Sqrt(float64(h)))
}

func TestForecastLinearTrend(t *testing.T) {
	y := make([]float64, 30)
	for i := range y {
		y[i] = 5 + 2*float64(i)
	}
	m, err := New(&Options{D: 1, Alpha: 0.05})
	require.NoError(t, err)
	require.NoError(t, m.Fit(y, nil))

	point, lower, upper, err := m.Forecast(4, nil)
	require.NoError(t, err)
	for h := range point {
		assert.InDelta(t, 5+2*float64(30+h), point[h], 1e-9)
		assert.InDelta(t, point[h], lower[h], 1e-9)
		assert.InDelta(t, point[h], upper[h], 1e-9)
	}
}

func TestForecastSeasonalPattern(t *testing.T) {
	season := []float64{3, 1, -2, 0, 4, 2, -1, -3, 0, 1, 2, -4}
	gen := func(i int) float64 { return 10 + 0.5*float64(i) + season[i%12] }

	y := make([]float64, 48)
	for i := range y {
		y[i] = gen(i)
	}
	m, err := New(&Options{D: 1, SD: 1, Period: 12, Alpha: 0.05})
	require.NoError(t, err)
	require.NoError(t, m.Fit(y, nil))

	point, _, _, err := m.Forecast(12, nil)
	require.NoError(t, err)
	for h := range point {
		assert.InDelta(t, gen(48+h), point[h], 1e-6)
	}
}

func TestForecastIntervalsWiden(t *testing.T) {
	y := make([]float64, 60)
	for i := range y {
		y[i] = 100 + float64(i) + 5*math.Sin(2*math.Pi*float64(i)/12) + 0.3*math.Sin(1.7*float64(i)*float64(i))
	}
	m, err := New(nil)
	require.NoError(t, err)
	require.NoError(t, m.Fit(y, nil))
	assert.Greater(t, m.Sigma(), 0.0)

	point, lower, upper, err := m.Forecast(6, nil)
	require.NoError(t, err)
	require.Len(t, point, 6)

	prevWidth := 0.0
	for h := range point {
		assert.Less(t, lower[h], point[h])
		assert.Greater(t, upper[h], point[h])
		width := upper[h] - lower[h]
		assert.Greater(t, width, prevWidth)
		prevWidth = width
	}

	// forecasting does not mutate the fitted history
	again, _, _, err := m.Forecast(6, nil)
	require.NoError(t, err)
	assert.Equal(t, point, again)
}

func TestForecastWithExog(t *testing.T) {
	xv := func(i int) float64 { return 0.1*float64(i*i) + math.Sin(float64(i)) }

	n, h := 40, 3
	y := make([]float64, n)
	exog := mat.NewDense(n, 1, nil)
	for i := 0; i < n; i++ {
		exog.Set(i, 0, xv(i))
		y[i] = 3 * xv(i)
	}
	future := mat.NewDense(h, 1, nil)
	for i := 0; i < h; i++ {
		future.Set(i, 0, xv(n+i))
	}

	m, err := New(&Options{D: 1, Alpha: 0.05})
	require.NoError(t, err)
	require.NoError(t, m.Fit(y, exog))

	point, _, _, err := m.Forecast(h, future)
	require.NoError(t, err)
	for i := range point {
		assert.InDelta(t, 3*xv(n+i), point[i], 1e-6)
	}

	_, _, _, err = m.Forecast(h, nil)
	assert.ErrorIs(t, err, ErrFutureExogMismatch)

	_, _, _, err = m.Forecast(h, mat.NewDense(h-1, 1, nil))
	assert.ErrorIs(t, err, ErrFutureExogMismatch)
}

func TestFitErrors(t *testing.T) {
	m, err := New(nil)
	require.NoError(t, err)

	_, _, _, err = m.Forecast(1, nil)
	assert.ErrorIs(t, err, ErrNotFitted)

	err = m.Fit(make([]float64, 20), nil)
	assert.ErrorIs(t, err, ErrInsufficientData)

	err = m.Fit(make([]float64, 60), mat.NewDense(59, 1, nil))
	assert.ErrorIs(t, err, ErrExogLenMismatch)

	y := make([]float64, 10)
	for i := range y {
		y[i] = float64(i)
	}
	plain, err := New(&Options{D: 1, Alpha: 0.05})
	require.NoError(t, err)
	require.NoError(t, plain.Fit(y, nil))
	_, _, _, err = plain.Forecast(0, nil)
	assert.ErrorIs(t, err, ErrNonPositiveHorizon)
}
