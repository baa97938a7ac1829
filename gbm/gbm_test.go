package gbm

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestOptionsValidate(t *testing.T) {
	testData := map[string]struct {
		opt *Options
		err error
	}{
		"nil uses defaults": {},
		"zero estimators":   {opt: &Options{MaxDepth: 1, LearningRate: 0.1, Subsample: 1, ColSample: 1}, err: ErrNonPositiveEstimators},
		"zero depth":        {opt: &Options{Estimators: 1, LearningRate: 0.1, Subsample: 1, ColSample: 1}, err: ErrNonPositiveDepth},
		"learning rate":     {opt: &Options{Estimators: 1, MaxDepth: 1, LearningRate: 2, Subsample: 1, ColSample: 1}, err: ErrInvalidLearningRate},
		"subsample":         {opt: &Options{Estimators: 1, MaxDepth: 1, LearningRate: 0.1, Subsample: 0, ColSample: 1}, err: ErrInvalidFraction},
		"colsample":         {opt: &Options{Estimators: 1, MaxDepth: 1, LearningRate: 0.1, Subsample: 1, ColSample: 1.5}, err: ErrInvalidFraction},
	}

	for name, td := range testData {
		t.Run(name, func(t *testing.T) {
			opt, err := td.opt.Validate()
			if td.err != nil {
				assert.ErrorIs(t, err, td.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, NewDefaultOptions(), opt)
		})
	}
}

// stepData has y depending on the first column only, the second column is a sawtooth
func stepData(n int) (*mat.Dense, []float64) {
	x := mat.NewDense(n, 2, nil)
	y := make([]float64, n)
	for i := 0; i < n; i++ {
		x.Set(i, 0, float64(i))
		x.Set(i, 1, float64(i%7))
		if i < n/2 {
			y[i] = 10
		} else {
			y[i] = 20
		}
	}
	return x, y
}

func TestFitPredict(t *testing.T) {
	x, y := stepData(60)

	opt := NewDefaultOptions()
	opt.Estimators = 200
	opt.LearningRate = 0.1
	model, err := New(opt)
	require.NoError(t, err)
	require.NoError(t, model.Fit(x, y))

	pred, err := model.Predict(x)
	require.NoError(t, err)
	for i := range y {
		assert.InDelta(t, y[i], pred[i], 0.5, "row %d", i)
	}

	imp := model.FeatureImportance()
	require.Len(t, imp, 2)
	assert.InDelta(t, 1.0, imp[0]+imp[1], 1e-9)
	assert.Greater(t, imp[0], imp[1])
}

func TestFitIsDeterministic(t *testing.T) {
	x, y := stepData(40)
	fit := func() ([]float64, []float64) {
		model, err := New(nil)
		require.NoError(t, err)
		require.NoError(t, model.Fit(x, y))
		pred, err := model.Predict(x)
		require.NoError(t, err)
		return pred, model.FeatureImportance()
	}

	p1, i1 := fit()
	p2, i2 := fit()
	assert.Equal(t, p1, p2)
	assert.Equal(t, i1, i2)
}

func TestConstantTarget(t *testing.T) {
	x, _ := stepData(10)
	y := make([]float64, 10)
	for i := range y {
		y[i] = 3
	}
	model, err := New(nil)
	require.NoError(t, err)
	require.NoError(t, model.Fit(x, y))

	pred, err := model.Predict(mat.NewDense(1, 2, []float64{100, 100}))
	require.NoError(t, err)
	assert.InDelta(t, 3, pred[0], 1e-9)
	for _, v := range model.FeatureImportance() {
		assert.False(t, math.IsNaN(v))
		assert.Equal(t, 0.0, v)
	}
}

func TestErrors(t *testing.T) {
	model, err := New(nil)
	require.NoError(t, err)

	_, err = model.Predict(mat.NewDense(1, 2, nil))
	assert.ErrorIs(t, err, ErrNotFitted)

	x, y := stepData(10)
	assert.ErrorIs(t, model.Fit(x, y[:5]), ErrTargetLenMismatch)
	assert.ErrorIs(t, model.Fit(nil, y), ErrNoTrainingMatrix)

	require.NoError(t, model.Fit(x, y))
	_, err = model.Predict(mat.NewDense(1, 3, nil))
	assert.ErrorIs(t, err, ErrFeatureLenMismatch)
}
