// Package gbm fits gradient-boosted regression trees on squared error. Row and column
// subsampling draw from a seeded source so fits and feature importances are reproducible.
package gbm

import (
	"errors"
	"fmt"
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

const (
	DefaultEstimators     = 400
	DefaultMaxDepth       = 4
	DefaultLearningRate   = 0.05
	DefaultSubsample      = 0.8
	DefaultColSample      = 0.8
	DefaultMinSamplesLeaf = 1
	DefaultSeed           = 42
)

var (
	ErrNonPositiveEstimators = errors.New("number of estimators must be positive")
	ErrNonPositiveDepth      = errors.New("max depth must be positive")
	ErrInvalidLearningRate   = errors.New("learning rate must be in (0, 1]")
	ErrInvalidFraction       = errors.New("sampling fraction must be in (0, 1]")
	ErrNoTrainingMatrix      = errors.New("no training matrix")
	ErrTargetLenMismatch     = errors.New("target length does not match training rows")
	ErrFeatureLenMismatch    = errors.New("number of features does not match the fitted model")
	ErrNotFitted             = errors.New("model has not been fit")
)

// Options configures the ensemble
type Options struct {
	Estimators     int     `json:"n_estimators"`
	MaxDepth       int     `json:"max_depth"`
	LearningRate   float64 `json:"learning_rate"`
	Subsample      float64 `json:"subsample"`
	ColSample      float64 `json:"colsample_bytree"`
	MinSamplesLeaf int     `json:"min_samples_leaf"`
	Seed           uint64  `json:"random_state"`
}

// NewDefaultOptions returns the default ensemble configuration
func NewDefaultOptions() *Options {
	return &Options{
		Estimators:     DefaultEstimators,
		MaxDepth:       DefaultMaxDepth,
		LearningRate:   DefaultLearningRate,
		Subsample:      DefaultSubsample,
		ColSample:      DefaultColSample,
		MinSamplesLeaf: DefaultMinSamplesLeaf,
		Seed:           DefaultSeed,
	}
}

// Validate runs basic validation on the options
func (o *Options) Validate() (*Options, error) {
	if o == nil {
		o = NewDefaultOptions()
	}
	if o.Estimators <= 0 {
		return nil, ErrNonPositiveEstimators
	}
	if o.MaxDepth <= 0 {
		return nil, ErrNonPositiveDepth
	}
	if o.LearningRate <= 0 || o.LearningRate > 1 {
		return nil, ErrInvalidLearningRate
	}
	if o.Subsample <= 0 || o.Subsample > 1 {
		return nil, fmt.Errorf("subsample %.2f, %w", o.Subsample, ErrInvalidFraction)
	}
	if o.ColSample <= 0 || o.ColSample > 1 {
		return nil, fmt.Errorf("colsample %.2f, %w", o.ColSample, ErrInvalidFraction)
	}
	if o.MinSamplesLeaf < 1 {
		o.MinSamplesLeaf = 1
	}
	return o, nil
}

// Regressor is a fitted or unfitted boosted ensemble
type Regressor struct {
	opt        *Options
	base       float64
	trees      []*node
	nFeat      int
	importance []float64
}

func New(opt *Options) (*Regressor, error) {
	opt, err := opt.Validate()
	if err != nil {
		return nil, err
	}
	return &Regressor{opt: opt}, nil
}

// Fit trains the ensemble on the rows of x
func (r *Regressor) Fit(x mat.Matrix, y []float64) error {
	if x == nil {
		return ErrNoTrainingMatrix
	}
	m, n := x.Dims()
	if m == 0 || n == 0 {
		return ErrNoTrainingMatrix
	}
	if len(y) != m {
		return fmt.Errorf("training data has %d rows and target has %d rows, %w", m, len(y), ErrTargetLenMismatch)
	}

	rows := make([][]float64, m)
	for i := range rows {
		rows[i] = mat.Row(nil, i, x)
	}

	rng := rand.New(rand.NewPCG(r.opt.Seed, r.opt.Seed^0x9e3779b97f4a7c15))

	r.nFeat = n
	r.base = stat.Mean(y, nil)
	r.trees = make([]*node, 0, r.opt.Estimators)
	r.importance = make([]float64, n)

	pred := make([]float64, m)
	floats.AddConst(r.base, pred)
	resid := make([]float64, m)

	nRows := max(1, int(float64(m)*r.opt.Subsample+0.5))
	nCols := max(1, int(float64(n)*r.opt.ColSample+0.5))

	for e := 0; e < r.opt.Estimators; e++ {
		floats.SubTo(resid, y, pred)

		sample := rng.Perm(m)[:nRows]
		cols := rng.Perm(n)[:nCols]

		b := builder{
			rows:       rows,
			resid:      resid,
			cols:       cols,
			maxDepth:   r.opt.MaxDepth,
			minLeaf:    r.opt.MinSamplesLeaf,
			importance: r.importance,
		}
		tree := b.grow(sample, 0)
		tree.scale(r.opt.LearningRate)
		r.trees = append(r.trees, tree)

		for i, row := range rows {
			pred[i] += tree.predict(row)
		}
	}
	return nil
}

// Predict evaluates the ensemble on every row of x
func (r *Regressor) Predict(x mat.Matrix) ([]float64, error) {
	if r.trees == nil {
		return nil, ErrNotFitted
	}
	if x == nil {
		return nil, ErrNoTrainingMatrix
	}
	m, n := x.Dims()
	if n != r.nFeat {
		return nil, fmt.Errorf("got %d features, but expected %d, %w", n, r.nFeat, ErrFeatureLenMismatch)
	}

	res := make([]float64, m)
	row := make([]float64, n)
	for i := 0; i < m; i++ {
		mat.Row(row, i, x)
		v := r.base
		for _, t := range r.trees {
			v += t.predict(row)
		}
		res[i] = v
	}
	return res, nil
}

// FeatureImportance returns the total squared error reduction of each feature across all
// splits, normalized to sum to 1. A feature that was never split on has zero importance.
func (r *Regressor) FeatureImportance() []float64 {
	imp := make([]float64, len(r.importance))
	copy(imp, r.importance)
	if total := floats.Sum(imp); total > 0 {
		floats.Scale(1/total, imp)
	}
	return imp
}
