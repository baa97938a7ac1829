// Package sarimax fits a seasonal autoregressive model with exogenous regressors on the
// differenced target by conditional least squares and forecasts it with normal intervals.
//
// The model is
//
//	w_t = c + sum_i phi_i w_{t-i} + sum_j Phi_j w_{t-j*s} + beta . dx_t + e_t
//
// where w and dx are the target and exogenous columns after d regular and D seasonal
// differences.
package sarimax

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/chineduezebuiroh/realestate-intel/linearmodel"
)

var (
	ErrNegativeOrder      = errors.New("orders must be non-negative")
	ErrInvalidPeriod      = errors.New("seasonal period must be at least 2 when seasonal orders are set")
	ErrInvalidAlpha       = errors.New("alpha must be in (0, 1)")
	ErrInsufficientData   = errors.New("not enough observations for the model order")
	ErrExogLenMismatch    = errors.New("exogenous rows do not match observations")
	ErrFutureExogMismatch = errors.New("future exogenous matrix does not match the fitted model")
	ErrNotFitted          = errors.New("model has not been fit")
	ErrNonPositiveHorizon = errors.New("horizon must be positive")
)

// Options holds the model order. Moving average terms are not estimated.
type Options struct {
	P      int     `json:"p"`
	D      int     `json:"d"`
	SP     int     `json:"seasonal_p"`
	SD     int     `json:"seasonal_d"`
	Period int     `json:"seasonal_period"`
	Alpha  float64 `json:"alpha"`
}

// NewDefaultOptions returns an order (1,1,0)(1,1,0,12) with 95% intervals
func NewDefaultOptions() *Options {
	return &Options{
		P:      1,
		D:      1,
		SP:     1,
		SD:     1,
		Period: 12,
		Alpha:  0.05,
	}
}

// Validate runs basic validation on the options
func (o *Options) Validate() (*Options, error) {
	if o == nil {
		o = NewDefaultOptions()
	}
	if o.P < 0 || o.D < 0 || o.SP < 0 || o.SD < 0 {
		return nil, ErrNegativeOrder
	}
	if (o.SP > 0 || o.SD > 0) && o.Period < 2 {
		return nil, ErrInvalidPeriod
	}
	if o.Alpha <= 0 || o.Alpha >= 1 {
		return nil, ErrInvalidAlpha
	}
	return o, nil
}

// Model is a fitted or unfitted seasonal ARX model
type Model struct {
	opt *Options

	poly []float64 // differencing operator coefficients on B^k
	nExo int

	intercept float64
	ar        []float64
	sar       []float64
	beta      []float64
	sigma     float64

	y      []float64   // target history
	x      [][]float64 // exogenous history rows
	w      []float64   // differenced target history
	fitted bool
}

func New(opt *Options) (*Model, error) {
	opt, err := opt.Validate()
	if err != nil {
		return nil, err
	}
	return &Model{opt: opt, poly: diffOperator(opt.D, opt.SD, opt.Period)}, nil
}

// diffOperator expands (1-B)^d (1-B^s)^D into coefficients of B^0..B^k
func diffOperator(d, sd, s int) []float64 {
	poly := []float64{1}
	for i := 0; i < d; i++ {
		poly = polyMul(poly, []float64{1, -1})
	}
	if s > 0 {
		seasonal := make([]float64, s+1)
		seasonal[0], seasonal[s] = 1, -1
		for i := 0; i < sd; i++ {
			poly = polyMul(poly, seasonal)
		}
	}
	return poly
}

func polyMul(a, b []float64) []float64 {
	out := make([]float64, len(a)+len(b)-1)
	for i, x := range a {
		for j, y := range b {
			out[i+j] += x * y
		}
	}
	return out
}

// psiWeights returns the first h weights of the fitted model written as an infinite moving
// average of the shocks on y. The error variance of step k is sigma^2 * sum_{j<k} psi_j^2.
func (m *Model) psiWeights(h int) []float64 {
	ar := make([]float64, m.maxLag()+1)
	ar[0] = 1
	for i, phi := range m.ar {
		ar[i+1] -= phi
	}
	for j, phi := range m.sar {
		ar[(j+1)*m.opt.Period] -= phi
	}
	// phi(B) times the differencing operator
	full := polyMul(ar, m.poly)

	psi := make([]float64, h)
	psi[0] = 1
	for j := 1; j < h; j++ {
		var v float64
		for k := 1; k <= j && k < len(full); k++ {
			v -= full[k] * psi[j-k]
		}
		psi[j] = v
	}
	return psi
}

// apply returns the differenced value at t of a series given by at
func (m *Model) apply(at func(int) float64, t int) float64 {
	var v float64
	for k, c := range m.poly {
		if c != 0 {
			v += c * at(t-k)
		}
	}
	return v
}

func (m *Model) maxLag() int {
	return max(m.opt.P, m.opt.SP*m.opt.Period)
}

func (m *Model) nCoef() int {
	return 1 + m.opt.P + m.opt.SP + m.nExo
}

// regressors returns the lagged and exogenous regressors of w at t. w must be defined up
// to t-1 and dx at t.
func (m *Model) regressors(w []float64, dx []float64, t int) []float64 {
	row := make([]float64, 0, m.nCoef()-1)
	for i := 1; i <= m.opt.P; i++ {
		row = append(row, w[t-i])
	}
	for j := 1; j <= m.opt.SP; j++ {
		row = append(row, w[t-j*m.opt.Period])
	}
	return append(row, dx...)
}

// Fit estimates the model on y with optional exogenous columns aligned row by row
func (m *Model) Fit(y []float64, exog mat.Matrix) error {
	n := len(y)
	if exog != nil {
		r, c := exog.Dims()
		if r != n {
			return fmt.Errorf("exog has %d rows and target has %d, %w", r, n, ErrExogLenMismatch)
		}
		m.nExo = c
	} else {
		m.nExo = 0
	}

	k0 := len(m.poly) - 1
	start := k0 + m.maxLag()
	rows := n - start
	if rows <= m.nCoef() {
		return fmt.Errorf("%d observations leave %d rows for %d coefficients, %w", n, max(rows, 0), m.nCoef(), ErrInsufficientData)
	}

	m.y = append([]float64(nil), y...)
	m.x = make([][]float64, n)
	for i := 0; i < n; i++ {
		if exog != nil {
			m.x[i] = mat.Row(nil, i, exog)
		}
	}

	// w[t] is defined for t >= k0, earlier entries are unused
	m.w = make([]float64, n)
	for t := k0; t < n; t++ {
		m.w[t] = m.apply(func(i int) float64 { return m.y[i] }, t)
	}

	design := make([][]float64, 0, rows)
	target := make([]float64, 0, rows)
	for t := start; t < n; t++ {
		design = append(design, m.regressors(m.w, m.diffExog(t), t))
		target = append(target, m.w[t])
	}

	ols, err := linearmodel.NewOLSRegression(nil)
	if err != nil {
		return err
	}
	if cols := m.nCoef() - 1; cols > 0 {
		x := mat.NewDense(rows, cols, nil)
		for i, r := range design {
			x.SetRow(i, r)
		}
		if err := ols.Fit(x, mat.NewDense(rows, 1, target)); err != nil {
			return fmt.Errorf("fitting seasonal arx, %w", err)
		}
		coef := ols.Coef()
		m.intercept = ols.Intercept()
		m.ar = coef[:m.opt.P]
		m.sar = coef[m.opt.P : m.opt.P+m.opt.SP]
		m.beta = coef[m.opt.P+m.opt.SP:]
		resid := ols.Residuals()
		m.sigma = math.Sqrt(floats.Dot(resid, resid) / float64(max(rows-m.nCoef(), 1)))
	} else {
		// white noise around a drift on the differenced series
		var sse float64
		m.intercept = floats.Sum(target) / float64(rows)
		for _, v := range target {
			sse += (v - m.intercept) * (v - m.intercept)
		}
		m.ar, m.sar, m.beta = nil, nil, nil
		m.sigma = math.Sqrt(sse / float64(max(rows-1, 1)))
	}
	m.fitted = true
	return nil
}

func (m *Model) diffExog(t int) []float64 {
	if m.nExo == 0 {
		return nil
	}
	dx := make([]float64, m.nExo)
	for j := range dx {
		dx[j] = m.apply(func(i int) float64 { return m.x[i][j] }, t)
	}
	return dx
}

// Forecast predicts h steps past the end of the training data. futureExog must hold h
// rows when the model was fit with exogenous columns. The interval of each step uses the
// psi weights of the fitted AR and differencing polynomials and ignores parameter
// uncertainty.
func (m *Model) Forecast(h int, futureExog mat.Matrix) ([]float64, []float64, []float64, error) {
	if !m.fitted {
		return nil, nil, nil, ErrNotFitted
	}
	if h <= 0 {
		return nil, nil, nil, ErrNonPositiveHorizon
	}
	if m.nExo > 0 {
		if futureExog == nil {
			return nil, nil, nil, fmt.Errorf("missing future exogenous rows, %w", ErrFutureExogMismatch)
		}
		r, c := futureExog.Dims()
		if r < h || c != m.nExo {
			return nil, nil, nil, fmt.Errorf("future exog is %dx%d, need %dx%d, %w", r, c, h, m.nExo, ErrFutureExogMismatch)
		}
	}

	// extend copies of the histories so the model can be forecast repeatedly
	n := len(m.y)
	ys := make([]float64, n, n+h)
	copy(ys, m.y)
	xs := make([][]float64, n, n+h)
	copy(xs, m.x)
	w := make([]float64, n, n+h)
	copy(w, m.w)

	z := distuv.UnitNormal.Quantile(1 - m.opt.Alpha/2)
	point := make([]float64, h)
	lower := make([]float64, h)
	upper := make([]float64, h)
	psi := m.psiWeights(h)
	var variance float64

	for step := 0; step < h; step++ {
		t := n + step
		if m.nExo > 0 {
			xs = append(xs, mat.Row(nil, step, futureExog))
		} else {
			xs = append(xs, nil)
		}

		var dx []float64
		if m.nExo > 0 {
			dx = make([]float64, m.nExo)
			for j := range dx {
				dx[j] = m.apply(func(i int) float64 { return xs[i][j] }, t)
			}
		}

		w = append(w, 0)
		what := m.intercept
		if len(m.ar)+len(m.sar)+len(m.beta) > 0 {
			reg := m.regressors(w, dx, t)
			coef := append(append(append([]float64(nil), m.ar...), m.sar...), m.beta...)
			what += floats.Dot(reg, coef)
		}
		w[t] = what

		// invert the differencing: y_t = w_t - sum_{k>=1} poly_k y_{t-k}
		ys = append(ys, 0)
		yhat := what
		for k := 1; k < len(m.poly); k++ {
			yhat -= m.poly[k] * ys[t-k]
		}
		ys[t] = yhat

		variance += psi[step] * psi[step]
		half := z * m.sigma * math.Sqrt(variance)
		point[step] = yhat
		lower[step] = yhat - half
		upper[step] = yhat + half
	}
	return point, lower, upper, nil
}

// Sigma returns the residual standard deviation of the fit
func (m *Model) Sigma() float64 {
	return m.sigma
}
