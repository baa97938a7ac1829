package forecast

import (
	"fmt"
	"slices"

	"gonum.org/v1/gonum/mat"

	"github.com/chineduezebuiroh/realestate-intel/design"
	"github.com/chineduezebuiroh/realestate-intel/feature"
	"github.com/chineduezebuiroh/realestate-intel/model"
	"github.com/chineduezebuiroh/realestate-intel/series"
)

// Iterative forecasts horizon periods past the last row of m with a fitted one-step
// regressor. Each step extends every exogenous base series with ext (CarryForward when
// nil), rebuilds the lag row for the new date, predicts it and appends the prediction to
// the target and to every autoregressive base so later steps lag the model's own output.
// m is not modified.
func Iterative(reg model.Regressor, m *design.Matrix, horizon int, ext Extrapolator) ([]Step, error) {
	if horizon <= 0 {
		return nil, ErrNonPositiveHorizon
	}
	if m.Cols() == 0 {
		return nil, ErrNoFeatures
	}
	if ext == nil {
		ext = CarryForward{}
	}

	base := m.CopyBase()
	y, exists := base[feature.TargetName]
	if !exists || y.Len() == 0 {
		return nil, fmt.Errorf("%s, %w", feature.TargetName, ErrMissingBase)
	}

	var exog, autoreg []string
	for _, s := range m.Specs {
		if _, exists := base[s.Name]; !exists {
			return nil, fmt.Errorf("%s, %w", s.Name, ErrMissingBase)
		}
		if s.IsAutoregressive(m.Target) {
			autoreg = append(autoreg, s.Name)
		} else {
			exog = append(exog, s.Name)
		}
	}
	slices.Sort(exog)

	cols := m.Columns.Labels()
	row := mat.NewDense(1, len(cols), nil)
	steps := make([]Step, 0, horizon)
	for step := 1; step <= horizon; step++ {
		last, _, _ := y.Last()
		next := m.Freq.Add(last, 1)
		ord := m.Freq.Ordinal(next)

		for _, name := range exog {
			s := base[name]
			if err := s.Append(next, ext.Next(s)); err != nil {
				return nil, fmt.Errorf("extending %s, %w", name, err)
			}
		}

		for j, c := range cols {
			v, ok := valueAt(base[c.Name], m.Freq, ord-int64(c.Lag))
			if !ok {
				return nil, fmt.Errorf("%s at step %d, %w", c, step, ErrMissingLag)
			}
			row.Set(0, j, v)
		}

		pred, err := reg.Predict(row)
		if err != nil {
			return nil, fmt.Errorf("predicting step %d, %w", step, err)
		}
		if len(pred) != 1 {
			return nil, fmt.Errorf("got %d predictions, %w", len(pred), ErrPredictionLen)
		}

		if err := y.Append(next, pred[0]); err != nil {
			return nil, err
		}
		for _, name := range autoreg {
			if err := base[name].Append(next, pred[0]); err != nil {
				return nil, err
			}
		}
		steps = append(steps, Step{Date: next, Step: step, Point: pred[0]})
	}
	return steps, nil
}

// valueAt finds the observation of s in period ord, searching back from the end
func valueAt(s *series.Series, freq series.Frequency, ord int64) (float64, bool) {
	for i := s.Len() - 1; i >= 0; i-- {
		o := freq.Ordinal(s.T[i])
		if o == ord {
			return s.Y[i], true
		}
		if o < ord {
			break
		}
	}
	return 0, false
}
