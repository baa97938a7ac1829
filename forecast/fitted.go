package forecast

import (
	"fmt"

	"github.com/chineduezebuiroh/realestate-intel/design"
	"github.com/chineduezebuiroh/realestate-intel/model"
)

// Fitted is a model family fit on one design matrix
type Fitted struct {
	Family model.Family

	m    *design.Matrix
	reg  model.Regressor
	exog model.ExogModel
}

// Fit trains a fresh instance of family on every row of m
func Fit(family model.Family, m *design.Matrix) (*Fitted, error) {
	f := &Fitted{Family: family, m: m}
	switch family.Strategy {
	case model.Direct:
		em, err := family.NewExogModel()
		if err != nil {
			return nil, err
		}
		if err := FitDirect(em, m.Y, m.X); err != nil {
			return nil, fmt.Errorf("fitting %s on %d rows, %w", family.Name, m.Rows(), err)
		}
		f.exog = em
	default:
		if m.Cols() == 0 {
			return nil, ErrNoFeatures
		}
		reg, err := family.NewRegressor()
		if err != nil {
			return nil, err
		}
		if err := reg.Fit(m.X, m.Y); err != nil {
			return nil, fmt.Errorf("fitting %s on %d rows, %w", family.Name, m.Rows(), err)
		}
		f.reg = reg
	}
	return f, nil
}

// Forecast extends the fitted matrix horizon periods. ext only applies to iterative
// families; direct families always repeat the last feature row.
func (f *Fitted) Forecast(horizon int, ext Extrapolator) ([]Step, error) {
	if f.exog != nil {
		return Direct(f.exog, f.m.LastRow(), f.m.T[f.m.Rows()-1], f.m.Freq, horizon)
	}
	return Iterative(f.reg, f.m, horizon, ext)
}
