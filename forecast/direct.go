package forecast

import (
	"fmt"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/chineduezebuiroh/realestate-intel/model"
	"github.com/chineduezebuiroh/realestate-intel/series"
)

// Direct forecasts horizon periods after last in one call. The future exogenous matrix is
// lastRow repeated for every step. An empty lastRow forecasts without exogenous input.
func Direct(em model.ExogModel, lastRow []float64, last time.Time, freq series.Frequency, horizon int) ([]Step, error) {
	if horizon <= 0 {
		return nil, ErrNonPositiveHorizon
	}

	var future mat.Matrix
	if len(lastRow) > 0 {
		f := mat.NewDense(horizon, len(lastRow), nil)
		for i := 0; i < horizon; i++ {
			f.SetRow(i, lastRow)
		}
		future = f
	}

	point, lower, upper, err := em.Forecast(horizon, future)
	if err != nil {
		return nil, fmt.Errorf("forecasting %d steps, %w", horizon, err)
	}
	if len(point) != horizon {
		return nil, fmt.Errorf("got %d of %d steps, %w", len(point), horizon, ErrPredictionLen)
	}

	steps := make([]Step, horizon)
	for i := range steps {
		steps[i] = Step{
			Date:  freq.Add(last, i+1),
			Step:  i + 1,
			Point: point[i],
		}
		if i < len(lower) && i < len(upper) {
			lo, hi := lower[i], upper[i]
			steps[i].Lower = &lo
			steps[i].Upper = &hi
		}
	}
	return steps, nil
}

// FitDirect fits em on the design matrix target and its lag columns
func FitDirect(em model.ExogModel, y []float64, x *mat.Dense) error {
	if x == nil {
		return em.Fit(y, nil)
	}
	return em.Fit(y, x)
}
