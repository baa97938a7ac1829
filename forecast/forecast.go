// Package forecast extends a fitted model past the end of its design matrix, either one
// period at a time feeding predictions back in as lags, or in a single call for models
// that take future exogenous rows.
package forecast

import (
	"errors"
	"time"
)

var (
	ErrNonPositiveHorizon = errors.New("horizon must be positive")
	ErrNoFeatures         = errors.New("design matrix has no feature columns")
	ErrMissingBase        = errors.New("base series missing for feature")
	ErrMissingLag         = errors.New("lag value unavailable for forecast date")
	ErrPredictionLen      = errors.New("model returned the wrong number of predictions")
)

// Step is one forecast period. Lower and Upper are nil when the model gives no interval.
type Step struct {
	Date  time.Time `json:"date"`
	Step  int       `json:"step"`
	Point float64   `json:"point"`
	Lower *float64  `json:"lower,omitempty"`
	Upper *float64  `json:"upper,omitempty"`
}

// Points returns the point estimates of steps in order
func Points(steps []Step) []float64 {
	out := make([]float64, len(steps))
	for i, s := range steps {
		out[i] = s.Point
	}
	return out
}
