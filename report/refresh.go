package report

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/chineduezebuiroh/realestate-intel/runs"
	"github.com/chineduezebuiroh/realestate-intel/series"
)

// DefaultRefreshSteps is how many leading horizon steps of a live run are scored
const DefaultRefreshSteps = 3

// RefreshPolicy decides whether the latest live forecast of a target should be replaced.
// A target without a live run always refreshes. A zero threshold disables its check.
type RefreshPolicy struct {
	MaxAge time.Duration

	// MaxMAPE is the largest mean absolute percent error, as a fraction, tolerated over the
	// first Steps predictions that have an actual
	MaxMAPE float64
	Steps   int
}

// Staleness is the outcome of a refresh check
type Staleness struct {
	Refresh bool
	Reason  string

	// Latest is nil when the target has no live run
	Latest *runs.Run
	Age    time.Duration

	// MAPE is NaN until one of the leading steps has an actual
	MAPE    float64
	Matched int
}

// Check compares the latest active run of target against the policy at time now. actual
// may be nil, in which case only the age is checked.
func (p RefreshPolicy) Check(ctx context.Context, r runs.Reader, target series.Key, actual *series.Series, now time.Time) (*Staleness, error) {
	key := target.Normalize()
	recorded, err := r.Runs(ctx, runs.Filter{Target: &key, ActiveOnly: true})
	if err != nil {
		return nil, fmt.Errorf("unable to list live runs of %s, %w", key, err)
	}
	st := &Staleness{MAPE: math.NaN()}
	if len(recorded) == 0 {
		st.Refresh = true
		st.Reason = "no live run"
		return st, nil
	}

	latest := recorded[0]
	for _, run := range recorded[1:] {
		if run.ID > latest.ID {
			latest = run
		}
	}
	st.Latest = &latest
	st.Age = now.Sub(latest.CreatedAt)

	if actual != nil && actual.Len() > 0 {
		if err := p.score(ctx, r, latest, actual, st); err != nil {
			return nil, err
		}
	}

	switch {
	case p.MaxAge > 0 && st.Age > p.MaxAge:
		st.Refresh = true
		st.Reason = fmt.Sprintf("run %d is older than %s", latest.ID, p.MaxAge)
	case p.MaxMAPE > 0 && !math.IsNaN(st.MAPE) && st.MAPE > p.MaxMAPE:
		st.Refresh = true
		st.Reason = fmt.Sprintf("run %d mape %.4f above %.4f", latest.ID, st.MAPE, p.MaxMAPE)
	default:
		st.Reason = fmt.Sprintf("run %d is current", latest.ID)
	}
	return st, nil
}

func (p RefreshPolicy) score(ctx context.Context, r runs.Reader, run runs.Run, actual *series.Series, st *Staleness) error {
	freq, err := series.ParseFrequency(run.Freq)
	if err != nil || freq == nil {
		if freq, err = series.InferFrequency(actual.T); err != nil {
			return fmt.Errorf("no frequency to match run %d against actuals, %w", run.ID, err)
		}
	}

	preds, err := r.Predictions(ctx, run.ID)
	if err != nil {
		return fmt.Errorf("unable to read predictions of run %d, %w", run.ID, err)
	}
	steps := p.Steps
	if steps <= 0 {
		steps = DefaultRefreshSteps
	}
	leading := make([]runs.Prediction, 0, steps)
	for _, pr := range preds {
		if pr.Step <= steps {
			leading = append(leading, pr)
		}
	}

	evals, err := Evaluate(actual, freq, []RunPredictions{{Run: run, Predictions: leading}})
	if err != nil {
		return err
	}
	if len(evals) == 1 {
		st.MAPE = evals[0].Scores.MAPE
		st.Matched = evals[0].Matched
	}
	return nil
}
