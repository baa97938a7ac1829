// Package report renders recorded runs next to the actuals they forecast, as an HTML
// chart or an XLSX workbook.
package report

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/chineduezebuiroh/realestate-intel/forecast"
	"github.com/chineduezebuiroh/realestate-intel/runs"
	"github.com/chineduezebuiroh/realestate-intel/series"
)

// RunPredictions pairs a run with its prediction rows
type RunPredictions struct {
	Run         runs.Run
	Predictions []runs.Prediction
}

// Collect reads every run matching f and its predictions
func Collect(ctx context.Context, r runs.Reader, f runs.Filter) ([]RunPredictions, error) {
	recorded, err := r.Runs(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("unable to list runs, %w", err)
	}
	out := make([]RunPredictions, 0, len(recorded))
	for _, run := range recorded {
		preds, err := r.Predictions(ctx, run.ID)
		if err != nil {
			return nil, fmt.Errorf("unable to read predictions of run %d, %w", run.ID, err)
		}
		out = append(out, RunPredictions{Run: run, Predictions: preds})
	}
	return out, nil
}

// Evaluation scores one run against the actuals observed at its target dates
type Evaluation struct {
	RunID     int64
	ModelName string
	TrainEnd  time.Time
	IsActive  bool
	Matched   int
	Scores    *forecast.Scores
}

// Evaluate matches predictions to actuals by period and scores each run with at least one
// realized actual
func Evaluate(actual *series.Series, freq series.Frequency, rps []RunPredictions) ([]Evaluation, error) {
	lookup := actualLookup(actual, freq)
	out := make([]Evaluation, 0, len(rps))
	for _, rp := range rps {
		var pred, act []float64
		for _, p := range rp.Predictions {
			v, exists := lookup(p.TargetDate)
			if !exists {
				continue
			}
			pred = append(pred, p.Point)
			act = append(act, v)
		}
		if len(act) == 0 {
			continue
		}
		scores, err := forecast.NewScores(pred, act)
		if err != nil {
			return nil, fmt.Errorf("scoring run %d, %w", rp.Run.ID, err)
		}
		out = append(out, Evaluation{
			RunID:     rp.Run.ID,
			ModelName: rp.Run.ModelName,
			TrainEnd:  rp.Run.TrainEnd,
			IsActive:  rp.Run.IsActive,
			Matched:   len(act),
			Scores:    scores,
		})
	}
	return out, nil
}

func actualLookup(actual *series.Series, freq series.Frequency) func(time.Time) (float64, bool) {
	byOrd := make(map[int64]float64, actual.Len())
	for i, t := range actual.T {
		byOrd[freq.Ordinal(t)] = actual.Y[i]
	}
	return func(t time.Time) (float64, bool) {
		v, exists := byOrd[freq.Ordinal(t)]
		if !exists || math.IsNaN(v) {
			return 0, false
		}
		return v, true
	}
}
