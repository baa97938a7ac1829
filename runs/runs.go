// Package runs records forecast runs and their per-step predictions. Records are append
// only: a new forecast is a new run, never an update of an old one.
package runs

import (
	"context"
	"errors"
	"time"

	"github.com/goccy/go-json"

	"github.com/chineduezebuiroh/realestate-intel/forecast"
	"github.com/chineduezebuiroh/realestate-intel/series"
)

var (
	ErrUnknownRun   = errors.New("run has not been recorded")
	ErrDuplicateRun = errors.New("run already recorded")
	ErrInvalidRunID = errors.New("run id was not allocated")
)

// Run is the metadata of one fit and forecast. Backtest runs are never active.
type Run struct {
	ID           int64           `json:"run_id"`
	ModelName    string          `json:"model_name"`
	ModelVersion string          `json:"model_version"`
	Target       series.Key      `json:"target"`
	Freq         string          `json:"freq"`
	TrainStart   time.Time       `json:"train_start"`
	TrainEnd     time.Time       `json:"train_end"`
	Horizon      int             `json:"horizon"`
	AlgoParams   json.RawMessage `json:"algo_params,omitempty"`
	Notes        string          `json:"notes,omitempty"`
	IsActive     bool            `json:"is_active"`
	CreatedAt    time.Time       `json:"created_at"`
}

// Prediction is one forecast step of a run
type Prediction struct {
	RunID      int64     `json:"run_id"`
	TargetDate time.Time `json:"target_date"`
	Step       int       `json:"horizon_step"`
	Point      float64   `json:"y_hat"`
	Lower      *float64  `json:"y_hat_lo,omitempty"`
	Upper      *float64  `json:"y_hat_hi,omitempty"`
}

// Recorder persists runs. Ids increase monotonically and are never reused.
type Recorder interface {
	AllocateRunID(ctx context.Context) (int64, error)
	RecordRun(ctx context.Context, r Run) error
	RecordPredictions(ctx context.Context, runID int64, preds []Prediction) error
}

// Filter selects runs to read back. Zero fields match everything.
type Filter struct {
	Target     *series.Key
	ActiveOnly bool
	// BacktestOnly selects inactive runs
	BacktestOnly bool
	ModelName    string
}

func (f Filter) match(r Run) bool {
	if f.Target != nil && f.Target.Normalize() != r.Target.Normalize() {
		return false
	}
	if f.ActiveOnly && !r.IsActive {
		return false
	}
	if f.BacktestOnly && r.IsActive {
		return false
	}
	if f.ModelName != "" && f.ModelName != r.ModelName {
		return false
	}
	return true
}

// Reader reads recorded runs back for evaluation and reporting
type Reader interface {
	Runs(ctx context.Context, f Filter) ([]Run, error)
	Predictions(ctx context.Context, runID int64) ([]Prediction, error)
}

// Store is a recorder that can also be read
type Store interface {
	Recorder
	Reader
}

// FromSteps turns forecast steps into prediction rows of runID
func FromSteps(runID int64, steps []forecast.Step) []Prediction {
	preds := make([]Prediction, len(steps))
	for i, s := range steps {
		preds[i] = Prediction{
			RunID:      runID,
			TargetDate: s.Date,
			Step:       s.Step,
			Point:      s.Point,
			Lower:      s.Lower,
			Upper:      s.Upper,
		}
	}
	return preds
}
