package backtest

import (
	"errors"
	"fmt"

	"github.com/chineduezebuiroh/realestate-intel/series"
)

var (
	ErrNoUsableAnchors    = errors.New("not enough history for any backtest anchor")
	ErrAllFoldsFailed     = errors.New("every backtest fold failed")
	ErrEmptyFeatureMatrix = errors.New("design matrix has no feature columns")
)

// Stage names the part of a backtest that failed
type Stage string

const (
	StageBuild    Stage = "matrix build"
	StageAnchors  Stage = "anchor selection"
	StageFit      Stage = "model fit"
	StageForecast Stage = "forecast"
	StageRecord   Stage = "run record"
)

// StageError is an aborted backtest for a target at one stage
type StageError struct {
	Key   series.Key
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("backtest of %s failed during %s: %v", e.Key, e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// foldError is a single fold failure, logged and skipped unless every fold fails
type foldError struct {
	anchor int
	stage  Stage
	err    error
}

func (e *foldError) Error() string {
	return fmt.Sprintf("anchor %d %s: %v", e.anchor, e.stage, e.err)
}

func (e *foldError) Unwrap() error {
	return e.err
}
