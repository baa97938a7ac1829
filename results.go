package forecaster

import (
	"time"

	"github.com/chineduezebuiroh/realestate-intel/forecast"
	"github.com/chineduezebuiroh/realestate-intel/series"
)

// Result is a recorded live forecast
type Result struct {
	RunID      int64           `json:"run_id"`
	Target     series.Key      `json:"target"`
	Model      string          `json:"model"`
	Columns    []string        `json:"columns"`
	TrainStart time.Time       `json:"train_start"`
	TrainEnd   time.Time       `json:"train_end"`
	Steps      []forecast.Step `json:"steps"`
}
