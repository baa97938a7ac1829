package report

import (
	"fmt"
	"io"
	"math"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/chineduezebuiroh/realestate-intel/series"
)

// Workbook sheet names
const (
	SheetActuals     = "Actuals"
	SheetRuns        = "Runs"
	SheetPredictions = "Predictions"
	SheetEvaluation  = "Evaluation"
)

var (
	actualsHeader     = []any{"date", "value"}
	runsHeader        = []any{"run_id", "model_name", "model_version", "target", "train_start", "train_end", "horizon", "is_active", "notes", "algo_params"}
	predictionsHeader = []any{"run_id", "target_date", "step", "y_hat", "y_hat_lo", "y_hat_hi", "actual", "error"}
	evaluationHeader  = []any{"run_id", "model_name", "train_end", "is_active", "n", "mae", "rmse", "mape"}
)

// ExportXLSX writes a workbook holding the actual series, the recorded runs, every
// prediction joined to its realized actual and a per-run score summary.
func ExportXLSX(w io.Writer, actual *series.Series, freq series.Frequency, rps []RunPredictions) error {
	evals, err := Evaluate(actual, freq, rps)
	if err != nil {
		return err
	}
	lookup := actualLookup(actual, freq)

	f := excelize.NewFile()
	defer f.Close()

	sheets := []string{SheetActuals, SheetRuns, SheetPredictions, SheetEvaluation}
	for _, s := range sheets {
		if _, err := f.NewSheet(s); err != nil {
			return fmt.Errorf("unable to create sheet %s, %w", s, err)
		}
	}
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return fmt.Errorf("unable to drop default sheet, %w", err)
	}

	rows := make([][]any, 0, actual.Len())
	for i, t := range actual.T {
		rows = append(rows, []any{t.Format(time.DateOnly), cellFloat(actual.Y[i])})
	}
	if err := writeSheet(f, SheetActuals, actualsHeader, rows); err != nil {
		return err
	}

	rows = make([][]any, 0, len(rps))
	for _, rp := range rps {
		r := rp.Run
		rows = append(rows, []any{
			r.ID, r.ModelName, r.ModelVersion, r.Target.String(),
			r.TrainStart.Format(time.DateOnly), r.TrainEnd.Format(time.DateOnly),
			r.Horizon, r.IsActive, r.Notes, string(r.AlgoParams),
		})
	}
	if err := writeSheet(f, SheetRuns, runsHeader, rows); err != nil {
		return err
	}

	rows = rows[:0]
	for _, rp := range rps {
		for _, p := range rp.Predictions {
			act, errCell := any(""), any("")
			if v, exists := lookup(p.TargetDate); exists {
				act, errCell = v, p.Point-v
			}
			rows = append(rows, []any{
				p.RunID, p.TargetDate.Format(time.DateOnly), p.Step, p.Point,
				cellPtr(p.Lower), cellPtr(p.Upper), act, errCell,
			})
		}
	}
	if err := writeSheet(f, SheetPredictions, predictionsHeader, rows); err != nil {
		return err
	}

	rows = make([][]any, 0, len(evals))
	for _, e := range evals {
		rows = append(rows, []any{
			e.RunID, e.ModelName, e.TrainEnd.Format(time.DateOnly), e.IsActive,
			e.Matched, e.Scores.MAE, e.Scores.RMSE, e.Scores.MAPE,
		})
	}
	if err := writeSheet(f, SheetEvaluation, evaluationHeader, rows); err != nil {
		return err
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("unable to write workbook, %w", err)
	}
	return nil
}

func writeSheet(f *excelize.File, sheet string, header []any, rows [][]any) error {
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return fmt.Errorf("unable to write %s header, %w", sheet, err)
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("unable to write %s row %d, %w", sheet, i+2, err)
		}
	}
	return nil
}

func cellFloat(v float64) any {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return ""
	}
	return v
}

func cellPtr(v *float64) any {
	if v == nil {
		return ""
	}
	return cellFloat(*v)
}
