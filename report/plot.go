package report

import (
	"errors"
	"fmt"
	"io"
	"math"
	"slices"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/chineduezebuiroh/realestate-intel/series"
)

var ErrNoActuals = errors.New("no actual observations to plot")

// missing is rendered by echarts as a gap in the line
const missing = "-"

// LineTSeries generates an echart multi-line chart for some arbitrary time/value combination. The input
// y is a slice of series that much have the same length as the input time slice. NaN values
// are drawn as gaps.
func LineTSeries(title string, seriesName []string, t []time.Time, y [][]float64) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithTitleOpts(
			opts.Title{
				Title: title,
			},
		),
		charts.WithTooltipOpts(opts.Tooltip{Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Top: "bottom"}),
	)

	xAxis := make([]string, len(t))
	for i, ts := range t {
		xAxis[i] = ts.Format(time.DateOnly)
	}
	line = line.SetXAxis(xAxis)

	for i, name := range seriesName {
		lineData := make([]opts.LineData, len(t))
		for j := range t {
			if j >= len(y[i]) || math.IsNaN(y[i][j]) {
				lineData[j] = opts.LineData{Value: missing}
				continue
			}
			lineData[j] = opts.LineData{Value: y[i][j]}
		}
		line = line.AddSeries(name, lineData)
	}
	return line
}

// Plot renders actuals and every run's point forecast on one date axis. Runs are matched to
// actual dates by period so month-start and month-end stamps line up.
func Plot(w io.Writer, actual *series.Series, freq series.Frequency, rps []RunPredictions) error {
	if actual.Len() == 0 {
		return ErrNoActuals
	}

	// union of periods across actuals and predictions, labeled by the first date seen
	dates := make(map[int64]time.Time)
	for _, t := range actual.T {
		dates[freq.Ordinal(t)] = t
	}
	for _, rp := range rps {
		for _, p := range rp.Predictions {
			if _, exists := dates[freq.Ordinal(p.TargetDate)]; !exists {
				dates[freq.Ordinal(p.TargetDate)] = p.TargetDate
			}
		}
	}
	ords := make([]int64, 0, len(dates))
	for o := range dates {
		ords = append(ords, o)
	}
	slices.Sort(ords)

	pos := make(map[int64]int, len(ords))
	t := make([]time.Time, len(ords))
	for i, o := range ords {
		pos[o] = i
		t[i] = dates[o]
	}

	names := []string{"Actual"}
	y := [][]float64{nanSlice(len(t))}
	for i, ts := range actual.T {
		y[0][pos[freq.Ordinal(ts)]] = actual.Y[i]
	}
	for _, rp := range rps {
		vals := nanSlice(len(t))
		for _, p := range rp.Predictions {
			vals[pos[freq.Ordinal(p.TargetDate)]] = p.Point
		}
		names = append(names, runLabel(rp))
		y = append(y, vals)
	}

	page := components.NewPage()
	page.AddCharts(LineTSeries(fmt.Sprintf("%s forecasts", actual.Key), names, t, y))
	return page.Render(w)
}

func runLabel(rp RunPredictions) string {
	kind := "backtest"
	if rp.Run.IsActive {
		kind = "live"
	}
	return fmt.Sprintf("run %d %s %s @ %s", rp.Run.ID, rp.Run.ModelName, kind, rp.Run.TrainEnd.Format(time.DateOnly))
}

func nanSlice(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}
