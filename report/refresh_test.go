package report

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chineduezebuiroh/realestate-intel/runs"
	"github.com/chineduezebuiroh/realestate-intel/series"
)

var created = time.Date(2020, time.February, 3, 0, 0, 0, 0, time.UTC)

// liveRun was trained through January. Its first three steps miss only March, by 3 on an
// actual of 12, and its fourth step is far off.
func liveRun(id int64) RunPredictions {
	return RunPredictions{
		Run: runs.Run{
			ID: id, ModelName: "gbm", Target: priceKey, Freq: "monthly",
			TrainStart: monthEnd(2019, time.January), TrainEnd: monthEnd(2020, time.January),
			Horizon: 4, IsActive: true, CreatedAt: created,
		},
		Predictions: []runs.Prediction{
			{RunID: id, TargetDate: monthEnd(2020, time.February), Step: 1, Point: 11},
			{RunID: id, TargetDate: monthEnd(2020, time.March), Step: 2, Point: 15},
			{RunID: id, TargetDate: monthEnd(2020, time.April), Step: 3, Point: 13},
			{RunID: id, TargetDate: monthEnd(2020, time.May), Step: 4, Point: 100},
		},
	}
}

func backtestRun(id int64) RunPredictions {
	rp := liveRun(id)
	rp.Run.ModelName = "gbm_backtest"
	rp.Run.IsActive = false
	return rp
}

func recordAll(t *testing.T, rps ...RunPredictions) *runs.MemoryRecorder {
	t.Helper()
	ctx := context.Background()
	rec := runs.NewMemoryRecorder()
	for _, rp := range rps {
		id, err := rec.AllocateRunID(ctx)
		require.NoError(t, err)
		require.Equal(t, rp.Run.ID, id)
		require.NoError(t, rec.RecordRun(ctx, rp.Run))
		require.NoError(t, rec.RecordPredictions(ctx, id, rp.Predictions))
	}
	return rec
}

func TestRefreshPolicyCheck(t *testing.T) {
	day := 24 * time.Hour
	testData := map[string]struct {
		recorded   []RunPredictions
		policy     RefreshPolicy
		withActual bool
		now        time.Time

		refresh bool
		latest  int64
		mape    float64
		matched int
	}{
		"no live run": {
			recorded:   []RunPredictions{backtestRun(1)},
			policy:     RefreshPolicy{MaxAge: 30 * day},
			withActual: true,
			now:        created,
			refresh:    true,
			mape:       math.NaN(),
		},
		"current": {
			recorded:   []RunPredictions{liveRun(1)},
			policy:     RefreshPolicy{MaxAge: 30 * day, MaxMAPE: 0.1},
			withActual: true,
			now:        created.Add(10 * day),
			latest:     1,
			mape:       1.0 / 12,
			matched:    3,
		},
		"older than max age": {
			recorded:   []RunPredictions{liveRun(1)},
			policy:     RefreshPolicy{MaxAge: 30 * day},
			withActual: true,
			now:        created.Add(40 * day),
			refresh:    true,
			latest:     1,
			mape:       1.0 / 12,
			matched:    3,
		},
		"leading steps too inaccurate": {
			recorded:   []RunPredictions{liveRun(1)},
			policy:     RefreshPolicy{MaxAge: 30 * day, MaxMAPE: 0.05},
			withActual: true,
			now:        created.Add(10 * day),
			refresh:    true,
			latest:     1,
			mape:       1.0 / 12,
			matched:    3,
		},
		"more steps include the far off one": {
			recorded:   []RunPredictions{liveRun(1)},
			policy:     RefreshPolicy{MaxMAPE: 1, Steps: 4},
			withActual: true,
			now:        created,
			refresh:    true,
			latest:     1,
			mape:       (3.0/12 + 86.0/14) / 4,
			matched:    4,
		},
		"no actuals only checks age": {
			recorded: []RunPredictions{liveRun(1)},
			policy:   RefreshPolicy{MaxAge: 30 * day, MaxMAPE: 0.05},
			now:      created.Add(10 * day),
			latest:   1,
			mape:     math.NaN(),
		},
		"latest live run is checked": {
			recorded:   []RunPredictions{liveRun(1), backtestRun(2), liveRun(3)},
			policy:     RefreshPolicy{MaxMAPE: 0.1},
			withActual: true,
			now:        created,
			latest:     3,
			mape:       1.0 / 12,
			matched:    3,
		},
	}

	for name, td := range testData {
		t.Run(name, func(t *testing.T) {
			rec := recordAll(t, td.recorded...)
			var actual *series.Series
			if td.withActual {
				actual = testActual(t)
			}

			st, err := td.policy.Check(context.Background(), rec, priceKey, actual, td.now)
			require.NoError(t, err)
			assert.Equal(t, td.refresh, st.Refresh, st.Reason)
			assert.NotEmpty(t, st.Reason)
			if td.latest == 0 {
				assert.Nil(t, st.Latest)
			} else {
				require.NotNil(t, st.Latest)
				assert.Equal(t, td.latest, st.Latest.ID)
				assert.Equal(t, td.now.Sub(created), st.Age)
			}
			if math.IsNaN(td.mape) {
				assert.True(t, math.IsNaN(st.MAPE))
			} else {
				assert.InDelta(t, td.mape, st.MAPE, 1e-9)
			}
			assert.Equal(t, td.matched, st.Matched)
		})
	}
}
