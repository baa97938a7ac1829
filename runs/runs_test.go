package runs

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chineduezebuiroh/realestate-intel/series"
	"github.com/chineduezebuiroh/realestate-intel/store"
)

var (
	priceKey = series.NewKey("median_sale_price", "dc", "")
	rentKey  = series.NewKey("median_rent", "dc", "sfr")
)

func newTestSQLRecorder(t *testing.T) *SQLRecorder {
	t.Helper()
	cfg := store.NewDefaultDBConfig()
	cfg.DSN = filepath.Join(t.TempDir(), "runs.db")
	// one connection keeps sqlite writers from contending for the file lock
	cfg.MaxConnections = 1

	db, dialect, err := store.Open(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	r := NewSQLRecorder(db, dialect)
	require.NoError(t, r.EnsureSchema(context.Background()))
	// a second call must not reset the counter
	require.NoError(t, r.EnsureSchema(context.Background()))
	return r
}

func recorders(t *testing.T) map[string]Store {
	return map[string]Store{
		"memory": NewMemoryRecorder(),
		"sqlite": newTestSQLRecorder(t),
	}
}

func ptr(v float64) *float64 {
	return &v
}

func TestAllocateRunIDMonotonic(t *testing.T) {
	for name, rec := range recorders(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			var last int64
			for i := 0; i < 5; i++ {
				id, err := rec.AllocateRunID(ctx)
				require.NoError(t, err)
				assert.Greater(t, id, last)
				last = id
			}
			assert.Equal(t, int64(5), last)
		})
	}
}

func TestAllocateRunIDConcurrent(t *testing.T) {
	for name, rec := range recorders(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			var (
				wg  sync.WaitGroup
				mu  sync.Mutex
				ids = make(map[int64]struct{})
			)
			for i := 0; i < 8; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					id, err := rec.AllocateRunID(ctx)
					assert.NoError(t, err)
					mu.Lock()
					ids[id] = struct{}{}
					mu.Unlock()
				}()
			}
			wg.Wait()
			assert.Len(t, ids, 8)
		})
	}
}

func TestRecordAndRead(t *testing.T) {
	for name, rec := range recorders(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			trainStart := time.Date(2015, 1, 31, 0, 0, 0, 0, time.UTC)
			trainEnd := time.Date(2021, 12, 31, 0, 0, 0, 0, time.UTC)

			backtestID, err := rec.AllocateRunID(ctx)
			require.NoError(t, err)
			require.NoError(t, rec.RecordRun(ctx, Run{
				ID:           backtestID,
				ModelName:    "gbm",
				ModelVersion: "v1",
				Target:       priceKey,
				Freq:         "monthly",
				TrainStart:   trainStart,
				TrainEnd:     trainEnd,
				Horizon:      2,
				AlgoParams:   []byte(`{"max_depth":4}`),
				Notes:        "backtest anchor=2021-12-31",
				IsActive:     false,
			}))
			require.NoError(t, rec.RecordPredictions(ctx, backtestID, []Prediction{
				{TargetDate: time.Date(2022, 2, 28, 0, 0, 0, 0, time.UTC), Step: 2, Point: 12},
				{TargetDate: time.Date(2022, 1, 31, 0, 0, 0, 0, time.UTC), Step: 1, Point: 11, Lower: ptr(10), Upper: ptr(12)},
			}))

			liveID, err := rec.AllocateRunID(ctx)
			require.NoError(t, err)
			require.NoError(t, rec.RecordRun(ctx, Run{
				ID:           liveID,
				ModelName:    "sarimax",
				ModelVersion: "v1",
				Target:       rentKey,
				Freq:         "monthly",
				TrainStart:   trainStart,
				TrainEnd:     trainEnd,
				Horizon:      12,
				IsActive:     true,
			}))

			all, err := rec.Runs(ctx, Filter{})
			require.NoError(t, err)
			require.Len(t, all, 2)
			assert.Equal(t, backtestID, all[0].ID)
			assert.Equal(t, priceKey, all[0].Target)
			assert.Equal(t, "all", all[0].Target.PropertyType)
			assert.JSONEq(t, `{"max_depth":4}`, string(all[0].AlgoParams))
			assert.Equal(t, "backtest anchor=2021-12-31", all[0].Notes)
			assert.True(t, trainEnd.Equal(all[0].TrainEnd))
			assert.False(t, all[0].CreatedAt.IsZero())

			backtests, err := rec.Runs(ctx, Filter{BacktestOnly: true})
			require.NoError(t, err)
			require.Len(t, backtests, 1)
			assert.False(t, backtests[0].IsActive)

			active, err := rec.Runs(ctx, Filter{ActiveOnly: true})
			require.NoError(t, err)
			require.Len(t, active, 1)
			assert.Equal(t, liveID, active[0].ID)

			byTarget, err := rec.Runs(ctx, Filter{Target: &rentKey})
			require.NoError(t, err)
			require.Len(t, byTarget, 1)
			assert.Equal(t, "sarimax", byTarget[0].ModelName)

			byModel, err := rec.Runs(ctx, Filter{ModelName: "gbm"})
			require.NoError(t, err)
			require.Len(t, byModel, 1)

			preds, err := rec.Predictions(ctx, backtestID)
			require.NoError(t, err)
			require.Len(t, preds, 2)
			assert.Equal(t, 1, preds[0].Step)
			assert.Equal(t, backtestID, preds[0].RunID)
			require.NotNil(t, preds[0].Lower)
			assert.Equal(t, 10.0, *preds[0].Lower)
			assert.Equal(t, 12.0, *preds[0].Upper)
			assert.Nil(t, preds[1].Lower)
			assert.Nil(t, preds[1].Upper)
			assert.True(t, time.Date(2022, 2, 28, 0, 0, 0, 0, time.UTC).Equal(preds[1].TargetDate))
		})
	}
}

func TestRecordErrors(t *testing.T) {
	for name, rec := range recorders(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			err := rec.RecordPredictions(ctx, 42, []Prediction{{Step: 1, Point: 1}})
			assert.ErrorIs(t, err, ErrUnknownRun)

			err = rec.RecordRun(ctx, Run{ID: 0, ModelName: "gbm"})
			assert.ErrorIs(t, err, ErrInvalidRunID)

			id, err := rec.AllocateRunID(ctx)
			require.NoError(t, err)
			run := Run{ID: id, ModelName: "gbm", ModelVersion: "v1", Target: priceKey, Freq: "monthly"}
			require.NoError(t, rec.RecordRun(ctx, run))
			assert.ErrorIs(t, rec.RecordRun(ctx, run), ErrDuplicateRun)
		})
	}
}
