package runs

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"
)

// MemoryRecorder keeps runs in process. It is safe for concurrent use.
type MemoryRecorder struct {
	next atomic.Int64

	mu    sync.RWMutex
	runs  map[int64]Run
	preds map[int64][]Prediction
	now   func() time.Time
}

func NewMemoryRecorder() *MemoryRecorder {
	return &MemoryRecorder{
		runs:  make(map[int64]Run),
		preds: make(map[int64][]Prediction),
		now:   time.Now,
	}
}

func (m *MemoryRecorder) AllocateRunID(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return m.next.Add(1), nil
}

func (m *MemoryRecorder) RecordRun(ctx context.Context, r Run) error {
	if r.ID <= 0 || r.ID > m.next.Load() {
		return fmt.Errorf("run %d, %w", r.ID, ErrInvalidRunID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.runs[r.ID]; exists {
		return fmt.Errorf("run %d, %w", r.ID, ErrDuplicateRun)
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = m.now().UTC()
	}
	r.Target = r.Target.Normalize()
	m.runs[r.ID] = r
	return nil
}

func (m *MemoryRecorder) RecordPredictions(ctx context.Context, runID int64, preds []Prediction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.runs[runID]; !exists {
		return fmt.Errorf("run %d, %w", runID, ErrUnknownRun)
	}
	for _, p := range preds {
		p.RunID = runID
		m.preds[runID] = append(m.preds[runID], p)
	}
	return nil
}

// Runs returns matching runs ordered by id
func (m *MemoryRecorder) Runs(ctx context.Context, f Filter) ([]Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Run, 0, len(m.runs))
	for _, r := range m.runs {
		if f.match(r) {
			out = append(out, r)
		}
	}
	slices.SortFunc(out, func(a, b Run) int {
		return cmp.Compare(a.ID, b.ID)
	})
	return out, nil
}

// Predictions returns the predictions of a run ordered by step
func (m *MemoryRecorder) Predictions(ctx context.Context, runID int64) ([]Prediction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, exists := m.runs[runID]; !exists {
		return nil, fmt.Errorf("run %d, %w", runID, ErrUnknownRun)
	}
	out := slices.Clone(m.preds[runID])
	slices.SortStableFunc(out, func(a, b Prediction) int {
		return a.Step - b.Step
	})
	return out, nil
}
