package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/chineduezebuiroh/realestate-intel/series"
)

// Memory is an in-process fact store
type Memory struct {
	mu     sync.RWMutex
	points map[series.Key][]series.Point
	now    func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		points: make(map[series.Key][]series.Point),
		now:    time.Now,
	}
}

// Add appends one observation. Points are sorted on read, and a later point for the same
// date replaces an earlier one.
func (m *Memory) Add(key series.Key, t time.Time, value float64) {
	key = key.Normalize()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.points[key] = append(m.points[key], series.Point{T: t, Value: value})
}

// AddSeries appends every observation of s under key
func (m *Memory) AddSeries(key series.Key, t []time.Time, y []float64) {
	key = key.Normalize()
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range t {
		m.points[key] = append(m.points[key], series.Point{T: t[i], Value: y[i]})
	}
}

func (m *Memory) Query(ctx context.Context, key series.Key) ([]series.Point, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	pts := m.points[key.Normalize()]
	out := make([]series.Point, len(pts))
	copy(out, pts)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].T.Before(out[j].T)
	})
	return out, nil
}

// Catalog lists keys ordered by metric, geo and property type
func (m *Memory) Catalog(ctx context.Context) (Catalog, error) {
	if err := ctx.Err(); err != nil {
		return Catalog{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := make([]series.Key, 0, len(m.points))
	for k, pts := range m.points {
		if len(pts) > 0 {
			keys = append(keys, k)
		}
	}
	sortKeys(keys)
	return Catalog{Keys: keys, TakenAt: m.now()}, nil
}

func sortKeys(keys []series.Key) {
	sort.Slice(keys, func(i, j int) bool {
		a, b := keys[i], keys[j]
		if a.Metric != b.Metric {
			return a.Metric < b.Metric
		}
		if a.Geo != b.Geo {
			return a.Geo < b.Geo
		}
		return a.PropertyType < b.PropertyType
	})
}
