// Package series holds the addressing, storage and calendar primitives for univariate
// observation series read from the fact store.
package series

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

var (
	ErrNoObservations     = errors.New("no observations")
	ErrDatasetLenMismatch = errors.New("time feature has a different length than observations")
	ErrNonMonotonic       = errors.New("time feature is not strictly increasing")
)

// Point is a single dated observation as returned by a store query
type Point struct {
	T     time.Time `json:"date"`
	Value float64   `json:"value"`
}

// Series is an ordered, date-indexed sequence of observations for one key. Dates are
// strictly increasing and unique.
type Series struct {
	Key Key
	T   []time.Time
	Y   []float64
}

// New returns a Series copying the provided time and value slices. Times must be strictly
// increasing.
func New(key Key, t []time.Time, y []float64) (*Series, error) {
	if len(y) == 0 {
		return nil, ErrNoObservations
	}
	if len(t) != len(y) {
		return nil, fmt.Errorf(
			"time feature has length of %d, but values has a length of %d, %w",
			len(t), len(y), ErrDatasetLenMismatch,
		)
	}

	for i := 1; i < len(t); i++ {
		if !t[i].After(t[i-1]) {
			return nil, fmt.Errorf("non-monotonic at %d, %w", i, ErrNonMonotonic)
		}
	}

	tSeries := make([]time.Time, len(t))
	ySeries := make([]float64, len(y))
	copy(tSeries, t)
	copy(ySeries, y)
	return &Series{Key: key.Normalize(), T: tSeries, Y: ySeries}, nil
}

// FromPoints sorts the points by date and builds a Series. When the same date appears
// more than once the last point wins, which keeps the most recently appended vintage.
func FromPoints(key Key, pts []Point) (*Series, error) {
	if len(pts) == 0 {
		return nil, &NotFoundError{Key: key.Normalize()}
	}
	sorted := make([]Point, len(pts))
	copy(sorted, pts)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].T.Before(sorted[j].T)
	})

	t := make([]time.Time, 0, len(sorted))
	y := make([]float64, 0, len(sorted))
	for _, p := range sorted {
		if n := len(t); n > 0 && t[n-1].Equal(p.T) {
			y[n-1] = p.Value
			continue
		}
		t = append(t, p.T)
		y = append(y, p.Value)
	}
	return New(key, t, y)
}

// Len returns the number of observations
func (s *Series) Len() int {
	if s == nil {
		return 0
	}
	return len(s.T)
}

// Copy returns a deep copy
func (s *Series) Copy() *Series {
	tSeries := make([]time.Time, len(s.T))
	ySeries := make([]float64, len(s.Y))
	copy(tSeries, s.T)
	copy(ySeries, s.Y)
	return &Series{Key: s.Key, T: tSeries, Y: ySeries}
}

// Head returns a deep copy holding observations 0..i inclusive
func (s *Series) Head(i int) *Series {
	if i >= s.Len() {
		i = s.Len() - 1
	}
	if i < 0 {
		return &Series{Key: s.Key}
	}
	c := &Series{
		Key: s.Key,
		T:   make([]time.Time, i+1),
		Y:   make([]float64, i+1),
	}
	copy(c.T, s.T[:i+1])
	copy(c.Y, s.Y[:i+1])
	return c
}

// Last returns the final observation
func (s *Series) Last() (time.Time, float64, bool) {
	if s.Len() == 0 {
		return time.Time{}, 0, false
	}
	n := len(s.T) - 1
	return s.T[n], s.Y[n], true
}

// Append adds an observation after the current last date
func (s *Series) Append(t time.Time, y float64) error {
	if last, _, ok := s.Last(); ok && !t.After(last) {
		return fmt.Errorf("appending %s at or before %s, %w", t.Format(time.DateOnly), last.Format(time.DateOnly), ErrNonMonotonic)
	}
	s.T = append(s.T, t)
	s.Y = append(s.Y, y)
	return nil
}

// Set overwrites the value of the last observation if it is dated t, otherwise it
// appends a new observation.
func (s *Series) Set(t time.Time, y float64) error {
	if last, _, ok := s.Last(); ok && last.Equal(t) {
		s.Y[len(s.Y)-1] = y
		return nil
	}
	return s.Append(t, y)
}

// CheckMinObs returns an InsufficientHistoryError if the series is shorter than minObs
func (s *Series) CheckMinObs(minObs int) error {
	if minObs > 0 && s.Len() < minObs {
		return &InsufficientHistoryError{Key: s.Key, Subject: "series", Actual: s.Len(), Required: minObs}
	}
	return nil
}
