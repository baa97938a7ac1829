// Package design builds aligned, lag-featured supervised matrices from store series.
package design

import (
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/chineduezebuiroh/realestate-intel/feature"
	"github.com/chineduezebuiroh/realestate-intel/series"
)

// Matrix is a target vector and its lag feature matrix over one shared date index, plus
// the unlagged base series those lags were drawn from. Every base series is aligned with T.
type Matrix struct {
	Target  series.Key
	Freq    series.Frequency
	T       []time.Time
	Y       []float64
	X       *mat.Dense // nil when there are no feature columns
	Columns *feature.Labels
	Specs   []feature.Spec

	// Base holds the target under feature.TargetName and every spec under its name
	Base map[string]*series.Series
}

// Rows returns the number of retained dates
func (m *Matrix) Rows() int {
	return len(m.Y)
}

// Cols returns the number of feature columns
func (m *Matrix) Cols() int {
	return m.Columns.Len()
}

// Row returns a copy of the feature row at i
func (m *Matrix) Row(i int) []float64 {
	if m.X == nil {
		return nil
	}
	return mat.Row(nil, i, m.X)
}

// LastRow returns a copy of the final feature row
func (m *Matrix) LastRow() []float64 {
	return m.Row(m.Rows() - 1)
}

// Head returns an independent copy holding rows 0..i inclusive. Base series are truncated
// to the same dates so the copy can be extended without touching m.
func (m *Matrix) Head(i int) *Matrix {
	if i >= m.Rows() {
		i = m.Rows() - 1
	}
	n := i + 1

	t := make([]time.Time, n)
	y := make([]float64, n)
	copy(t, m.T[:n])
	copy(y, m.Y[:n])

	var x *mat.Dense
	if m.X != nil && n > 0 {
		x = mat.DenseCopyOf(m.X.Slice(0, n, 0, m.Cols()))
	}

	base := make(map[string]*series.Series, len(m.Base))
	for name, s := range m.Base {
		base[name] = s.Head(i)
	}

	specs := make([]feature.Spec, len(m.Specs))
	copy(specs, m.Specs)

	return &Matrix{
		Target:  m.Target,
		Freq:    m.Freq,
		T:       t,
		Y:       y,
		X:       x,
		Columns: m.Columns,
		Specs:   specs,
		Base:    base,
	}
}

// CopyBase deep copies the base series map
func (m *Matrix) CopyBase() map[string]*series.Series {
	base := make(map[string]*series.Series, len(m.Base))
	for name, s := range m.Base {
		base[name] = s.Copy()
	}
	return base
}
