// Package feature describes lagged feature columns drawn from store series and discovers
// the candidate feature universe for a target.
package feature

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/chineduezebuiroh/realestate-intel/series"
)

// TargetName is the base series name of the target in a design matrix
const TargetName = "y"

var (
	ErrDuplicateFeature = errors.New("duplicate feature name")
	ErrInvalidLag       = errors.New("lag must be a positive integer")
	ErrReservedName     = errors.New("feature name is reserved")
	ErrNoLags           = errors.New("feature has no lags")
)

// DefaultLagScheme is applied to every discovered candidate and to default self-lags
var DefaultLagScheme = []int{1, 2, 3, 6, 12}

// Spec is one base series and the lags to build from it. A Spec whose Source is the
// target key is autoregressive.
type Spec struct {
	Name   string     `json:"name" yaml:"name"`
	Source series.Key `json:"source" yaml:"source"`
	Lags   []int      `json:"lags" yaml:"lags"`
}

// SelfLags returns the autoregressive spec for target, named after its metric
func SelfLags(target series.Key, lags []int) Spec {
	if len(lags) == 0 {
		lags = DefaultLagScheme
	}
	l := make([]int, len(lags))
	copy(l, lags)
	return Spec{Name: target.Metric, Source: target.Normalize(), Lags: l}
}

// IsAutoregressive reports whether the spec reads the target series
func (s Spec) IsAutoregressive(target series.Key) bool {
	return s.Source.Normalize() == target.Normalize()
}

// MaxLag returns the largest lag of the spec
func (s Spec) MaxLag() int {
	var maxLag int
	for _, l := range s.Lags {
		maxLag = max(maxLag, l)
	}
	return maxLag
}

// Columns returns the spec's design matrix columns in lag order as declared
func (s Spec) Columns() []Column {
	cols := make([]Column, len(s.Lags))
	for i, l := range s.Lags {
		cols[i] = Column{Name: s.Name, Lag: l}
	}
	return cols
}

// Column is one (feature name, lag) pair of a design matrix
type Column struct {
	Name string `json:"name"`
	Lag  int    `json:"lag"`
}

func (c Column) String() string {
	return c.Name + "_lag" + strconv.Itoa(c.Lag)
}

// Columns flattens specs into columns, spec by spec
func Columns(specs []Spec) []Column {
	var cols []Column
	for _, s := range specs {
		cols = append(cols, s.Columns()...)
	}
	return cols
}

// Validate checks that names are unique and non-reserved and that lags are positive
func Validate(specs []Spec) error {
	seen := make(map[string]struct{}, len(specs))
	for _, s := range specs {
		if s.Name == TargetName || s.Name == "" {
			return fmt.Errorf("%q, %w", s.Name, ErrReservedName)
		}
		if _, exists := seen[s.Name]; exists {
			return fmt.Errorf("%q, %w", s.Name, ErrDuplicateFeature)
		}
		seen[s.Name] = struct{}{}

		if len(s.Lags) == 0 {
			return fmt.Errorf("%q, %w", s.Name, ErrNoLags)
		}
		lags := make(map[int]struct{}, len(s.Lags))
		for _, l := range s.Lags {
			if l < 1 {
				return fmt.Errorf("%q lag %d, %w", s.Name, l, ErrInvalidLag)
			}
			if _, exists := lags[l]; exists {
				return fmt.Errorf("%q lag %d repeated, %w", s.Name, l, ErrDuplicateFeature)
			}
			lags[l] = struct{}{}
		}
	}
	return nil
}
