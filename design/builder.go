package design

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/chineduezebuiroh/realestate-intel/feature"
	"github.com/chineduezebuiroh/realestate-intel/series"
	"github.com/chineduezebuiroh/realestate-intel/store"
)

var ErrImportanceLenMismatch = errors.New("ranker returned a different number of importances than columns")

// Ranker scores every column of a design matrix. Implementations must be deterministic so
// that repeated selections over the same matrix agree.
type Ranker interface {
	Rank(x mat.Matrix, y []float64) ([]float64, error)
}

// Builder loads series through an accessor and assembles design matrices
type Builder struct {
	acc  *store.Accessor
	freq series.Frequency
}

// NewBuilder returns a builder. A nil freq is inferred per target.
func NewBuilder(acc *store.Accessor, freq series.Frequency) *Builder {
	return &Builder{acc: acc, freq: freq}
}

// Build loads the target and every spec source and assembles the matrix
func (b *Builder) Build(ctx context.Context, target series.Key, specs []feature.Spec, minObs int) (*Matrix, error) {
	if err := feature.Validate(specs); err != nil {
		return nil, err
	}
	y, err := b.acc.Load(ctx, target, minObs)
	if err != nil {
		return nil, err
	}

	loaded := b.newSourceSet(y)
	sources := make(map[string]*series.Series, len(specs))
	for _, s := range specs {
		src, err := loaded.load(ctx, s)
		if err != nil {
			return nil, err
		}
		sources[s.Name] = src
	}
	return Assemble(y, sources, specs, b.freq, minObs)
}

// sourceSet loads every distinct source key at most once per build. Specs that share a
// source share its series.
type sourceSet struct {
	acc   *store.Accessor
	byKey map[series.Key]*series.Series
}

func (b *Builder) newSourceSet(target *series.Series) *sourceSet {
	return &sourceSet{
		acc:   b.acc,
		byKey: map[series.Key]*series.Series{target.Key.Normalize(): target},
	}
}

func (ss *sourceSet) load(ctx context.Context, spec feature.Spec) (*series.Series, error) {
	key := spec.Source.Normalize()
	if src, exists := ss.byKey[key]; exists {
		return src, nil
	}
	src, err := ss.acc.Load(ctx, key, 0)
	if err != nil {
		return nil, err
	}
	ss.byKey[key] = src
	return src, nil
}

// IncrementalOptions configures BuildIncremental
type IncrementalOptions struct {
	// MaxFeatures caps the number of selected candidate specs. 0 means no cap.
	MaxFeatures int

	// Required specs are always kept and do not count against MaxFeatures, e.g. self-lags
	Required []feature.Spec

	// Ranker orders the greedily admitted candidates by importance. When nil candidates are
	// kept in catalog order.
	Ranker Ranker
}

// BuildIncremental admits candidates one at a time, in order, keeping each one only if the
// matrix still holds at least minObs rows. With a ranker the admitted candidates are then
// narrowed to the MaxFeatures with the highest strictly positive importance. Candidates
// missing from the store are skipped. It returns the final matrix and the selected
// candidate specs, not including Required.
func (b *Builder) BuildIncremental(ctx context.Context, target series.Key, candidates []feature.Spec, minObs int, opts IncrementalOptions) (*Matrix, []feature.Spec, error) {
	if err := feature.Validate(append(append([]feature.Spec(nil), opts.Required...), candidates...)); err != nil {
		return nil, nil, err
	}
	y, err := b.acc.Load(ctx, target, minObs)
	if err != nil {
		return nil, nil, err
	}

	loaded := b.newSourceSet(y)
	sources := make(map[string]*series.Series, len(candidates)+len(opts.Required))
	for _, s := range opts.Required {
		src, err := loaded.load(ctx, s)
		if err != nil {
			return nil, nil, err
		}
		sources[s.Name] = src
	}

	if _, err := Assemble(y, sources, opts.Required, b.freq, minObs); err != nil {
		return nil, nil, err
	}

	admitted := make([]feature.Spec, 0, len(candidates))
	for _, cand := range candidates {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		if opts.Ranker == nil && opts.MaxFeatures > 0 && len(admitted) >= opts.MaxFeatures {
			break
		}

		src, err := loaded.load(ctx, cand)
		if err != nil {
			if errors.Is(err, series.ErrNotFound) {
				slog.Warn("skipping candidate feature with no observations", "feature", cand.Name)
				continue
			}
			return nil, nil, err
		}
		sources[cand.Name] = src

		trial := append(append([]feature.Spec(nil), opts.Required...), admitted...)
		trial = append(trial, cand)
		if _, err := Assemble(y, sources, trial, b.freq, minObs); err != nil {
			if errors.Is(err, series.ErrInsufficientHistory) {
				slog.Debug("candidate feature shrinks matrix below floor", "feature", cand.Name, "error", err)
				delete(sources, cand.Name)
				continue
			}
			return nil, nil, err
		}
		admitted = append(admitted, cand)
	}

	selected := admitted
	if opts.Ranker != nil && len(admitted) > 0 {
		selected, err = b.rank(y, sources, admitted, minObs, opts)
		if err != nil {
			return nil, nil, err
		}
	}

	final := append(append([]feature.Spec(nil), opts.Required...), selected...)
	m, err := Assemble(y, sources, final, b.freq, minObs)
	if err != nil {
		return nil, nil, err
	}
	slog.Info("selected features",
		"target", target.String(),
		"candidates", len(candidates),
		"admitted", len(admitted),
		"selected", len(selected),
		"rows", m.Rows(),
	)
	return m, selected, nil
}

func (b *Builder) rank(y *series.Series, sources map[string]*series.Series, admitted []feature.Spec, minObs int, opts IncrementalOptions) ([]feature.Spec, error) {
	full := append(append([]feature.Spec(nil), opts.Required...), admitted...)
	m, err := Assemble(y, sources, full, b.freq, minObs)
	if err != nil {
		return nil, err
	}

	importance, err := opts.Ranker.Rank(m.X, m.Y)
	if err != nil {
		return nil, fmt.Errorf("ranking features, %w", err)
	}
	if len(importance) != m.Cols() {
		return nil, fmt.Errorf("got %d importances for %d columns, %w", len(importance), m.Cols(), ErrImportanceLenMismatch)
	}

	perSpec := make(map[string]float64, len(full))
	for i, c := range m.Columns.Labels() {
		perSpec[c.Name] += math.Abs(importance[i])
	}

	limit := opts.MaxFeatures
	if limit <= 0 || limit > len(admitted) {
		limit = len(admitted)
	}

	order := make([]int, len(admitted))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool {
		return perSpec[admitted[order[i]].Name] > perSpec[admitted[order[j]].Name]
	})

	keep := make(map[int]struct{}, limit)
	for _, i := range order {
		if len(keep) >= limit {
			break
		}
		if perSpec[admitted[i].Name] > 0 {
			keep[i] = struct{}{}
		}
	}
	if len(keep) == 0 {
		slog.Warn("no feature has positive importance, keeping the first admitted", "count", limit)
		return append([]feature.Spec(nil), admitted[:limit]...), nil
	}

	selected := make([]feature.Spec, 0, len(keep))
	for i, s := range admitted {
		if _, exists := keep[i]; exists {
			selected = append(selected, s)
		}
	}
	return selected, nil
}
