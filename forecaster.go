// Package forecaster builds lagged design matrices for housing and economic series, fits a
// model family on them and records live forecasts and walk-forward backtests as runs.
package forecaster

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/chineduezebuiroh/realestate-intel/backtest"
	"github.com/chineduezebuiroh/realestate-intel/design"
	"github.com/chineduezebuiroh/realestate-intel/feature"
	"github.com/chineduezebuiroh/realestate-intel/forecast"
	"github.com/chineduezebuiroh/realestate-intel/metrics"
	"github.com/chineduezebuiroh/realestate-intel/runs"
	"github.com/chineduezebuiroh/realestate-intel/selection"
	"github.com/chineduezebuiroh/realestate-intel/series"
	"github.com/chineduezebuiroh/realestate-intel/store"
)

const TracerName = "github.com/chineduezebuiroh/realestate-intel"

// Forecaster fits a model family on store series and records the results
type Forecaster struct {
	opt *Options

	acc     *store.Accessor
	builder *design.Builder
	rec     runs.Recorder

	metrics *metrics.Collector
	tp      trace.TracerProvider
	tracer  trace.Tracer
}

// New creates a new instance of a Forecaster reading from r and recording to rec using the
// provided options. If no options are provided a default is used.
func New(r store.Reader, rec runs.Recorder, opt *Options) (*Forecaster, error) {
	opt, err := opt.Validate()
	if err != nil {
		return nil, err
	}
	acc := store.NewAccessor(r)
	return &Forecaster{
		opt:     opt,
		acc:     acc,
		builder: design.NewBuilder(acc, opt.Freq),
		rec:     rec,
		tracer:  otel.Tracer(TracerName),
	}, nil
}

// WithMetrics reports fits, folds and recorded runs to c
func (f *Forecaster) WithMetrics(c *metrics.Collector) *Forecaster {
	f.metrics = c
	return f
}

// WithTracerProvider creates spans from tp instead of the global provider
func (f *Forecaster) WithTracerProvider(tp trace.TracerProvider) *Forecaster {
	f.tp = tp
	f.tracer = tp.Tracer(TracerName)
	return f
}

// Options returns the validated options in use
func (f *Forecaster) Options() *Options {
	return f.opt
}

// Candidates returns the feature specs considered for target before selection: the
// configured exogenous features followed, with Universal, by one spec per other store key.
func (f *Forecaster) Candidates(ctx context.Context, target series.Key) ([]feature.Spec, error) {
	candidates := append([]feature.Spec(nil), f.opt.Features...)
	if !f.opt.Universal {
		return candidates, nil
	}

	catalog, err := f.acc.Catalog(ctx)
	if err != nil {
		return nil, fmt.Errorf("unable to read store catalog, %w", err)
	}
	seen := make(map[series.Key]struct{}, len(candidates))
	for _, c := range candidates {
		seen[c.Source.Normalize()] = struct{}{}
	}
	for _, c := range feature.Discover(catalog, target, f.opt.Lags, f.opt.Discover) {
		if _, exists := seen[c.Source.Normalize()]; exists {
			continue
		}
		candidates = append(candidates, c)
	}
	return candidates, nil
}

// Matrix builds the design matrix for target from its self-lags and the selected
// candidates. The selection is made once so every fit on the matrix uses the same columns.
func (f *Forecaster) Matrix(ctx context.Context, target series.Key) (*design.Matrix, error) {
	ctx, span := f.tracer.Start(ctx, "forecaster.matrix", trace.WithAttributes(
		attribute.String("target", target.String()),
		attribute.String("selection", f.opt.Selection.String()),
	))
	defer span.End()

	m, err := f.matrix(ctx, target)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("rows", m.Rows()), attribute.Int("cols", m.Cols()))
	return m, nil
}

func (f *Forecaster) matrix(ctx context.Context, target series.Key) (*design.Matrix, error) {
	self := feature.SelfLags(target, f.opt.Lags)
	candidates, err := f.Candidates(ctx, target)
	if err != nil {
		return nil, err
	}

	if f.opt.Selection == SelectNone {
		specs := append([]feature.Spec{self}, candidates...)
		return f.builder.Build(ctx, target, specs, f.opt.MinObs)
	}

	incOpt := design.IncrementalOptions{
		MaxFeatures: f.opt.MaxFeatures,
		Required:    []feature.Spec{self},
	}
	switch f.opt.Selection {
	case SelectImportance:
		incOpt.Ranker = selection.NewImportanceRanker()
	case SelectLasso:
		incOpt.Ranker = selection.NewLassoRanker()
	}
	m, _, err := f.builder.BuildIncremental(ctx, target, candidates, f.opt.MinObs, incOpt)
	return m, err
}

// Forecast fits the model family on every row of target's matrix, forecasts the horizon
// and records the result as an active run.
func (f *Forecaster) Forecast(ctx context.Context, target series.Key) (*Result, error) {
	ctx, span := f.tracer.Start(ctx, "forecaster.forecast", trace.WithAttributes(
		attribute.String("target", target.String()),
		attribute.String("model", f.opt.Family.Name),
		attribute.Int("horizon", f.opt.Horizon),
	))
	defer span.End()

	res, err := f.forecast(ctx, target)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int64("run_id", res.RunID))
	return res, nil
}

func (f *Forecaster) forecast(ctx context.Context, target series.Key) (*Result, error) {
	m, err := f.Matrix(ctx, target)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	fitted, err := forecast.Fit(f.opt.Family, m)
	f.metrics.ObserveFit(f.opt.Family.Name, time.Since(start))
	if err != nil {
		return nil, fmt.Errorf("unable to fit %s, %w", f.opt.Family.Name, err)
	}
	steps, err := fitted.Forecast(f.opt.Horizon, f.opt.Extrapolator)
	if err != nil {
		return nil, fmt.Errorf("unable to forecast %s, %w", target, err)
	}

	params, err := f.opt.Family.ParamsJSON()
	if err != nil {
		return nil, err
	}
	id, err := f.rec.AllocateRunID(ctx)
	if err != nil {
		return nil, fmt.Errorf("allocating run id, %w", err)
	}
	run := runs.Run{
		ID:           id,
		ModelName:    f.opt.Family.Name,
		ModelVersion: f.opt.Family.Version,
		Target:       m.Target,
		Freq:         m.Freq.String(),
		TrainStart:   m.T[0],
		TrainEnd:     m.T[m.Rows()-1],
		Horizon:      f.opt.Horizon,
		AlgoParams:   params,
		Notes:        fmt.Sprintf("%s forecast features=%d", f.opt.Family.Name, m.Cols()),
		IsActive:     true,
	}
	if err := f.rec.RecordRun(ctx, run); err != nil {
		return nil, fmt.Errorf("recording run %d, %w", id, err)
	}
	preds := runs.FromSteps(id, steps)
	if err := f.rec.RecordPredictions(ctx, id, preds); err != nil {
		return nil, fmt.Errorf("recording predictions of run %d, %w", id, err)
	}
	f.metrics.RunRecorded(true, len(preds))

	slog.Info("recorded forecast run",
		"run_id", id,
		"target", m.Target.String(),
		"model", f.opt.Family.Name,
		"train_end", run.TrainEnd.Format(time.DateOnly),
		"horizon", f.opt.Horizon,
	)
	return &Result{
		RunID:      id,
		Target:     m.Target,
		Model:      f.opt.Family.Name,
		Columns:    m.Columns.Strings(),
		TrainStart: run.TrainStart,
		TrainEnd:   run.TrainEnd,
		Steps:      steps,
	}, nil
}

// Backtest builds target's matrix once and replays the model family from historical
// anchors, recording each fold as an inactive run. Matrix build failures are returned as a
// *backtest.StageError at the build stage.
func (f *Forecaster) Backtest(ctx context.Context, target series.Key) (*backtest.Report, error) {
	m, err := f.Matrix(ctx, target)
	if err != nil {
		return nil, &backtest.StageError{Key: target.Normalize(), Stage: backtest.StageBuild, Err: err}
	}

	d, err := backtest.NewDriver(f.opt.Family, f.rec, f.opt.Backtest)
	if err != nil {
		return nil, err
	}
	d.WithMetrics(f.metrics)
	if f.tp != nil {
		d.WithTracerProvider(f.tp)
	}
	return d.Run(ctx, m)
}
