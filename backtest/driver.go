// Package backtest replays a forecast from historical cutoffs and records each replay as
// an inactive run so accuracy can be measured against what actually happened.
package backtest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/chineduezebuiroh/realestate-intel/design"
	"github.com/chineduezebuiroh/realestate-intel/forecast"
	"github.com/chineduezebuiroh/realestate-intel/metrics"
	"github.com/chineduezebuiroh/realestate-intel/model"
	"github.com/chineduezebuiroh/realestate-intel/runs"
)

const TracerName = "github.com/chineduezebuiroh/realestate-intel/backtest"

var (
	ErrNonPositiveHorizon = errors.New("horizon must be positive")
	ErrInvalidMinTrainLen = errors.New("minimum training length must be positive")
	ErrInvalidMaxAnchors  = errors.New("maximum anchors must be positive")
)

// Options configures a walk-forward backtest
type Options struct {
	Horizon     int `json:"horizon"`
	MinTrainLen int `json:"min_train_len"`
	MaxAnchors  int `json:"max_anchors"`
	Step        int `json:"anchor_step"`

	// Anchors replaces anchor selection with explicit row indices. Indices outside the
	// matrix or with fewer than MinTrainLen rows at or before them are dropped.
	Anchors []int `json:"anchors,omitempty"`

	Extrapolator forecast.Extrapolator `json:"-"`
}

func NewDefaultOptions() *Options {
	return &Options{
		Horizon:      12,
		MinTrainLen:  60,
		MaxAnchors:   3,
		Step:         DefaultAnchorStep,
		Extrapolator: forecast.CarryForward{},
	}
}

// Validate runs basic validation on the options
func (o *Options) Validate() (*Options, error) {
	if o == nil {
		o = NewDefaultOptions()
	}
	if o.Horizon <= 0 {
		return nil, ErrNonPositiveHorizon
	}
	if o.MinTrainLen < 1 {
		return nil, ErrInvalidMinTrainLen
	}
	if o.MaxAnchors < 1 {
		return nil, ErrInvalidMaxAnchors
	}
	if o.Step <= 0 {
		o.Step = DefaultAnchorStep
	}
	if o.Extrapolator == nil {
		o.Extrapolator = forecast.CarryForward{}
	}
	return o, nil
}

// Fold is the outcome of one anchor
type Fold struct {
	Anchor     int              `json:"anchor"`
	AnchorDate time.Time        `json:"anchor_date"`
	RunID      int64            `json:"run_id,omitempty"`
	Horizon    int              `json:"horizon"`
	Steps      []forecast.Step  `json:"steps,omitempty"`
	Actual     []float64        `json:"-"`
	Scores     *forecast.Scores `json:"scores,omitempty"`
	Skipped    bool             `json:"skipped,omitempty"`
	Error      string           `json:"error,omitempty"`
}

// StepScore aggregates errors of every fold at one horizon step
type StepScore struct {
	Step int     `json:"step"`
	N    int     `json:"n"`
	MAE  float64 `json:"mae"`
	RMSE float64 `json:"rmse"`
	MAPE float64 `json:"mape"`
}

// Report is the result of a backtest
type Report struct {
	Target  string      `json:"target"`
	Model   string      `json:"model"`
	BatchID string      `json:"batch_id"`
	Anchors []int       `json:"anchors"`
	Folds   []Fold      `json:"folds"`
	ByStep  []StepScore `json:"by_step"`
}

// RunIDs returns the ids of every recorded fold
func (r *Report) RunIDs() []int64 {
	var ids []int64
	for _, f := range r.Folds {
		if f.RunID > 0 {
			ids = append(ids, f.RunID)
		}
	}
	return ids
}

// Driver runs walk-forward backtests of one model family
type Driver struct {
	opt     *Options
	family  model.Family
	rec     runs.Recorder
	metrics *metrics.Collector
	tracer  trace.Tracer
	newID   func() string
}

func NewDriver(family model.Family, rec runs.Recorder, opt *Options) (*Driver, error) {
	opt, err := opt.Validate()
	if err != nil {
		return nil, err
	}
	return &Driver{
		opt:    opt,
		family: family,
		rec:    rec,
		tracer: otel.Tracer(TracerName),
		newID:  uuid.NewString,
	}, nil
}

// WithMetrics reports fold outcomes, fit latency and recorded runs to c
func (d *Driver) WithMetrics(c *metrics.Collector) *Driver {
	d.metrics = c
	return d
}

// WithTracerProvider creates spans from tp instead of the global provider
func (d *Driver) WithTracerProvider(tp trace.TracerProvider) *Driver {
	d.tracer = tp.Tracer(TracerName)
	return d
}

// Run backtests m from each anchor in ascending order. Each fold trains on an independent
// copy of the rows at or before its anchor, forecasts the lesser of the horizon and the
// periods of actuals after the anchor, and records an inactive run. A failing fold is
// logged and skipped; the run aborts only if every attempted fold fails or a run cannot be
// recorded.
func (d *Driver) Run(ctx context.Context, m *design.Matrix) (*Report, error) {
	ctx, span := d.tracer.Start(ctx, "backtest.run", trace.WithAttributes(
		attribute.String("target", m.Target.String()),
		attribute.String("model", d.family.Name),
		attribute.Int("rows", m.Rows()),
	))
	defer span.End()

	report, err := d.run(ctx, span, m)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return report, err
}

func (d *Driver) run(ctx context.Context, span trace.Span, m *design.Matrix) (*Report, error) {
	abort := func(stage Stage, err error) error {
		return &StageError{Key: m.Target, Stage: stage, Err: err}
	}

	if m.Cols() == 0 || m.Rows() == 0 {
		return nil, abort(StageBuild, ErrEmptyFeatureMatrix)
	}

	anchors := d.anchors(m)
	span.SetAttributes(attribute.IntSlice("anchors", anchors))
	if len(anchors) == 0 {
		return nil, abort(StageAnchors, fmt.Errorf("%d rows with min train length %d and horizon %d, %w",
			m.Rows(), d.opt.MinTrainLen, d.opt.Horizon, ErrNoUsableAnchors))
	}

	params, err := d.family.ParamsJSON()
	if err != nil {
		return nil, abort(StageRecord, fmt.Errorf("encoding params, %w", err))
	}

	report := &Report{
		Target:  m.Target.String(),
		Model:   d.family.Name,
		BatchID: d.newID(),
		Anchors: anchors,
	}

	lastOrd := m.Freq.Ordinal(m.T[m.Rows()-1])
	actualAt := make(map[int64]float64, m.Rows())
	for i, t := range m.T {
		actualAt[m.Freq.Ordinal(t)] = m.Y[i]
	}

	var (
		attempted int
		failures  []error
		lastStage Stage
	)
	for _, a := range anchors {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		anchorDate := m.T[a]
		available := int(lastOrd - m.Freq.Ordinal(anchorDate))
		realized := min(d.opt.Horizon, available)
		fold := Fold{Anchor: a, AnchorDate: anchorDate, Horizon: realized}
		if realized <= 0 {
			slog.Info("skipping anchor without actuals after it", "target", m.Target, "anchor", anchorDate.Format(time.DateOnly))
			fold.Skipped = true
			report.Folds = append(report.Folds, fold)
			d.metrics.Fold(d.family.Name, metrics.OutcomeSkipped)
			continue
		}

		attempted++
		steps, stage, err := d.fold(ctx, m.Head(a), realized)
		if err != nil {
			fe := &foldError{anchor: a, stage: stage, err: err}
			slog.Warn("backtest fold failed",
				"target", m.Target, "model", d.family.Name, "anchor", anchorDate.Format(time.DateOnly),
				"stage", stage, "error", err)
			failures = append(failures, fe)
			lastStage = stage
			fold.Error = fe.Error()
			report.Folds = append(report.Folds, fold)
			d.metrics.Fold(d.family.Name, metrics.OutcomeFailed)
			continue
		}

		id, err := d.record(ctx, m, a, realized, params, report.BatchID, steps)
		if err != nil {
			return nil, abort(StageRecord, err)
		}
		fold.RunID = id
		fold.Steps = steps
		fold.Actual = make([]float64, len(steps))
		for i, s := range steps {
			v, exists := actualAt[m.Freq.Ordinal(s.Date)]
			if !exists {
				v = math.NaN()
			}
			fold.Actual[i] = v
		}
		if scores, err := forecast.NewScores(forecast.Points(steps), fold.Actual); err == nil {
			fold.Scores = scores
		}
		report.Folds = append(report.Folds, fold)
		d.metrics.Fold(d.family.Name, metrics.OutcomeOK)

		slog.Info("recorded backtest run", "target", m.Target, "model", d.family.Name,
			"anchor", anchorDate.Format(time.DateOnly), "run_id", id, "horizon", realized)
	}

	if attempted > 0 && len(failures) == attempted {
		return nil, abort(lastStage, errors.Join(append([]error{ErrAllFoldsFailed}, failures...)...))
	}

	report.ByStep = aggregate(report.Folds)
	return report, nil
}

// anchors picks anchor rows, honoring explicit anchors when set
func (d *Driver) anchors(m *design.Matrix) []int {
	if len(d.opt.Anchors) == 0 {
		return ChooseAnchors(m.Rows(), d.opt.Horizon, d.opt.MinTrainLen, d.opt.MaxAnchors, d.opt.Step)
	}
	seen := make(map[int]struct{}, len(d.opt.Anchors))
	var out []int
	for _, a := range d.opt.Anchors {
		if a < d.opt.MinTrainLen-1 || a >= m.Rows() {
			slog.Warn("dropping anchor outside usable history", "target", m.Target, "anchor", a, "rows", m.Rows())
			continue
		}
		if _, exists := seen[a]; exists {
			continue
		}
		seen[a] = struct{}{}
		out = append(out, a)
	}
	slices.Sort(out)
	return out
}

// fold fits a fresh model on head and forecasts horizon steps
func (d *Driver) fold(ctx context.Context, head *design.Matrix, horizon int) ([]forecast.Step, Stage, error) {
	_, span := d.tracer.Start(ctx, "backtest.fold", trace.WithAttributes(
		attribute.String("anchor", head.T[head.Rows()-1].Format(time.DateOnly)),
		attribute.Int("horizon", horizon),
	))
	defer span.End()

	start := time.Now()
	fitted, err := forecast.Fit(d.family, head)
	d.metrics.ObserveFit(d.family.Name, time.Since(start))
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, StageFit, err
	}

	steps, err := fitted.Forecast(horizon, d.opt.Extrapolator)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, StageForecast, err
	}
	return steps, "", nil
}

func (d *Driver) record(ctx context.Context, m *design.Matrix, anchor, horizon int, params []byte, batchID string, steps []forecast.Step) (int64, error) {
	id, err := d.rec.AllocateRunID(ctx)
	if err != nil {
		return 0, fmt.Errorf("allocating run id, %w", err)
	}

	anchorDate := m.T[anchor]
	run := runs.Run{
		ID:           id,
		ModelName:    d.family.Name + "_backtest",
		ModelVersion: d.family.Version,
		Target:       m.Target,
		Freq:         m.Freq.String(),
		TrainStart:   m.T[0],
		TrainEnd:     anchorDate,
		Horizon:      horizon,
		AlgoParams:   params,
		Notes:        fmt.Sprintf("%s backtest anchor=%s batch=%s", d.family.Name, anchorDate.Format(time.DateOnly), batchID),
		IsActive:     false,
	}
	if err := d.rec.RecordRun(ctx, run); err != nil {
		return 0, fmt.Errorf("recording run %d, %w", id, err)
	}
	preds := runs.FromSteps(id, steps)
	if err := d.rec.RecordPredictions(ctx, id, preds); err != nil {
		return 0, fmt.Errorf("recording predictions of run %d, %w", id, err)
	}
	d.metrics.RunRecorded(false, len(preds))
	return id, nil
}

// aggregate averages errors across folds per horizon step, ignoring missing actuals
func aggregate(folds []Fold) []StepScore {
	type acc struct {
		n            int
		abs, sq, pct float64
		pctN         int
	}
	var byStep []acc
	for _, f := range folds {
		for i, s := range f.Steps {
			if i >= len(f.Actual) || math.IsNaN(f.Actual[i]) {
				continue
			}
			for len(byStep) < s.Step {
				byStep = append(byStep, acc{})
			}
			a := &byStep[s.Step-1]
			diff := s.Point - f.Actual[i]
			a.n++
			a.abs += math.Abs(diff)
			a.sq += diff * diff
			if f.Actual[i] != 0 {
				a.pct += math.Abs(diff / f.Actual[i])
				a.pctN++
			}
		}
	}

	out := make([]StepScore, 0, len(byStep))
	for i, a := range byStep {
		if a.n == 0 {
			continue
		}
		s := StepScore{
			Step: i + 1,
			N:    a.n,
			MAE:  a.abs / float64(a.n),
			RMSE: math.Sqrt(a.sq / float64(a.n)),
		}
		if a.pctN > 0 {
			s.MAPE = a.pct / float64(a.pctN)
		}
		out = append(out, s)
	}
	return out
}
