// Package metrics exposes Prometheus collectors for forecast and backtest runs. A nil
// *Collector is valid and records nothing, so library code can take one optionally.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "intel"

// Fold outcomes
const (
	OutcomeOK      = "ok"
	OutcomeSkipped = "skipped"
	OutcomeFailed  = "failed"
)

// Collector holds the registry and every collector the pipeline reports to
type Collector struct {
	registry     *prometheus.Registry
	cacheLookups *prometheus.CounterVec
	folds        *prometheus.CounterVec
	fitDuration  *prometheus.HistogramVec
	runs         *prometheus.CounterVec
	predictions  prometheus.Counter
}

// NewCollector constructs a collector on its own registry
func NewCollector() (*Collector, error) {
	registry := prometheus.NewRegistry()

	cacheLookups := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "store",
		Name:      "cache_lookups_total",
		Help:      "Series cache lookups by result.",
	}, []string{"result"})

	folds := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "backtest",
		Name:      "folds_total",
		Help:      "Backtest folds by model family and outcome.",
	}, []string{"model", "outcome"})

	fitDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "model",
		Name:      "fit_duration_seconds",
		Help:      "Latency distribution of model fits.",
		Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
	}, []string{"model"})

	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "runs",
		Name:      "recorded_total",
		Help:      "Recorded forecast runs by kind.",
	}, []string{"kind"})

	predictions := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "runs",
		Name:      "predictions_total",
		Help:      "Recorded prediction rows.",
	})

	for _, c := range []prometheus.Collector{cacheLookups, folds, fitDuration, runs, predictions} {
		if err := registry.Register(c); err != nil {
			return nil, err
		}
	}

	return &Collector{
		registry:     registry,
		cacheLookups: cacheLookups,
		folds:        folds,
		fitDuration:  fitDuration,
		runs:         runs,
		predictions:  predictions,
	}, nil
}

// Registry returns the underlying registry
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

func (c *Collector) CacheLookup(hit bool) {
	if c == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	c.cacheLookups.WithLabelValues(result).Inc()
}

func (c *Collector) Fold(model, outcome string) {
	if c == nil {
		return
	}
	c.folds.WithLabelValues(model, outcome).Inc()
}

func (c *Collector) ObserveFit(model string, d time.Duration) {
	if c == nil {
		return
	}
	c.fitDuration.WithLabelValues(model).Observe(d.Seconds())
}

// RunRecorded counts a recorded run and its prediction rows
func (c *Collector) RunRecorded(active bool, predictions int) {
	if c == nil {
		return
	}
	kind := "backtest"
	if active {
		kind = "live"
	}
	c.runs.WithLabelValues(kind).Inc()
	c.predictions.Add(float64(predictions))
}

// WriteTextfile dumps the registry in the text exposition format, for pickup by a node
// exporter textfile collector after a batch job exits.
func (c *Collector) WriteTextfile(path string) error {
	if c == nil {
		return nil
	}
	return prometheus.WriteToTextfile(path, c.registry)
}
