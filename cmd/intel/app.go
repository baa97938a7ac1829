package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/pkg/profile"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/chineduezebuiroh/realestate-intel/config"
	"github.com/chineduezebuiroh/realestate-intel/metrics"
	"github.com/chineduezebuiroh/realestate-intel/runs"
	"github.com/chineduezebuiroh/realestate-intel/store"
)

var ErrUnknownProfile = errors.New("unknown profile mode")

// app holds the process wide resources shared by every command. Resources are opened on
// first use and released by close.
type app struct {
	profileMode string
	trace       bool
	logLevel    string
	metricsPath string

	cfg     *config.Config
	metrics *metrics.Collector
	tp      *sdktrace.TracerProvider
	stopper interface{ Stop() }

	db      *sql.DB
	dialect store.Dialect
	reader  store.Reader
}

func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
		if err := cfg.Validate(); err != nil {
			return err
		}
	}
	if a.metricsPath != "" {
		cfg.MetricsTextfile = a.metricsPath
	}
	a.cfg = cfg

	slog.SetDefault(slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	})))

	a.metrics, err = metrics.NewCollector()
	if err != nil {
		return err
	}

	switch a.profileMode {
	case "":
	case "cpu":
		a.stopper = profile.Start(profile.CPUProfile, profile.ProfilePath("."), profile.Quiet)
	case "mem":
		a.stopper = profile.Start(profile.MemProfile, profile.ProfilePath("."), profile.Quiet)
	default:
		return fmt.Errorf("%q, %w", a.profileMode, ErrUnknownProfile)
	}

	if a.trace {
		exporter, err := stdouttrace.New(
			stdouttrace.WithWriter(cmd.ErrOrStderr()),
			stdouttrace.WithPrettyPrint(),
		)
		if err != nil {
			return fmt.Errorf("failed to create trace exporter: %w", err)
		}
		a.tp = sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
		otel.SetTracerProvider(a.tp)
	}
	return nil
}

// close flushes spans, profiles and metrics and closes the database
func (a *app) close(ctx context.Context) error {
	var errs []error
	if a.tp != nil {
		errs = append(errs, a.tp.Shutdown(ctx))
	}
	if a.stopper != nil {
		a.stopper.Stop()
	}
	if a.cfg != nil && a.cfg.MetricsTextfile != "" {
		errs = append(errs, a.metrics.WriteTextfile(a.cfg.MetricsTextfile))
	}
	if a.db != nil {
		errs = append(errs, a.db.Close())
	}
	return errors.Join(errs...)
}

func (a *app) open(ctx context.Context) (*sql.DB, store.Dialect, error) {
	if a.db != nil {
		return a.db, a.dialect, nil
	}
	db, dialect, err := store.Open(ctx, a.cfg.StoreConfig())
	if err != nil {
		return nil, 0, err
	}
	a.db, a.dialect = db, dialect
	slog.Debug("opened database", "driver", a.cfg.DB.Driver)
	return db, dialect, nil
}

// factStore returns the SQL fact store, cached when a cache size is configured. Every
// caller shares the same cache.
func (a *app) factStore(ctx context.Context) (store.Reader, error) {
	if a.reader != nil {
		return a.reader, nil
	}
	db, dialect, err := a.open(ctx)
	if err != nil {
		return nil, err
	}
	var r store.Reader = store.NewSQL(db, dialect)
	if a.cfg.CacheSize > 0 {
		if r, err = store.NewCached(r, a.cfg.CacheSize, a.metrics); err != nil {
			return nil, err
		}
	}
	a.reader = r
	return r, nil
}

func (a *app) recorder(ctx context.Context) (*runs.SQLRecorder, error) {
	db, dialect, err := a.open(ctx)
	if err != nil {
		return nil, err
	}
	return runs.NewSQLRecorder(db, dialect), nil
}
