package runs

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/chineduezebuiroh/realestate-intel/store"
)

const sequenceName = "forecast_runs"

var runSchema = []string{
	`CREATE TABLE IF NOT EXISTS run_sequence (
		name TEXT PRIMARY KEY,
		value BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS forecast_runs (
		run_id BIGINT PRIMARY KEY,
		model_name TEXT NOT NULL,
		model_version TEXT NOT NULL,
		target_metric_id TEXT NOT NULL,
		target_geo_id TEXT NOT NULL,
		target_property_type_id TEXT NOT NULL DEFAULT 'all',
		freq TEXT NOT NULL,
		train_start TIMESTAMP NOT NULL,
		train_end TIMESTAMP NOT NULL,
		horizon_max INTEGER NOT NULL,
		algo_params_json TEXT,
		notes TEXT,
		is_active BOOLEAN NOT NULL,
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS forecast_predictions (
		run_id BIGINT NOT NULL REFERENCES forecast_runs (run_id),
		target_date TIMESTAMP NOT NULL,
		horizon_steps INTEGER NOT NULL,
		y_hat DOUBLE PRECISION NOT NULL,
		y_hat_lo DOUBLE PRECISION,
		y_hat_hi DOUBLE PRECISION,
		PRIMARY KEY (run_id, horizon_steps)
	)`,
}

// SQLRecorder writes runs to forecast_runs and forecast_predictions. Run ids come from a
// counter row updated inside a transaction so concurrent writers never share an id.
type SQLRecorder struct {
	db      *sql.DB
	dialect store.Dialect
	now     func() time.Time
}

func NewSQLRecorder(db *sql.DB, dialect store.Dialect) *SQLRecorder {
	return &SQLRecorder{db: db, dialect: dialect, now: time.Now}
}

// EnsureSchema creates the run tables and the id counter if they do not exist
func (s *SQLRecorder) EnsureSchema(ctx context.Context) error {
	for _, stmt := range runSchema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("creating run tables: %v, %w", err, store.ErrUnavailable)
		}
	}
	seed := s.dialect.Rebind(`INSERT INTO run_sequence (name, value) VALUES (?, 0)
		ON CONFLICT (name) DO NOTHING`)
	if _, err := s.db.ExecContext(ctx, seed, sequenceName); err != nil {
		return fmt.Errorf("seeding run sequence: %v, %w", err, store.ErrUnavailable)
	}
	return nil
}

func (s *SQLRecorder) AllocateRunID(ctx context.Context) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %v, %w", err, store.ErrUnavailable)
	}
	defer tx.Rollback()

	q := s.dialect.Rebind(`UPDATE run_sequence SET value = value + 1 WHERE name = ? RETURNING value`)
	var id int64
	if err := tx.QueryRowContext(ctx, q, sequenceName).Scan(&id); err != nil {
		return 0, fmt.Errorf("allocating run id: %v, %w", err, store.ErrUnavailable)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %v, %w", err, store.ErrUnavailable)
	}
	return id, nil
}

func (s *SQLRecorder) RecordRun(ctx context.Context, r Run) error {
	if r.ID <= 0 {
		return fmt.Errorf("run %d, %w", r.ID, ErrInvalidRunID)
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = s.now().UTC()
	}
	key := r.Target.Normalize()

	var params any
	if len(r.AlgoParams) > 0 {
		params = string(r.AlgoParams)
	}

	q := s.dialect.Rebind(`INSERT INTO forecast_runs
		(run_id, model_name, model_version, target_metric_id, target_geo_id, target_property_type_id,
		 freq, train_start, train_end, horizon_max, algo_params_json, notes, is_active, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err := s.db.ExecContext(ctx, q,
		r.ID, r.ModelName, r.ModelVersion, key.Metric, key.Geo, key.PropertyType,
		r.Freq, r.TrainStart.UTC(), r.TrainEnd.UTC(), r.Horizon, params, r.Notes, r.IsActive, r.CreatedAt.UTC(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("run %d, %w", r.ID, ErrDuplicateRun)
		}
		return fmt.Errorf("recording run %d: %v, %w", r.ID, err, store.ErrUnavailable)
	}
	return nil
}

func (s *SQLRecorder) RecordPredictions(ctx context.Context, runID int64, preds []Prediction) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %v, %w", err, store.ErrUnavailable)
	}
	defer tx.Rollback()

	var exists int
	check := s.dialect.Rebind(`SELECT COUNT(*) FROM forecast_runs WHERE run_id = ?`)
	if err := tx.QueryRowContext(ctx, check, runID).Scan(&exists); err != nil {
		return fmt.Errorf("checking run %d: %v, %w", runID, err, store.ErrUnavailable)
	}
	if exists == 0 {
		return fmt.Errorf("run %d, %w", runID, ErrUnknownRun)
	}

	ins := s.dialect.Rebind(`INSERT INTO forecast_predictions
		(run_id, target_date, horizon_steps, y_hat, y_hat_lo, y_hat_hi) VALUES (?, ?, ?, ?, ?, ?)`)
	for _, p := range preds {
		if _, err := tx.ExecContext(ctx, ins, runID, p.TargetDate.UTC(), p.Step, p.Point, p.Lower, p.Upper); err != nil {
			return fmt.Errorf("recording step %d of run %d: %v, %w", p.Step, runID, err, store.ErrUnavailable)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %v, %w", err, store.ErrUnavailable)
	}
	return nil
}

// Runs returns matching runs ordered by id
func (s *SQLRecorder) Runs(ctx context.Context, f Filter) ([]Run, error) {
	var where []string
	var args []any
	if f.Target != nil {
		key := f.Target.Normalize()
		where = append(where, "target_metric_id = ?", "target_geo_id = ?", "target_property_type_id = ?")
		args = append(args, key.Metric, key.Geo, key.PropertyType)
	}
	if f.ActiveOnly {
		where = append(where, "is_active = ?")
		args = append(args, true)
	}
	if f.BacktestOnly {
		where = append(where, "is_active = ?")
		args = append(args, false)
	}
	if f.ModelName != "" {
		where = append(where, "model_name = ?")
		args = append(args, f.ModelName)
	}

	q := `SELECT run_id, model_name, model_version, target_metric_id, target_geo_id,
		target_property_type_id, freq, train_start, train_end, horizon_max, algo_params_json,
		notes, is_active, created_at FROM forecast_runs`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY run_id"

	rows, err := s.db.QueryContext(ctx, s.dialect.Rebind(q), args...)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %v, %w", err, store.ErrUnavailable)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var (
			r      Run
			params sql.NullString
			notes  sql.NullString
		)
		if err := rows.Scan(&r.ID, &r.ModelName, &r.ModelVersion, &r.Target.Metric, &r.Target.Geo,
			&r.Target.PropertyType, &r.Freq, &r.TrainStart, &r.TrainEnd, &r.Horizon, &params,
			&notes, &r.IsActive, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning run: %v, %w", err, store.ErrUnavailable)
		}
		if params.Valid {
			r.AlgoParams = []byte(params.String)
		}
		r.Notes = notes.String
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading runs: %v, %w", err, store.ErrUnavailable)
	}
	return out, nil
}

// Predictions returns the predictions of a run ordered by step
func (s *SQLRecorder) Predictions(ctx context.Context, runID int64) ([]Prediction, error) {
	q := s.dialect.Rebind(`SELECT target_date, horizon_steps, y_hat, y_hat_lo, y_hat_hi
		FROM forecast_predictions WHERE run_id = ? ORDER BY horizon_steps`)
	rows, err := s.db.QueryContext(ctx, q, runID)
	if err != nil {
		return nil, fmt.Errorf("listing predictions of run %d: %v, %w", runID, err, store.ErrUnavailable)
	}
	defer rows.Close()

	var out []Prediction
	for rows.Next() {
		p := Prediction{RunID: runID}
		var lo, hi sql.NullFloat64
		if err := rows.Scan(&p.TargetDate, &p.Step, &p.Point, &lo, &hi); err != nil {
			return nil, fmt.Errorf("scanning prediction: %v, %w", err, store.ErrUnavailable)
		}
		if lo.Valid {
			p.Lower = &lo.Float64
		}
		if hi.Valid {
			p.Upper = &hi.Float64
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading predictions of run %d: %v, %w", runID, err, store.ErrUnavailable)
	}
	return out, nil
}

func isUniqueViolation(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique") || strings.Contains(msg, "duplicate key")
}

var (
	_ Store = (*SQLRecorder)(nil)
	_ Store = (*MemoryRecorder)(nil)
)
