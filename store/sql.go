package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"           // PostgreSQL driver
	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"github.com/chineduezebuiroh/realestate-intel/series"
)

var ErrUnknownDriver = errors.New("unknown database driver")

// Dialect covers the placeholder differences between the supported drivers
type Dialect int

const (
	SQLite Dialect = iota
	Postgres
)

// DialectFor returns the dialect of a database/sql driver name
func DialectFor(driver string) (Dialect, error) {
	switch driver {
	case "sqlite3":
		return SQLite, nil
	case "postgres", "postgresql":
		return Postgres, nil
	}
	return 0, fmt.Errorf("%q, %w", driver, ErrUnknownDriver)
}

// Rebind rewrites ? placeholders to $n for Postgres
func (d Dialect) Rebind(query string) string {
	if d != Postgres {
		return query
	}
	var sb strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			sb.WriteString("$" + strconv.Itoa(n))
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

// DBConfig holds connection settings
type DBConfig struct {
	Driver             string
	DSN                string
	MaxConnections     int
	MaxIdleConnections int
	ConnMaxLifetime    time.Duration
	ConnectTimeout     time.Duration
}

func NewDefaultDBConfig() DBConfig {
	return DBConfig{
		Driver:             "sqlite3",
		MaxConnections:     10,
		MaxIdleConnections: 2,
		ConnMaxLifetime:    5 * time.Minute,
		ConnectTimeout:     10 * time.Second,
	}
}

// Open connects and pings the database
func Open(ctx context.Context, cfg DBConfig) (*sql.DB, Dialect, error) {
	dialect, err := DialectFor(cfg.Driver)
	if err != nil {
		return nil, 0, err
	}
	if cfg.DSN == "" {
		return nil, 0, fmt.Errorf("database dsn is required, %w", ErrUnavailable)
	}

	db, err := sql.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxConnections)
	if dialect == SQLite {
		// sqlite allows a single writer
		db.SetMaxOpenConns(1)
	}
	db.SetMaxIdleConns(cfg.MaxIdleConnections)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, 0, fmt.Errorf("failed to ping database: %v, %w", err, ErrUnavailable)
	}
	return db, dialect, nil
}

const factSchema = `
CREATE TABLE IF NOT EXISTS fact_timeseries (
	geo_id TEXT NOT NULL,
	metric_id TEXT NOT NULL,
	date DATE NOT NULL,
	property_type_id TEXT NOT NULL DEFAULT 'all',
	value DOUBLE PRECISION,
	source_id TEXT,
	PRIMARY KEY (geo_id, metric_id, date, property_type_id)
)`

// SQL reads the fact_timeseries table
type SQL struct {
	db      *sql.DB
	dialect Dialect
	now     func() time.Time
}

func NewSQL(db *sql.DB, dialect Dialect) *SQL {
	return &SQL{db: db, dialect: dialect, now: time.Now}
}

// EnsureSchema creates the fact table if it does not exist
func (s *SQL) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, factSchema); err != nil {
		return fmt.Errorf("creating fact_timeseries: %v, %w", err, ErrUnavailable)
	}
	return nil
}

// Upsert replaces the observations of key at the given dates
func (s *SQL) Upsert(ctx context.Context, key series.Key, sourceID string, pts []series.Point) error {
	key = key.Normalize()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %v, %w", err, ErrUnavailable)
	}
	defer tx.Rollback()

	del := s.dialect.Rebind(`DELETE FROM fact_timeseries
		WHERE metric_id = ? AND geo_id = ? AND property_type_id = ? AND date = ?`)
	ins := s.dialect.Rebind(`INSERT INTO fact_timeseries
		(geo_id, metric_id, date, property_type_id, value, source_id) VALUES (?, ?, ?, ?, ?, ?)`)

	for _, p := range pts {
		d := p.T.UTC().Truncate(24 * time.Hour)
		if _, err := tx.ExecContext(ctx, del, key.Metric, key.Geo, key.PropertyType, d); err != nil {
			return fmt.Errorf("deleting %s at %s: %v, %w", key, d.Format(time.DateOnly), err, ErrUnavailable)
		}
		if _, err := tx.ExecContext(ctx, ins, key.Geo, key.Metric, d, key.PropertyType, p.Value, sourceID); err != nil {
			return fmt.Errorf("inserting %s at %s: %v, %w", key, d.Format(time.DateOnly), err, ErrUnavailable)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %v, %w", err, ErrUnavailable)
	}
	return nil
}

func (s *SQL) Query(ctx context.Context, key series.Key) ([]series.Point, error) {
	key = key.Normalize()
	q := s.dialect.Rebind(`SELECT date, value FROM fact_timeseries
		WHERE metric_id = ? AND geo_id = ? AND property_type_id = ? AND value IS NOT NULL
		ORDER BY date`)

	rows, err := s.db.QueryContext(ctx, q, key.Metric, key.Geo, key.PropertyType)
	if err != nil {
		return nil, fmt.Errorf("querying %s: %v, %w", key, err, ErrUnavailable)
	}
	defer rows.Close()

	var pts []series.Point
	for rows.Next() {
		var p series.Point
		if err := rows.Scan(&p.T, &p.Value); err != nil {
			return nil, fmt.Errorf("scanning %s: %v, %w", key, err, ErrUnavailable)
		}
		pts = append(pts, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading %s: %v, %w", key, err, ErrUnavailable)
	}
	if len(pts) == 0 {
		return nil, &series.NotFoundError{Key: key}
	}
	return pts, nil
}

func (s *SQL) Catalog(ctx context.Context) (Catalog, error) {
	taken := s.now()
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT metric_id, geo_id, property_type_id
		FROM fact_timeseries WHERE value IS NOT NULL`)
	if err != nil {
		return Catalog{}, fmt.Errorf("listing keys: %v, %w", err, ErrUnavailable)
	}
	defer rows.Close()

	var keys []series.Key
	for rows.Next() {
		var k series.Key
		var pt sql.NullString
		if err := rows.Scan(&k.Metric, &k.Geo, &pt); err != nil {
			return Catalog{}, fmt.Errorf("scanning keys: %v, %w", err, ErrUnavailable)
		}
		k.PropertyType = pt.String
		keys = append(keys, k.Normalize())
	}
	if err := rows.Err(); err != nil {
		return Catalog{}, fmt.Errorf("reading keys: %v, %w", err, ErrUnavailable)
	}
	sortKeys(keys)
	return Catalog{Keys: keys, TakenAt: taken}, nil
}
