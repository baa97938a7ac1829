package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chineduezebuiroh/realestate-intel/series"
)

func newTestSQL(t *testing.T) *SQL {
	t.Helper()
	cfg := NewDefaultDBConfig()
	cfg.DSN = filepath.Join(t.TempDir(), "facts.db")

	db, dialect, err := Open(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	s := NewSQL(db, dialect)
	require.NoError(t, s.EnsureSchema(context.Background()))
	return s
}

func TestRebind(t *testing.T) {
	q := "SELECT * FROM t WHERE a = ? AND b = ?"
	assert.Equal(t, q, SQLite.Rebind(q))
	assert.Equal(t, "SELECT * FROM t WHERE a = $1 AND b = $2", Postgres.Rebind(q))
}

func TestDialectFor(t *testing.T) {
	d, err := DialectFor("postgres")
	require.NoError(t, err)
	assert.Equal(t, Postgres, d)

	_, err = DialectFor("oracle")
	assert.ErrorIs(t, err, ErrUnknownDriver)
}

func TestSQLRoundTrip(t *testing.T) {
	s := newTestSQL(t)
	ctx := context.Background()

	require.NoError(t, s.Upsert(ctx, priceKey, "redfin", []series.Point{
		{T: month(2021, 2), Value: 2},
		{T: month(2021, 1), Value: 1},
	}))
	require.NoError(t, s.Upsert(ctx, priceKey, "redfin", []series.Point{
		{T: month(2021, 2), Value: 20},
	}))
	require.NoError(t, s.Upsert(ctx, rateKey, "fred", []series.Point{
		{T: month(2021, 1), Value: 2.7},
	}))

	loaded, err := NewAccessor(s).Load(ctx, priceKey, 2)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 20}, loaded.Y)
	assert.True(t, loaded.T[0].Equal(month(2021, 1)))

	cat, err := s.Catalog(ctx)
	require.NoError(t, err)
	assert.Equal(t, []series.Key{priceKey, rateKey}, cat.Keys)
	assert.WithinDuration(t, time.Now(), cat.TakenAt, time.Minute)

	_, err = s.Query(ctx, series.NewKey("median_sale_price", "va", ""))
	assert.ErrorIs(t, err, series.ErrNotFound)
}

func TestOpenRequiresDSN(t *testing.T) {
	_, _, err := Open(context.Background(), NewDefaultDBConfig())
	assert.ErrorIs(t, err, ErrUnavailable)
}
