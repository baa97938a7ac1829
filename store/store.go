// Package store reads univariate series out of the long-format fact store keyed by
// (metric, geo, property type, date).
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chineduezebuiroh/realestate-intel/series"
)

// ErrUnavailable marks a transient store failure. Callers may retry.
var ErrUnavailable = errors.New("series store unavailable")

// Catalog is a point-in-time snapshot of every key holding at least one observation
type Catalog struct {
	Keys    []series.Key
	TakenAt time.Time
}

// Reader is the read side of the fact store
type Reader interface {
	// Query returns the observations for key ordered by date. A key with no observations
	// returns an empty slice or an error matching series.ErrNotFound.
	Query(ctx context.Context, key series.Key) ([]series.Point, error)

	// Catalog snapshots the distinct keys present in the store
	Catalog(ctx context.Context) (Catalog, error)
}

// Accessor loads validated series from a Reader
type Accessor struct {
	reader Reader
}

func NewAccessor(r Reader) *Accessor {
	return &Accessor{reader: r}
}

// Load reads the series for key. It fails with a *series.NotFoundError when the key has
// no observations and with a *series.InsufficientHistoryError when minObs is positive and
// the series is shorter.
func (a *Accessor) Load(ctx context.Context, key series.Key, minObs int) (*series.Series, error) {
	key = key.Normalize()
	pts, err := a.reader.Query(ctx, key)
	if err != nil {
		if errors.Is(err, series.ErrNotFound) {
			return nil, &series.NotFoundError{Key: key}
		}
		return nil, fmt.Errorf("querying %s, %w", key, err)
	}

	s, err := series.FromPoints(key, pts)
	if err != nil {
		return nil, err
	}
	if err := s.CheckMinObs(minObs); err != nil {
		return nil, err
	}
	return s, nil
}

// Catalog returns a snapshot of the keys in the store
func (a *Accessor) Catalog(ctx context.Context) (Catalog, error) {
	return a.reader.Catalog(ctx)
}
