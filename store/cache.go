package store

import (
	"context"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/chineduezebuiroh/realestate-intel/metrics"
	"github.com/chineduezebuiroh/realestate-intel/series"
)

const DefaultCacheSize = 512

// Cached memoizes Query results of another Reader. Batch runs over many targets with
// universal discovery read the same exogenous series repeatedly. Catalog is never cached.
type Cached struct {
	reader  Reader
	cache   *lru.Cache[series.Key, []series.Point]
	metrics *metrics.Collector
}

// NewCached wraps r with an LRU cache holding up to size series. The collector may be nil.
func NewCached(r Reader, size int, m *metrics.Collector) (*Cached, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	cache, err := lru.New[series.Key, []series.Point](size)
	if err != nil {
		return nil, err
	}
	return &Cached{reader: r, cache: cache, metrics: m}, nil
}

func (c *Cached) Query(ctx context.Context, key series.Key) ([]series.Point, error) {
	key = key.Normalize()
	if pts, ok := c.cache.Get(key); ok {
		c.metrics.CacheLookup(true)
		return clonePoints(pts), nil
	}
	c.metrics.CacheLookup(false)

	pts, err := c.reader.Query(ctx, key)
	if err != nil {
		return nil, err
	}
	c.cache.Add(key, clonePoints(pts))
	return pts, nil
}

func (c *Cached) Catalog(ctx context.Context) (Catalog, error) {
	return c.reader.Catalog(ctx)
}

// Purge drops every cached series
func (c *Cached) Purge() {
	c.cache.Purge()
}

func (c *Cached) Len() int {
	return c.cache.Len()
}

func clonePoints(pts []series.Point) []series.Point {
	out := make([]series.Point, len(pts))
	copy(out, pts)
	return out
}
