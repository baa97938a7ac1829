package feature

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chineduezebuiroh/realestate-intel/series"
	"github.com/chineduezebuiroh/realestate-intel/store"
)

func TestDiscover(t *testing.T) {
	target := series.NewKey("median_sale_price", "dc", "")
	catalog := store.Catalog{Keys: []series.Key{
		series.NewKey("active_listings", "dc", ""),
		series.NewKey("median_sale_price", "dc", ""),
		series.NewKey("median_sale_price", "va", ""),
		series.NewKey("unemployment_rate", "dc", ""),
	}}

	testData := map[string]struct {
		catalog   store.Catalog
		lagScheme []int
		opts      DiscoverOptions
		expected  []string
	}{
		"excludes only the target": {
			catalog: catalog,
			expected: []string{
				"active_listings/dc/all",
				"median_sale_price/va/all",
				"unemployment_rate/dc/all",
			},
		},
		"excludes target metric": {
			catalog: catalog,
			opts:    DiscoverOptions{ExcludeTargetMetric: true},
			expected: []string{
				"active_listings/dc/all",
				"unemployment_rate/dc/all",
			},
		},
		"excludes listed metrics": {
			catalog:  catalog,
			opts:     DiscoverOptions{ExcludeTargetMetric: true, ExcludeMetrics: []string{"active_listings"}},
			expected: []string{"unemployment_rate/dc/all"},
		},
		"only the target": {
			catalog:  store.Catalog{Keys: []series.Key{target}},
			expected: []string{},
		},
		"empty catalog": {
			expected: []string{},
		},
	}

	for name, td := range testData {
		t.Run(name, func(t *testing.T) {
			specs := Discover(td.catalog, target, td.lagScheme, td.opts)
			names := make([]string, len(specs))
			for i, s := range specs {
				names[i] = s.Name
				assert.Equal(t, DefaultLagScheme, s.Lags)
				assert.False(t, s.IsAutoregressive(target))
			}
			assert.Equal(t, td.expected, names)
			assert.NoError(t, Validate(specs))
		})
	}
}

func TestDiscoverComparesKeysAsValues(t *testing.T) {
	target := series.NewKey("median_sale_price", "dc", "")
	catalog := store.Catalog{Keys: []series.Key{
		{Metric: "permits", Geo: "dc"},
		{Metric: "permits", Geo: "dc", PropertyType: series.DefaultPropertyType},
		{Metric: "median_sale_price", Geo: "dc", PropertyType: series.DefaultPropertyType},
		{Metric: "rate/30y", Geo: "us"},
		{Metric: "rate", Geo: "30y/us"},
	}}

	specs := Discover(catalog, target, nil, DiscoverOptions{})
	require.Len(t, specs, 3)
	assert.Equal(t, series.NewKey("permits", "dc", ""), specs[0].Source)
	assert.Equal(t, series.NewKey("rate/30y", "us", ""), specs[1].Source)
	assert.Equal(t, series.NewKey("rate", "30y/us", ""), specs[2].Source)
	assert.NotEqual(t, specs[1].Name, specs[2].Name)
	assert.NoError(t, Validate(specs))
}

func TestDiscoverCustomLagScheme(t *testing.T) {
	target := series.NewKey("median_sale_price", "dc", "")
	catalog := store.Catalog{Keys: []series.Key{series.NewKey("permits", "dc", "")}}

	specs := Discover(catalog, target, []int{1, 3}, DiscoverOptions{})
	assert.Len(t, specs, 1)
	assert.Equal(t, []int{1, 3}, specs[0].Lags)
	assert.Equal(t, catalog.Keys[0], specs[0].Source)
}
