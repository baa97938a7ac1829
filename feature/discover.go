package feature

import (
	"github.com/chineduezebuiroh/realestate-intel/series"
	"github.com/chineduezebuiroh/realestate-intel/store"
)

// DiscoverOptions narrows the candidate universe
type DiscoverOptions struct {
	// ExcludeTargetMetric drops every key sharing the target's metric, e.g. the same
	// metric in other geographies.
	ExcludeTargetMetric bool

	// ExcludeMetrics drops every key of the listed metrics
	ExcludeMetrics []string
}

// Discover returns one candidate spec per distinct catalog key other than the target, each
// with the same lag scheme and named by the key's string form. Keys are compared as values
// after normalization. The result is unfiltered input to feature selection and may be empty.
func Discover(catalog store.Catalog, target series.Key, lagScheme []int, opts DiscoverOptions) []Spec {
	if len(lagScheme) == 0 {
		lagScheme = DefaultLagScheme
	}
	target = target.Normalize()

	excluded := make(map[string]struct{}, len(opts.ExcludeMetrics)+1)
	for _, m := range opts.ExcludeMetrics {
		excluded[m] = struct{}{}
	}
	if opts.ExcludeTargetMetric {
		excluded[target.Metric] = struct{}{}
	}

	seen := make(map[series.Key]struct{}, len(catalog.Keys))
	seen[target] = struct{}{}

	specs := make([]Spec, 0, len(catalog.Keys))
	for _, k := range catalog.Keys {
		k = k.Normalize()
		if _, exists := seen[k]; exists {
			continue
		}
		seen[k] = struct{}{}
		if _, exists := excluded[k.Metric]; exists {
			continue
		}
		lags := make([]int, len(lagScheme))
		copy(lags, lagScheme)
		specs = append(specs, Spec{Name: k.String(), Source: k, Lags: lags})
	}
	return specs
}
