package feature

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/chineduezebuiroh/realestate-intel/series"
)

func TestValidate(t *testing.T) {
	src := series.NewKey("mortgage_rate_30y", "us", "")

	testData := map[string]struct {
		specs []Spec
		err   error
	}{
		"valid": {
			specs: []Spec{
				{Name: "rate", Source: src, Lags: []int{1, 12}},
				{Name: "price", Source: src, Lags: []int{1}},
			},
		},
		"no specs": {},
		"duplicate name": {
			specs: []Spec{
				{Name: "rate", Source: src, Lags: []int{1}},
				{Name: "rate", Source: src, Lags: []int{2}},
			},
			err: ErrDuplicateFeature,
		},
		"zero lag": {
			specs: []Spec{{Name: "rate", Source: src, Lags: []int{0}}},
			err:   ErrInvalidLag,
		},
		"negative lag": {
			specs: []Spec{{Name: "rate", Source: src, Lags: []int{1, -3}}},
			err:   ErrInvalidLag,
		},
		"repeated lag": {
			specs: []Spec{{Name: "rate", Source: src, Lags: []int{1, 1}}},
			err:   ErrDuplicateFeature,
		},
		"reserved target name": {
			specs: []Spec{{Name: TargetName, Source: src, Lags: []int{1}}},
			err:   ErrReservedName,
		},
		"no lags": {
			specs: []Spec{{Name: "rate", Source: src}},
			err:   ErrNoLags,
		},
	}

	for name, td := range testData {
		t.Run(name, func(t *testing.T) {
			err := Validate(td.specs)
			if td.err != nil {
				assert.ErrorIs(t, err, td.err)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestSelfLags(t *testing.T) {
	target := series.Key{Metric: "median_sale_price", Geo: "dc"}
	s := SelfLags(target, nil)
	assert.Equal(t, "median_sale_price", s.Name)
	assert.Equal(t, DefaultLagScheme, s.Lags)
	assert.True(t, s.IsAutoregressive(target))
	assert.Equal(t, 12, s.MaxLag())

	s.Lags[0] = 99
	assert.Equal(t, 1, DefaultLagScheme[0])
}

func TestColumns(t *testing.T) {
	specs := []Spec{
		{Name: "a", Lags: []int{1, 2}},
		{Name: "b", Lags: []int{12}},
	}
	cols := Columns(specs)
	assert.Equal(t, []Column{{"a", 1}, {"a", 2}, {"b", 12}}, cols)

	labels := NewLabels(cols)
	assert.Equal(t, 3, labels.Len())
	assert.Equal(t, []string{"a_lag1", "a_lag2", "b_lag12"}, labels.Strings())

	idx, ok := labels.Index(Column{Name: "b", Lag: 12})
	assert.True(t, ok)
	assert.Equal(t, 2, idx)

	_, ok = labels.Index(Column{Name: "b", Lag: 1})
	assert.False(t, ok)
}
