package series

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// DefaultPropertyType is the property type of the aggregate slice of a metric. Sources
// without a property type breakdown store their values under it.
const DefaultPropertyType = "all"

const keySep = "/"

var ErrMalformedKey = errors.New("malformed series key")

// Key addresses one univariate series in the fact store. Keys are compared structurally
// and can be used directly as map keys.
type Key struct {
	Metric       string `json:"metric_id" yaml:"metric_id"`
	Geo          string `json:"geo_id" yaml:"geo_id"`
	PropertyType string `json:"property_type_id" yaml:"property_type_id"`
}

// NewKey returns a normalized key. An empty property type maps to DefaultPropertyType.
func NewKey(metric, geo, propertyType string) Key {
	return Key{Metric: metric, Geo: geo, PropertyType: propertyType}.Normalize()
}

// Normalize fills in the default property type
func (k Key) Normalize() Key {
	if k.PropertyType == "" {
		k.PropertyType = DefaultPropertyType
	}
	return k
}

// String renders the key as metric/geo/property_type with every component path escaped,
// so two distinct keys never render to the same string.
func (k Key) String() string {
	k = k.Normalize()
	return strings.Join([]string{
		url.PathEscape(k.Metric),
		url.PathEscape(k.Geo),
		url.PathEscape(k.PropertyType),
	}, keySep)
}

// ParseKey is the inverse of String. The property type component is optional.
func ParseKey(s string) (Key, error) {
	parts := strings.Split(s, keySep)
	if len(parts) < 2 || len(parts) > 3 {
		return Key{}, fmt.Errorf("%q needs metric/geo[/property_type], %w", s, ErrMalformedKey)
	}
	vals := make([]string, 3)
	for i, p := range parts {
		v, err := url.PathUnescape(p)
		if err != nil {
			return Key{}, fmt.Errorf("%q component %d, %w", s, i, ErrMalformedKey)
		}
		vals[i] = v
	}
	if vals[0] == "" || vals[1] == "" {
		return Key{}, fmt.Errorf("%q has an empty metric or geo, %w", s, ErrMalformedKey)
	}
	return NewKey(vals[0], vals[1], vals[2]), nil
}
