package forecast

import (
	"fmt"
	"strings"

	"github.com/chineduezebuiroh/realestate-intel/series"
)

// Extrapolator produces the next value of an exogenous series whose future is unknown
type Extrapolator interface {
	Next(s *series.Series) float64
}

// CarryForward repeats the last observed value. Exogenous drivers are treated as static
// over the forecast window, so long horizons degrade when they trend.
type CarryForward struct{}

func (CarryForward) Next(s *series.Series) float64 {
	_, v, ok := s.Last()
	if !ok {
		return 0
	}
	return v
}

// DefaultDriftWindow is the number of trailing changes Drift averages
const DefaultDriftWindow = 12

// Drift extends a series by the mean of its last Window period-over-period changes
type Drift struct {
	Window int
}

func (d Drift) Next(s *series.Series) float64 {
	n := s.Len()
	if n == 0 {
		return 0
	}
	last := s.Y[n-1]
	window := d.Window
	if window <= 0 {
		window = DefaultDriftWindow
	}
	window = min(window, n-1)
	if window == 0 {
		return last
	}
	return last + (last-s.Y[n-1-window])/float64(window)
}

// ParseExtrapolator maps "carry" or "drift" to an extrapolator
func ParseExtrapolator(name string) (Extrapolator, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "carry", "carry-forward", "flat":
		return CarryForward{}, nil
	case "drift":
		return Drift{Window: DefaultDriftWindow}, nil
	}
	return nil, fmt.Errorf("unknown extrapolator %q", name)
}
