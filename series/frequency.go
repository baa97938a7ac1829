package series

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/rickar/cal/v2"
)

var (
	ErrCannotInferFreq   = errors.New("cannot infer frequency from fewer than two observations")
	ErrUnknownFrequency  = errors.New("unknown frequency")
	ErrNonPositivePeriod = errors.New("fixed frequency step must be positive")
)

// Frequency maps dates onto integer period ordinals. Two dates that fall in the same
// period share an ordinal, so series stamped at the start and at the end of a month still
// line up. Lags and horizons are counted in ordinals.
type Frequency interface {
	// Ordinal returns the period number containing t
	Ordinal(t time.Time) int64

	// Add moves t forward by n periods (or backward for negative n)
	Add(t time.Time, n int) time.Time

	String() string
}

// Between returns the whole number of periods from a to b
func Between(f Frequency, a, b time.Time) int {
	return int(f.Ordinal(b) - f.Ordinal(a))
}

type monthly struct{}

// Monthly counts calendar months. Month-end dates stay month-end when moved.
var Monthly Frequency = monthly{}

func (monthly) Ordinal(t time.Time) int64 {
	return int64(t.Year())*12 + int64(t.Month()) - 1
}

func (monthly) Add(t time.Time, n int) time.Time {
	start := cal.MonthStart(t).AddDate(0, n, 0)
	end := cal.MonthEnd(start)
	if t.Day() == cal.MonthEnd(t).Day() {
		return end
	}
	return start.AddDate(0, 0, min(t.Day(), end.Day())-1)
}

func (monthly) String() string { return "monthly" }

type quarterly struct{}

// Quarterly counts calendar quarters
var Quarterly Frequency = quarterly{}

func (quarterly) Ordinal(t time.Time) int64 {
	return int64(t.Year())*4 + int64(t.Month()-1)/3
}

func (quarterly) Add(t time.Time, n int) time.Time {
	return Monthly.Add(t, 3*n)
}

func (quarterly) String() string { return "quarterly" }

type annual struct{}

// Annual counts calendar years
var Annual Frequency = annual{}

func (annual) Ordinal(t time.Time) int64 {
	return int64(t.Year())
}

func (annual) Add(t time.Time, n int) time.Time {
	return Monthly.Add(t, 12*n)
}

func (annual) String() string { return "annual" }

// Fixed counts periods of a fixed duration since the unix epoch, e.g. daily or weekly data
type Fixed struct {
	Step time.Duration
}

func (f Fixed) Ordinal(t time.Time) int64 {
	return int64(math.Floor(float64(t.UnixNano()) / float64(f.Step)))
}

func (f Fixed) Add(t time.Time, n int) time.Time {
	return t.Add(time.Duration(n) * f.Step)
}

func (f Fixed) String() string { return f.Step.String() }

// InferFrequency picks the calendar frequency whose period gap is most common between
// consecutive dates. Sub-monthly data falls back to the most common fixed interval.
func InferFrequency(t []time.Time) (Frequency, error) {
	if len(t) < 2 {
		return nil, ErrCannotInferFreq
	}

	gaps := make(map[int64]int)
	for i := 1; i < len(t); i++ {
		gaps[Monthly.Ordinal(t[i])-Monthly.Ordinal(t[i-1])]++
	}

	var modeGap int64
	var modeCnt int
	for gap, cnt := range gaps {
		if cnt > modeCnt || (cnt == modeCnt && gap < modeGap) {
			modeGap = gap
			modeCnt = cnt
		}
	}

	switch modeGap {
	case 1:
		return Monthly, nil
	case 3:
		return Quarterly, nil
	case 12:
		return Annual, nil
	}

	step, err := TimeSlice(t).EstimateFreq()
	if err != nil {
		return nil, err
	}
	if step <= 0 {
		return nil, ErrNonPositivePeriod
	}
	return Fixed{Step: step}, nil
}

// ParseFrequency parses a configured frequency. "auto" and "" return nil so that callers
// infer the frequency from the target series.
func ParseFrequency(s string) (Frequency, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return nil, nil
	case "monthly", "m":
		return Monthly, nil
	case "quarterly", "q":
		return Quarterly, nil
	case "annual", "yearly", "a", "y":
		return Annual, nil
	}
	step, err := time.ParseDuration(s)
	if err != nil {
		return nil, fmt.Errorf("%q, %w", s, ErrUnknownFrequency)
	}
	if step <= 0 {
		return nil, ErrNonPositivePeriod
	}
	return Fixed{Step: step}, nil
}
