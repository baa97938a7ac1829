package series

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimeSliceBounds(t *testing.T) {
	ts := TimeSlice{month(2021, 1), month(2021, 2), month(2021, 3)}
	assert.Equal(t, month(2021, 1), ts.StartTime())
	assert.Equal(t, month(2021, 3), ts.EndTime())

	var empty TimeSlice
	assert.True(t, empty.StartTime().IsZero())
	assert.True(t, empty.EndTime().IsZero())
}

func TestEstimateFreq(t *testing.T) {
	day := func(d, h int) time.Time {
		return time.Date(2021, 6, d, h, 0, 0, 0, time.UTC)
	}

	testData := map[string]struct {
		tSlice   TimeSlice
		expected time.Duration
		err      error
	}{
		"nil slice": {
			err: ErrCannotInferFreq,
		},
		"daily": {
			tSlice:   TimeSlice{day(1, 0), day(2, 0), day(3, 0)},
			expected: 24 * time.Hour,
		},
		"mostly daily": {
			tSlice:   TimeSlice{day(1, 0), day(2, 0), day(3, 0), day(3, 1)},
			expected: 24 * time.Hour,
		},
		"ties resolve to the shorter step": {
			tSlice:   TimeSlice{day(1, 0), day(2, 0), day(3, 0), day(3, 1), day(3, 2)},
			expected: time.Hour,
		},
	}

	for name, td := range testData {
		t.Run(name, func(t *testing.T) {
			freq, err := td.tSlice.EstimateFreq()
			if td.err != nil {
				assert.ErrorIs(t, err, td.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, td.expected, freq)
		})
	}
}
