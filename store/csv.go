package store

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/chineduezebuiroh/realestate-intel/series"
)

var (
	ErrMissingColumn = errors.New("missing required column")
	ErrBadRecord     = errors.New("bad record")
)

var csvDateLayouts = []string{time.DateOnly, "2006-01", time.RFC3339, "01/02/2006"}

// LoadCSV reads fact rows with a header naming at least metric_id, geo_id, date and value.
// property_type_id is optional. Rows with an empty value are skipped, matching the nullable
// value column of the fact table.
func LoadCSV(r io.Reader, m *Memory) (int, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return 0, fmt.Errorf("reading header, %w", err)
	}
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, name := range []string{"metric_id", "geo_id", "date", "value"} {
		if _, exists := cols[name]; !exists {
			return 0, fmt.Errorf("%s, %w", name, ErrMissingColumn)
		}
	}
	ptIdx, hasPT := cols["property_type_id"]

	var n int
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return n, fmt.Errorf("line %d, %w", line, err)
		}

		raw := strings.TrimSpace(rec[cols["value"]])
		if raw == "" {
			continue
		}
		val, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return n, fmt.Errorf("line %d value %q, %w", line, raw, ErrBadRecord)
		}
		dt, err := parseDate(rec[cols["date"]])
		if err != nil {
			return n, fmt.Errorf("line %d, %w", line, err)
		}

		var pt string
		if hasPT {
			pt = rec[ptIdx]
		}
		m.Add(series.NewKey(rec[cols["metric_id"]], rec[cols["geo_id"]], pt), dt, val)
		n++
	}
	return n, nil
}

func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range csvDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("date %q, %w", s, ErrBadRecord)
}
