package design

import (
	"fmt"
	"time"

	"github.com/chineduezebuiroh/realestate-intel/feature"
	mat_ "github.com/chineduezebuiroh/realestate-intel/mat"
	"github.com/chineduezebuiroh/realestate-intel/series"
)

// frame is the inner join of the target and every base series on period ordinal
type frame struct {
	ord   []int64
	t     []time.Time
	pos   map[int64]int
	names []string
	vals  map[string][]float64
}

func join(freq series.Frequency, target *series.Series, sources map[string]*series.Series, names []string) *frame {
	byOrd := make(map[string]map[int64]float64, len(names))
	for _, name := range names {
		s := sources[name]
		idx := make(map[int64]float64, s.Len())
		for i, t := range s.T {
			idx[freq.Ordinal(t)] = s.Y[i]
		}
		byOrd[name] = idx
	}

	f := &frame{
		pos:   make(map[int64]int, target.Len()),
		names: names,
		vals:  make(map[string][]float64, len(names)+1),
	}

	lastOrd := int64(0)
	for i, t := range target.T {
		o := freq.Ordinal(t)
		if i > 0 && o == lastOrd {
			// same period stamped twice, keep the latest
			n := len(f.ord) - 1
			if n >= 0 && f.ord[n] == o {
				f.t[n] = t
				f.vals[feature.TargetName][n] = target.Y[i]
			}
			continue
		}
		lastOrd = o

		row := make([]float64, len(names))
		ok := true
		for j, name := range names {
			v, exists := byOrd[name][o]
			if !exists {
				ok = false
				break
			}
			row[j] = v
		}
		if !ok {
			continue
		}

		f.pos[o] = len(f.ord)
		f.ord = append(f.ord, o)
		f.t = append(f.t, t)
		f.vals[feature.TargetName] = append(f.vals[feature.TargetName], target.Y[i])
		for j, name := range names {
			f.vals[name] = append(f.vals[name], row[j])
		}
	}
	return f
}

func (f *frame) len() int {
	return len(f.ord)
}

// lag returns the joined value of name one lag before row i, or false if that period was
// dropped by the join or precedes history
func (f *frame) lag(name string, i, lag int) (float64, bool) {
	j, exists := f.pos[f.ord[i]-int64(lag)]
	if !exists {
		return 0, false
	}
	return f.vals[name][j], true
}

// Assemble builds a design matrix from already loaded series. sources maps every spec name
// to its base series. A nil freq is inferred from the target dates.
//
// Rows are the periods present in every series. A lag column at date d holds the joined
// value at period d minus the lag. Rows missing any lag are dropped.
func Assemble(target *series.Series, sources map[string]*series.Series, specs []feature.Spec, freq series.Frequency, minObs int) (*Matrix, error) {
	if err := feature.Validate(specs); err != nil {
		return nil, err
	}
	if target.Len() == 0 {
		return nil, &series.NotFoundError{Key: target.Key}
	}
	if freq == nil {
		var err error
		if freq, err = series.InferFrequency(target.T); err != nil {
			return nil, fmt.Errorf("inferring frequency of %s, %w", target.Key, err)
		}
	}

	names := make([]string, len(specs))
	for i, s := range specs {
		src, exists := sources[s.Name]
		if !exists || src.Len() == 0 {
			return nil, &series.NotFoundError{Key: s.Source.Normalize()}
		}
		names[i] = s.Name
	}

	required := max(minObs, 1)
	f := join(freq, target, sources, names)
	if f.len() == 0 {
		return nil, &series.InsufficientHistoryError{
			Key: target.Key, Subject: "aligned series", Actual: 0, Required: required,
		}
	}
	for _, s := range specs {
		if maxLag := s.MaxLag(); maxLag >= f.len() {
			return nil, &series.InsufficientHistoryError{
				Key:      s.Source.Normalize(),
				Subject:  fmt.Sprintf("feature %q lag %d", s.Name, maxLag),
				Actual:   f.len(),
				Required: maxLag + 1,
			}
		}
	}

	cols := feature.Columns(specs)
	var keep []int
	var rows [][]float64
	for i := 0; i < f.len(); i++ {
		row := make([]float64, len(cols))
		ok := true
		for j, c := range cols {
			v, exists := f.lag(c.Name, i, c.Lag)
			if !exists {
				ok = false
				break
			}
			row[j] = v
		}
		if ok {
			keep = append(keep, i)
			rows = append(rows, row)
		}
	}

	if len(keep) < required {
		return nil, &series.InsufficientHistoryError{
			Key: target.Key, Subject: "design matrix", Actual: len(keep), Required: required,
		}
	}

	m := &Matrix{
		Target:  target.Key,
		Freq:    freq,
		T:       make([]time.Time, len(keep)),
		Y:       make([]float64, len(keep)),
		Columns: feature.NewLabels(cols),
		Specs:   append([]feature.Spec(nil), specs...),
		Base:    make(map[string]*series.Series, len(specs)+1),
	}
	for r, i := range keep {
		m.T[r] = f.t[i]
		m.Y[r] = f.vals[feature.TargetName][i]
	}
	if len(cols) > 0 {
		x, err := mat_.NewDenseFromArray(rows)
		if err != nil {
			return nil, err
		}
		m.X = x
	}

	m.Base[feature.TargetName] = alignedBase(target.Key, m.T, f, feature.TargetName, keep)
	for _, s := range specs {
		m.Base[s.Name] = alignedBase(s.Source.Normalize(), m.T, f, s.Name, keep)
	}
	return m, nil
}

func alignedBase(key series.Key, t []time.Time, f *frame, name string, keep []int) *series.Series {
	s := &series.Series{
		Key: key,
		T:   make([]time.Time, len(keep)),
		Y:   make([]float64, len(keep)),
	}
	copy(s.T, t)
	for r, i := range keep {
		s.Y[r] = f.vals[name][i]
	}
	return s
}
