package feature

// Labels tracks the design matrix columns and their index locations that match up
// with the ordering of the coefficients assigned to each of these columns.
type Labels struct {
	idx    map[Column]int
	labels []Column
}

func NewLabels(labels []Column) *Labels {
	idx := make(map[Column]int)
	for i := 0; i < len(labels); i++ {
		idx[labels[i]] = i
	}
	fl := &Labels{
		labels: labels,
		idx:    idx,
	}
	return fl
}

func (f *Labels) Len() int {
	if f == nil {
		return 0
	}
	return len(f.labels)
}

func (f *Labels) Labels() []Column {
	labels := make([]Column, len(f.labels))
	copy(labels, f.labels)
	return labels
}

func (f *Labels) Index(label Column) (int, bool) {
	if idx, exists := f.idx[label]; exists {
		return idx, exists
	}
	return -1, false
}

// Strings returns the rendered column names in column order
func (f *Labels) Strings() []string {
	out := make([]string, len(f.labels))
	for i, l := range f.labels {
		out[i] = l.String()
	}
	return out
}
