package timetable

import (
	"fmt"
	"time"
)

// Mask selects a subset of table rows. A nil Mask selects every row.
type Mask interface {
	resolve(index []time.Time) ([]bool, error)
}

// BoolMask selects rows positionally and must match the table length.
type BoolMask []bool

func (m BoolMask) resolve(index []time.Time) ([]bool, error) {
	if len(m) != len(index) {
		return nil, fmt.Errorf("boolean mask has %d entries, table has %d rows", len(m), len(index))
	}
	out := make([]bool, len(m))
	copy(out, m)
	return out, nil
}

// LabelMask selects the rows whose timestamps are listed. Unknown labels are ignored.
type LabelMask []time.Time

func (m LabelMask) resolve(index []time.Time) ([]bool, error) {
	set := make(map[int64]struct{}, len(m))
	for _, ts := range m {
		set[ts.UnixNano()] = struct{}{}
	}
	out := make([]bool, len(index))
	for i, ts := range index {
		_, out[i] = set[ts.UnixNano()]
	}
	return out, nil
}

// FirstN is a convenience mask selecting the first n rows of a table with size rows.
func FirstN(n, size int) BoolMask {
	m := make(BoolMask, size)
	for i := 0; i < n && i < size; i++ {
		m[i] = true
	}
	return m
}

// ResolveMask turns m into one flag per row of t.
func ResolveMask(t *Table, m Mask) ([]bool, error) {
	if m == nil {
		out := make([]bool, t.Len())
		for i := range out {
			out[i] = true
		}
		return out, nil
	}
	return m.resolve(t.Index())
}
