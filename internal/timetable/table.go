package timetable

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"time"

	"ethvaluation/internal/numeric"
)

// Table is a time-indexed set of named numeric columns.
// The index is unique and strictly increasing; NaN marks a missing value.
type Table struct {
	index   []time.Time
	order   []string
	columns map[string][]float64
}

// New creates an empty table over index. The index must be strictly increasing.
func New(index []time.Time) (*Table, error) {
	for i := 1; i < len(index); i++ {
		if !index[i].After(index[i-1]) {
			return nil, fmt.Errorf("index not strictly increasing at position %d (%s after %s)",
				i, index[i].Format(time.DateOnly), index[i-1].Format(time.DateOnly))
		}
	}
	idx := make([]time.Time, len(index))
	copy(idx, index)
	return &Table{index: idx, columns: make(map[string][]float64)}, nil
}

// FromColumns builds a table from an index and columns added in names order.
func FromColumns(index []time.Time, names []string, values [][]float64) (*Table, error) {
	if len(names) != len(values) {
		return nil, fmt.Errorf("%d column names for %d columns", len(names), len(values))
	}
	t, err := New(index)
	if err != nil {
		return nil, err
	}
	for i, name := range names {
		if err := t.SetColumn(name, values[i]); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// Len returns the number of rows.
func (t *Table) Len() int {
	return len(t.index)
}

// Index returns the row timestamps. Callers must not modify the slice.
func (t *Table) Index() []time.Time {
	return t.index
}

// Columns returns column names in insertion order.
func (t *Table) Columns() []string {
	out := make([]string, len(t.order))
	copy(out, t.order)
	return out
}

// Has reports whether a column exists.
func (t *Table) Has(name string) bool {
	_, ok := t.columns[name]
	return ok
}

// Missing returns the names that are not columns of t, in the given order.
func (t *Table) Missing(names ...string) []string {
	var missing []string
	for _, n := range names {
		if !t.Has(n) {
			missing = append(missing, n)
		}
	}
	return missing
}

// Column returns a copy of the named column.
func (t *Table) Column(name string) ([]float64, bool) {
	col, ok := t.columns[name]
	if !ok {
		return nil, false
	}
	out := make([]float64, len(col))
	copy(out, col)
	return out, true
}

// At returns the value of column name at row i, NaN when absent.
func (t *Table) At(name string, i int) float64 {
	col, ok := t.columns[name]
	if !ok || i < 0 || i >= len(col) {
		return math.NaN()
	}
	return col[i]
}

// SetColumn adds or replaces a column. values must have one entry per row.
func (t *Table) SetColumn(name string, values []float64) error {
	if len(values) != len(t.index) {
		return fmt.Errorf("column %q has %d values, table has %d rows", name, len(values), len(t.index))
	}
	col := make([]float64, len(values))
	copy(col, values)
	if _, exists := t.columns[name]; !exists {
		t.order = append(t.order, name)
	}
	t.columns[name] = col
	return nil
}

// SetSeries writes s into column name, aligning on the index. Rows of t not
// present in s are set to NaN.
func (t *Table) SetSeries(name string, s Series) error {
	values := make([]float64, t.Len())
	for i := range values {
		values[i] = math.NaN()
	}
	for i, ts := range s.Index {
		if pos, ok := t.Position(ts); ok {
			values[pos] = s.Values[i]
		}
	}
	return t.SetColumn(name, values)
}

// Position returns the row of ts, if present.
func (t *Table) Position(ts time.Time) (int, bool) {
	i := sort.Search(len(t.index), func(i int) bool { return !t.index[i].Before(ts) })
	if i < len(t.index) && t.index[i].Equal(ts) {
		return i, true
	}
	return i, false
}

// Clone returns a deep copy.
func (t *Table) Clone() *Table {
	return t.rows(allRows(t.Len()))
}

// Slice returns a copy of rows [start, end).
func (t *Table) Slice(start, end int) *Table {
	if start < 0 {
		start = 0
	}
	if end > t.Len() {
		end = t.Len()
	}
	if end < start {
		end = start
	}
	rows := make([]int, 0, end-start)
	for i := start; i < end; i++ {
		rows = append(rows, i)
	}
	return t.rows(rows)
}

// Select returns a copy restricted to the named columns.
func (t *Table) Select(names ...string) (*Table, error) {
	if missing := t.Missing(names...); len(missing) > 0 {
		return nil, fmt.Errorf("missing columns: %v", missing)
	}
	out := &Table{index: append([]time.Time(nil), t.index...), columns: make(map[string][]float64)}
	for _, n := range names {
		if out.Has(n) {
			continue
		}
		if err := out.SetColumn(n, t.columns[n]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// DropMissing returns a copy without rows where any of the named columns is
// NaN or infinite. With no names every column is checked.
func (t *Table) DropMissing(names ...string) *Table {
	if len(names) == 0 {
		names = t.order
	}
	var keep []int
	for i := range t.index {
		ok := true
		for _, n := range names {
			if !numeric.IsFinite(t.At(n, i)) {
				ok = false
				break
			}
		}
		if ok {
			keep = append(keep, i)
		}
	}
	return t.rows(keep)
}

// ReplaceInf returns a copy with ±Inf replaced by NaN in every column.
func (t *Table) ReplaceInf() *Table {
	out := t.Clone()
	for _, col := range out.columns {
		for i, v := range col {
			if math.IsInf(v, 0) {
				col[i] = math.NaN()
			}
		}
	}
	return out
}

// Series returns the named column as a series.
func (t *Table) Series(name string) (Series, error) {
	col, ok := t.Column(name)
	if !ok {
		return Series{}, fmt.Errorf("missing column: %s", name)
	}
	return Series{Name: name, Index: append([]time.Time(nil), t.index...), Values: col}, nil
}

func (t *Table) rows(keep []int) *Table {
	out := &Table{
		index:   make([]time.Time, len(keep)),
		order:   append([]string(nil), t.order...),
		columns: make(map[string][]float64, len(t.columns)),
	}
	for j, i := range keep {
		out.index[j] = t.index[i]
	}
	for name, col := range t.columns {
		c := make([]float64, len(keep))
		for j, i := range keep {
			c[j] = col[i]
		}
		out.columns[name] = c
	}
	return out
}

func allRows(n int) []int {
	rows := make([]int, n)
	for i := range rows {
		rows[i] = i
	}
	return rows
}

// Series is a named, time-indexed sequence of values.
type Series struct {
	Name   string
	Index  []time.Time
	Values []float64
}

// Len returns the number of observations.
func (s Series) Len() int {
	return len(s.Values)
}

// Last returns the final observation, NaN for an empty series.
func (s Series) Last() (time.Time, float64) {
	if len(s.Values) == 0 {
		return time.Time{}, math.NaN()
	}
	return s.Index[len(s.Index)-1], s.Values[len(s.Values)-1]
}

// MarshalJSON encodes the series with missing values as null.
func (s Series) MarshalJSON() ([]byte, error) {
	dates := make([]string, len(s.Index))
	for i, ts := range s.Index {
		dates[i] = ts.Format(time.DateOnly)
	}
	return json.Marshal(struct {
		Name   string          `json:"name"`
		Index  []string        `json:"index"`
		Values []numeric.Float `json:"values"`
	}{s.Name, dates, numeric.Floats(s.Values)})
}
