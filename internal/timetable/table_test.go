package timetable

import (
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func monthEnds(n int) []time.Time {
	out := make([]time.Time, n)
	start := time.Date(2016, time.January, 1, 0, 0, 0, 0, time.UTC)
	for i := range out {
		out[i] = start.AddDate(0, i+1, -1)
	}
	return out
}

func TestNew_RejectsUnsortedIndex(t *testing.T) {
	idx := monthEnds(3)
	idx[1], idx[2] = idx[2], idx[1]

	_, err := New(idx)
	assert.Error(t, err)

	dup := []time.Time{idx[0], idx[0]}
	_, err = New(dup)
	assert.Error(t, err)
}

func TestTable_ColumnsAndCopies(t *testing.T) {
	tbl, err := FromColumns(monthEnds(3), []string{"a", "b"}, [][]float64{{1, 2, 3}, {4, 5, 6}})
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "b"}, tbl.Columns())
	assert.Equal(t, []string{"c"}, tbl.Missing("a", "c"))

	col, ok := tbl.Column("a")
	require.True(t, ok)
	col[0] = 100
	assert.Equal(t, 1.0, tbl.At("a", 0), "Column must return a copy")

	err = tbl.SetColumn("short", []float64{1})
	assert.Error(t, err)
}

func TestTable_DropMissingAndSlice(t *testing.T) {
	tbl, err := FromColumns(monthEnds(5), []string{"y", "x"}, [][]float64{
		{1, math.NaN(), 3, 4, 5},
		{1, 2, math.Inf(1), 4, 5},
	})
	require.NoError(t, err)

	clean := tbl.DropMissing("y", "x")
	assert.Equal(t, 3, clean.Len())
	assert.Equal(t, tbl.Index()[3], clean.Index()[1])

	onlyY := tbl.DropMissing("y")
	assert.Equal(t, 4, onlyY.Len())

	s := tbl.Slice(1, 3)
	assert.Equal(t, 2, s.Len())
	assert.Equal(t, 3.0, s.At("y", 1))

	noInf := tbl.ReplaceInf()
	assert.True(t, math.IsNaN(noInf.At("x", 2)))
	assert.True(t, math.IsInf(tbl.At("x", 2), 1), "ReplaceInf must not mutate the receiver")
}

func TestResolveMask(t *testing.T) {
	tbl, err := FromColumns(monthEnds(4), []string{"v"}, [][]float64{{1, 2, 3, 4}})
	require.NoError(t, err)

	tests := []struct {
		name    string
		mask    Mask
		want    []bool
		wantErr bool
	}{
		{name: "nil selects all", mask: nil, want: []bool{true, true, true, true}},
		{name: "bool mask", mask: BoolMask{true, false, true, false}, want: []bool{true, false, true, false}},
		{name: "label mask", mask: LabelMask{tbl.Index()[3], time.Date(1999, 1, 1, 0, 0, 0, 0, time.UTC)}, want: []bool{false, false, false, true}},
		{name: "first n", mask: FirstN(2, 4), want: []bool{true, true, false, false}},
		{name: "length mismatch", mask: BoolMask{true}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResolveMask(tbl, tt.mask)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRead_ParsesMissingCells(t *testing.T) {
	data := "\xEF\xBB\xBFdate,price_usd,active_addr\n" +
		"2020-01-31,130.5,400000\n" +
		"2020-02-29,,410000\n" +
		"2020-03-31,NaN,inf\n"

	tbl, err := Read(strings.NewReader(data))
	require.NoError(t, err)

	assert.Equal(t, 3, tbl.Len())
	assert.Equal(t, []string{"price_usd", "active_addr"}, tbl.Columns())
	assert.True(t, math.IsNaN(tbl.At("price_usd", 1)))
	assert.True(t, math.IsNaN(tbl.At("price_usd", 2)))
	assert.True(t, math.IsInf(tbl.At("active_addr", 2), 1))

	header, records := tbl.Records()
	assert.Equal(t, []string{"date", "price_usd", "active_addr"}, header)
	assert.Equal(t, "2020-02-29", records[1][0])
	assert.Equal(t, "", records[1][1])
}

func TestRead_Errors(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"empty", ""},
		{"header only", "date,x\n"},
		{"bad date", "date,x\nnot-a-date,1\n"},
		{"bad number", "date,x\n2020-01-31,abc\n"},
		{"unsorted", "date,x\n2020-02-29,1\n2020-01-31,2\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Read(strings.NewReader(tt.data))
			assert.Error(t, err)
		})
	}
}

func TestDigest_ChangesWithContent(t *testing.T) {
	a, err := FromColumns(monthEnds(3), []string{"v"}, [][]float64{{1, 2, 3}})
	require.NoError(t, err)
	b := a.Clone()

	assert.Equal(t, a.Digest(), b.Digest())
	require.NoError(t, b.SetColumn("v", []float64{1, 2, 4}))
	assert.NotEqual(t, a.Digest(), b.Digest())
	assert.Len(t, a.Digest(), 64)
}

func TestSetSeries_AlignsOnIndex(t *testing.T) {
	tbl, err := FromColumns(monthEnds(4), []string{"v"}, [][]float64{{1, 2, 3, 4}})
	require.NoError(t, err)

	s := Series{Name: "p", Index: []time.Time{tbl.Index()[2], tbl.Index()[3]}, Values: []float64{30, 40}}
	require.NoError(t, tbl.SetSeries("p", s))

	assert.True(t, math.IsNaN(tbl.At("p", 0)))
	assert.Equal(t, 30.0, tbl.At("p", 2))
	assert.Equal(t, 40.0, tbl.At("p", 3))
}
