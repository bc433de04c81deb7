package exporter

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCSVWriter_CreateStreamWriter(t *testing.T) {
	tests := []struct {
		name    string
		headers []string
		bom     bool
		want    []string
	}{
		{name: "with headers", headers: []string{"date", "actual", "predicted"}, want: []string{"date,actual,predicted"}},
		{name: "with BOM", headers: []string{"date"}, bom: true, want: []string{"date"}},
		{name: "without headers", want: []string{""}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			sw, err := NewCSVWriter(dir, nil).CreateStreamWriter("stream.csv", tt.headers, tt.bom)
			require.NoError(t, err)
			assert.Equal(t, filepath.Join(dir, "stream.csv"), sw.Path())
			require.NoError(t, sw.Close())

			content, err := os.ReadFile(sw.Path())
			require.NoError(t, err)
			assert.Equal(t, tt.bom, bytes.HasPrefix(content, utf8BOM))
			assert.Equal(t, tt.want, readLines(t, sw.Path()))
		})
	}
}

func TestStreamWriter_WriteRecord(t *testing.T) {
	sw, err := NewCSVWriter(t.TempDir(), nil).CreateStreamWriter(PredictionsFile, []string{"date", "predicted"}, false)
	require.NoError(t, err)

	require.NoError(t, sw.WriteRecord([]string{"2021-01-31", formatFloat(1234.5)}))
	require.NoError(t, sw.WriteRecord([]string{"2021-02-28", ""}))
	require.NoError(t, sw.Close())

	assert.Equal(t, []string{"date,predicted", "2021-01-31,1234.5", "2021-02-28,"}, readLines(t, sw.Path()))
}

func TestStreamWriter_LargeDataset(t *testing.T) {
	sw, err := NewCSVWriter(t.TempDir(), nil).CreateStreamWriter("large.csv", []string{"i", "value"}, false)
	require.NoError(t, err)

	const n = 5000
	for i := range n {
		require.NoError(t, sw.WriteRecord([]string{formatInt(i), fmt.Sprintf("%.2f", float64(i)/3)}))
	}
	require.NoError(t, sw.Close())

	lines := readLines(t, sw.Path())
	require.Len(t, lines, n+1)
	assert.Equal(t, "4999,1666.33", lines[n])
}
