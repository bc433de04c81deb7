package timetable

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"time"
)

var dateLayouts = []string{
	time.DateOnly,
	time.RFC3339,
	time.DateTime,
	"2006-01-02T15:04:05",
	"01/02/2006",
}

// ReadCSV loads a table from a CSV file whose first column (or the column
// named "date") holds the timestamps.
func ReadCSV(path string) (*Table, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open CSV file: %w", err)
	}
	defer file.Close()

	t, err := Read(file)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return t, nil
}

// Read parses CSV data with a header row. Empty, "NaN", "NA" and "null" cells
// become NaN; "inf" cells keep their infinite value.
func Read(r io.Reader) (*Table, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read CSV data: %w", err)
	}
	data = bytes.TrimPrefix(data, []byte{0xEF, 0xBB, 0xBF})

	reader := csv.NewReader(bytes.NewReader(data))
	reader.TrimLeadingSpace = true
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read CSV records: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("empty CSV file")
	}
	if len(records) == 1 {
		return nil, fmt.Errorf("CSV file contains only header")
	}

	header := records[0]
	dateCol := 0
	for i, h := range header {
		if strings.EqualFold(strings.TrimSpace(h), "date") {
			dateCol = i
			break
		}
	}

	rows := records[1:]
	index := make([]time.Time, len(rows))
	values := make([][]float64, len(header))
	for j := range header {
		if j != dateCol {
			values[j] = make([]float64, len(rows))
		}
	}

	for i, record := range rows {
		if len(record) != len(header) {
			return nil, fmt.Errorf("line %d: expected %d fields, got %d", i+2, len(header), len(record))
		}
		ts, err := parseDate(record[dateCol])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", i+2, err)
		}
		index[i] = ts
		for j, cell := range record {
			if j == dateCol {
				continue
			}
			v, err := parseCell(cell)
			if err != nil {
				return nil, fmt.Errorf("line %d column %q: %w", i+2, header[j], err)
			}
			values[j][i] = v
		}
	}

	t, err := New(index)
	if err != nil {
		return nil, err
	}
	for j, h := range header {
		if j == dateCol {
			continue
		}
		if err := t.SetColumn(strings.TrimSpace(h), values[j]); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// Records renders the table as CSV rows (header first) for the exporter.
func (t *Table) Records() (header []string, records [][]string) {
	header = append([]string{"date"}, t.order...)
	records = make([][]string, t.Len())
	for i, ts := range t.index {
		row := make([]string, 0, len(header))
		row = append(row, ts.Format(time.DateOnly))
		for _, name := range t.order {
			row = append(row, formatCell(t.columns[name][i]))
		}
		records[i] = row
	}
	return header, records
}

func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised date %q", s)
}

func parseCell(s string) (float64, error) {
	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case "", "nan", "na", "null", "none":
		return math.NaN(), nil
	}
	return strconv.ParseFloat(s, 64)
}

func formatCell(v float64) string {
	if math.IsNaN(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}
