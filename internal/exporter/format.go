package exporter

import (
	"math"
	"strconv"
)

// formatFloat renders a value for CSV output; missing values are empty.
func formatFloat(f float64) string {
	if math.IsNaN(f) {
		return ""
	}
	return strconv.FormatFloat(f, 'g', 10, 64)
}

// formatInt formats an int for CSV output
func formatInt(i int) string {
	return strconv.Itoa(i)
}

// formatBool renders an optional verdict, N/A when undecided.
func formatBool(b *bool) string {
	if b == nil {
		return "N/A"
	}
	return strconv.FormatBool(*b)
}

// cellValue converts v for a spreadsheet cell: nil for NaN or infinite values.
func cellValue(v float64) any {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return v
}
