package numeric

import (
	"math"
	"strconv"
)

// Float is a float64 where NaN and ±Inf mean "unavailable".
// It marshals to JSON null in that case so result records can always be encoded.
type Float float64

// NA returns the missing-value sentinel.
func NA() Float {
	return Float(math.NaN())
}

// IsNA reports whether the value is unavailable.
func (f Float) IsNA() bool {
	v := float64(f)
	return math.IsNaN(v) || math.IsInf(v, 0)
}

// Value returns the underlying float64 (NaN when unavailable).
func (f Float) Value() float64 {
	return float64(f)
}

// MarshalJSON implements json.Marshaler.
func (f Float) MarshalJSON() ([]byte, error) {
	if f.IsNA() {
		return []byte("null"), nil
	}
	return []byte(strconv.FormatFloat(float64(f), 'g', -1, 64)), nil
}

// UnmarshalJSON implements json.Unmarshaler; null decodes to the sentinel.
func (f *Float) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*f = NA()
		return nil
	}
	v, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		return err
	}
	*f = Float(v)
	return nil
}

// IsFinite reports whether v is neither NaN nor infinite.
func IsFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// Floats converts a slice of float64 into sentinel-aware values.
func Floats(values []float64) []Float {
	out := make([]Float, len(values))
	for i, v := range values {
		out[i] = Float(v)
	}
	return out
}
