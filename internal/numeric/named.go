package numeric

import (
	"bytes"
	"encoding/json"
	"math"
)

// Named is an insertion-ordered mapping from a name to a value. The zero
// value is empty and ready to use. Absent names read as NaN.
type Named struct {
	keys []string
	vals []float64
}

// NamedFrom pairs keys with values. Extra entries of the longer slice are ignored.
func NamedFrom(keys []string, values []float64) Named {
	var n Named
	for i := 0; i < len(keys) && i < len(values); i++ {
		n.Set(keys[i], values[i])
	}
	return n
}

// Set adds or replaces a value, keeping the original position of existing keys.
func (n *Named) Set(key string, v float64) {
	for i, k := range n.keys {
		if k == key {
			n.vals[i] = v
			return
		}
	}
	n.keys = append(n.keys, key)
	n.vals = append(n.vals, v)
}

// Get returns the value for key and whether it is present.
func (n Named) Get(key string) (float64, bool) {
	for i, k := range n.keys {
		if k == key {
			return n.vals[i], true
		}
	}
	return math.NaN(), false
}

// Value returns the value for key, NaN when absent.
func (n Named) Value(key string) float64 {
	v, _ := n.Get(key)
	return v
}

// Keys returns the names in insertion order.
func (n Named) Keys() []string {
	return append([]string(nil), n.keys...)
}

// Values returns the values in insertion order.
func (n Named) Values() []float64 {
	return append([]float64(nil), n.vals...)
}

// Len returns the number of entries.
func (n Named) Len() int {
	return len(n.keys)
}

// MarshalJSON encodes an object with keys in insertion order and unavailable
// values as null.
func (n Named) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range n.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		val, _ := Float(n.vals[i]).MarshalJSON()
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes an object, preserving key order.
func (n *Named) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	if _, err := dec.Token(); err != nil {
		return err
	}
	*n = Named{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, _ := tok.(string)
		var f Float
		if err := dec.Decode(&f); err != nil {
			return err
		}
		n.Set(key, f.Value())
	}
	_, err := dec.Token()
	return err
}
