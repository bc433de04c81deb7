package timetable

import (
	"encoding/binary"
	"encoding/hex"
	"math"

	"golang.org/x/crypto/blake2b"
)

// Digest fingerprints the index, column names and values so a run can be tied
// to the exact input it analysed.
func (t *Table) Digest() string {
	h, _ := blake2b.New256(nil) // only fails for oversized keys
	var buf [8]byte
	for _, ts := range t.index {
		binary.LittleEndian.PutUint64(buf[:], uint64(ts.UnixNano()))
		h.Write(buf[:])
	}
	for _, name := range t.order {
		h.Write([]byte(name))
		h.Write([]byte{0})
		for _, v := range t.columns[name] {
			binary.LittleEndian.PutUint64(buf[:], math.Float64bits(v))
			h.Write(buf[:])
		}
	}
	return hex.EncodeToString(h.Sum(nil))
}
