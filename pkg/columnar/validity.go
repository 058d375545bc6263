package columnar

import (
	"github.com/bits-and-blooms/bitset"
)

// Validity is a per-row bitmap where a set bit marks a non-null value
type Validity struct {
	bits  *bitset.BitSet
	n     int
	nulls int
}

func newValidity(capacity int) *Validity {
	return &Validity{bits: bitset.New(uint(capacity))}
}

// ValidityFromBools builds a bitmap from one flag per row
func ValidityFromBools(valid []bool) *Validity {
	v := newValidity(len(valid))
	for _, ok := range valid {
		v.append(ok)
	}
	return v
}

// ValidityFromBytes unpacks n LSB-first bits
func ValidityFromBytes(b []byte, n int) *Validity {
	v := newValidity(n)
	for i := 0; i < n; i++ {
		v.append(b[i/8]&(1<<(uint(i)%8)) != 0)
	}
	return v
}

func (v *Validity) append(valid bool) {
	if valid {
		v.bits.Set(uint(v.n))
	} else {
		v.nulls++
	}
	v.n++
}

// Len returns the number of rows
func (v *Validity) Len() int {
	return v.n
}

// NullCount returns the number of unset bits
func (v *Validity) NullCount() int {
	return v.nulls
}

// IsValid reports whether row i holds a value
func (v *Validity) IsValid(i int) bool {
	return v.bits.Test(uint(i))
}

// nullsIn counts null rows in [off, off+n)
func (v *Validity) nullsIn(off, n int) int {
	if off == 0 && n == v.n {
		return v.nulls
	}
	nulls := 0
	for i := off; i < off+n; i++ {
		if !v.bits.Test(uint(i)) {
			nulls++
		}
	}
	return nulls
}

// AppendPacked appends the bits of rows [off, off+n) to dst, packed
// LSB-first with unused trailing bits zero
func (v *Validity) AppendPacked(dst []byte, off, n int) []byte {
	start := len(dst)
	dst = append(dst, make([]byte, (n+7)/8)...)
	packed := dst[start:]
	for i := 0; i < n; i++ {
		if v.bits.Test(uint(off + i)) {
			packed[i/8] |= 1 << (uint(i) % 8)
		}
	}
	return dst
}
