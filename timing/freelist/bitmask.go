package freelist

import "math/bits"

// Bitmask is a fixed-width set of indices backed by 64-bit words.
// Bit i set means index i is a member of the set.
type Bitmask struct {
	words []uint64
	n     int
}

// NewBitmask returns an empty Bitmask that can hold indices [0, n).
func NewBitmask(n int) Bitmask {
	return Bitmask{
		words: make([]uint64, (n+63)/64),
		n:     n,
	}
}

// FullBitmask returns a Bitmask with every index in [0, n) set.
func FullBitmask(n int) Bitmask {
	m := NewBitmask(n)
	for i := range m.words {
		m.words[i] = ^uint64(0)
	}
	m.trim()
	return m
}

// BitmaskFromUint64 builds an n-wide Bitmask from the low bits of v.
// Only masks of width 64 or less can be built this way.
func BitmaskFromUint64(n int, v uint64) Bitmask {
	if n > 64 {
		panic("freelist: BitmaskFromUint64 supports at most 64 bits")
	}
	m := NewBitmask(n)
	if n > 0 {
		m.words[0] = v
	}
	m.trim()
	return m
}

// trim clears the bits above n in the last word.
func (m *Bitmask) trim() {
	if len(m.words) == 0 {
		return
	}
	if rem := m.n % 64; rem != 0 {
		m.words[len(m.words)-1] &= (uint64(1) << rem) - 1
	}
}

// Len returns the width of the mask.
func (m Bitmask) Len() int {
	return m.n
}

// Test reports whether index i is set.
func (m Bitmask) Test(i int) bool {
	if i < 0 || i >= m.n {
		return false
	}
	return m.words[i/64]&(uint64(1)<<(i%64)) != 0
}

// Set adds index i to the mask.
func (m *Bitmask) Set(i int) {
	m.checkRange(i)
	m.words[i/64] |= uint64(1) << (i % 64)
}

// Clear removes index i from the mask.
func (m *Bitmask) Clear(i int) {
	m.checkRange(i)
	m.words[i/64] &^= uint64(1) << (i % 64)
}

func (m Bitmask) checkRange(i int) {
	if i < 0 || i >= m.n {
		panic("freelist: bitmask index out of range")
	}
}

// Count returns the number of set indices.
func (m Bitmask) Count() int {
	c := 0
	for _, w := range m.words {
		c += bits.OnesCount64(w)
	}
	return c
}

// Lowest returns the lowest set index.
func (m Bitmask) Lowest() (int, bool) {
	for wi, w := range m.words {
		if w != 0 {
			return wi*64 + bits.TrailingZeros64(w), true
		}
	}
	return 0, false
}

// Not returns the complement of the mask within its width.
func (m Bitmask) Not() Bitmask {
	out := NewBitmask(m.n)
	for i, w := range m.words {
		out.words[i] = ^w
	}
	out.trim()
	return out
}

// Clone returns an independent copy of the mask.
func (m Bitmask) Clone() Bitmask {
	out := NewBitmask(m.n)
	copy(out.words, m.words)
	return out
}

// Equal reports whether both masks have the same width and members.
func (m Bitmask) Equal(o Bitmask) bool {
	if m.n != o.n {
		return false
	}
	for i := range m.words {
		if m.words[i] != o.words[i] {
			return false
		}
	}
	return true
}

// Uint64 returns the low 64 bits of the mask.
func (m Bitmask) Uint64() uint64 {
	if len(m.words) == 0 {
		return 0
	}
	return m.words[0]
}

// Indices lists the set indices in increasing order.
func (m Bitmask) Indices() []int {
	out := make([]int, 0, m.Count())
	for wi, w := range m.words {
		for w != 0 {
			b := bits.TrailingZeros64(w)
			out = append(out, wi*64+b)
			w &= w - 1
		}
	}
	return out
}
