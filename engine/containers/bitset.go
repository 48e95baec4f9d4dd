package containers

import "math/bits"

// Bitset is a fixed-length set of bits backed by 64-bit words.
type Bitset struct {
	words []uint64
	n     int
}

func NewBitset(n int) *Bitset {
	return &Bitset{
		words: make([]uint64, (n+63)/64),
		n:     n,
	}
}

func (b *Bitset) Len() int {
	return b.n
}

func (b *Bitset) Test(i int) bool {
	return b.words[i>>6]&(1<<(uint(i)&63)) != 0
}

func (b *Bitset) Set(i int) {
	b.words[i>>6] |= 1 << (uint(i) & 63)
}

func (b *Bitset) Clear(i int) {
	b.words[i>>6] &^= 1 << (uint(i) & 63)
}

// Count returns the number of set bits.
func (b *Bitset) Count() int {
	c := 0
	for _, w := range b.words {
		c += bits.OnesCount64(w)
	}
	return c
}

// Runs calls fn for every maximal run [first, last] of bits equal to value,
// in increasing order. Iteration stops when fn returns false.
func (b *Bitset) Runs(value bool, fn func(first, last int) bool) {
	i := 0
	for i < b.n {
		i = b.next(i, value)
		if i >= b.n {
			return
		}
		j := b.next(i, !value)
		if j > b.n {
			j = b.n
		}
		if !fn(i, j-1) {
			return
		}
		i = j
	}
}

// next returns the index of the first bit at or after i equal to value, or
// b.n when there is none.
func (b *Bitset) next(i int, value bool) int {
	for i < b.n {
		w := b.words[i>>6]
		if !value {
			w = ^w
		}
		w >>= uint(i) & 63
		if w != 0 {
			i += bits.TrailingZeros64(w)
			if i > b.n {
				return b.n
			}
			return i
		}
		i = (i | 63) + 1
	}
	return b.n
}

// AndNot returns a new set holding the bits of b that are not set in o.
// Both sets must have the same length.
func (b *Bitset) AndNot(o *Bitset) *Bitset {
	out := NewBitset(b.n)
	for i := range b.words {
		out.words[i] = b.words[i] &^ o.words[i]
	}
	return out
}

// SetRange sets or clears every bit in [first, last].
func (b *Bitset) SetRange(first, last int, value bool) {
	for i := first; i <= last; i++ {
		if value {
			b.Set(i)
		} else {
			b.Clear(i)
		}
	}
}
