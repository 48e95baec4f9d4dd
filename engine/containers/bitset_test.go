package containers

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type run struct{ first, last int }

func collectRuns(b *Bitset, value bool) []run {
	var out []run
	b.Runs(value, func(first, last int) bool {
		out = append(out, run{first, last})
		return true
	})
	return out
}

func TestBitsetRuns(t *testing.T) {
	b := NewBitset(130)
	b.SetRange(0, 2, true)
	b.Set(63)
	b.Set(64)
	b.SetRange(127, 129, true)

	assert.Equal(t, []run{{0, 2}, {63, 64}, {127, 129}}, collectRuns(b, true))
	assert.Equal(t, []run{{3, 62}, {65, 126}}, collectRuns(b, false))
	assert.Equal(t, 8, b.Count())
}

func TestBitsetRunsStopEarly(t *testing.T) {
	b := NewBitset(10)
	b.Set(1)
	b.Set(5)
	n := 0
	b.Runs(true, func(first, last int) bool {
		n++
		return false
	})
	assert.Equal(t, 1, n)
}

func TestBitsetEmptyAndFull(t *testing.T) {
	b := NewBitset(70)
	assert.Empty(t, collectRuns(b, true))
	assert.Equal(t, []run{{0, 69}}, collectRuns(b, false))

	b.SetRange(0, 69, true)
	assert.Equal(t, []run{{0, 69}}, collectRuns(b, true))
	assert.Equal(t, 70, b.Count())

	b.Clear(69)
	assert.False(t, b.Test(69))
	assert.True(t, b.Test(68))
}

func TestBitsetAndNot(t *testing.T) {
	a := NewBitset(16)
	b := NewBitset(16)
	a.SetRange(0, 7, true)
	b.SetRange(4, 11, true)

	assert.Equal(t, []run{{0, 3}}, collectRuns(a.AndNot(b), true))
	assert.Equal(t, []run{{8, 11}}, collectRuns(b.AndNot(a), true))
	assert.Equal(t, 16, a.AndNot(b).Len())
}
