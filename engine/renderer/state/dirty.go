package state

import (
	"fmt"

	"github.com/spaghettifunk/statecache/engine/math"
)

// DirtyRange holds the inclusive slot bounds [Min, Max] that contain every
// slot whose pending binding may differ from what was last reconciled. The
// canonical empty range is {Min: capacity, Max: -1}.
type DirtyRange struct {
	Min int
	Max int
	// Forced ranges are applied in full: no trimming, every slot is issued.
	Forced bool
}

func emptyRange(capacity int) DirtyRange {
	return DirtyRange{Min: capacity, Max: -1}
}

func (r DirtyRange) IsEmpty() bool {
	return r.Min > r.Max
}

func (r DirtyRange) Contains(slot int) bool {
	return slot >= r.Min && slot <= r.Max
}

// Len is the number of slots covered.
func (r DirtyRange) Len() int {
	if r.IsEmpty() {
		return 0
	}
	return r.Max - r.Min + 1
}

func (r *DirtyRange) include(slot int) {
	r.widen(slot, slot)
}

func (r *DirtyRange) widen(lo, hi int) {
	if lo > hi {
		return
	}
	r.Min = math.Min(r.Min, lo)
	r.Max = math.Max(r.Max, hi)
}

// clamp drops the slots at or beyond limit.
func (r *DirtyRange) clamp(limit int) {
	r.Min = math.Max(r.Min, 0)
	r.Max = math.Min(r.Max, limit-1)
}

func (r *DirtyRange) reset(capacity int) {
	*r = emptyRange(capacity)
}

func (r DirtyRange) String() string {
	if r.IsEmpty() {
		return "[]"
	}
	if r.Forced {
		return fmt.Sprintf("[%d,%d]!", r.Min, r.Max)
	}
	return fmt.Sprintf("[%d,%d]", r.Min, r.Max)
}
