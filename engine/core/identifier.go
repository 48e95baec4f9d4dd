package core

import (
	"fmt"

	"github.com/spaghettifunk/statecache/engine/containers"
)

// Handle identifies a device resource. The low 32 bits hold the slot index
// in the owning allocator, the high 32 bits the generation of that slot.
// The zero value is the null handle and is never handed out.
type Handle uint64

const NullHandle Handle = 0

func NewHandle(index, generation uint32) Handle {
	return Handle(uint64(generation)<<32 | uint64(index))
}

func (h Handle) Index() uint32 {
	return uint32(h)
}

func (h Handle) Generation() uint32 {
	return uint32(h >> 32)
}

func (h Handle) IsNull() bool {
	return h == NullHandle
}

func (h Handle) String() string {
	if h.IsNull() {
		return "handle(null)"
	}
	return fmt.Sprintf("handle(%d@%d)", h.Index(), h.Generation())
}

// HandleAllocator hands out generation-counted handles. Released indices
// are recycled first-in first-out and their generation is bumped, so a
// recycled index never produces a handle equal to one released earlier.
type HandleAllocator struct {
	generations []uint32
	owners      []interface{}
	free        *containers.RingQueue[uint32]
}

func NewHandleAllocator(initialCapacity int) *HandleAllocator {
	if initialCapacity <= 0 {
		initialCapacity = 100
	}
	return &HandleAllocator{
		generations: make([]uint32, 0, initialCapacity),
		owners:      make([]interface{}, 0, initialCapacity),
		free:        containers.NewRingQueue[uint32](initialCapacity),
	}
}

// Acquire returns a new handle owned by owner.
func (a *HandleAllocator) Acquire(owner interface{}) Handle {
	if idx, err := a.free.Dequeue(); err == nil {
		a.owners[idx] = owner
		return NewHandle(idx, a.generations[idx])
	}

	// No free slot, push a new one. Generations start at 1 so that index 0
	// never yields the null handle.
	idx := uint32(len(a.generations))
	a.generations = append(a.generations, 1)
	a.owners = append(a.owners, owner)
	return NewHandle(idx, 1)
}

// Release invalidates h and makes its index available for reuse.
func (a *HandleAllocator) Release(h Handle) error {
	if err := a.Validate(h); err != nil {
		return err
	}
	idx := h.Index()
	a.owners[idx] = nil
	a.generations[idx]++
	if a.generations[idx] == 0 {
		a.generations[idx] = 1
	}
	if a.free.IsFull() {
		a.free.Grow()
	}
	return a.free.Enqueue(idx)
}

// Validate reports whether h refers to a live allocation.
func (a *HandleAllocator) Validate(h Handle) error {
	if h.IsNull() {
		return ErrInvalidHandle
	}
	idx := h.Index()
	if int(idx) >= len(a.generations) {
		return fmt.Errorf("%s: index out of range (max=%d): %w", h, len(a.generations), ErrInvalidHandle)
	}
	if a.generations[idx] != h.Generation() {
		return fmt.Errorf("%s: current generation %d: %w", h, a.generations[idx], ErrStaleHandle)
	}
	return nil
}

// Owner returns the value registered with h, or nil for dead handles.
func (a *HandleAllocator) Owner(h Handle) interface{} {
	if a.Validate(h) != nil {
		return nil
	}
	return a.owners[h.Index()]
}

// Live returns the number of live handles.
func (a *HandleAllocator) Live() int {
	return len(a.generations) - a.free.Len()
}
