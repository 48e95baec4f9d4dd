package state

import (
	"fmt"

	"github.com/spaghettifunk/statecache/engine/core"
	"github.com/spaghettifunk/statecache/engine/renderer/metadata"
)

type pendingTable struct {
	bindings []metadata.Binding
	dirty    DirtyRange
	// Highest slot ever set, -1 when none. Bounds ClearAll.
	highWater int
}

// Pending is the desired binding state of one pipeline.
type Pending struct {
	tables [metadata.CategoryCount]pendingTable

	renderState      metadata.RenderState
	renderStateDirty bool
}

func newPending(caps metadata.Capabilities) *Pending {
	p := &Pending{
		renderState:      metadata.DefaultRenderState(),
		renderStateDirty: true,
	}
	for c := range p.tables {
		n := caps.MaxSlots[c]
		p.tables[c] = pendingTable{
			bindings:  make([]metadata.Binding, n),
			dirty:     emptyRange(n),
			highWater: -1,
		}
	}
	return p
}

func (p *Pending) capacity(c metadata.Category) int {
	return len(p.tables[c].bindings)
}

func (p *Pending) checkSlot(c metadata.Category, slot int) error {
	if !c.Valid() {
		return fmt.Errorf("%s: %w", c, core.ErrInvalidCategory)
	}
	if slot < 0 || slot >= p.capacity(c) {
		return fmt.Errorf("%s slot %d (capacity %d): %w", c, slot, p.capacity(c), core.ErrSlotOutOfRange)
	}
	return nil
}

func (p *Pending) set(c metadata.Category, slot int, b metadata.Binding) error {
	if err := p.checkSlot(c, slot); err != nil {
		return err
	}
	t := &p.tables[c]
	t.bindings[slot] = b
	t.dirty.include(slot)
	if slot > t.highWater {
		t.highWater = slot
	}
	return nil
}

func (p *Pending) clearAll(c metadata.Category) error {
	if !c.Valid() {
		return fmt.Errorf("%s: %w", c, core.ErrInvalidCategory)
	}
	t := &p.tables[c]
	if t.highWater < 0 {
		return nil
	}
	for slot := 0; slot <= t.highWater; slot++ {
		t.bindings[slot] = metadata.Binding{}
	}
	t.dirty.widen(0, t.highWater)
	return nil
}

func (p *Pending) setRenderState(rs metadata.RenderState) {
	p.renderState = rs
	p.renderStateDirty = true
}

// force marks [0, bound] of c for a full re-apply.
func (p *Pending) force(c metadata.Category, bound int) {
	if bound < 0 {
		return
	}
	t := &p.tables[c]
	t.dirty.widen(0, bound)
	t.dirty.Forced = true
}

// forget clears every slot referencing h, widening the dirty ranges so the
// cleared slots get reconciled. Returns the number of slots cleared.
func (p *Pending) forget(h core.Handle) int {
	n := 0
	for c := range p.tables {
		t := &p.tables[c]
		for slot := 0; slot <= t.highWater; slot++ {
			if t.bindings[slot].References(h) {
				t.bindings[slot] = metadata.Binding{}
				t.dirty.include(slot)
				n++
			}
		}
	}
	return n
}
