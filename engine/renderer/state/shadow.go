package state

import (
	"github.com/google/uuid"
	"github.com/spaghettifunk/statecache/engine/core"
	"github.com/spaghettifunk/statecache/engine/renderer/metadata"
)

type shadowTable struct {
	bindings []metadata.Binding
	// Pipeline whose pending state was last reconciled into this table.
	owner uuid.UUID
	// Highest slot ever written, -1 when none.
	highWater int
}

// Shadow records what the device actually has applied. It is owned by one
// Context and only mutated after a device call succeeded, or by the forget
// sweep.
type Shadow struct {
	tables [metadata.CategoryCount]shadowTable

	renderState      metadata.RenderState
	renderStateValid bool
}

func newShadow(caps metadata.Capabilities) *Shadow {
	s := &Shadow{}
	for c := range s.tables {
		s.tables[c] = shadowTable{
			bindings:  make([]metadata.Binding, caps.MaxSlots[c]),
			highWater: -1,
		}
	}
	return s
}

func (s *Shadow) Binding(c metadata.Category, slot int) metadata.Binding {
	return s.tables[c].bindings[slot]
}

func (s *Shadow) Owner(c metadata.Category) uuid.UUID {
	return s.tables[c].owner
}

// RenderState returns the applied fixed-function state and whether any was applied yet.
func (s *Shadow) RenderState() (metadata.RenderState, bool) {
	return s.renderState, s.renderStateValid
}

// store copies the applied sub-range [lo, hi] of pending.
func (t *shadowTable) store(pending []metadata.Binding, lo, hi int) {
	copy(t.bindings[lo:hi+1], pending[lo:hi+1])
	if hi > t.highWater {
		t.highWater = hi
	}
}

// invalidate drops everything recorded for c. The device lost that state,
// so no pipeline owns it any more.
func (s *Shadow) invalidate(c metadata.Category) {
	t := &s.tables[c]
	for slot := 0; slot <= t.highWater; slot++ {
		t.bindings[slot] = metadata.Binding{}
	}
	t.highWater = -1
	t.owner = uuid.Nil
}

func (s *Shadow) invalidateRenderState() {
	s.renderStateValid = false
}

func (s *Shadow) commitRenderState(rs metadata.RenderState) {
	s.renderState = rs
	s.renderStateValid = true
}

// forget clears every slot referencing h and returns the number cleared.
func (s *Shadow) forget(h core.Handle) int {
	n := 0
	for c := range s.tables {
		t := &s.tables[c]
		for slot := 0; slot <= t.highWater; slot++ {
			if t.bindings[slot].References(h) {
				t.bindings[slot] = metadata.Binding{}
				n++
			}
		}
	}
	return n
}
