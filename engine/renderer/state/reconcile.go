package state

import (
	"fmt"

	"github.com/spaghettifunk/statecache/engine/core"
	"github.com/spaghettifunk/statecache/engine/math"
	"github.com/spaghettifunk/statecache/engine/renderer/metadata"
)

// Reconcile applies the pending state of the active pipeline to the device
// with the fewest calls the capability table allows. Categories are
// processed in fixed order, slots in increasing order. A device error stops
// the pass: the failing category keeps its dirty range, and its shadow holds
// exactly the calls that succeeded before the error.
func (ctx *Context) Reconcile() error {
	p := ctx.active
	if p == nil {
		return core.ErrNoActivePipeline
	}

	var stats core.FrameCounters
	stats.Reconciles++
	defer ctx.metrics.Record(stats)

	for c := metadata.Category(0); c < metadata.CategoryCount; c++ {
		if err := ctx.reconcileCategory(p, c, &stats); err != nil {
			return err
		}
	}
	return ctx.reconcileRenderState(p, &stats)
}

func (ctx *Context) reconcileCategory(p *Pipeline, c metadata.Category, stats *core.FrameCounters) error {
	pt := &p.pending.tables[c]
	st := &ctx.shadow.tables[c]
	capacity := len(pt.bindings)

	r := pt.dirty
	// The shadow holds another pipeline's bindings: anything either of them
	// ever wrote may differ, whatever this pipeline's own range says.
	if !c.LayoutDependent() && st.owner != p.id {
		r.widen(0, math.Max(pt.highWater, st.highWater))
	}
	if r.IsEmpty() {
		return nil
	}

	r.clamp(p.limits[c])
	if r.IsEmpty() {
		pt.dirty.reset(capacity)
		return nil
	}

	span := r.Len()
	if !r.Forced {
		for r.Min <= r.Max && pt.bindings[r.Min] == st.bindings[r.Min] {
			r.Min++
		}
		for r.Max >= r.Min && pt.bindings[r.Max] == st.bindings[r.Max] {
			r.Max--
		}
	}
	stats.SkippedSlots += uint64(span - r.Len())
	if r.IsEmpty() {
		st.owner = p.id
		pt.dirty.reset(capacity)
		return nil
	}

	strategy := ctx.strategies[c]
	// On failure the slots already applied are in shadow, but the owner is
	// left alone so the next pass still widens over foreign state.
	if err := strategy.apply(ctx.device, c, pt.bindings, st, r.Min, r.Max, r.Forced, stats); err != nil {
		return fmt.Errorf("%s: %s bind of %s %s failed: %w", ctx.name, strategy.name, c, r, err)
	}
	core.LogDebug("%s: %s %s %s applied for %s", ctx.name, strategy.name, c, r, p.name)

	st.owner = p.id
	pt.dirty.reset(capacity)
	return nil
}

func (ctx *Context) reconcileRenderState(p *Pipeline, stats *core.FrameCounters) error {
	pd := p.pending
	if !pd.renderStateDirty && !ctx.forceRenderState {
		return nil
	}
	applied, valid := ctx.shadow.RenderState()
	if !ctx.forceRenderState && valid && applied == pd.renderState {
		pd.renderStateDirty = false
		return nil
	}
	if err := ctx.device.ApplyRenderState(pd.renderState); err != nil {
		return fmt.Errorf("%s: render state apply failed: %w", ctx.name, err)
	}
	stats.RenderStateApplies++
	ctx.shadow.commitRenderState(pd.renderState)
	pd.renderStateDirty = false
	ctx.forceRenderState = false
	return nil
}
