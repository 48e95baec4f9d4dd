package state

import (
	"fmt"

	"github.com/spaghettifunk/statecache/engine/core"
	"github.com/spaghettifunk/statecache/engine/renderer/metadata"
)

// Activate makes p the consumer whose pending state is reconciled by the
// next operation. Switching to a different pipeline forces a full re-apply
// of the layout dependent categories up to p's declared bound, and of the
// render state, because their applied meaning belongs to the pipeline.
// Other categories keep their normal dirty tracking.
func (ctx *Context) Activate(p *Pipeline) error {
	if p == nil {
		return fmt.Errorf("%s: activate nil pipeline: %w", ctx.name, core.ErrNoActivePipeline)
	}
	if p.ctx != ctx {
		return fmt.Errorf("%s: %s: %w", ctx.name, p, core.ErrForeignPipeline)
	}
	if p.destroyed {
		return fmt.Errorf("%s: %s: %w", ctx.name, p, core.ErrPipelineDestroyed)
	}
	if ctx.active == p {
		return nil
	}

	for c := metadata.Category(0); c < metadata.CategoryCount; c++ {
		if c.LayoutDependent() {
			p.pending.force(c, p.UpperBound(c))
		}
	}
	ctx.forceRenderState = true
	ctx.active = p
	core.LogDebug("%s: %s activated", ctx.name, p)

	if ctx.events != nil {
		ctx.events.Fire(core.EVENT_CODE_PIPELINE_ACTIVATED, ctx, core.EventContext{Pipeline: p.id})
	}
	return nil
}

// Deactivate leaves the context without an active pipeline.
func (ctx *Context) Deactivate() {
	ctx.active = nil
}

// Active returns the active pipeline, or nil.
func (ctx *Context) Active() *Pipeline {
	return ctx.active
}
