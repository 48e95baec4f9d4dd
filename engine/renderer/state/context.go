package state

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spaghettifunk/statecache/engine/core"
	"github.com/spaghettifunk/statecache/engine/renderer/metadata"
)

// Context is the binding cache of one device context. It owns the shadow
// state and every pipeline created on it. A Context belongs to the thread
// that drives its device and is not safe for concurrent use.
type Context struct {
	name       string
	device     Device
	caps       metadata.Capabilities
	strategies [metadata.CategoryCount]applyStrategy
	shadow     *Shadow

	pipelines map[uuid.UUID]*Pipeline
	active    *Pipeline

	forceRenderState bool

	events  *core.EventSystem
	metrics *core.Metrics
}

type ContextOption func(*Context)

// WithEvents subscribes the context to resource destruction, so the forget
// sweep runs before a destroyed handle can be recycled, and makes it fire
// pipeline events.
func WithEvents(es *core.EventSystem) ContextOption {
	return func(ctx *Context) {
		ctx.events = es
	}
}

func WithMetrics(m *core.Metrics) ContextOption {
	return func(ctx *Context) {
		ctx.metrics = m
	}
}

func WithName(name string) ContextOption {
	return func(ctx *Context) {
		ctx.name = name
	}
}

func NewContext(dev Device, caps metadata.Capabilities, opts ...ContextOption) (*Context, error) {
	if dev == nil {
		return nil, fmt.Errorf("nil device")
	}
	if err := caps.Validate(); err != nil {
		return nil, err
	}
	ctx := &Context{
		name:       "context-" + uuid.NewString()[:8],
		device:     dev,
		caps:       caps,
		strategies: resolveStrategies(caps),
		shadow:     newShadow(caps),
		pipelines:  make(map[uuid.UUID]*Pipeline),
	}
	for _, opt := range opts {
		opt(ctx)
	}
	if ctx.metrics == nil {
		ctx.metrics = core.NewMetrics()
	}
	if ctx.events != nil {
		if err := ctx.events.Register(core.EVENT_CODE_RESOURCE_DESTROYED, ctx, ctx.onResourceDestroyed); err != nil {
			return nil, err
		}
	}
	for c := metadata.Category(0); c < metadata.CategoryCount; c++ {
		core.LogDebug("%s: %s capacity=%d strategy=%s", ctx.name, c, caps.MaxSlots[c], ctx.strategies[c].name)
	}
	return ctx, nil
}

// Shutdown destroys every pipeline and detaches from the event system.
func (ctx *Context) Shutdown() {
	for _, p := range ctx.pipelines {
		ctx.DestroyPipeline(p)
	}
	if ctx.events != nil {
		_ = ctx.events.Unregister(core.EVENT_CODE_RESOURCE_DESTROYED, ctx)
	}
}

func (ctx *Context) Name() string {
	return ctx.name
}

func (ctx *Context) Capabilities() metadata.Capabilities {
	return ctx.caps
}

func (ctx *Context) Metrics() *core.Metrics {
	return ctx.metrics
}

// Strategy names the apply strategy resolved for c ("batched" or "per-slot").
func (ctx *Context) Strategy(c metadata.Category) string {
	return ctx.strategies[c].name
}

// Shadow returns the applied binding of a slot.
func (ctx *Context) Shadow(c metadata.Category, slot int) metadata.Binding {
	return ctx.shadow.Binding(c, slot)
}

func (ctx *Context) ShadowRenderState() (metadata.RenderState, bool) {
	return ctx.shadow.RenderState()
}

// NewPipeline creates a pipeline on this context. Declared slot counts
// beyond the category capacities are rejected here, never at reconcile time.
func (ctx *Context) NewPipeline(cfg PipelineConfig) (*Pipeline, error) {
	p, err := newPipeline(ctx, cfg)
	if err != nil {
		return nil, err
	}
	ctx.pipelines[p.id] = p
	core.LogDebug("%s: %s created", ctx.name, p)
	return p, nil
}

// DestroyPipeline unregisters p, deactivating it first when active.
func (ctx *Context) DestroyPipeline(p *Pipeline) error {
	if p == nil {
		return fmt.Errorf("%s: destroy: %w", ctx.name, core.ErrNilPipeline)
	}
	if p.ctx != ctx {
		return fmt.Errorf("%s: %s: %w", ctx.name, p, core.ErrForeignPipeline)
	}
	if p.destroyed {
		return nil
	}
	if ctx.active == p {
		ctx.Deactivate()
	}
	delete(ctx.pipelines, p.id)
	p.destroyed = true
	if ctx.events != nil {
		ctx.events.Fire(core.EVENT_CODE_PIPELINE_DESTROYED, ctx, core.EventContext{Pipeline: p.id})
	}
	return nil
}

// Pipelines returns the number of live pipelines.
func (ctx *Context) Pipelines() int {
	return len(ctx.pipelines)
}

// Forget removes h from the shadow and from the pending state of every
// pipeline, active or not. It must run before the handle is released.
func (ctx *Context) Forget(h core.Handle) int {
	if h.IsNull() {
		return 0
	}
	n := ctx.shadow.forget(h)
	for _, p := range ctx.pipelines {
		n += p.pending.forget(h)
	}
	if n > 0 {
		core.LogDebug("%s: forgot %s in %d slots", ctx.name, h, n)
	}
	return n
}

// Invalidate tells the cache the device dropped the bindings of the given
// categories, as when a recorded command buffer is reset. The shadow of each
// is cleared and the active pipeline re-applies them in full; other
// pipelines pick them up on activation or through owner widening.
func (ctx *Context) Invalidate(categories ...metadata.Category) error {
	for _, c := range categories {
		if !c.Valid() {
			return fmt.Errorf("%s: invalidate %s: %w", ctx.name, c, core.ErrInvalidCategory)
		}
	}
	for _, c := range categories {
		ctx.shadow.invalidate(c)
		if p := ctx.active; p != nil {
			p.pending.force(c, p.UpperBound(c))
		}
	}
	if len(categories) > 0 {
		core.LogDebug("%s: invalidated %v", ctx.name, categories)
	}
	return nil
}

// InvalidateRenderState makes the next reconcile re-apply the render state.
func (ctx *Context) InvalidateRenderState() {
	ctx.shadow.invalidateRenderState()
	ctx.forceRenderState = true
}

func (ctx *Context) onResourceDestroyed(code core.SystemEventCode, sender interface{}, listenerInst interface{}, data core.EventContext) bool {
	ctx.Forget(data.Handle)
	// Every context must see the event.
	return false
}

// Draw reconciles the active pipeline and issues the draw.
func (ctx *Context) Draw(call metadata.DrawCall) error {
	p := ctx.active
	if p == nil {
		return core.ErrNoActivePipeline
	}
	if call.Indexed {
		if p.UpperBound(metadata.CategoryIndexBuffer) < 0 || p.pending.tables[metadata.CategoryIndexBuffer].bindings[0].Handle.IsNull() {
			return fmt.Errorf("%s: %s: %w", ctx.name, p, core.ErrIndexBufferRequired)
		}
	}
	if err := ctx.Reconcile(); err != nil {
		return err
	}
	if err := ctx.device.Draw(call); err != nil {
		return err
	}
	ctx.metrics.Record(core.FrameCounters{Operations: 1})
	return nil
}

// Dispatch reconciles the active pipeline and issues the compute dispatch.
func (ctx *Context) Dispatch(call metadata.DispatchCall) error {
	if ctx.active == nil {
		return core.ErrNoActivePipeline
	}
	if err := ctx.Reconcile(); err != nil {
		return err
	}
	if err := ctx.device.Dispatch(call); err != nil {
		return err
	}
	ctx.metrics.Record(core.FrameCounters{Operations: 1})
	return nil
}

// CopyBuffer reconciles the active pipeline and issues the copy.
func (ctx *Context) CopyBuffer(call metadata.CopyCall) error {
	if ctx.active == nil {
		return core.ErrNoActivePipeline
	}
	if call.Src.IsNull() || call.Dst.IsNull() {
		return fmt.Errorf("%s: copy with null buffer: %w", ctx.name, core.ErrInvalidHandle)
	}
	if err := ctx.Reconcile(); err != nil {
		return err
	}
	if err := ctx.device.CopyBuffer(call); err != nil {
		return err
	}
	ctx.metrics.Record(core.FrameCounters{Operations: 1})
	return nil
}
