package state

import (
	"testing"

	"github.com/spaghettifunk/statecache/engine/core"
	"github.com/spaghettifunk/statecache/engine/renderer/metadata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type forgetFixture struct {
	ctx      *Context
	events   *core.EventSystem
	handles  *core.HandleAllocator
	active   *Pipeline
	inactive *Pipeline
	h        core.Handle
}

// newForgetFixture binds h to texture slot 2 of the applied state and to
// texture slot 5 of an inactive pipeline.
func newForgetFixture(t *testing.T) (*forgetFixture, func() int) {
	caps := metadata.DefaultCapabilities()
	caps.BatchBind[metadata.CategoryTexture] = false
	es := core.NewEventSystem()
	ctx, dev := newTestContext(t, caps, WithEvents(es))

	f := &forgetFixture{ctx: ctx, events: es, handles: core.NewHandleAllocator(4)}
	f.h = f.handles.Acquire("texture")
	var err error
	f.active, err = ctx.NewPipeline(PipelineConfig{Name: "active", SlotCounts: AllSlots(caps)})
	require.NoError(t, err)
	f.inactive, err = ctx.NewPipeline(PipelineConfig{Name: "inactive", SlotCounts: AllSlots(caps)})
	require.NoError(t, err)

	require.NoError(t, ctx.Activate(f.active))
	require.NoError(t, f.active.SetTexture(2, f.h))
	require.NoError(t, ctx.Reconcile())
	require.NoError(t, f.inactive.SetTexture(5, f.h))
	require.Equal(t, f.h, ctx.Shadow(metadata.CategoryTexture, 2).Handle)
	dev.Reset()

	return f, func() int { return len(bindCalls(dev, metadata.CategoryTexture)) }
}

// destroy runs the deletion path: listeners first, then the handle is released.
func (f *forgetFixture) destroy(t *testing.T) {
	f.events.Fire(core.EVENT_CODE_RESOURCE_DESTROYED, f, core.EventContext{Handle: f.h})
	require.NoError(t, f.handles.Release(f.h))
}

func TestForgetClearsShadowAndInactivePending(t *testing.T) {
	f, _ := newForgetFixture(t)
	f.destroy(t)

	assert.True(t, f.ctx.Shadow(metadata.CategoryTexture, 2).IsEmpty())
	b, err := f.inactive.Binding(metadata.CategoryTexture, 5)
	require.NoError(t, err)
	assert.True(t, b.IsEmpty())
	assert.True(t, f.inactive.Dirty(metadata.CategoryTexture).Contains(5))
	b, err = f.active.Binding(metadata.CategoryTexture, 2)
	require.NoError(t, err)
	assert.True(t, b.IsEmpty())
}

func TestRecycledHandleIsRebound(t *testing.T) {
	f, textureBinds := newForgetFixture(t)
	f.destroy(t)

	h2 := f.handles.Acquire("texture")
	require.Equal(t, f.h.Index(), h2.Index())
	require.NotEqual(t, f.h, h2)

	require.NoError(t, f.active.SetTexture(2, h2))
	require.NoError(t, f.ctx.Reconcile())
	assert.Equal(t, 1, textureBinds())
	assert.Equal(t, h2, f.ctx.Shadow(metadata.CategoryTexture, 2).Handle)
}

func TestSameNumericHandleIsReboundAfterForget(t *testing.T) {
	f, textureBinds := newForgetFixture(t)
	f.destroy(t)

	// Even a resource that gets the very same value must reach the device.
	require.NoError(t, f.active.SetTexture(2, f.h))
	require.NoError(t, f.ctx.Reconcile())
	assert.Equal(t, 1, textureBinds())
}

func TestForgetWithoutEventsAndNullHandle(t *testing.T) {
	caps := metadata.DefaultCapabilities()
	ctx, _ := newTestContext(t, caps)
	p := newActivePipeline(t, ctx, PipelineConfig{SlotCounts: AllSlots(caps)})
	h := handle(3)
	require.NoError(t, p.SetUniformBuffer(0, h, 0, 64))
	require.NoError(t, p.SetUniformBuffer(1, h, 64, 64))
	require.NoError(t, ctx.Reconcile())

	assert.Zero(t, ctx.Forget(core.NullHandle))
	// Two shadow slots and two pending slots.
	assert.Equal(t, 4, ctx.Forget(h))
	assert.Zero(t, ctx.Forget(h))
}

func TestShutdownDetachesFromEvents(t *testing.T) {
	caps := metadata.DefaultCapabilities()
	es := core.NewEventSystem()
	ctx, _ := newTestContext(t, caps, WithEvents(es))
	p := newActivePipeline(t, ctx, PipelineConfig{SlotCounts: AllSlots(caps)})
	require.NoError(t, p.SetTexture(0, handle(1)))

	ctx.Shutdown()
	assert.Equal(t, 0, ctx.Pipelines())
	assert.True(t, p.IsDestroyed())
	assert.Error(t, es.Unregister(core.EVENT_CODE_RESOURCE_DESTROYED, ctx))
}
