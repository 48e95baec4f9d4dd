package systems

import (
	"errors"
	"testing"

	"github.com/spaghettifunk/statecache/engine/core"
	"github.com/spaghettifunk/statecache/engine/renderer/headless"
	"github.com/spaghettifunk/statecache/engine/renderer/metadata"
	"github.com/spaghettifunk/statecache/engine/renderer/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const page = metadata.DefaultSparsePageSize

func newTestManager(t *testing.T, edit func(*core.Config)) (*SystemManager, *headless.Backend) {
	t.Helper()
	cfg := core.DefaultConfig()
	if edit != nil {
		edit(cfg)
	}
	dev := headless.New(metadata.DefaultCapabilities())
	sm, err := NewSystemManager("systems-test", dev, core.NewEventSystem(), cfg)
	require.NoError(t, err)
	require.NoError(t, sm.Initialize())
	return sm, dev
}

func createBuffer(t *testing.T, rs *ResourceSystem, name string) core.Handle {
	t.Helper()
	h, err := rs.Create(&metadata.ResourceConfig{Name: name, Kind: metadata.ResourceKindBuffer, Size: 1024})
	require.NoError(t, err)
	return h
}

func TestNewSystemsRejectZeroCapacity(t *testing.T) {
	_, err := NewResourceSystem(ResourceSystemConfig{}, nil, nil)
	assert.Error(t, err)
	_, err = NewPipelineSystem(PipelineSystemConfig{}, nil)
	assert.Error(t, err)
}

func TestResourceCreateAndLookup(t *testing.T) {
	sm, dev := newTestManager(t, nil)
	rs := sm.ResourceSystem

	h := createBuffer(t, rs, "vertices")
	got, err := rs.Get("vertices")
	require.NoError(t, err)
	assert.Equal(t, h, got)
	assert.Equal(t, 1, dev.Resources())

	cfg, err := rs.Config(h)
	require.NoError(t, err)
	assert.Equal(t, uint64(1024), cfg.Size)

	_, err = rs.Create(&metadata.ResourceConfig{Name: "vertices", Kind: metadata.ResourceKindBuffer, Size: 16})
	assert.ErrorIs(t, err, ErrDuplicateName)
	_, err = rs.Get("missing")
	assert.ErrorIs(t, err, ErrNotFound)

	// Unnamed resources never collide.
	_, err = rs.Create(&metadata.ResourceConfig{Kind: metadata.ResourceKindSampler})
	require.NoError(t, err)
	_, err = rs.Create(&metadata.ResourceConfig{Kind: metadata.ResourceKindSampler})
	require.NoError(t, err)
	assert.Equal(t, 3, rs.Live())
}

func TestResourceCapacity(t *testing.T) {
	sm, _ := newTestManager(t, nil)
	rs, err := NewResourceSystem(ResourceSystemConfig{MaxResourceCount: 2}, nil, sm.RendererSystem)
	require.NoError(t, err)

	createBuffer(t, rs, "a")
	createBuffer(t, rs, "b")
	_, err = rs.Create(&metadata.ResourceConfig{Name: "c", Kind: metadata.ResourceKindBuffer, Size: 1})
	assert.ErrorIs(t, err, core.ErrCapacityExceeded)
}

func TestResourceCreateFailureReleasesHandle(t *testing.T) {
	sm, dev := newTestManager(t, nil)
	rs := sm.ResourceSystem

	boom := errors.New("out of device memory")
	dev.FailWith(func(c headless.Call) error {
		if c.Op == headless.OpResourceCreate {
			return boom
		}
		return nil
	})
	_, err := rs.Create(&metadata.ResourceConfig{Name: "big", Kind: metadata.ResourceKindBuffer, Size: 1})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, rs.Live())
	_, err = rs.Get("big")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDestroyedHandleIsStale(t *testing.T) {
	sm, _ := newTestManager(t, nil)
	rs := sm.ResourceSystem

	h := createBuffer(t, rs, "uniforms")
	require.NoError(t, rs.Destroy(h))
	assert.ErrorIs(t, rs.Destroy(h), core.ErrStaleHandle)

	// The index is recycled under a new generation.
	h2 := createBuffer(t, rs, "uniforms")
	assert.Equal(t, h.Index(), h2.Index())
	assert.NotEqual(t, h, h2)
	_, err := rs.Config(h)
	assert.ErrorIs(t, err, core.ErrStaleHandle)
}

func TestDestroyForgetsEveryReference(t *testing.T) {
	sm, dev := newTestManager(t, nil)
	rs, ps := sm.ResourceSystem, sm.PipelineSystem
	ctx := sm.RendererSystem.Context()
	caps := sm.RendererSystem.Capabilities()

	tex, err := rs.Create(&metadata.ResourceConfig{Name: "albedo", Kind: metadata.ResourceKindTexture, Width: 4, Height: 4, Layers: 1})
	require.NoError(t, err)

	active, err := ps.Create(state.PipelineConfig{Name: "active", SlotCounts: state.AllSlots(caps)})
	require.NoError(t, err)
	idle, err := ps.Create(state.PipelineConfig{Name: "idle", SlotCounts: state.AllSlots(caps)})
	require.NoError(t, err)

	require.NoError(t, active.SetTexture(1, tex))
	require.NoError(t, idle.SetTexture(3, tex))
	_, err = ps.Activate("active")
	require.NoError(t, err)
	require.NoError(t, ctx.Draw(metadata.DrawCall{Count: 3}))
	require.Equal(t, tex, ctx.Shadow(metadata.CategoryTexture, 1).Handle)
	require.Equal(t, tex, dev.Bound(metadata.CategoryTexture, 1).Handle)

	require.NoError(t, rs.Destroy(tex))
	assert.True(t, ctx.Shadow(metadata.CategoryTexture, 1).IsEmpty())
	b, err := active.Binding(metadata.CategoryTexture, 1)
	require.NoError(t, err)
	assert.True(t, b.IsEmpty())
	b, err = idle.Binding(metadata.CategoryTexture, 3)
	require.NoError(t, err)
	assert.True(t, b.IsEmpty())

	// A new resource on the recycled index is bound again, not mistaken for the old one.
	tex2, err := rs.Create(&metadata.ResourceConfig{Name: "albedo", Kind: metadata.ResourceKindTexture, Width: 4, Height: 4, Layers: 1})
	require.NoError(t, err)
	require.Equal(t, tex.Index(), tex2.Index())
	require.NoError(t, active.SetTexture(1, tex2))
	dev.Reset()
	require.NoError(t, ctx.Draw(metadata.DrawCall{Count: 3}))
	assert.Equal(t, tex2, dev.Bound(metadata.CategoryTexture, 1).Handle)
}

func TestSparseBufferLifecycle(t *testing.T) {
	sm, dev := newTestManager(t, nil)
	rs := sm.ResourceSystem

	_, err := rs.CreateSparseBuffer("bad", page+1)
	assert.ErrorIs(t, err, core.ErrMisalignedRange)
	_, err = rs.CreateSparseBuffer("empty", 0)
	assert.ErrorIs(t, err, core.ErrMisalignedRange)

	buf, err := rs.CreateSparseBuffer("streaming", 4*page)
	require.NoError(t, err)
	got, err := rs.SparseBuffer(buf.Handle())
	require.NoError(t, err)
	assert.Same(t, buf, got)

	require.NoError(t, rs.SetCommitment(buf, page, 2*page, true))
	assert.Equal(t, 2*page, buf.Commitment().Committed())
	assert.Equal(t, uint64(1), sm.RendererSystem.Metrics().Current.CommitCalls)

	dev.Reset()
	require.NoError(t, rs.Destroy(buf.Handle()))
	// Committed pages are released before the resource goes away.
	calls := dev.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, headless.OpCommitPages, calls[0].Op)
	assert.False(t, calls[0].Commit)
	assert.Equal(t, page, calls[0].Offset)
	assert.Equal(t, 2*page, calls[0].Size)
	assert.Equal(t, headless.OpResourceDestroy, calls[1].Op)

	_, err = rs.SparseBuffer(buf.Handle())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestResizeSparseBufferKeepsNameAndPages(t *testing.T) {
	sm, dev := newTestManager(t, nil)
	rs := sm.ResourceSystem

	buf, err := rs.CreateSparseBuffer("streaming", 4*page)
	require.NoError(t, err)
	require.NoError(t, rs.SetCommitment(buf, 0, page, true))
	require.NoError(t, rs.SetCommitment(buf, 3*page, page, true))
	old := buf.Handle()

	dev.Reset()
	grown, err := rs.ResizeSparseBuffer(buf, 8*page)
	require.NoError(t, err)
	assert.Equal(t, 8*page, grown.Size())
	assert.Equal(t, 2*page, grown.Commitment().Committed())
	assert.True(t, grown.Commitment().IsCommitted(0))
	assert.True(t, grown.Commitment().IsCommitted(3))
	assert.Equal(t, 2, dev.Count(headless.OpCopyPages))

	h, err := rs.Get("streaming")
	require.NoError(t, err)
	assert.Equal(t, grown.Handle(), h)
	cfg, err := rs.Config(h)
	require.NoError(t, err)
	assert.Equal(t, "streaming", cfg.Name)
	assert.Equal(t, 8*page, cfg.Size)

	_, err = rs.Config(old)
	assert.ErrorIs(t, err, core.ErrStaleHandle)
	assert.Equal(t, 1, rs.Live())

	// Shrinking drops the pages past the new end.
	shrunk, err := rs.ResizeSparseBuffer(grown, 2*page)
	require.NoError(t, err)
	assert.Equal(t, page, shrunk.Commitment().Committed())
}

func TestSparseDisabledByConfig(t *testing.T) {
	sm, _ := newTestManager(t, func(c *core.Config) {
		c.Capabilities.DisableSparse = true
	})
	_, err := sm.ResourceSystem.CreateSparseBuffer("streaming", page)
	assert.ErrorIs(t, err, core.ErrSparseUnsupported)
}

func TestPipelineSystem(t *testing.T) {
	sm, _ := newTestManager(t, nil)
	ps := sm.PipelineSystem
	ctx := sm.RendererSystem.Context()

	_, err := ps.Create(state.PipelineConfig{})
	assert.Error(t, err)

	p, err := ps.Create(state.PipelineConfig{Name: "scene"})
	require.NoError(t, err)
	_, err = ps.Create(state.PipelineConfig{Name: "scene"})
	assert.ErrorIs(t, err, ErrDuplicateName)

	var counts [metadata.CategoryCount]int
	counts[metadata.CategoryTexture] = metadata.MaxCategorySlots
	_, err = ps.Create(state.PipelineConfig{Name: "huge", SlotCounts: counts})
	assert.ErrorIs(t, err, core.ErrCapacityExceeded)
	_, err = ps.Get("huge")
	assert.ErrorIs(t, err, ErrNotFound)

	got, err := ps.Activate("scene")
	require.NoError(t, err)
	assert.Same(t, p, got)
	assert.Same(t, p, ctx.Active())

	require.NoError(t, ps.Destroy("scene"))
	assert.Nil(t, ctx.Active())
	assert.True(t, p.IsDestroyed())
	assert.ErrorIs(t, ps.Destroy("scene"), ErrNotFound)
	_, err = ps.Activate("scene")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 0, ps.Count())
}

func TestDrawFrameEndsFrameOnRecordError(t *testing.T) {
	sm, dev := newTestManager(t, nil)

	require.NoError(t, sm.DrawFrame(0.016, func(ctx *state.Context) error { return nil }))
	assert.Equal(t, uint64(1), dev.Frame())

	err := sm.DrawFrame(0.016, func(ctx *state.Context) error {
		return ctx.Draw(metadata.DrawCall{Count: 3})
	})
	assert.ErrorIs(t, err, core.ErrNoActivePipeline)
	assert.Equal(t, uint64(2), dev.Frame())
	assert.Equal(t, uint64(2), sm.RendererSystem.Frame())
}

func TestDrawFrameCountsDeviceCalls(t *testing.T) {
	sm, _ := newTestManager(t, nil)
	rs, ps := sm.ResourceSystem, sm.PipelineSystem

	var counts [metadata.CategoryCount]int
	counts[metadata.CategoryUniformBuffer] = 2
	p, err := ps.Create(state.PipelineConfig{Name: "scene", SlotCounts: counts})
	require.NoError(t, err)
	ubo := createBuffer(t, rs, "uniforms")
	require.NoError(t, p.SetUniformBuffer(0, ubo, 0, 256))
	require.NoError(t, p.SetUniformBuffer(1, ubo, 256, 256))

	record := func(ctx *state.Context) error {
		if _, err := ps.Activate("scene"); err != nil {
			return err
		}
		return ctx.Dispatch(metadata.DispatchCall{GroupsX: 1, GroupsY: 1, GroupsZ: 1})
	}
	require.NoError(t, sm.DrawFrame(0.016, record))
	first := sm.RendererSystem.Metrics().LastFrame()
	// One batched bind for both uniform slots plus the forced render state.
	assert.Equal(t, uint64(1), first.BatchBinds)
	assert.Equal(t, uint64(1), first.RenderStateApplies)
	assert.Equal(t, uint64(1), first.Operations)

	// Nothing changed: the second frame issues no binds.
	require.NoError(t, sm.DrawFrame(0.016, record))
	second := sm.RendererSystem.Metrics().LastFrame()
	assert.Equal(t, uint64(0), second.DeviceCalls())
	assert.Equal(t, uint64(1), second.Operations)
}

func TestShutdownReleasesEverything(t *testing.T) {
	sm, dev := newTestManager(t, nil)
	rs := sm.ResourceSystem

	createBuffer(t, rs, "named")
	_, err := rs.Create(&metadata.ResourceConfig{Kind: metadata.ResourceKindSampler})
	require.NoError(t, err)
	buf, err := rs.CreateSparseBuffer("", 2*page)
	require.NoError(t, err)
	require.NoError(t, rs.SetCommitment(buf, 0, 2*page, true))
	_, err = sm.PipelineSystem.Create(state.PipelineConfig{Name: "scene"})
	require.NoError(t, err)

	require.NoError(t, sm.Shutdown())
	assert.Equal(t, 0, dev.Resources())
	assert.Equal(t, 0, rs.Live())
	assert.Equal(t, 0, sm.PipelineSystem.Count())
}
