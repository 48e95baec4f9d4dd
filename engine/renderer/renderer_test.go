package renderer

import (
	"testing"

	"github.com/spaghettifunk/statecache/engine/core"
	"github.com/spaghettifunk/statecache/engine/renderer/headless"
	"github.com/spaghettifunk/statecache/engine/renderer/metadata"
	"github.com/spaghettifunk/statecache/engine/renderer/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ RendererBackend = (*headless.Backend)(nil)

func TestParseRendererType(t *testing.T) {
	for name, want := range map[string]RendererType{
		"":          Headless,
		"headless":  Headless,
		" Vulkan ":  Vulkan,
		"VULKAN":    Vulkan,
		"HeadLess ": Headless,
	} {
		got, err := ParseRendererType(name)
		require.NoError(t, err, name)
		assert.Equal(t, want, got, name)
	}
	_, err := ParseRendererType("opengl")
	assert.Error(t, err)
	assert.Equal(t, "vulkan", Vulkan.String())
	assert.Equal(t, "headless", Headless.String())
}

func TestInitializeAppliesCapabilityOverrides(t *testing.T) {
	dev := headless.New(metadata.DefaultCapabilities())
	r := New(dev, core.NewEventSystem())

	err := r.Initialize("test", core.CapabilityConfig{
		DisableBatch:  []string{"texture"},
		MaxSlots:      map[string]int{"sampler": 4, "uniform_buffer": 1000},
		DisableSparse: true,
	})
	require.NoError(t, err)

	caps := r.Capabilities()
	assert.False(t, caps.BatchBind[metadata.CategoryTexture])
	assert.True(t, caps.BatchBind[metadata.CategorySampler])
	assert.Equal(t, 4, caps.MaxSlots[metadata.CategorySampler])
	// Overrides never raise a limit.
	assert.Equal(t, 16, caps.MaxSlots[metadata.CategoryUniformBuffer])
	assert.False(t, caps.SparseBuffer)
	assert.Equal(t, "per-slot", r.Context().Strategy(metadata.CategoryTexture))
}

func TestInitializeRejectsUnknownCategory(t *testing.T) {
	r := New(headless.New(metadata.DefaultCapabilities()), nil)
	err := r.Initialize("test", core.CapabilityConfig{DisableBatch: []string{"framebuffer"}})
	assert.ErrorIs(t, err, core.ErrInvalidCategory)
	assert.Nil(t, r.Context())
}

func TestFramesFeedMetrics(t *testing.T) {
	dev := headless.New(metadata.DefaultCapabilities())
	r := New(dev, nil)
	require.NoError(t, r.Initialize("test", core.CapabilityConfig{}))

	p, err := r.Context().NewPipeline(state.PipelineConfig{Name: "compute"})
	require.NoError(t, err)
	require.NoError(t, r.Context().Activate(p))

	require.NoError(t, r.BeginFrame(0))
	require.NoError(t, r.Context().Dispatch(metadata.DispatchCall{GroupsX: 1, GroupsY: 1, GroupsZ: 1}))
	require.NoError(t, r.EndFrame(0))

	assert.Equal(t, uint64(1), r.Frame())
	last := r.Metrics().LastFrame()
	assert.Equal(t, uint64(1), last.Reconciles)
	assert.Equal(t, uint64(1), last.Operations)
	assert.Equal(t, uint64(0), r.Metrics().Current.Operations)

	require.NoError(t, r.Shutdown())
	assert.Nil(t, r.Context())
}

func TestSparseDeviceIsMetered(t *testing.T) {
	dev := headless.New(metadata.DefaultCapabilities())
	r := New(dev, nil)
	require.NoError(t, r.Initialize("test", core.CapabilityConfig{}))

	h := core.NewHandle(0, 1)
	require.NoError(t, r.SparseDevice().CommitPages(h, 0, metadata.DefaultSparsePageSize, true))
	require.NoError(t, r.SparseDevice().CopyPages(h, core.NewHandle(1, 1), 0, metadata.DefaultSparsePageSize))
	assert.Equal(t, uint64(1), r.Metrics().Current.CommitCalls)
	assert.Equal(t, uint64(1), r.Metrics().Current.CopyCalls)
	assert.Equal(t, 2, dev.Count(headless.OpCommitPages, headless.OpCopyPages))
}

func TestBeginFrameInvalidatesFrameScopedState(t *testing.T) {
	dev := headless.New(metadata.DefaultCapabilities())
	dev.DropOnFrame(metadata.FrameScope{
		Categories:  []metadata.Category{metadata.CategoryVertexBuffer, metadata.CategoryIndexBuffer},
		RenderState: true,
	})
	r := New(dev, nil)
	require.NoError(t, r.Initialize("test", core.CapabilityConfig{}))

	ctx := r.Context()
	p, err := ctx.NewPipeline(state.PipelineConfig{Name: "mesh", SlotCounts: state.AllSlots(r.Capabilities())})
	require.NoError(t, err)
	require.NoError(t, ctx.Activate(p))

	vb, ib, tex := core.NewHandle(0, 1), core.NewHandle(1, 1), core.NewHandle(2, 1)
	require.NoError(t, p.SetVertexBuffer(0, vb, 0))
	require.NoError(t, p.SetIndexBuffer(ib, 0, metadata.IndexTypeUint32))
	require.NoError(t, p.SetTexture(0, tex))
	rs := metadata.DefaultRenderState()
	rs.IsWireframe = true
	require.NoError(t, p.SetRenderState(rs))

	draw := metadata.DrawCall{Indexed: true, Count: 3}
	require.NoError(t, r.BeginFrame(0))
	require.NoError(t, ctx.Draw(draw))
	require.NoError(t, r.EndFrame(0))

	// The next frame starts with nothing recorded: the device lost the
	// vertex and index buffers and the render state, not the texture.
	require.NoError(t, r.BeginFrame(0))
	assert.True(t, dev.Bound(metadata.CategoryVertexBuffer, 0).IsEmpty())
	assert.False(t, dev.AppliedRenderState().IsWireframe)
	dev.Reset()

	require.NoError(t, ctx.Draw(draw))
	require.NoError(t, r.EndFrame(0))
	assert.Equal(t, vb, dev.Bound(metadata.CategoryVertexBuffer, 0).Handle)
	assert.Equal(t, ib, dev.Bound(metadata.CategoryIndexBuffer, 0).Handle)
	assert.Equal(t, tex, dev.Bound(metadata.CategoryTexture, 0).Handle)
	assert.True(t, dev.AppliedRenderState().IsWireframe)
	assert.Equal(t, 1, dev.Count(headless.OpApplyRenderState))
	for _, call := range dev.Calls() {
		if call.Op == headless.OpBindSingle || call.Op == headless.OpBindBatch {
			assert.NotEqual(t, metadata.CategoryTexture, call.Category)
		}
	}
}

func TestBeginFrameKeepsPersistentState(t *testing.T) {
	dev := headless.New(metadata.DefaultCapabilities())
	r := New(dev, nil)
	require.NoError(t, r.Initialize("test", core.CapabilityConfig{}))

	ctx := r.Context()
	p, err := ctx.NewPipeline(state.PipelineConfig{Name: "mesh", SlotCounts: state.AllSlots(r.Capabilities())})
	require.NoError(t, err)
	require.NoError(t, ctx.Activate(p))
	require.NoError(t, p.SetVertexBuffer(0, core.NewHandle(0, 1), 0))

	require.NoError(t, r.BeginFrame(0))
	require.NoError(t, ctx.Draw(metadata.DrawCall{Count: 3}))
	require.NoError(t, r.EndFrame(0))

	require.NoError(t, r.BeginFrame(0))
	dev.Reset()
	require.NoError(t, ctx.Draw(metadata.DrawCall{Count: 3}))
	assert.Zero(t, dev.BindCalls())
}
