package testbed

import (
	"fmt"

	"github.com/spaghettifunk/statecache/engine"
	"github.com/spaghettifunk/statecache/engine/core"
	"github.com/spaghettifunk/statecache/engine/math"
	"github.com/spaghettifunk/statecache/engine/renderer/metadata"
	"github.com/spaghettifunk/statecache/engine/renderer/sparse"
	"github.com/spaghettifunk/statecache/engine/renderer/state"
	"golang.org/x/exp/rand"
)

const (
	scenePipeline   = "scene"
	overlayPipeline = "overlay"
	computePipeline = "compute"

	streamingPages = 16
	// Every this many frames the scene texture is destroyed and recreated.
	textureRecycleEvery = 30
)

type TestGame struct {
	*engine.Game
}

type gameState struct {
	frame uint64
	rng   *rand.Rand

	vertices  core.Handle
	instances core.Handle
	indices   core.Handle
	uniforms  core.Handle
	albedo    core.Handle
	sampler   core.Handle
	particles core.Handle
	counters  core.Handle
	target    core.Handle
	staging   core.Handle

	streaming *sparse.Buffer
	reloads   int
}

func NewTestGame(configPath string, watch bool) *TestGame {
	tg := &TestGame{
		Game: &engine.Game{
			ApplicationConfig: &engine.ApplicationConfig{
				Name:        "StateCache Testbed",
				ConfigPath:  configPath,
				WatchConfig: watch,
			},
			State: &gameState{
				rng: rand.New(rand.NewSource(1)),
			},
		},
	}
	tg.FnInitialize = tg.Initialize
	tg.FnUpdate = tg.Update
	tg.FnRender = tg.Render
	tg.FnShutdown = tg.Shutdown
	return tg
}

func (g *TestGame) state() *gameState {
	return g.State.(*gameState)
}

func (g *TestGame) Initialize() error {
	core.LogInfo("initializing testbed...")
	s := g.state()
	rs := g.SystemManager.ResourceSystem

	buffers := []struct {
		name string
		size uint64
		out  *core.Handle
	}{
		{"vertices", 1 << 20, &s.vertices},
		{"instances", 1 << 16, &s.instances},
		{"indices", 1 << 18, &s.indices},
		{"uniforms", 1 << 12, &s.uniforms},
		{"particles", 1 << 20, &s.particles},
		{"counters", 256, &s.counters},
		{"staging", 1 << 16, &s.staging},
	}
	for _, b := range buffers {
		h, err := rs.Create(&metadata.ResourceConfig{Name: b.name, Kind: metadata.ResourceKindBuffer, Size: b.size})
		if err != nil {
			return err
		}
		*b.out = h
	}

	var err error
	if s.albedo, err = g.createAlbedo(); err != nil {
		return err
	}
	if s.sampler, err = rs.Create(&metadata.ResourceConfig{Name: "linear", Kind: metadata.ResourceKindSampler}); err != nil {
		return err
	}
	if s.target, err = rs.Create(&metadata.ResourceConfig{Name: "target", Kind: metadata.ResourceKindImage, Width: 256, Height: 256, Layers: 1}); err != nil {
		return err
	}

	if err := g.createPipelines(); err != nil {
		return err
	}

	caps := g.SystemManager.RendererSystem.Capabilities()
	if caps.SparseBuffer {
		if s.streaming, err = rs.CreateSparseBuffer("streaming", streamingPages*caps.SparsePageSize); err != nil {
			return err
		}
	} else {
		core.LogWarn("device has no sparse buffers, streaming disabled")
	}

	if err := g.Events.Register(core.EVENT_CODE_CONFIG_RELOADED, g, g.onConfigReloaded); err != nil {
		return err
	}
	return nil
}

func (g *TestGame) createAlbedo() (core.Handle, error) {
	return g.SystemManager.ResourceSystem.Create(&metadata.ResourceConfig{
		Name: "albedo", Kind: metadata.ResourceKindTexture, Width: 64, Height: 64, Layers: 1,
	})
}

func (g *TestGame) createPipelines() error {
	ps := g.SystemManager.PipelineSystem
	s := g.state()

	layout := metadata.VertexLayout{
		Buffers: []metadata.VertexBufferLayout{
			{Stride: 32},
			{Stride: 64, Divisor: 1},
		},
		Attributes: []metadata.VertexAttribute{
			{Location: 0, Buffer: 0, Format: metadata.ShaderAttribTypeFloat32_3, Offset: 0},
			{Location: 1, Buffer: 0, Format: metadata.ShaderAttribTypeFloat32_3, Offset: 12},
			{Location: 2, Buffer: 0, Format: metadata.ShaderAttribTypeFloat32_2, Offset: 24},
			{Location: 3, Buffer: 1, Format: metadata.ShaderAttribTypeMatrix4, Offset: 0},
		},
	}
	var counts [metadata.CategoryCount]int
	counts[metadata.CategoryTexture] = 2
	counts[metadata.CategorySampler] = 2
	counts[metadata.CategoryUniformBuffer] = 1
	counts[metadata.CategoryIndexBuffer] = 1
	scene, err := ps.Create(state.PipelineConfig{Name: scenePipeline, SlotCounts: counts, VertexLayout: layout})
	if err != nil {
		return err
	}

	// Same textures, different vertex layout: activation re-applies the vertex buffers.
	overlayLayout := metadata.VertexLayout{
		Buffers: []metadata.VertexBufferLayout{{Stride: 16}},
		Attributes: []metadata.VertexAttribute{
			{Location: 0, Buffer: 0, Format: metadata.ShaderAttribTypeFloat32_2, Offset: 0},
			{Location: 1, Buffer: 0, Format: metadata.ShaderAttribTypeFloat32_2, Offset: 8},
		},
	}
	rs := metadata.DefaultRenderState()
	rs.DepthTest = false
	rs.CullMode = metadata.FaceCullModeNone
	counts = [metadata.CategoryCount]int{}
	counts[metadata.CategoryTexture] = 1
	counts[metadata.CategorySampler] = 1
	overlay, err := ps.Create(state.PipelineConfig{Name: overlayPipeline, SlotCounts: counts, VertexLayout: overlayLayout, RenderState: &rs})
	if err != nil {
		return err
	}

	counts = [metadata.CategoryCount]int{}
	counts[metadata.CategoryStorageBuffer] = 2
	counts[metadata.CategoryAtomicCounterBuffer] = 1
	counts[metadata.CategoryImage] = 1
	counts[metadata.CategoryUniformBuffer] = 1
	compute, err := ps.Create(state.PipelineConfig{Name: computePipeline, SlotCounts: counts})
	if err != nil {
		return err
	}

	// Pending state can be edited before a pipeline is ever active.
	for _, set := range []func() error{
		func() error { return scene.SetVertexBuffer(0, s.vertices, 0) },
		func() error { return scene.SetVertexBuffer(1, s.instances, 0) },
		func() error { return scene.SetIndexBuffer(s.indices, 0, metadata.IndexTypeUint32) },
		func() error { return scene.SetUniformBuffer(0, s.uniforms, 0, 256) },
		func() error { return scene.SetTexture(0, s.albedo) },
		func() error { return scene.SetSampler(0, s.sampler) },
		func() error { return overlay.SetVertexBuffer(0, s.vertices, 4096) },
		func() error { return overlay.SetTexture(0, s.albedo) },
		func() error { return overlay.SetSampler(0, s.sampler) },
		func() error { return compute.SetStorageBuffer(0, s.particles, 0, 0) },
		func() error { return compute.SetStorageBuffer(1, s.particles, 1<<19, 1<<19) },
		func() error { return compute.SetAtomicCounterBuffer(0, s.counters, 0, 4) },
		func() error { return compute.SetUniformBuffer(0, s.uniforms, 256, 256) },
		func() error { return compute.SetImage(0, s.target, 0, 0, false, 0, metadata.ImageAccessWriteOnly) },
	} {
		if err := set(); err != nil {
			return err
		}
	}
	return nil
}

func (g *TestGame) Update(deltaTime float64) error {
	s := g.state()
	s.frame++
	if s.frame%textureRecycleEvery == 0 {
		// Destroying the texture clears it from every pipeline and the shadow.
		if err := g.SystemManager.ResourceSystem.Destroy(s.albedo); err != nil {
			return err
		}
		h, err := g.createAlbedo()
		if err != nil {
			return err
		}
		s.albedo = h
		for _, name := range []string{scenePipeline, overlayPipeline} {
			p, err := g.SystemManager.PipelineSystem.Get(name)
			if err != nil {
				return err
			}
			if err := p.SetTexture(0, h); err != nil {
				return err
			}
		}
	}
	return g.stream()
}

// stream commits a random window of the streaming buffer and releases the rest.
func (g *TestGame) stream() error {
	s := g.state()
	if s.streaming == nil {
		return nil
	}
	rs := g.SystemManager.ResourceSystem
	page := s.streaming.Commitment().PageSize()
	pages := uint64(s.streaming.Commitment().PageCount())

	first := s.rng.Uint64n(pages)
	count := 1 + s.rng.Uint64n(math.Min(uint64(4), pages-first))
	if err := rs.SetCommitment(s.streaming, 0, s.streaming.Size(), false); err != nil {
		return err
	}
	if err := rs.SetCommitment(s.streaming, first*page, count*page, true); err != nil {
		return err
	}

	// Grow once the buffer has been streamed for a while.
	if s.frame == 60 && pages == streamingPages {
		grown, err := rs.ResizeSparseBuffer(s.streaming, uint64(3*streamingPages/2)*page)
		if err != nil {
			return err
		}
		s.streaming = grown
		core.LogInfo("streaming buffer grown to %d pages, %d bytes committed", grown.Commitment().PageCount(), grown.Commitment().Committed())
	}
	return nil
}

func (g *TestGame) Render(ctx *state.Context, deltaTime float64) error {
	s := g.state()
	ps := g.SystemManager.PipelineSystem

	scene, err := ps.Activate(scenePipeline)
	if err != nil {
		return err
	}
	// Alternate the second texture so the batched path sees a changing range.
	if s.frame%2 == 0 {
		err = scene.SetTexture(1, s.albedo)
	} else {
		err = scene.Clear(metadata.CategoryTexture, 1)
	}
	if err != nil {
		return err
	}
	if err := ctx.Draw(metadata.DrawCall{Indexed: true, Count: 36, Instances: 4}); err != nil {
		return err
	}

	if _, err := ps.Activate(overlayPipeline); err != nil {
		return err
	}
	if err := ctx.Draw(metadata.DrawCall{Topology: metadata.PrimitiveTopologyTriangleStrip, Count: 4}); err != nil {
		return err
	}

	if _, err := ps.Activate(computePipeline); err != nil {
		return err
	}
	if err := ctx.Dispatch(metadata.DispatchCall{GroupsX: 64, GroupsY: 1, GroupsZ: 1}); err != nil {
		return err
	}
	return ctx.CopyBuffer(metadata.CopyCall{Src: s.staging, Dst: s.uniforms, Size: 256})
}

func (g *TestGame) Shutdown() error {
	s := g.state()
	if err := g.Events.Unregister(core.EVENT_CODE_CONFIG_RELOADED, g); err != nil {
		core.LogWarn(err.Error())
	}
	m := g.SystemManager.RendererSystem.Metrics()
	core.LogInfo(fmt.Sprintf("testbed done after %d frames, %d config reloads, %.1f device calls/frame",
		s.frame, s.reloads, m.CallsPerFrame()))
	return nil
}

func (g *TestGame) onConfigReloaded(code core.SystemEventCode, sender interface{}, listenerInst interface{}, data core.EventContext) bool {
	g.state().reloads++
	return false
}
