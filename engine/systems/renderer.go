package systems

import (
	"github.com/spaghettifunk/statecache/engine/core"
	"github.com/spaghettifunk/statecache/engine/renderer"
	"github.com/spaghettifunk/statecache/engine/renderer/metadata"
	"github.com/spaghettifunk/statecache/engine/renderer/sparse"
	"github.com/spaghettifunk/statecache/engine/renderer/state"
)

type RendererSystemConfig struct {
	AppName string
	// Narrows the probed capabilities.
	Capabilities core.CapabilityConfig
	// Log device metrics every N frames. 0 disables.
	MetricsEvery int
}

type RendererSystem struct {
	Config   RendererSystemConfig
	renderer *renderer.Renderer
}

func NewRendererSystem(config RendererSystemConfig, backend renderer.RendererBackend, events *core.EventSystem) (*RendererSystem, error) {
	return &RendererSystem{
		Config:   config,
		renderer: renderer.New(backend, events),
	}, nil
}

func (r *RendererSystem) Initialize() error {
	return r.renderer.Initialize(r.Config.AppName, r.Config.Capabilities)
}

func (r *RendererSystem) Shutdown() error {
	return r.renderer.Shutdown()
}

// DrawFrame records one frame: record issues the frame's pipeline
// activations, binds and operations against the context.
func (r *RendererSystem) DrawFrame(deltaTime float64, record func(ctx *state.Context) error) error {
	if err := r.renderer.BeginFrame(deltaTime); err != nil {
		core.LogError(err.Error())
		return err
	}
	if err := record(r.renderer.Context()); err != nil {
		// Submit what was recorded so the frame fence stays balanced.
		if endErr := r.renderer.EndFrame(deltaTime); endErr != nil {
			core.LogError(endErr.Error())
		}
		return err
	}
	if err := r.renderer.EndFrame(deltaTime); err != nil {
		core.LogError("RendererEndFrame failed: %s", err)
		return err
	}
	if n := r.Config.MetricsEvery; n > 0 && r.renderer.Frame()%uint64(n) == 0 {
		r.renderer.LogMetrics()
	}
	return nil
}

func (r *RendererSystem) Context() *state.Context {
	return r.renderer.Context()
}

func (r *RendererSystem) Backend() renderer.RendererBackend {
	return r.renderer.Backend()
}

func (r *RendererSystem) SparseDevice() sparse.Device {
	return r.renderer.SparseDevice()
}

func (r *RendererSystem) Capabilities() metadata.Capabilities {
	return r.renderer.Capabilities()
}

func (r *RendererSystem) Metrics() *core.Metrics {
	return r.renderer.Metrics()
}

func (r *RendererSystem) Frame() uint64 {
	return r.renderer.Frame()
}
