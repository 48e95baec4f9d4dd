package renderer

import (
	"fmt"
	"strings"
	"time"

	"github.com/spaghettifunk/statecache/engine/core"
	"github.com/spaghettifunk/statecache/engine/renderer/metadata"
	"github.com/spaghettifunk/statecache/engine/renderer/sparse"
	"github.com/spaghettifunk/statecache/engine/renderer/state"
)

type RendererType uint8

const (
	Headless RendererType = iota
	Vulkan
)

func ParseRendererType(name string) (RendererType, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "headless":
		return Headless, nil
	case "vulkan":
		return Vulkan, nil
	}
	return 0, fmt.Errorf("unknown renderer backend %q", name)
}

func (t RendererType) String() string {
	if t == Vulkan {
		return "vulkan"
	}
	return "headless"
}

// Renderer ties a backend to the binding cache that sits in front of it.
type Renderer struct {
	backend RendererBackend
	events  *core.EventSystem
	metrics *core.Metrics
	context *state.Context
	sparse  sparse.Device

	frameStart time.Time
	frame      uint64
}

func New(backend RendererBackend, events *core.EventSystem) *Renderer {
	return &Renderer{
		backend: backend,
		events:  events,
		metrics: core.NewMetrics(),
	}
}

// Initialize starts the backend and creates the context from the probed
// capabilities, narrowed by cfg.
func (r *Renderer) Initialize(appName string, cfg core.CapabilityConfig) error {
	if err := r.backend.Initialize(appName); err != nil {
		return err
	}

	caps, err := r.backend.Capabilities().Override(cfg)
	if err != nil {
		return err
	}

	ctx, err := state.NewContext(r.backend, caps,
		state.WithName(appName),
		state.WithEvents(r.events),
		state.WithMetrics(r.metrics),
	)
	if err != nil {
		return err
	}
	r.context = ctx
	r.sparse = sparse.WithMetrics(r.backend, r.metrics)

	core.LogInfo("renderer initialized: sparse=%t page=%d", caps.SparseBuffer, caps.SparsePageSize)
	return nil
}

func (r *Renderer) Shutdown() error {
	if r.context != nil {
		r.context.Shutdown()
		r.context = nil
	}
	return r.backend.Shutdown()
}

func (r *Renderer) BeginFrame(deltaTime float64) error {
	r.frameStart = time.Now()
	if err := r.backend.BeginFrame(deltaTime); err != nil {
		return err
	}
	scope := r.backend.FrameScope()
	if r.context == nil || scope.IsEmpty() {
		return nil
	}
	if err := r.context.Invalidate(scope.Categories...); err != nil {
		return err
	}
	if scope.RenderState {
		r.context.InvalidateRenderState()
	}
	return nil
}

// EndFrame submits the frame and closes its metrics window.
func (r *Renderer) EndFrame(deltaTime float64) error {
	if err := r.backend.EndFrame(deltaTime); err != nil {
		return err
	}
	r.metrics.EndFrame(time.Since(r.frameStart))
	r.frame++
	return nil
}

func (r *Renderer) Frame() uint64 {
	return r.frame
}

func (r *Renderer) Backend() RendererBackend {
	return r.backend
}

// Context is the binding cache. Nil before Initialize.
func (r *Renderer) Context() *state.Context {
	return r.context
}

func (r *Renderer) Capabilities() metadata.Capabilities {
	return r.context.Capabilities()
}

func (r *Renderer) Metrics() *core.Metrics {
	return r.metrics
}

// SparseDevice is the backend's sparse interface with calls counted in Metrics.
func (r *Renderer) SparseDevice() sparse.Device {
	return r.sparse
}

// LogMetrics writes the last frame's counters and the rolling averages.
func (r *Renderer) LogMetrics() {
	last := r.metrics.LastFrame()
	core.LogInfo("frame %d: %.1f fps, %.2f ms, %.1f device calls/frame (last: %d reconciles, %d single, %d batch, %d skipped, %d render state, %d commit, %d copy)",
		r.frame, r.metrics.FPS(), r.metrics.FrameTime(), r.metrics.CallsPerFrame(),
		last.Reconciles, last.SingleBinds, last.BatchBinds, last.SkippedSlots,
		last.RenderStateApplies, last.CommitCalls, last.CopyCalls)
}
