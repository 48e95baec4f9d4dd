package renderer

import (
	"github.com/spaghettifunk/statecache/engine/core"
	"github.com/spaghettifunk/statecache/engine/renderer/metadata"
	"github.com/spaghettifunk/statecache/engine/renderer/sparse"
	"github.com/spaghettifunk/statecache/engine/renderer/state"
)

// RendererBackend is a device the binding cache can drive: the bind, draw
// and commitment calls plus lifecycle and resource management.
type RendererBackend interface {
	state.Device
	sparse.Device

	Initialize(appName string) error
	Shutdown() error
	BeginFrame(deltaTime float64) error
	EndFrame(deltaTime float64) error
	// Capabilities is the result of the feature probe run by Initialize.
	Capabilities() metadata.Capabilities
	// FrameScope names the state BeginFrame drops. The binding cache is
	// invalidated for it at the start of every frame.
	FrameScope() metadata.FrameScope
	ResourceCreate(h core.Handle, config *metadata.ResourceConfig) error
	ResourceDestroy(h core.Handle) error
}
