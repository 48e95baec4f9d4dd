package engine

import (
	"github.com/spaghettifunk/statecache/engine/platform"
	"github.com/spaghettifunk/statecache/engine/renderer"
	"github.com/spaghettifunk/statecache/engine/renderer/headless"
	"github.com/spaghettifunk/statecache/engine/renderer/metadata"
	"github.com/spaghettifunk/statecache/engine/renderer/vulkan"
)

// newBackend builds the device named by t. The Vulkan backend needs the
// platform started first to load the loader.
func newBackend(t renderer.RendererType, p *platform.Platform, debug bool) (renderer.RendererBackend, error) {
	switch t {
	case renderer.Vulkan:
		if err := p.Startup(); err != nil {
			return nil, err
		}
		// Sparse support is probed, not required: without it sparse buffers are refused.
		return vulkan.New(p, false, debug), nil
	default:
		return headless.New(metadata.DefaultCapabilities()), nil
	}
}
