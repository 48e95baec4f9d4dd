package platform

import (
	"fmt"
	"runtime"
	"unsafe"

	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/spaghettifunk/statecache/engine/core"
)

func init() {
	// GLFW must be driven from the main OS thread
	runtime.LockOSThread()
}

// Platform loads the Vulkan loader through GLFW. No window is created: the
// device renders off screen.
type Platform struct {
	started bool
}

func New() *Platform {
	return &Platform{}
}

func (p *Platform) Startup() error {
	if err := glfw.Init(); err != nil {
		core.LogError("failed to initialize glfw: %s", err)
		return err
	}
	p.started = true
	if !glfw.VulkanSupported() {
		return fmt.Errorf("no Vulkan loader found")
	}
	return nil
}

func (p *Platform) Shutdown() error {
	if p.started {
		glfw.Terminate()
		p.started = false
	}
	return nil
}

// VulkanProcAddress returns vkGetInstanceProcAddr, or nil before Startup.
func (p *Platform) VulkanProcAddress() unsafe.Pointer {
	if !p.started {
		return nil
	}
	return glfw.GetVulkanGetInstanceProcAddress()
}
