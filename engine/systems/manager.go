package systems

import (
	"github.com/spaghettifunk/statecache/engine/core"
	"github.com/spaghettifunk/statecache/engine/renderer"
	"github.com/spaghettifunk/statecache/engine/renderer/state"
)

type SystemManager struct {
	RendererSystem *RendererSystem
	ResourceSystem *ResourceSystem
	PipelineSystem *PipelineSystem
}

func NewSystemManager(appName string, backend renderer.RendererBackend, events *core.EventSystem, config *core.Config) (*SystemManager, error) {
	rs, err := NewRendererSystem(RendererSystemConfig{
		AppName:      appName,
		Capabilities: config.Capabilities,
		MetricsEvery: config.Testbed.MetricsEvery,
	}, backend, events)
	if err != nil {
		return nil, err
	}
	res, err := NewResourceSystem(ResourceSystemConfig{
		MaxResourceCount: 4096,
	}, events, rs)
	if err != nil {
		return nil, err
	}
	ps, err := NewPipelineSystem(PipelineSystemConfig{
		MaxPipelineCount: 256,
	}, rs)
	if err != nil {
		return nil, err
	}
	return &SystemManager{
		RendererSystem: rs,
		ResourceSystem: res,
		PipelineSystem: ps,
	}, nil
}

// Initialize starts the renderer. The other systems need its context.
func (sm *SystemManager) Initialize() error {
	return sm.RendererSystem.Initialize()
}

func (sm *SystemManager) DrawFrame(deltaTime float64, record func(ctx *state.Context) error) error {
	return sm.RendererSystem.DrawFrame(deltaTime, record)
}

func (sm *SystemManager) Shutdown() error {
	if err := sm.PipelineSystem.Shutdown(); err != nil {
		return err
	}
	if err := sm.ResourceSystem.Shutdown(); err != nil {
		return err
	}
	if err := sm.RendererSystem.Shutdown(); err != nil {
		return err
	}
	return nil
}
