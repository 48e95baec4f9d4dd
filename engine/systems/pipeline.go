package systems

import (
	"fmt"

	"github.com/spaghettifunk/statecache/engine/core"
	"github.com/spaghettifunk/statecache/engine/renderer/state"
)

/** @brief The pipeline system configuration. */
type PipelineSystemConfig struct {
	/** @brief The maximum number of pipelines that can be registered. */
	MaxPipelineCount uint16
}

// PipelineSystem registers pipelines of the renderer context by name.
type PipelineSystem struct {
	Config     PipelineSystemConfig
	renderer   *RendererSystem
	registered map[string]*state.Pipeline
}

/**
 * @brief Creates the pipeline system on top of an initialized renderer.
 *
 * @param config The configuration for this system.
 * @param r The renderer system whose context owns the pipelines.
 */
func NewPipelineSystem(config PipelineSystemConfig, r *RendererSystem) (*PipelineSystem, error) {
	if config.MaxPipelineCount == 0 {
		err := fmt.Errorf("func NewPipelineSystem - config.MaxPipelineCount must be > 0")
		core.LogError(err.Error())
		return nil, err
	}
	return &PipelineSystem{
		Config:     config,
		renderer:   r,
		registered: make(map[string]*state.Pipeline, config.MaxPipelineCount),
	}, nil
}

/**
 * @brief Creates and registers a pipeline.
 *
 * @param config The pipeline declaration. The name is required and must be unique.
 * @return The new pipeline.
 */
func (ps *PipelineSystem) Create(config state.PipelineConfig) (*state.Pipeline, error) {
	if config.Name == "" {
		return nil, fmt.Errorf("pipeline name is required")
	}
	if _, ok := ps.registered[config.Name]; ok {
		return nil, fmt.Errorf("pipeline %q: %w", config.Name, ErrDuplicateName)
	}
	if len(ps.registered) >= int(ps.Config.MaxPipelineCount) {
		return nil, fmt.Errorf("%d pipelines registered: %w", len(ps.registered), core.ErrCapacityExceeded)
	}
	p, err := ps.renderer.Context().NewPipeline(config)
	if err != nil {
		core.LogError(err.Error())
		return nil, err
	}
	ps.registered[config.Name] = p
	return p, nil
}

func (ps *PipelineSystem) Get(name string) (*state.Pipeline, error) {
	p, ok := ps.registered[name]
	if !ok {
		return nil, fmt.Errorf("pipeline %q: %w", name, ErrNotFound)
	}
	return p, nil
}

// Activate makes the named pipeline the consumer of the next operation.
func (ps *PipelineSystem) Activate(name string) (*state.Pipeline, error) {
	p, err := ps.Get(name)
	if err != nil {
		return nil, err
	}
	if err := ps.renderer.Context().Activate(p); err != nil {
		return nil, err
	}
	return p, nil
}

func (ps *PipelineSystem) Destroy(name string) error {
	p, err := ps.Get(name)
	if err != nil {
		return err
	}
	if err := ps.renderer.Context().DestroyPipeline(p); err != nil {
		return err
	}
	delete(ps.registered, name)
	return nil
}

func (ps *PipelineSystem) Count() int {
	return len(ps.registered)
}

func (ps *PipelineSystem) Shutdown() error {
	for name := range ps.registered {
		if err := ps.Destroy(name); err != nil {
			return err
		}
	}
	return nil
}
