package engine

import (
	"github.com/spaghettifunk/statecache/engine/core"
	"github.com/spaghettifunk/statecache/engine/renderer/state"
	"github.com/spaghettifunk/statecache/engine/systems"
)

type Game struct {
	ApplicationConfig *ApplicationConfig
	// Set by the engine before FnInitialize runs.
	SystemManager *systems.SystemManager
	Events        *core.EventSystem
	State         interface{}
	FnInitialize  Initialize
	FnUpdate      Update
	FnRender      Render
	FnShutdown    Shutdown
}

type Initialize func() error
type Update func(deltaTime float64) error

// Render records the frame's activations, binds and operations on ctx.
type Render func(ctx *state.Context, deltaTime float64) error
type Shutdown func() error
