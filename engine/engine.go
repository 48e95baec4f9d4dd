package engine

import (
	"fmt"
	"sync/atomic"

	"github.com/spaghettifunk/statecache/engine/core"
	"github.com/spaghettifunk/statecache/engine/platform"
	"github.com/spaghettifunk/statecache/engine/renderer"
	"github.com/spaghettifunk/statecache/engine/renderer/state"
	"github.com/spaghettifunk/statecache/engine/systems"
)

type Stage uint8

const (
	// Engine is in an uninitialized state
	EngineStageUninitialized Stage = iota
	// Engine is currently initializing
	EngineStageInitializing
	// Engine initialization is complete
	EngineStageInitialized
	// Engine is currently running
	EngineStageRunning
	// Engine is in the process of shutting down
	EngineStageShuttingDown
)

type Engine struct {
	currentStage  Stage
	gameInstance  *Game
	isRunning     atomic.Bool
	config        *core.Config
	watcher       *core.ConfigWatcher
	reloads       chan *core.Config
	events        *core.EventSystem
	platform      *platform.Platform
	systemManager *systems.SystemManager
	clock         *core.Clock
	lastTime      float64
}

func New(g *Game) (*Engine, error) {
	app := g.ApplicationConfig

	config := core.DefaultConfig()
	if app.ConfigPath != "" {
		c, err := core.LoadConfig(app.ConfigPath)
		if err != nil {
			core.LogError(err.Error())
			return nil, err
		}
		config = c
	}
	level := config.LogLevel()
	if app.LogLevel != nil {
		level = *app.LogLevel
	}
	core.SetLogLevel(level)

	backendType, err := renderer.ParseRendererType(config.Testbed.Backend)
	if err != nil {
		core.LogError(err.Error())
		return nil, err
	}

	p := platform.New()
	backend, err := newBackend(backendType, p, level == core.DebugLevel)
	if err != nil {
		core.LogError(err.Error())
		return nil, err
	}

	events := core.NewEventSystem()
	sm, err := systems.NewSystemManager(app.Name, backend, events, config)
	if err != nil {
		core.LogError(err.Error())
		return nil, err
	}
	core.LogInfo("using %s backend", backendType)

	return &Engine{
		currentStage:  EngineStageUninitialized,
		gameInstance:  g,
		config:        config,
		reloads:       make(chan *core.Config, 1),
		events:        events,
		clock:         core.NewClock(),
		platform:      p,
		systemManager: sm,
	}, nil
}

func (e *Engine) Initialize() error {
	e.currentStage = EngineStageInitializing

	if err := e.systemManager.Initialize(); err != nil {
		return err
	}

	app := e.gameInstance.ApplicationConfig
	if app.WatchConfig && app.ConfigPath != "" {
		w, err := core.WatchConfig(app.ConfigPath, e.onConfigChanged)
		if err != nil {
			return err
		}
		e.watcher = w
	}

	e.gameInstance.SystemManager = e.systemManager
	e.gameInstance.Events = e.events
	if e.gameInstance.FnInitialize != nil {
		if err := e.gameInstance.FnInitialize(); err != nil {
			return err
		}
	}

	e.currentStage = EngineStageInitialized
	return nil
}

// Run renders frames until Stop is called or, when testbed.frames is set,
// until that many frames were drawn.
func (e *Engine) Run() error {
	if e.currentStage != EngineStageInitialized {
		return fmt.Errorf("engine not initialized")
	}
	e.currentStage = EngineStageRunning
	e.isRunning.Store(true)

	e.clock.Start()
	e.clock.Update()
	e.lastTime = e.clock.Elapsed().Seconds()

	frames := 0
	for e.isRunning.Load() {
		select {
		case cfg := <-e.reloads:
			e.applyConfig(cfg)
		default:
		}

		// Update clock and get delta time.
		e.clock.Update()
		currentTime := e.clock.Elapsed().Seconds()
		delta := currentTime - e.lastTime

		if e.gameInstance.FnUpdate != nil {
			if err := e.gameInstance.FnUpdate(delta); err != nil {
				core.LogError("Game update failed, shutting down: %s", err)
				return err
			}
		}

		err := e.systemManager.DrawFrame(delta, func(ctx *state.Context) error {
			if e.gameInstance.FnRender == nil {
				return nil
			}
			return e.gameInstance.FnRender(ctx, delta)
		})
		if err != nil {
			core.LogError("Game render failed, shutting down: %s", err)
			return err
		}

		e.lastTime = currentTime
		frames++
		if n := e.config.Testbed.Frames; n > 0 && frames >= n {
			core.LogInfo("rendered %d frames in %s", frames, e.clock.Elapsed())
			e.isRunning.Store(false)
		}
	}
	return nil
}

// Stop ends Run after the current frame. Safe to call from any goroutine.
func (e *Engine) Stop() {
	e.isRunning.Store(false)
}

func (e *Engine) Shutdown() error {
	e.currentStage = EngineStageShuttingDown
	if e.watcher != nil {
		if err := e.watcher.Close(); err != nil {
			core.LogWarn("failed to close config watcher: %s", err)
		}
		e.watcher = nil
	}
	if e.gameInstance.FnShutdown != nil {
		if err := e.gameInstance.FnShutdown(); err != nil {
			return err
		}
	}
	if err := e.systemManager.Shutdown(); err != nil {
		return err
	}
	if err := e.platform.Shutdown(); err != nil {
		return err
	}
	e.currentStage = EngineStageUninitialized
	return nil
}

// onConfigChanged runs on the watcher goroutine; the frame loop applies the config.
func (e *Engine) onConfigChanged(cfg *core.Config) {
	select {
	case e.reloads <- cfg:
	default:
		// Replace a reload the loop has not picked up yet.
		select {
		case <-e.reloads:
		default:
		}
		e.reloads <- cfg
	}
}

// applyConfig takes the settings that can change at run time. Capability
// overrides and the backend are fixed once the device is up.
func (e *Engine) applyConfig(cfg *core.Config) {
	if e.gameInstance.ApplicationConfig.LogLevel == nil {
		core.SetLogLevel(cfg.LogLevel())
	}
	e.config.Log = cfg.Log
	e.config.Testbed.Frames = cfg.Testbed.Frames
	e.systemManager.RendererSystem.Config.MetricsEvery = cfg.Testbed.MetricsEvery
	core.LogInfo("config reloaded: log level %s", core.GetLogLevel())
	e.events.Fire(core.EVENT_CODE_CONFIG_RELOADED, e, core.EventContext{Data: cfg})
}
