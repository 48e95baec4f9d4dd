package core

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/pelletier/go-toml/v2"
)

type LogConfig struct {
	// One of debug, info, warn, error, fatal.
	Level string `toml:"level"`
}

// CapabilityConfig narrows the probed capability table. It can only take
// features away or lower limits, never add what the device lacks.
type CapabilityConfig struct {
	// Categories (by name) that must use per-slot binds even if the device batches.
	DisableBatch []string `toml:"disable_batch"`
	// Per-category slot limits (by name), applied when lower than the probed value.
	MaxSlots map[string]int `toml:"max_slots"`
	// Disables sparse buffers altogether.
	DisableSparse bool `toml:"disable_sparse"`
}

type TestbedConfig struct {
	// Number of frames the testbed renders before exiting. 0 runs until interrupted.
	Frames int `toml:"frames"`
	// Backend name: "headless" or "vulkan".
	Backend string `toml:"backend"`
	// Log device metrics every N frames. 0 disables.
	MetricsEvery int `toml:"metrics_every"`
}

type Config struct {
	Log          LogConfig        `toml:"log"`
	Capabilities CapabilityConfig `toml:"capabilities"`
	Testbed      TestbedConfig    `toml:"testbed"`
}

func DefaultConfig() *Config {
	return &Config{
		Log: LogConfig{
			Level: "info",
		},
		Capabilities: CapabilityConfig{
			MaxSlots: map[string]int{},
		},
		Testbed: TestbedConfig{
			Frames:       120,
			Backend:      "headless",
			MetricsEvery: 60,
		},
	}
}

// ParseConfig decodes a TOML document on top of the defaults.
func ParseConfig(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if _, err := ParseLogLevel(cfg.Log.Level); err != nil {
		return nil, err
	}
	if cfg.Testbed.Frames < 0 {
		return nil, fmt.Errorf("testbed.frames must be >= 0, got %d", cfg.Testbed.Frames)
	}
	return cfg, nil
}

// LoadConfig reads the file at path. A missing file yields the defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			LogWarn("config file %s not found, using defaults", path)
			return DefaultConfig(), nil
		}
		return nil, err
	}
	return ParseConfig(data)
}

// LogLevel returns the configured level. ParseConfig already validated it.
func (c *Config) LogLevel() LogLevel {
	l, _ := ParseLogLevel(c.Log.Level)
	return l
}

// ConfigWatcher reloads a config file whenever it changes on disk.
type ConfigWatcher struct {
	fsnotify *fsnotify.Watcher
	path     string
	onChange func(*Config)
	done     chan struct{}
	wg       sync.WaitGroup
	isClosed bool
}

// WatchConfig starts watching path. onChange runs on the watcher goroutine
// with the freshly parsed config; files that fail to parse are logged and
// ignored.
func WatchConfig(path string, onChange func(*Config)) (*ConfigWatcher, error) {
	fsWatch, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		fsWatch.Close()
		return nil, err
	}
	// Watch the directory: editors replace files by renaming over them.
	if err := fsWatch.Add(filepath.Dir(abs)); err != nil {
		fsWatch.Close()
		return nil, err
	}
	cw := &ConfigWatcher{
		fsnotify: fsWatch,
		path:     abs,
		onChange: onChange,
		done:     make(chan struct{}),
	}
	cw.wg.Add(1)
	go cw.start()
	return cw, nil
}

func (cw *ConfigWatcher) start() {
	defer cw.wg.Done()
	for {
		select {
		case e, ok := <-cw.fsnotify.Events:
			if !ok {
				return
			}
			if filepath.Clean(e.Name) != cw.path {
				continue
			}
			if e.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			cfg, err := LoadConfig(cw.path)
			if err != nil {
				LogError("failed to reload config %s: %s", cw.path, err)
				continue
			}
			LogDebug("config %s reloaded", cw.path)
			cw.onChange(cfg)

		case err, ok := <-cw.fsnotify.Errors:
			if !ok {
				return
			}
			LogError(err.Error())

		case <-cw.done:
			return
		}
	}
}

// Close stops the watcher and waits for the goroutine to exit.
func (cw *ConfigWatcher) Close() error {
	if cw.isClosed {
		return nil
	}
	cw.isClosed = true
	close(cw.done)
	err := cw.fsnotify.Close()
	cw.wg.Wait()
	return err
}
