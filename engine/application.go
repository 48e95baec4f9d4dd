package engine

import "github.com/spaghettifunk/statecache/engine/core"

type ApplicationConfig struct {
	// The application name, used for the device instance and log lines.
	Name string
	// Path of the TOML config file. Empty uses the defaults and disables watching.
	ConfigPath string
	// Watch ConfigPath and apply changes while running.
	WatchConfig bool
	// Overrides the configured log level when set.
	LogLevel *core.LogLevel
}
