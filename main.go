/*
Drives the binding cache with the testbed scenario on the configured
backend. Usage: statecache [-config statecache.toml] [-watch]
*/
package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/spaghettifunk/statecache/engine"
	"github.com/spaghettifunk/statecache/engine/core"
	"github.com/spaghettifunk/statecache/testbed"
)

func main() {
	configPath := flag.String("config", "statecache.toml", "path of the TOML config file")
	watch := flag.Bool("watch", false, "reload the config file when it changes")
	flag.Parse()

	tb := testbed.NewTestGame(*configPath, *watch)

	e, err := engine.New(tb.Game)
	if err != nil {
		core.LogFatal(err.Error())
	}

	if err := e.Initialize(); err != nil {
		core.LogError(err.Error())
		_ = e.Shutdown()
		os.Exit(1)
	}

	// signal channel to capture system calls
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT)

	go func() {
		<-sigCh
		core.LogInfo("signal received, stopping after the current frame")
		e.Stop()
	}()

	runErr := e.Run()
	if err := e.Shutdown(); err != nil {
		core.LogError(err.Error())
		os.Exit(1)
	}
	if runErr != nil {
		os.Exit(1)
	}
}
