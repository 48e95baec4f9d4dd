//go:build mage

package main

import (
	"fmt"

	"github.com/magefile/mage/mg"
)

type Run mg.Namespace

// Runs the testbed with the config in statecache.toml.
func (Run) Testbed() error {
	fmt.Println("Run testbed...")
	if _, err := executeCmd("go", withArgs("run", ".", "-config", "statecache.toml"), withStream()); err != nil {
		return err
	}
	return nil
}

// Runs the testbed and reloads statecache.toml when it changes.
func (Run) Watch() error {
	_, err := executeCmd("go", withArgs("run", ".", "-config", "statecache.toml", "-watch"), withStream())
	return err
}

type Test mg.Namespace

// Runs the unit and property tests of the packages that need no device.
func (Test) Unit() error {
	pkgs := []string{
		"./engine/containers/...",
		"./engine/core/...",
		"./engine/renderer/metadata/...",
		"./engine/renderer/state/...",
		"./engine/renderer/sparse/...",
		"./engine/renderer/headless/...",
		"./engine/systems/...",
	}
	_, err := executeCmd("go", withArgs(append([]string{"test", "-race"}, pkgs...)...), withStream())
	return err
}

// Runs every test, the Vulkan backend included.
func (Test) All() error {
	mg.Deps(Test.Unit)
	_, err := executeCmd("go", withArgs("test", "./..."), withStream())
	return err
}
