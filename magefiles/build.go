//go:build mage

package main

import (
	"github.com/magefile/mage/mg"
)

type Build mg.Namespace

// Builds the anima-assets binary into bin/.
func (Build) Binary() error {
	mg.Deps(tidy)
	if _, err := executeCmd("go", withArgs("build", "-o", "bin/anima-assets", "."), withStream()); err != nil {
		return err
	}
	return nil
}

// Builds the binary with the debug assertions enabled.
func (Build) Debug() error {
	if _, err := executeCmd("go", withArgs("build", "-tags", "animadebug", "-o", "bin/anima-assets-debug", "."), withStream()); err != nil {
		return err
	}
	return nil
}
