//go:build mage

package main

import (
	"fmt"
	"os"

	"github.com/magefile/mage/mg"
)

type Run mg.Namespace

// Watches the project in $ANIMA_PROJECT, or the current directory.
func (Run) Watch() error {
	project := os.Getenv("ANIMA_PROJECT")
	if project == "" {
		project = "."
	}
	fmt.Println("Watching project...")
	if _, err := executeCmd("go", withArgs("run", ".", "--project", project, "--log-level", "debug", "watch"), withStream()); err != nil {
		return err
	}
	return nil
}

// Prints the asset registry of the project in $ANIMA_PROJECT.
func (Run) List() error {
	project := os.Getenv("ANIMA_PROJECT")
	if project == "" {
		project = "."
	}
	_, err := executeCmd("go", withArgs("run", ".", "--project", project, "list"), withStream())
	return err
}
