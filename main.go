// The main package for the hackaplan executable.
package main

import (
	"github.com/aryan-cs/hackaplan/cmd"
)

// main is the entry point of the application.
// It defers all execution to the Cobra CLI library.
func main() {
	cmd.Execute()
}
