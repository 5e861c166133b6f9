// The main package for the permitscout executable.
package main

import (
	"github.com/mrmoe28/permitscout/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
