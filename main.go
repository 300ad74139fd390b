// The main package for the seedindex executable.
package main

import (
	"github.com/JakeFAU/seedindex/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
