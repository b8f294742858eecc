// main.go
package main

import (
	"github.com/xkilldash9x/pixelpilot/cmd"
)

// main is the entry point for the pixelpilot CLI.
func main() {
	cmd.Execute()
}
