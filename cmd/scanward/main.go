// Command scanward is the entry point for the scanning daemon and its
// control commands.
package main

import (
	"github.com/scanward/scanward/cmd/cli"
)

// Build information - set by ldflags during release builds.
var (
	version   = "dev"
	commit    = "none"
	buildTime = "unknown"
)

func main() {
	cli.SetVersion(version, commit, buildTime)
	cli.Execute()
}
