// franchisectl is the operator CLI for the franchise service.
package main

import (
	"os"

	"github.com/turtacn/toda-franchise/internal/interfaces/cli"
)

// Build-time variables injected via ldflags.
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func init() {
	cli.Version = version
	cli.GitCommit = commit
	cli.BuildDate = buildDate
}

func main() {
	// Execute already prints the error.
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
