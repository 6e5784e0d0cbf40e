package main

import (
	"os"

	"github.com/conduit-lang/querykit/internal/cli/commands"
)

// Set at build time with -ldflags "-X main.version=..."
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	commands.Version = version
	commands.GitCommit = gitCommit
	commands.BuildDate = buildDate

	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
