// Package main provides the bookrec command line tool.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/helixir/book-recommendation-service/internal/cli"
)

// Set via -ldflags at build time.
var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	root := cli.NewRootCommand(cli.BuildInfo{Version: version, Commit: commit, BuildDate: buildDate})
	if err := root.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
