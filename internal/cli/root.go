// Package cli implements the bookrec command line tool.
package cli

import (
	"fmt"
	"io"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/helixir/book-recommendation-service/internal/config"
	"github.com/helixir/book-recommendation-service/internal/observability"
)

// BuildInfo identifies the binary.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildDate string
}

// options are the persistent flags shared by every command.
type options struct {
	configFile string
	logLevel   string
}

// NewRootCommand returns the bookrec command tree.
func NewRootCommand(info BuildInfo) *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:   "bookrec",
		Short: "Inspect and exercise the book recommendation pipeline",
		Long: `bookrec runs the book recommendation pipeline from the command line.

Use "parse" to see how a message is interpreted, "recommend" to run the full
pipeline against the configured collaborators, and "events tail" to follow
published recommendation events.`,
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&opts.configFile, "config", "", "config file (default: search ./config.yaml, ./config, /etc/book-recommendation-service)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "log level for pipeline diagnostics")

	root.AddCommand(
		newParseCommand(opts),
		newRecommendCommand(opts),
		newEventsCommand(opts),
		newVersionCommand(info),
	)
	return root
}

// loadConfig loads configuration honoring --config and the given overrides.
func (o *options) loadConfig(overrides map[string]any) (*config.Config, error) {
	cfg, err := config.LoadWith(o.configFile, overrides)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// logger writes console logs to w at the --log-level level.
func (o *options) logger(w io.Writer) zerolog.Logger {
	cfg := observability.DefaultLoggingConfig()
	cfg.Level = o.logLevel
	cfg.Format = "console"
	return observability.NewLogger(cfg).Output(zerolog.ConsoleWriter{Out: w, NoColor: true})
}
