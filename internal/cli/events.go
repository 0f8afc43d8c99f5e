package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"github.com/helixir/book-recommendation-service/internal/domain"
	"github.com/helixir/book-recommendation-service/internal/events"
)

func newEventsCommand(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Inspect recommendation events",
	}
	cmd.AddCommand(newEventsTailCommand(opts))
	return cmd
}

func newEventsTailCommand(opts *options) *cobra.Command {
	var brokers []string

	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Print recommendation events from Kafka until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			// tail never builds a candidate source, so provider keys are not needed.
			overrides := map[string]any{
				"kafka.enabled":       true,
				"candidates.strategy": "search",
			}
			if len(brokers) > 0 {
				overrides["kafka.brokers"] = brokers
			}
			cfg, err := opts.loadConfig(overrides)
			if err != nil {
				return err
			}

			logger := opts.logger(cmd.ErrOrStderr())
			listener := events.NewListener(cfg.Kafka, eventPrinter(cmd.OutOrStdout()), logger)
			defer func() { _ = listener.Close() }()

			err = listener.Run(cmd.Context())
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}

	cmd.Flags().StringSliceVar(&brokers, "brokers", nil, "Kafka brokers, overriding config")
	return cmd
}

// eventPrinter writes one summary line per event.
func eventPrinter(w io.Writer) events.Handler {
	var mu sync.Mutex
	return func(_ context.Context, ev domain.RecommendationServedEvent) error {
		mu.Lock()
		defer mu.Unlock()

		_, err := fmt.Fprintln(w, formatEvent(ev))
		return err
	}
}

func formatEvent(ev domain.RecommendationServedEvent) string {
	titles := make([]string, len(ev.Books))
	for i, b := range ev.Books {
		titles[i] = b.Title
	}

	line := fmt.Sprintf("%s  session=%s source=%s books=%d",
		ev.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"), ev.SessionID, ev.Source, len(ev.Books))
	if ev.Degraded {
		line += " degraded"
	}
	if len(titles) > 0 {
		line += "  " + strings.Join(titles, " | ")
	}
	return line
}
