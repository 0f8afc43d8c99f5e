package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"github.com/helixir/book-recommendation-service/internal/app"
	"github.com/helixir/book-recommendation-service/internal/domain"
	"github.com/helixir/book-recommendation-service/internal/pipeline"
	"github.com/helixir/book-recommendation-service/internal/presenter"
	"github.com/helixir/book-recommendation-service/internal/session"
)

func newRecommendCommand(opts *options) *cobra.Command {
	var (
		strategy string
		asHTML   bool
		asJSON   bool
	)

	cmd := &cobra.Command{
		Use:   "recommend <message>",
		Short: "Run the recommendation pipeline for one message",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			overrides := map[string]any{}
			if strategy != "" {
				overrides["candidates.strategy"] = strategy
			}
			cfg, err := opts.loadConfig(overrides)
			if err != nil {
				return err
			}

			logger := opts.logger(cmd.ErrOrStderr())
			application, err := app.New(cfg, logger, nil)
			if err != nil {
				return err
			}
			defer func() { _ = application.Close() }()

			message := strings.Join(args, " ")
			res, err := recommend(cmd.Context(), application.Pipeline, message, cfg.Session.SystemPrompt)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			switch {
			case asJSON:
				return writeJSON(out, res.Books)
			case asHTML:
				html, err := application.Presenter.Render(res.Books, res.Query.Language)
				if err != nil {
					return err
				}
				fmt.Fprintln(out, html)
				return nil
			default:
				renderResult(out, res)
				return nil
			}
		},
	}

	cmd.Flags().StringVar(&strategy, "strategy", "", "candidate strategy (llm or search), overriding config")
	cmd.Flags().BoolVar(&asHTML, "html", false, "print the HTML chat message instead of a table")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print ranked books as JSON")
	cmd.MarkFlagsMutuallyExclusive("html", "json")
	return cmd
}

// recommender is the pipeline as seen by the CLI.
type recommender interface {
	Recommend(ctx context.Context, req pipeline.Request) (*pipeline.Result, error)
}

// recommend runs one fresh-session turn.
func recommend(ctx context.Context, r recommender, message, systemPrompt string) (*pipeline.Result, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	id := session.NewID()
	return r.Recommend(ctx, pipeline.Request{
		Message:   message,
		Prompt:    session.BuildPrompt([]domain.ChatEntry{{Role: domain.ChatRoleUser, Content: message}}, systemPrompt),
		SessionID: id,
	})
}

// renderResult prints ranked books as a table with a summary footer.
func renderResult(w io.Writer, res *pipeline.Result) {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"#", "Title", "Author", "Year", "Rating", "Score", "Status"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 2, WidthMax: 40},
		{Number: 3, WidthMax: 28},
		{Number: 6, Align: text.AlignRight},
	})

	for i, b := range res.Books {
		t.AppendRow(table.Row{
			i + 1,
			b.Title,
			b.Author,
			presenter.Year(b.FirstPublishYear),
			presenter.FormatRating(b.RatingsAverage, b.RatingsCount),
			fmt.Sprintf("%.3f", b.Score),
			presenter.AvailabilityText(b.Available),
		})
	}

	summary := fmt.Sprintf("%d books via %s", len(res.Books), res.Source)
	if res.Degraded {
		summary += " (degraded)"
	}
	t.AppendFooter(table.Row{"", summary, "", "", "", "", ""})

	fmt.Fprintln(w, t.Render())
}
