package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/helixir/book-recommendation-service/internal/domain"
	"github.com/helixir/book-recommendation-service/internal/query"
)

func newParseCommand(_ *options) *cobra.Command {
	var (
		asJSON   bool
		tableOpt query.Options
	)

	cmd := &cobra.Command{
		Use:   "parse <message>",
		Short: "Show how a message is parsed into search terms and filters",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tables := query.NewTables(tableOpt)
			q := query.Parse(strings.Join(args, " "), tables)

			out := cmd.OutOrStdout()
			if asJSON {
				return writeJSON(out, q)
			}
			renderQuery(out, q, tables.LanguageCode(q.Language))
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print the parsed query as JSON")
	cmd.Flags().StringVar(&tableOpt.DefaultLanguage, "default-language", "", "language used when the message names none")
	cmd.Flags().IntVar(&tableOpt.DefaultCount, "default-count", 0, "result count used when the message names none")
	return cmd
}

// renderQuery prints a parsed query as a two-column table.
func renderQuery(w io.Writer, q domain.ParsedQuery, languageCode string) {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Field", "Value"})
	t.AppendRows([]table.Row{
		{"Terms", strings.Join(q.Terms, ", ")},
		{"Search text", q.SearchText()},
		{"Language", fmt.Sprintf("%s (%s)", q.Language, languageCode)},
		{"Target year", q.Recency.Year},
		{"Recency weight", fmt.Sprintf("%.2f", q.Recency.Weight)},
		{"Result count", q.ResultCount},
	})
	fmt.Fprintln(w, t.Render())
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode JSON: %w", err)
	}
	return nil
}
