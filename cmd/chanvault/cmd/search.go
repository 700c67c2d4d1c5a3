package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"github.com/wesm/chanvault/internal/query"
	"github.com/wesm/chanvault/internal/search"
)

var (
	searchMode   string
	searchLimit  int
	searchBefore string
	searchJSON   bool
)

var searchCmd = &cobra.Command{
	Use:   "search <field:value>",
	Short: "Search messages by one field, newest first",
	Long: `Search the archive by a single field. Results are newest first.

The term is field:value for the default case-insensitive substring match, or
field=value for an exact match. Quote values that contain spaces.

Pass the printed next cursor as --before to continue where a page ended.
Run 'chanvault fields' for the list of fields and aliases.

Examples:
  chanvault search text:bitcoin
  chanvault search 'chat_name="Go News"'
  chanvault search channel_id:1001 --limit 50
  chanvault search tags:golang --before 2024-03-01T00:00:00Z --json`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		// Join all args so unquoted multi-word values work
		req, err := search.ParseTerm(strings.Join(args, " "))
		if err != nil {
			return err
		}
		mode := req.Mode
		if searchMode != "" {
			mode = searchMode
		}
		limit := searchLimit
		if limit == 0 {
			limit = cfg.Search.DefaultLimit
		}

		st, err := openSearchStack()
		if err != nil {
			return err
		}
		defer st.Close()

		page, err := st.searcher.Search(cmd.Context(), query.Params{
			Field:  req.Field,
			Value:  req.Value,
			Mode:   mode,
			Limit:  limit,
			Before: searchBefore,
		})
		if err != nil {
			return fmt.Errorf("search: %w", err)
		}

		out := cmd.OutOrStdout()
		if searchJSON {
			return outputSearchResultsJSON(out, page)
		}
		return outputSearchResultsTable(out, page, textWidth(out))
	},
}

// textWidth is the TEXT column width for out: 60 columns on a terminal,
// unlimited (0) when piped.
func textWidth(out io.Writer) int {
	if f, ok := out.(*os.File); ok && isatty.IsTerminal(f.Fd()) {
		return 60
	}
	return 0
}

func outputSearchResultsTable(out io.Writer, page *query.Page, width int) error {
	if len(page.Results) == 0 {
		fmt.Fprintln(out, "No messages found.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tDATE\tCHAT\tTEXT")
	fmt.Fprintln(w, "──\t────\t────\t────")

	for _, rec := range page.Results {
		text := singleLine(cell(rec["text"]))
		if width > 0 {
			text = truncate(text, width)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			cell(rec["id"]),
			cell(rec["date"]),
			truncate(cell(rec["chat_name"]), 24),
			text,
		)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(out, "\nShowing %d results (%.3fs)\n", len(page.Results), page.Timing)
	if page.HasMore && page.NextCursor != nil {
		fmt.Fprintf(out, "More results: --before %s\n", *page.NextCursor)
	}
	return nil
}

func outputSearchResultsJSON(out io.Writer, page *query.Page) error {
	if page.Results == nil {
		page.Results = []query.Record{}
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(page)
}

// cell renders a record value for the table; nulls print as "-".
func cell(v any) string {
	switch x := v.(type) {
	case nil:
		return "-"
	case string:
		return x
	case []string:
		return strings.Join(x, ",")
	default:
		return fmt.Sprint(x)
	}
}

func init() {
	rootCmd.AddCommand(searchCmd)
	searchCmd.Flags().StringVar(&searchMode, "mode", "", "Match mode: icontains, contains or exact")
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", 0, "Maximum number of results (default from config)")
	searchCmd.Flags().StringVar(&searchBefore, "before", "", "Only messages older than this cursor (ISO-8601 UTC)")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "Output as JSON")
}
