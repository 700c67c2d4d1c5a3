package cmd

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/wesm/chanvault/internal/search"
)

var fieldsCmd = &cobra.Command{
	Use:   "fields",
	Short: "List searchable fields and their aliases",
	RunE: func(cmd *cobra.Command, args []string) error {
		return printFields(cmd.OutOrStdout())
	},
}

func printFields(out io.Writer) error {
	byTarget := make(map[string][]string)
	for _, a := range search.Aliases() {
		name := a.Name
		if a.Exact {
			name += " (exact)"
		}
		byTarget[a.Target] = append(byTarget[a.Target], name)
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "FIELD\tKIND\tALIASES")
	fmt.Fprintln(w, "─────\t────\t───────")
	for _, f := range search.Fields() {
		fmt.Fprintf(w, "%s\t%s\t%s\n", f.Name, fieldKind(f), strings.Join(byTarget[f.Name], ", "))
	}
	return w.Flush()
}

func fieldKind(f search.Field) string {
	switch {
	case f.Date:
		return "date"
	case f.Numeric:
		return "numeric"
	case f.Multivalued:
		return "list"
	default:
		return "text"
	}
}

func init() {
	rootCmd.AddCommand(fieldsCmd)
}
