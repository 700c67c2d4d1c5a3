package cmd

import (
	"github.com/spf13/cobra"
	mcpserver "github.com/wesm/chanvault/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Run MCP server for AI assistant integration",
	Long: `Start an MCP (Model Context Protocol) server over stdio.

This lets any MCP client search the message archive with the
search_messages and list_fields tools.

Add to an MCP client config:
  {
    "mcpServers": {
      "chanvault": {
        "command": "chanvault",
        "args": ["mcp"]
      }
    }
  }`,
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openSearchStack()
		if err != nil {
			return err
		}
		defer st.Close()

		return mcpserver.Serve(cmd.Context(), st.searcher, mcpserver.Options{
			DefaultLimit: cfg.Search.DefaultLimit,
			MaxLimit:     cfg.Search.MaxLimit,
		})
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}
