// Package mcp exposes message search to MCP clients over stdio.
package mcp

import (
	"context"
	"os"
	"strconv"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/wesm/chanvault/internal/query"
)

// Tool name constants.
const (
	ToolSearchMessages = "search_messages"
	ToolListFields     = "list_fields"
)

// Searcher runs paginated message searches.
type Searcher interface {
	Search(ctx context.Context, p query.Params) (*query.Page, error)
}

// Options bound the limit argument of search_messages.
type Options struct {
	DefaultLimit int
	MaxLimit     int
}

// Serve creates an MCP server with the search tools and serves over stdio.
// It blocks until stdin is closed or the context is cancelled.
func Serve(ctx context.Context, searcher Searcher, opts Options) error {
	s := NewServer(searcher, opts)
	stdio := server.NewStdioServer(s)
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

// NewServer builds the MCP server without binding a transport.
func NewServer(searcher Searcher, opts Options) *server.MCPServer {
	s := server.NewMCPServer(
		"chanvault",
		"1.0.0",
		server.WithToolCapabilities(false),
	)

	h := newHandlers(searcher, opts)
	s.AddTool(searchMessagesTool(h.opts), h.searchMessages)
	s.AddTool(listFieldsTool(), h.listFields)
	return s
}

func searchMessagesTool(opts Options) mcp.Tool {
	return mcp.NewTool(ToolSearchMessages,
		mcp.WithDescription("Search archived channel messages by one field, newest first. "+
			"Pass next_cursor from a previous result as 'before' to fetch the next page. Use list_fields for field names."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithString("field",
			mcp.Required(),
			mcp.Description("Field or alias to match (e.g. text, chat_name, channel_id, tags)"),
		),
		mcp.WithString("value",
			mcp.Required(),
			mcp.Description("Value to match"),
		),
		mcp.WithString("mode",
			mcp.Description("Comparison mode (default icontains)"),
			mcp.Enum("icontains", "contains", "exact"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum results to return (default "+strconv.Itoa(opts.DefaultLimit)+", max "+strconv.Itoa(opts.MaxLimit)+")"),
		),
		mcp.WithString("before",
			mcp.Description("Only messages strictly older than this cursor (ISO-8601 UTC, e.g. 2024-03-01T00:00:00Z)"),
		),
	)
}

func listFieldsTool() mcp.Tool {
	return mcp.NewTool(ToolListFields,
		mcp.WithDescription("List searchable message fields and their aliases."),
		mcp.WithReadOnlyHintAnnotation(true),
	)
}
