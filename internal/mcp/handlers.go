package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/wesm/chanvault/internal/query"
	"github.com/wesm/chanvault/internal/search"
)

type handlers struct {
	searcher Searcher
	opts     Options
}

func newHandlers(searcher Searcher, opts Options) *handlers {
	if opts.MaxLimit <= 0 {
		opts.MaxLimit = query.DefaultMaxLimit
	}
	if opts.DefaultLimit <= 0 || opts.DefaultLimit > opts.MaxLimit {
		opts.DefaultLimit = min(20, opts.MaxLimit)
	}
	return &handlers{searcher: searcher, opts: opts}
}

// limitArg extracts the limit argument. JSON numbers arrive as float64.
// Values outside 1..ceiling are rejected rather than clamped.
func limitArg(args map[string]any, key string, def, ceiling int) (int, error) {
	raw, present := args[key]
	if !present || raw == nil {
		return def, nil
	}
	v, ok := raw.(float64)
	if !ok || math.IsNaN(v) || v != math.Trunc(v) {
		return 0, fmt.Errorf("%w: %s must be an integer", search.ErrInvalidValue, key)
	}
	if v < 1 || v > float64(ceiling) {
		return 0, fmt.Errorf("%w: %s must be between 1 and %d", search.ErrInvalidValue, key, ceiling)
	}
	return int(v), nil
}

// stringArg returns a string argument, or nil when it was not supplied.
func stringArg(args map[string]any, key string) *string {
	v, ok := args[key].(string)
	if !ok {
		return nil
	}
	return &v
}

func (h *handlers) searchMessages(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()

	limit, err := limitArg(args, "limit", h.opts.DefaultLimit, h.opts.MaxLimit)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	p := query.Params{
		Value: stringArg(args, "value"),
		Limit: limit,
	}
	p.Field, _ = args["field"].(string)
	p.Mode, _ = args["mode"].(string)
	p.Before, _ = args["before"].(string)

	page, err := h.searcher.Search(ctx, p)
	if err != nil {
		if search.IsInputError(err) {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return mcp.NewToolResultError("search did not complete"), nil
		}
		return mcp.NewToolResultError("search failed: store unavailable"), nil
	}
	if page.Results == nil {
		page.Results = []query.Record{}
	}
	return jsonResult(page)
}

func (h *handlers) listFields(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(map[string]any{
		"fields":  search.Fields(),
		"aliases": search.Aliases(),
	})
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("marshal error: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
