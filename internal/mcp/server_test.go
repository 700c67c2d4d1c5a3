package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/wesm/chanvault/internal/query"
	"github.com/wesm/chanvault/internal/schema"
	"github.com/wesm/chanvault/internal/search"
	"github.com/wesm/chanvault/internal/testutil"
	"github.com/wesm/chanvault/internal/testutil/dbtest"
)

// toolHandler is the function signature for MCP tool handler methods.
type toolHandler func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error)

// callToolDirect invokes a handler directly with the given arguments and returns the raw result.
func callToolDirect(t *testing.T, name string, fn toolHandler, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args
	result, err := fn(context.Background(), req)
	if err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	return result
}

func resultText(t *testing.T, r *mcp.CallToolResult) string {
	t.Helper()
	if len(r.Content) == 0 {
		t.Fatal("empty content")
	}
	tc, ok := r.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected TextContent, got %T", r.Content[0])
	}
	return tc.Text
}

// runTool invokes a handler, asserts no error, and unmarshals the JSON result into T.
func runTool[T any](t *testing.T, name string, fn toolHandler, args map[string]any) T {
	t.Helper()
	r := callToolDirect(t, name, fn, args)
	if r.IsError {
		t.Fatalf("unexpected error: %s", resultText(t, r))
	}
	var out T
	if err := json.Unmarshal([]byte(resultText(t, r)), &out); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	return out
}

// runToolExpectError invokes a handler and asserts it returns an error result.
func runToolExpectError(t *testing.T, name string, fn toolHandler, args map[string]any) string {
	t.Helper()
	r := callToolDirect(t, name, fn, args)
	if !r.IsError {
		t.Fatal("expected error result")
	}
	return resultText(t, r)
}

// stubSearcher returns a fixed page or error and records its input.
type stubSearcher struct {
	page  *query.Page
	err   error
	calls []query.Params
}

func (s *stubSearcher) Search(ctx context.Context, p query.Params) (*query.Page, error) {
	s.calls = append(s.calls, p)
	if s.err != nil {
		return nil, s.err
	}
	return s.page, nil
}

func TestSearchMessages(t *testing.T) {
	start := time.Date(2024, 2, 1, 9, 0, 0, 0, time.UTC)
	stub := &stubSearcher{page: testutil.NewPage(start).WithMessages(2, "hi").WithMore().Build()}
	h := newHandlers(stub, Options{DefaultLimit: 20, MaxLimit: 100})

	page := runTool[query.Page](t, ToolSearchMessages, h.searchMessages, map[string]any{
		"field":  "chat_name",
		"value":  "general",
		"mode":   "exact",
		"before": "2024-03-01T00:00:00Z",
	})
	if len(page.Results) != 2 || !page.HasMore || page.NextCursor == nil {
		t.Errorf("page = %+v", page)
	}

	value := "general"
	want := query.Params{Field: "chat_name", Value: &value, Mode: "exact", Limit: 20, Before: "2024-03-01T00:00:00Z"}
	if diff := cmp.Diff(want, stub.calls[0]); diff != "" {
		t.Errorf("params mismatch (-want +got):\n%s", diff)
	}
}

func TestSearchMessagesMissingValue(t *testing.T) {
	stub := &stubSearcher{page: &query.Page{}}
	h := newHandlers(stub, Options{})

	callToolDirect(t, ToolSearchMessages, h.searchMessages, map[string]any{"field": "text"})
	if stub.calls[0].Value != nil {
		t.Error("absent value should reach the searcher as nil")
	}
}

func TestSearchMessagesErrors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantText string
	}{
		{"input error passes through", fmt.Errorf("%w: \"nope\"", search.ErrInvalidField), "invalid field"},
		{"store error is generic", fmt.Errorf("%w: %w", search.ErrStoreUnavailable, errors.New("SELECT exploded")), "store unavailable"},
		{"cancellation", context.Canceled, "did not complete"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHandlers(&stubSearcher{err: tt.err}, Options{})
			text := runToolExpectError(t, ToolSearchMessages, h.searchMessages, map[string]any{"field": "text", "value": "x"})
			if !strings.Contains(text, tt.wantText) {
				t.Errorf("error = %q, want it to contain %q", text, tt.wantText)
			}
			if strings.Contains(text, "SELECT") {
				t.Errorf("query text leaked: %q", text)
			}
		})
	}
}

func TestLimitArg(t *testing.T) {
	tests := []struct {
		name    string
		args    map[string]any
		want    int
		wantErr bool
	}{
		{"absent uses default", map[string]any{}, 20, false},
		{"null uses default", map[string]any{"limit": nil}, 20, false},
		{"normal value", map[string]any{"limit": float64(50)}, 50, false},
		{"at ceiling", map[string]any{"limit": float64(100)}, 100, false},
		{"above ceiling", map[string]any{"limit": float64(101)}, 0, true},
		{"zero", map[string]any{"limit": float64(0)}, 0, true},
		{"negative", map[string]any{"limit": float64(-5)}, 0, true},
		{"fractional", map[string]any{"limit": 2.5}, 0, true},
		{"NaN", map[string]any{"limit": math.NaN()}, 0, true},
		{"Inf", map[string]any{"limit": math.Inf(1)}, 0, true},
		{"string", map[string]any{"limit": "10"}, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := limitArg(tt.args, "limit", 20, 100)
			if (err != nil) != tt.wantErr {
				t.Fatalf("limitArg() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, search.ErrInvalidValue) {
				t.Errorf("error = %v, want ErrInvalidValue", err)
			}
			if got != tt.want {
				t.Errorf("limitArg() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestLimitAboveCeilingNeverSearches(t *testing.T) {
	stub := &stubSearcher{page: &query.Page{}}
	h := newHandlers(stub, Options{DefaultLimit: 10, MaxLimit: 50})

	runToolExpectError(t, ToolSearchMessages, h.searchMessages, map[string]any{"field": "text", "value": "x", "limit": float64(51)})
	if len(stub.calls) != 0 {
		t.Error("searcher called despite an out-of-range limit")
	}
}

func TestNewHandlersDefaults(t *testing.T) {
	h := newHandlers(nil, Options{})
	if h.opts.MaxLimit != query.DefaultMaxLimit || h.opts.DefaultLimit != 20 {
		t.Errorf("opts = %+v", h.opts)
	}
	h = newHandlers(nil, Options{DefaultLimit: 30, MaxLimit: 5})
	if h.opts.DefaultLimit != 5 {
		t.Errorf("DefaultLimit = %d, want it capped at MaxLimit", h.opts.DefaultLimit)
	}
}

func TestListFields(t *testing.T) {
	h := newHandlers(nil, Options{})

	out := runTool[struct {
		Fields  []search.Field `json:"fields"`
		Aliases []search.Alias `json:"aliases"`
	}](t, ToolListFields, h.listFields, nil)

	if diff := cmp.Diff(search.Fields(), out.Fields); diff != "" {
		t.Errorf("fields mismatch (-want +got):\n%s", diff)
	}
	if len(out.Aliases) == 0 {
		t.Error("expected aliases")
	}
}

func TestSearchMessagesAgainstStore(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	tdb := dbtest.NewTestDB(t)
	tdb.SeedMonths("Release notes", 3, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC))

	backend := query.NewSQLiteBackend(tdb.DB, "messages").WithLogger(logger)
	registry := schema.NewRegistry(backend, schema.NewTracker(backend).WithLogger(logger)).WithLogger(logger)
	h := newHandlers(query.NewSearcher(registry, backend).WithLogger(logger), Options{DefaultLimit: 4, MaxLimit: 10})

	args := map[string]any{"field": "text", "value": "RELEASE"}
	page := runTool[query.Page](t, ToolSearchMessages, h.searchMessages, args)
	if len(page.Results) != 4 || !page.HasMore || page.NextCursor == nil {
		t.Fatalf("first page = %d results, has_more %v", len(page.Results), page.HasMore)
	}

	args["before"] = *page.NextCursor
	page = runTool[query.Page](t, ToolSearchMessages, h.searchMessages, args)
	if len(page.Results) != 2 || page.HasMore {
		t.Errorf("second page = %d results, has_more %v; want 2, false", len(page.Results), page.HasMore)
	}

	text := runToolExpectError(t, ToolSearchMessages, h.searchMessages, map[string]any{"field": "channel_id", "value": "abc"})
	if !strings.Contains(text, "invalid value") {
		t.Errorf("error = %q", text)
	}
}

func TestNewServerRegistersTools(t *testing.T) {
	s := NewServer(&stubSearcher{page: &query.Page{}}, Options{DefaultLimit: 20, MaxLimit: 100})
	if s == nil {
		t.Fatal("NewServer returned nil")
	}
	tool := searchMessagesTool(Options{DefaultLimit: 20, MaxLimit: 100})
	if tool.Name != ToolSearchMessages || !strings.Contains(tool.Description, "next_cursor") {
		t.Errorf("tool = %+v", tool)
	}
}
