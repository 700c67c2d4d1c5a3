package query

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/wesm/chanvault/internal/schema"
	"github.com/wesm/chanvault/internal/search"
	"github.com/wesm/chanvault/internal/testutil/dbtest"
)

// testNow is "now" for every searcher built by newTestEnv.
var testNow = time.Date(2024, 4, 15, 9, 30, 0, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func month(year int, m time.Month) time.Time {
	return time.Date(year, m, 1, 0, 0, 0, 0, time.UTC)
}

// testEnv wires a SQLite store, backend, registry and searcher together.
type testEnv struct {
	*dbtest.TestDB
	Backend  *Backend
	Registry *schema.Registry
	Searcher *Searcher
	Reader   *Reader
	Ctx      context.Context
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	tdb := dbtest.NewTestDB(t)
	backend := NewSQLiteBackend(tdb.DB, tdb.Store.Table()).WithLogger(discardLogger())
	env := &testEnv{
		TestDB:  tdb,
		Backend: backend,
		Ctx:     context.Background(),
	}
	env.useExecutor(backend)
	return env
}

// useExecutor rebuilds the registry, searcher and reader around exec.
func (e *testEnv) useExecutor(exec WindowExecutor) {
	tracker := schema.NewTracker(e.Backend).WithLogger(discardLogger())
	e.Registry = schema.NewRegistry(e.Backend, tracker).WithLogger(discardLogger())
	e.Searcher = NewSearcher(e.Registry, exec).WithLogger(discardLogger())
	e.Searcher.now = func() time.Time { return testNow }
	e.Reader = NewReader(e.Registry, e.Backend).WithLogger(discardLogger())
	e.Reader.now = func() time.Time { return testNow }
}

// MustSearch runs a search and fails the test on error.
func (e *testEnv) MustSearch(p Params) *Page {
	e.T.Helper()
	page, err := e.Searcher.Search(e.Ctx, p)
	if err != nil {
		e.T.Fatalf("Search(%+v): %v", p, err)
	}
	return page
}

// collectAll follows next_cursor from the first page until has_more is
// false and returns every record in order.
func (e *testEnv) collectAll(p Params) ([]Record, int) {
	e.T.Helper()
	var all []Record
	pages := 0
	for {
		page := e.MustSearch(p)
		pages++
		all = append(all, page.Results...)
		if !page.HasMore {
			return all, pages
		}
		if page.NextCursor == nil {
			e.T.Fatal("has_more without next_cursor")
		}
		p.Before = *page.NextCursor
		if pages > 100 {
			e.T.Fatal("pagination did not terminate")
		}
	}
}

func textParams(value string, limit int) Params {
	return Params{Field: "text", Value: &value, Limit: limit}
}

func recordIDs(recs []Record) []int64 {
	ids := make([]int64, len(recs))
	for i, r := range recs {
		ids[i], _ = r["id"].(int64)
	}
	return ids
}

func recordDates(recs []Record) []string {
	dates := make([]string, len(recs))
	for i, r := range recs {
		dates[i], _ = r["date"].(string)
	}
	return dates
}

// funcExecutor adapts a function to WindowExecutor.
type funcExecutor func(ctx context.Context, m *schema.Mapping, p search.Predicate, req WindowRequest) (*WindowResult, error)

func (f funcExecutor) Window(ctx context.Context, m *schema.Mapping, p search.Predicate, req WindowRequest) (*WindowResult, error) {
	return f(ctx, m, p, req)
}
