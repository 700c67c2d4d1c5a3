package query

import (
	"strings"
	"testing"
	"time"

	"github.com/wesm/chanvault/internal/search"
	"github.com/wesm/chanvault/internal/testutil/dbtest"
)

func mustPredicate(t *testing.T, field, value, mode string) search.Predicate {
	t.Helper()
	p, err := search.BuildPredicate(nil, search.Request{Field: field, Value: &value, Mode: mode})
	if err != nil {
		t.Fatalf("BuildPredicate: %v", err)
	}
	return p
}

func TestBackend_WindowBoundsAndExhaustion(t *testing.T) {
	env := newTestEnv(t)
	day := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)
	for h := 0; h < 5; h++ {
		env.AddMessage(dbtest.MessageOpts{Text: "w", Date: day.Add(time.Duration(h) * time.Hour)})
	}
	m := env.Registry.Ensure(env.Ctx, true)
	p := mustPredicate(t, "text", "w", "").Resolve(m)

	lower := day.Add(time.Hour)
	upper := Cursor{Time: day.Add(4 * time.Hour)}

	res, err := env.Backend.Window(env.Ctx, m, p, WindowRequest{Limit: 10, Extra: true, Upper: &upper, Lower: &lower})
	if err != nil {
		t.Fatalf("Window: %v", err)
	}
	// Hours 1, 2 and 3: lower inclusive, upper exclusive.
	if got := recordDates(rowRecords(res.Rows)); strings.Join(got, ",") != "2024-03-10T03:00:00Z,2024-03-10T02:00:00Z,2024-03-10T01:00:00Z" {
		t.Errorf("dates = %v", got)
	}
	if res.Exhausted {
		t.Error("3 of 11 requested rows should not exhaust the window")
	}

	res, err = env.Backend.Window(env.Ctx, m, p, WindowRequest{Limit: 2, Extra: true})
	if err != nil {
		t.Fatalf("Window: %v", err)
	}
	if len(res.Rows) != 3 || !res.Exhausted {
		t.Errorf("rows = %d, exhausted = %v; want 3, true", len(res.Rows), res.Exhausted)
	}
	for i := 1; i < len(res.Rows); i++ {
		if !res.Rows[i].Date.Before(res.Rows[i-1].Date) {
			t.Errorf("row %d not older than row %d", i, i-1)
		}
	}
}

func rowRecords(rows []Row) []Record {
	recs := make([]Record, len(rows))
	for i, r := range rows {
		recs[i] = r.Record
	}
	return recs
}

func TestBackend_ValuesAreBoundNotInterpolated(t *testing.T) {
	env := newTestEnv(t)
	env.AddMessage(dbtest.MessageOpts{Text: "it's fine"})
	m := env.Registry.Ensure(env.Ctx, true)

	for _, v := range []string{"'; DROP TABLE messages; --", `" OR 1=1 --`, "it's"} {
		p := mustPredicate(t, "text", v, "contains").Resolve(m)
		query, args := env.Backend.windowQuery(m, p, WindowRequest{Limit: 5})
		if strings.Contains(query, v) {
			t.Errorf("value %q leaked into query text: %s", v, query)
		}
		if args[0] != v {
			t.Errorf("first arg = %v, want %q", args[0], v)
		}
		if _, err := env.Backend.Window(env.Ctx, m, p, WindowRequest{Limit: 5}); err != nil {
			t.Errorf("Window(%q): %v", v, err)
		}
	}
	if n := env.Count(); n != 1 {
		t.Errorf("count = %d, table should be untouched", n)
	}
}

func TestBackend_EarliestDate(t *testing.T) {
	env := newTestEnv(t)

	got, err := env.Backend.EarliestDate(env.Ctx, "date")
	if err != nil || got != nil {
		t.Fatalf("empty table: %v, %v; want nil, nil", got, err)
	}

	env.AddMessages(
		dbtest.MessageOpts{Text: "b", Date: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)},
		dbtest.MessageOpts{Text: "a", Date: time.Date(2023, 7, 9, 6, 5, 4, 0, time.UTC)},
	)
	got, err = env.Backend.EarliestDate(env.Ctx, "date")
	if err != nil {
		t.Fatalf("EarliestDate: %v", err)
	}
	if want := time.Date(2023, 7, 9, 6, 5, 4, 0, time.UTC); got == nil || !got.Equal(want) {
		t.Errorf("earliest = %v, want %v", got, want)
	}

	if _, err := env.Backend.EarliestDate(env.Ctx, "nope"); !IsSchemaMismatch(err) {
		t.Errorf("unknown column error = %v, want a schema mismatch", err)
	}
}

func TestBackend_MissingColumnsProjectAsNull(t *testing.T) {
	env := newTestEnv(t)
	env.AddMessage(dbtest.MessageOpts{Text: "x", Lang: "en"})
	env.RenameColumn("lang", "language_code")

	m := env.Registry.Ensure(env.Ctx, true)
	if !strings.Contains(m.SelectList, "NULL") {
		t.Errorf("select list should project the missing lang column as NULL: %s", m.SelectList)
	}

	page := env.MustSearch(textParams("x", 5))
	if len(page.Results) != 1 {
		t.Fatalf("results = %d, want 1", len(page.Results))
	}
	rec := page.Results[0]
	if v, ok := rec["lang"]; !ok || v != nil {
		t.Errorf("lang = %v (present %v), want null", v, ok)
	}
	if rec["text"] != "x" {
		t.Errorf("text = %v", rec["text"])
	}
}

func TestBackend_CustomTable(t *testing.T) {
	tdb := dbtest.NewTestDBWithTable(t, "archive")
	tdb.AddMessage(dbtest.MessageOpts{Text: "custom"})

	b := NewSQLiteBackend(tdb.DB, "archive").WithLogger(discardLogger())
	cols, err := b.Columns(t.Context())
	if err != nil {
		t.Fatalf("Columns: %v", err)
	}
	if len(cols) == 0 {
		t.Fatal("expected columns for the custom table")
	}
	if b.Name() != "sqlite" {
		t.Errorf("Name() = %q", b.Name())
	}
}
