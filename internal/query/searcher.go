package query

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/wesm/chanvault/internal/schema"
	"github.com/wesm/chanvault/internal/search"
)

const (
	// DefaultMaxLimit is the largest page size Search accepts.
	DefaultMaxLimit = 100
	// DefaultWindowRowCap bounds the rows fetched by a single window query.
	DefaultWindowRowCap = 500
)

// WindowExecutor runs one bounded window query. Backend implements it.
type WindowExecutor interface {
	Window(ctx context.Context, m *schema.Mapping, p search.Predicate, req WindowRequest) (*WindowResult, error)
}

// Searcher pages through search results newest first, one calendar month
// window at a time, down to the earliest stored date.
type Searcher struct {
	registry *schema.Registry
	exec     WindowExecutor
	logger   *slog.Logger
	maxLimit int
	rowCap   int
	now      func() time.Time
}

// NewSearcher creates a searcher. The registry's tracker supplies the
// earliest-date boundary.
func NewSearcher(registry *schema.Registry, exec WindowExecutor) *Searcher {
	return &Searcher{
		registry: registry,
		exec:     exec,
		logger:   slog.Default(),
		maxLimit: DefaultMaxLimit,
		rowCap:   DefaultWindowRowCap,
		now:      time.Now,
	}
}

// WithLogger sets the logger for the searcher.
func (s *Searcher) WithLogger(logger *slog.Logger) *Searcher {
	s.logger = logger
	return s
}

// WithMaxLimit sets the largest accepted page size.
func (s *Searcher) WithMaxLimit(n int) *Searcher {
	if n > 0 {
		s.maxLimit = n
	}
	return s
}

// WithRowCap sets the row cap of a single window query.
func (s *Searcher) WithRowCap(n int) *Searcher {
	if n > 0 {
		s.rowCap = n
	}
	return s
}

// MaxLimit returns the largest accepted page size.
func (s *Searcher) MaxLimit() int {
	return s.maxLimit
}

// Search returns one page of rows matching p. Input errors are reported
// before any store access. A stale schema is recovered from once per call
// by forcing a registry refresh; any other store failure is wrapped in
// search.ErrStoreUnavailable.
func (s *Searcher) Search(ctx context.Context, p Params) (*Page, error) {
	start := time.Now()

	if p.Limit < 1 || p.Limit > s.maxLimit {
		return nil, fmt.Errorf("%w: limit must be between 1 and %d, got %d", search.ErrInvalidValue, s.maxLimit, p.Limit)
	}
	upper := Cursor{Time: ceilSecond(s.now().UTC())}
	if p.Before != "" {
		c, err := ParseCursor(p.Before)
		if err != nil {
			return nil, err
		}
		upper = c
	}
	pred, err := search.BuildPredicate(nil, search.Request{Field: p.Field, Value: p.Value, Mode: p.Mode})
	if err != nil {
		return nil, err
	}

	run := &searchRun{
		Searcher: s,
		mapping:  s.registry.Ensure(ctx, false),
	}
	run.pred = pred.Resolve(run.mapping)

	page := &Page{Results: []Record{}}
	run.earliest = s.registry.Earliest(ctx)
	if run.earliest == nil {
		page.Timing = time.Since(start).Seconds()
		return page, nil
	}
	if upper.Time.Before(*run.earliest) {
		upper = Cursor{Time: *run.earliest}
	}

	var acc []Row
	hasMore := false
	// Set when the page was filled by a window that had rows left over, so
	// the row after the page was never fetched.
	cut := false

walk:
	for run.earliest != nil && upper.Covers(*run.earliest) {
		lower := upper.MonthStart()
		window := upper
		for {
			want := min(p.Limit-len(acc), s.rowCap)
			res, err := run.window(ctx, WindowRequest{
				Limit: want,
				Extra: true,
				Upper: &window,
				Lower: &lower,
			})
			if err != nil {
				return nil, err
			}
			if len(res.Rows) == 0 {
				break
			}
			acc = append(acc, res.Rows...)
			last := res.Rows[len(res.Rows)-1]
			window = Cursor{Time: last.Date, Key: last.Key}
			if len(acc) >= p.Limit {
				hasMore = true
				cut = res.Exhausted
				break walk
			}
			if !res.Exhausted {
				break
			}
		}
		upper = Cursor{Time: lower}
	}

	var following *Row
	if len(acc) > p.Limit {
		following = &acc[p.Limit]
		acc = acc[:p.Limit]
	}
	for _, r := range acc {
		page.Results = append(page.Results, r.Record)
	}
	page.HasMore = hasMore
	if hasMore && len(acc) > 0 {
		next := nextCursor(acc, following, cut).String()
		page.NextCursor = &next
	}
	page.Timing = time.Since(start).Seconds()

	s.logger.Debug("search",
		"field", pred.Field,
		"mode", pred.Mode,
		"results", len(page.Results),
		"has_more", page.HasMore,
		"windows", run.windows,
		"elapsed", time.Since(start),
	)
	return page, nil
}

// searchRun is the per-call state of one Search.
type searchRun struct {
	*Searcher
	mapping   *schema.Mapping
	pred      search.Predicate
	earliest  *time.Time
	recovered bool
	windows   int
}

// window runs one window query, recovering once per search from a stale
// schema by forcing a registry refresh and retrying.
func (r *searchRun) window(ctx context.Context, req WindowRequest) (*WindowResult, error) {
	r.windows++
	res, err := r.exec.Window(ctx, r.mapping, r.pred, req)
	if err == nil {
		return res, nil
	}
	if !r.recovered && IsSchemaMismatch(err) && ctx.Err() == nil {
		r.recovered = true
		r.logger.Warn("stale schema, refreshing and retrying", "field", r.pred.Field, "error", err)
		r.mapping = r.registry.Ensure(ctx, true)
		r.pred = r.pred.Resolve(r.mapping)
		// The refresh re-read the earliest date from the new date column.
		r.earliest = r.registry.Earliest(ctx)
		r.windows++
		res, err = r.exec.Window(ctx, r.mapping, r.pred, req)
		if err == nil {
			return res, nil
		}
	}
	if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
		return nil, err
	}
	r.logger.Error("window query failed", "field", r.pred.Field, "error", err)
	return nil, fmt.Errorf("%w: %w", search.ErrStoreUnavailable, err)
}

// nextCursor returns the cursor continuing after the last row of page. It is
// compound when the following row shares the last row's date, or when cut
// reports that the following row was never fetched; a plain cursor would
// skip rows tied with the last one.
func nextCursor(page []Row, following *Row, cut bool) Cursor {
	last := page[len(page)-1]
	if following == nil && cut {
		return Cursor{Time: last.Date, Key: last.Key}
	}
	if following != nil && following.Date.Equal(last.Date) {
		return Cursor{Time: last.Date, Key: last.Key}
	}
	return Cursor{Time: last.Date}
}
