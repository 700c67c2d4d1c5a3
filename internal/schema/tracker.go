package schema

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/wesm/chanvault/internal/search"
)

// Tracker caches the earliest message date, the lower bound of every
// backward pagination walk.
type Tracker struct {
	source Source
	logger *slog.Logger

	column   atomic.Pointer[string]
	earliest atomic.Pointer[time.Time]
}

// NewTracker creates a tracker reading from source.
func NewTracker(source Source) *Tracker {
	return &Tracker{source: source, logger: slog.Default()}
}

// WithLogger sets the logger for the tracker.
func (t *Tracker) WithLogger(logger *slog.Logger) *Tracker {
	t.logger = logger
	return t
}

// Refresh queries the minimum value of dateColumn and caches it. Failures
// and empty tables clear the cache.
func (t *Tracker) Refresh(ctx context.Context, dateColumn string) *time.Time {
	if dateColumn == "" {
		dateColumn = search.FieldDate
	}
	t.column.Store(&dateColumn)

	earliest, err := t.source.EarliestDate(ctx, dateColumn)
	if err != nil {
		t.logger.Warn("earliest date lookup failed", "column", dateColumn, "error", err)
		earliest = nil
	}
	t.earliest.Store(earliest)
	return earliest
}

// Get returns the cached earliest date, refreshing once when nothing is
// cached. A nil result means the store is empty or unreachable.
func (t *Tracker) Get(ctx context.Context) *time.Time {
	if v := t.earliest.Load(); v != nil {
		return v
	}
	col := search.FieldDate
	if c := t.column.Load(); c != nil {
		col = *c
	}
	return t.Refresh(ctx, col)
}
