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

// Limits of a recent-ingest scan.
const (
	DefaultIngestSpan  = 5 * time.Minute
	MaxIngestSpan      = 24 * time.Hour
	DefaultIngestLimit = 1000
	MaxIngestLimit     = 10000
)

// IngestParams select messages by when they were stored. A zero Since
// means Span before now.
type IngestParams struct {
	Since time.Time
	Span  time.Duration
	Limit int
}

// IngestPage is one batch of recently ingested messages, oldest first.
type IngestPage struct {
	Results []Record `json:"results"`
	Length  int      `json:"length"`
	HasMore bool     `json:"has_more"`
	Since   string   `json:"since"`
	Until   string   `json:"until"`
}

// Reader serves single-message lookups, counts and recent-ingest scans.
// Like Searcher it recovers once per call from a stale schema.
type Reader struct {
	registry *schema.Registry
	backend  *Backend
	logger   *slog.Logger
	now      func() time.Time
}

// NewReader creates a reader over backend using registry's mapping.
func NewReader(registry *schema.Registry, backend *Backend) *Reader {
	return &Reader{
		registry: registry,
		backend:  backend,
		logger:   slog.Default(),
		now:      time.Now,
	}
}

// WithLogger sets the logger for the reader.
func (r *Reader) WithLogger(logger *slog.Logger) *Reader {
	r.logger = logger
	return r
}

// Message returns message id of chat chatID, or nil when it is not stored.
func (r *Reader) Message(ctx context.Context, chatID, id int64) (Record, error) {
	var rec Record
	err := r.withMapping(ctx, "lookup", func(m *schema.Mapping) error {
		var err error
		rec, err = r.backend.Lookup(ctx, m, chatID, id)
		return err
	})
	return rec, err
}

// Count returns the number of stored messages.
func (r *Reader) Count(ctx context.Context) (int64, error) {
	n, err := r.backend.Count(ctx)
	if err != nil {
		return 0, r.storeError(ctx, "count", err)
	}
	return n, nil
}

// Ingested returns messages stored during [Since, Since+Span].
func (r *Reader) Ingested(ctx context.Context, p IngestParams) (*IngestPage, error) {
	if p.Span == 0 {
		p.Span = DefaultIngestSpan
	}
	if p.Span < 0 || p.Span > MaxIngestSpan {
		return nil, fmt.Errorf("%w: span must be positive and at most %s", search.ErrInvalidValue, MaxIngestSpan)
	}
	if p.Limit == 0 {
		p.Limit = DefaultIngestLimit
	}
	if p.Limit < 1 || p.Limit > MaxIngestLimit {
		return nil, fmt.Errorf("%w: limit must be between 1 and %d, got %d", search.ErrInvalidValue, MaxIngestLimit, p.Limit)
	}
	since := p.Since.UTC().Truncate(time.Second)
	if p.Since.IsZero() {
		since = r.now().UTC().Add(-p.Span).Truncate(time.Second)
	}
	until := since.Add(p.Span)

	var rows []Row
	err := r.withMapping(ctx, "ingested", func(m *schema.Mapping) error {
		var err error
		rows, err = r.backend.Ingested(ctx, m, since, until, p.Limit+1)
		return err
	})
	if err != nil {
		return nil, err
	}

	page := &IngestPage{
		Results: []Record{},
		Since:   since.Format(CursorLayout),
		Until:   until.Format(CursorLayout),
	}
	if len(rows) > p.Limit {
		page.HasMore = true
		rows = rows[:p.Limit]
	}
	for _, row := range rows {
		page.Results = append(page.Results, row.Record)
	}
	page.Length = len(page.Results)
	return page, nil
}

// withMapping runs fn against the current mapping, forcing one refresh and
// retrying when the store reports an unknown column.
func (r *Reader) withMapping(ctx context.Context, op string, fn func(m *schema.Mapping) error) error {
	err := fn(r.registry.Ensure(ctx, false))
	if err != nil && IsSchemaMismatch(err) && ctx.Err() == nil {
		r.logger.Warn("stale schema, refreshing and retrying", "op", op, "error", err)
		err = fn(r.registry.Ensure(ctx, true))
	}
	if err != nil {
		return r.storeError(ctx, op, err)
	}
	return nil
}

func (r *Reader) storeError(ctx context.Context, op string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
		return err
	}
	r.logger.Error("message query failed", "op", op, "error", err)
	return fmt.Errorf("%w: %w", search.ErrStoreUnavailable, err)
}
