// Package schema tracks the physical layout of the message table. Column
// names of the time fields can change across deployments, so the registry
// discovers them at runtime and hands out immutable snapshots.
package schema

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/wesm/chanvault/internal/search"
	"golang.org/x/sync/singleflight"
)

// DefaultRefreshInterval is the minimum time between two unforced refreshes.
const DefaultRefreshInterval = 60 * time.Second

// DefaultRefreshTimeout bounds one shared refresh.
const DefaultRefreshTimeout = 30 * time.Second

const refreshKey = "refresh"

// Fallback physical names for the time columns, used when the canonical
// logical name is not present in the table.
const (
	FallbackDateColumn       = "msg_date"
	FallbackInsertDateColumn = "inserted_at"
)

// Source is the backing store as seen by the registry.
type Source interface {
	// Columns lists the physical column names of the message table.
	Columns(ctx context.Context) ([]string, error)
	// EarliestDate returns the minimum value of dateColumn, or nil when the
	// table is empty.
	EarliestDate(ctx context.Context, dateColumn string) (*time.Time, error)
	// Project renders the select list for the given projection.
	Project(cols []Projection) string
}

// Projection is one output column of a search result.
type Projection struct {
	Field   string // logical name
	Column  string // physical column
	Date    bool   // render as a UTC timestamp string
	Missing bool   // column absent from the table; render as NULL
}

// Registry owns the current Mapping snapshot and refreshes it on demand.
// It is safe for concurrent use; readers never block on a refresh.
type Registry struct {
	source   Source
	tracker  *Tracker
	interval time.Duration
	timeout  time.Duration
	logger   *slog.Logger
	now      func() time.Time

	current    atomic.Pointer[Mapping]
	group      singleflight.Group
	refreshing atomic.Bool // an interval-driven refresh is running
}

// NewRegistry creates a registry for source. The tracker, if non-nil, is
// refreshed whenever the mapping is rebuilt.
func NewRegistry(source Source, tracker *Tracker) *Registry {
	return &Registry{
		source:   source,
		tracker:  tracker,
		interval: DefaultRefreshInterval,
		timeout:  DefaultRefreshTimeout,
		logger:   slog.Default(),
		now:      time.Now,
	}
}

// WithLogger sets the logger for the registry.
func (r *Registry) WithLogger(logger *slog.Logger) *Registry {
	r.logger = logger
	return r
}

// WithInterval sets the minimum interval between unforced refreshes.
func (r *Registry) WithInterval(d time.Duration) *Registry {
	if d > 0 {
		r.interval = d
	}
	return r
}

// WithTimeout bounds the store calls of one refresh.
func (r *Registry) WithTimeout(d time.Duration) *Registry {
	if d > 0 {
		r.timeout = d
	}
	return r
}

// Tracker returns the earliest-date tracker fed by this registry.
func (r *Registry) Tracker() *Tracker {
	return r.tracker
}

// Earliest returns the cached earliest message date, or nil when there is
// no tracker or the store is empty.
func (r *Registry) Earliest(ctx context.Context) *time.Time {
	if r.tracker == nil {
		return nil
	}
	return r.tracker.Get(ctx)
}

// Mapping returns the current snapshot, or nil if none was built yet.
func (r *Registry) Mapping() *Mapping {
	return r.current.Load()
}

// Ensure returns a current mapping. A forced call, or one made before any
// mapping exists, waits for a refresh. Once the refresh interval has
// elapsed, a single caller refreshes while every other caller keeps getting
// the cached snapshot.
func (r *Registry) Ensure(ctx context.Context, force bool) *Mapping {
	m := r.current.Load()
	if force || m == nil {
		return r.Refresh(ctx)
	}
	if r.now().Sub(m.BuiltAt) < r.interval {
		return m
	}
	if !r.refreshing.CompareAndSwap(false, true) {
		return m
	}
	defer r.refreshing.Store(false)
	return r.Refresh(ctx)
}

// Refresh rebuilds the mapping from the store and installs it. Concurrent
// callers share a single in-flight rebuild, which runs detached from any
// one caller's cancellation and is bounded by the registry timeout. A
// caller whose ctx ends first gets the cached snapshot, or an uninstalled
// mapping of logical names when there is none.
//
// Introspection failures are logged and produce a mapping that uses
// logical names literally.
func (r *Registry) Refresh(ctx context.Context) *Mapping {
	ch := r.group.DoChan(refreshKey, func() (any, error) {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
		defer cancel()
		return r.refresh(rctx), nil
	})
	select {
	case res := <-ch:
		return res.Val.(*Mapping)
	case <-ctx.Done():
		if m := r.current.Load(); m != nil {
			return m
		}
		return r.build(nil)
	}
}

func (r *Registry) refresh(ctx context.Context) *Mapping {
	cols, err := r.source.Columns(ctx)
	if err != nil && ctx.Err() != nil {
		// Timed out: the store said nothing about its columns.
		r.logger.Warn("schema introspection timed out", "timeout", r.timeout, "error", err)
		if prev := r.current.Load(); prev != nil {
			return prev
		}
		return r.build(nil)
	}
	if err != nil {
		r.logger.Warn("schema introspection failed, using logical column names", "error", err)
		cols = nil
	}

	m := r.build(cols)
	r.current.Store(m)

	r.logger.Info("schema refreshed",
		"columns", len(cols),
		"date_column", m.DateColumn,
		"insert_date_column", m.InsertDateColumn,
	)

	if r.tracker != nil {
		r.tracker.Refresh(ctx, m.DateColumn)
	}
	return m
}

func (r *Registry) build(cols []string) *Mapping {
	m := newMapping(cols, r.now())
	m.SelectList = r.source.Project(m.Projection)
	return m
}

// Mapping is an immutable snapshot of the physical table layout.
type Mapping struct {
	DateColumn       string
	InsertDateColumn string
	Projection       []Projection
	SelectList       string
	BuiltAt          time.Time

	columns map[string]bool
	aliases map[string]string
}

func newMapping(cols []string, builtAt time.Time) *Mapping {
	m := &Mapping{
		BuiltAt: builtAt,
		columns: make(map[string]bool, len(cols)),
		aliases: make(map[string]string),
	}
	for _, c := range cols {
		m.columns[c] = true
	}

	m.DateColumn = m.pick(search.FieldDate, FallbackDateColumn)
	m.InsertDateColumn = m.pick(search.FieldInsertDate, FallbackInsertDateColumn)

	for _, f := range search.Fields() {
		physical := f.Name
		switch f.Name {
		case search.FieldDate:
			physical = m.DateColumn
		case search.FieldInsertDate:
			physical = m.InsertDateColumn
		}
		m.aliases[f.Name] = physical
		m.Projection = append(m.Projection, Projection{
			Field:   f.Name,
			Column:  physical,
			Date:    f.Date,
			Missing: !m.Has(physical),
		})
	}
	for _, a := range search.Aliases() {
		m.aliases[a.Name] = m.aliases[a.Target]
	}
	return m
}

// pick prefers the canonical name, then the fallback, then the canonical
// name again when neither is present.
func (m *Mapping) pick(canonical, fallback string) string {
	if m.columns[canonical] {
		return canonical
	}
	if m.columns[fallback] {
		return fallback
	}
	return canonical
}

// Resolve maps a logical field or alias to its physical column.
func (m *Mapping) Resolve(name string) (string, bool) {
	col, ok := m.aliases[name]
	return col, ok
}

// Has reports whether col exists in the table. With an empty column set
// (introspection failed) every column is assumed to exist.
func (m *Mapping) Has(col string) bool {
	if len(m.columns) == 0 {
		return true
	}
	return m.columns[col]
}

// Columns returns the known physical columns in no particular order.
func (m *Mapping) Columns() []string {
	out := make([]string, 0, len(m.columns))
	for c := range m.columns {
		out = append(out, c)
	}
	return out
}
