package query

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"runtime"
	"strings"
	"time"

	_ "github.com/marcboeker/go-duckdb"
	"github.com/wesm/chanvault/internal/schema"
	"github.com/wesm/chanvault/internal/search"
	"github.com/wesm/chanvault/internal/store"
)

// DefaultQueryTimeout bounds a single window or metadata query.
const DefaultQueryTimeout = 30 * time.Second

// DuckDBCatalog is the name the SQLite database is attached under.
const DuckDBCatalog = "sqlite_db"

// Backend runs bounded queries against the message table. It implements
// schema.Source and is the window executor used by Searcher.
type Backend struct {
	db      *sql.DB
	table   string
	dialect dialect
	timeout time.Duration
	logger  *slog.Logger
	closeDB bool
}

// NewSQLiteBackend queries table through db, which must be opened with the
// store driver so icontains() is available.
func NewSQLiteBackend(db *sql.DB, table string) *Backend {
	return newBackend(db, table, sqliteDialect{})
}

// NewDuckDBBackend queries table through an existing DuckDB connection. An
// empty catalog addresses a native DuckDB table.
func NewDuckDBBackend(db *sql.DB, catalog, table string) *Backend {
	return newBackend(db, table, duckDBDialect{catalog: catalog})
}

func newBackend(db *sql.DB, table string, d dialect) *Backend {
	if table == "" {
		table = store.DefaultTable
	}
	return &Backend{
		db:      db,
		table:   table,
		dialect: d,
		timeout: DefaultQueryTimeout,
		logger:  slog.Default(),
	}
}

// OpenDuckDB opens an in-memory DuckDB instance with the SQLite database at
// sqlitePath attached read-only, and returns a backend over its table.
// Close releases the DuckDB instance.
func OpenDuckDB(sqlitePath, table string) (*Backend, error) {
	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}

	// Session settings and ATTACH are per connection.
	db.SetMaxOpenConns(1)

	threads := runtime.GOMAXPROCS(0)
	if _, err := db.Exec(fmt.Sprintf("SET threads = %d", threads)); err != nil {
		db.Close()
		return nil, fmt.Errorf("set threads: %w", err)
	}
	if _, err := db.Exec("INSTALL sqlite; LOAD sqlite;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("load sqlite extension: %w", err)
	}

	// Escape single quotes in path to prevent SQL injection
	escapedPath := strings.ReplaceAll(sqlitePath, "'", "''")
	attachSQL := fmt.Sprintf("ATTACH '%s' AS %s (TYPE sqlite, READ_ONLY)", escapedPath, DuckDBCatalog)
	if _, err := db.Exec(attachSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("attach sqlite database: %w", err)
	}

	b := NewDuckDBBackend(db, DuckDBCatalog, table)
	b.closeDB = true
	return b, nil
}

// WithLogger sets the logger for the backend.
func (b *Backend) WithLogger(logger *slog.Logger) *Backend {
	b.logger = logger
	return b
}

// WithTimeout sets the per-query timeout. Non-positive values are ignored.
func (b *Backend) WithTimeout(d time.Duration) *Backend {
	if d > 0 {
		b.timeout = d
	}
	return b
}

// Name returns the dialect name ("sqlite" or "duckdb").
func (b *Backend) Name() string {
	return b.dialect.name()
}

// Close releases the connection if the backend opened it.
func (b *Backend) Close() error {
	if b.closeDB {
		return b.db.Close()
	}
	return nil
}

// Columns implements schema.Source.
func (b *Backend) Columns(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()
	return b.dialect.columns(ctx, b.db, b.table)
}

// EarliestDate implements schema.Source.
func (b *Backend) EarliestDate(ctx context.Context, dateColumn string) (*time.Time, error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	query := fmt.Sprintf("SELECT %s FROM %s",
		b.dialect.formatDate("MIN("+b.dialect.quote(dateColumn)+")"),
		b.dialect.tableRef(b.table))

	var v sql.NullString
	if err := b.db.QueryRowContext(ctx, query).Scan(&v); err != nil {
		return nil, fmt.Errorf("earliest %s: %w", dateColumn, err)
	}
	if !v.Valid || v.String == "" {
		return nil, nil
	}
	t, err := store.ParseTimestamp(v.String)
	if err != nil {
		return nil, fmt.Errorf("earliest %s: %w", dateColumn, err)
	}
	return &t, nil
}

// Project implements schema.Source.
func (b *Backend) Project(cols []schema.Projection) string {
	parts := make([]string, len(cols))
	for i, c := range cols {
		switch {
		case c.Missing:
			parts[i] = "NULL"
		case c.Date:
			parts[i] = b.dialect.formatDate(b.dialect.quote(c.Column))
		default:
			parts[i] = b.dialect.quote(c.Column)
		}
	}
	return strings.Join(parts, ", ")
}

// windowQuery builds the SQL and arguments for one window.
func (b *Backend) windowQuery(m *schema.Mapping, p search.Predicate, req WindowRequest) (string, []any) {
	date := b.dialect.quote(m.DateColumn)
	key := b.dialect.keyColumn()
	bound := b.dialect.bound()
	keyParam := b.dialect.keyParam()

	conds := []string{b.dialect.condition(p)}
	args := []any{p.Value()}

	if req.Upper != nil {
		upper := store.FormatTime(req.Upper.Time)
		conds = append(conds, fmt.Sprintf("(%s < %s OR (%s = %s AND %s < %s))", date, bound, date, bound, key, keyParam))
		args = append(args, upper, upper, req.Upper.Key)
	}
	if req.Lower != nil {
		conds = append(conds, fmt.Sprintf("%s >= %s", date, bound))
		args = append(args, store.FormatTime(*req.Lower))
	}

	query := fmt.Sprintf("SELECT %s, %s FROM %s WHERE %s ORDER BY %s DESC, %s DESC LIMIT %d",
		m.SelectList, key,
		b.dialect.tableRef(b.table),
		strings.Join(conds, " AND "),
		date, key,
		req.Requested(),
	)
	return query, args
}

// Window runs one bounded query: rows matching p with date in
// [Lower, Upper), newest first. It does not retry; schema errors are left
// for the caller to classify with IsSchemaMismatch.
func (b *Backend) Window(ctx context.Context, m *schema.Mapping, p search.Predicate, req WindowRequest) (*WindowResult, error) {
	if req.Limit <= 0 {
		return &WindowResult{}, nil
	}
	start := time.Now()

	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	query, args := b.windowQuery(m, p, req)
	out, err := b.queryRows(ctx, m, query, args...)
	if err != nil {
		return nil, fmt.Errorf("window query: %w", err)
	}

	res := &WindowResult{
		Rows:      out,
		Exhausted: len(out) == req.Requested(),
		Elapsed:   time.Since(start),
	}
	b.logger.Debug("window",
		"backend", b.dialect.name(),
		"field", p.Field,
		"rows", len(out),
		"exhausted", res.Exhausted,
		"elapsed", res.Elapsed,
	)
	return res, nil
}

// queryRows runs a query selecting m.SelectList followed by the row key.
func (b *Backend) queryRows(ctx context.Context, m *schema.Mapping, query string, args ...any) ([]Row, error) {
	rows, err := b.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	width := len(m.Projection) + 1
	var out []Row
	for rows.Next() {
		values := make([]any, width)
		ptrs := make([]any, width)
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		row, err := b.toRow(m, values)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (b *Backend) toRow(m *schema.Mapping, values []any) (Row, error) {
	rec := make(Record, len(m.Projection))
	for i, proj := range m.Projection {
		rec[proj.Field] = normalizeValue(values[i], isMultivalued(proj.Field))
	}

	s, _ := rec[search.FieldDate].(string)
	date, err := store.ParseTimestamp(s)
	if err != nil {
		return Row{}, fmt.Errorf("row date: %w", err)
	}
	key, ok := asInt64(values[len(values)-1])
	if !ok {
		return Row{}, fmt.Errorf("row key: unexpected %T", values[len(values)-1])
	}
	return Row{Record: rec, Date: date, Key: key}, nil
}

func isMultivalued(field string) bool {
	f, _, ok := search.LookupField(field)
	return ok && f.Multivalued
}

// normalizeValue converts driver values to JSON-friendly ones. JSON list
// columns are decoded; text that is not a JSON list is kept as is.
func normalizeValue(v any, multivalued bool) any {
	switch t := v.(type) {
	case []byte:
		v = string(t)
	case time.Time:
		return t.UTC().Format(CursorLayout)
	}
	if s, ok := v.(string); ok && multivalued {
		var list []string
		if err := json.Unmarshal([]byte(s), &list); err == nil {
			if list == nil {
				list = []string{}
			}
			return list
		}
	}
	return v
}

func asInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int32:
		return int64(n), true
	case int:
		return int64(n), true
	case uint64:
		return int64(n), true
	case uint32:
		return int64(n), true
	}
	return 0, false
}
