// Package store provides SQLite access to the chanvault message archive.
package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// DriverName is the database/sql driver registered by this package. It is
// the stock sqlite3 driver plus the icontains() SQL function.
const DriverName = "sqlite3_chanvault"

// DefaultTable is the message table name used when none is configured.
const DefaultTable = "messages"

const defaultSQLiteParams = "?_journal_mode=WAL&_busy_timeout=5000"

func init() {
	sql.Register(DriverName, &sqlite3.SQLiteDriver{
		ConnectHook: func(conn *sqlite3.SQLiteConn) error {
			return conn.RegisterFunc("icontains", icontains, true)
		},
	})
}

// Store provides database operations for chanvault.
type Store struct {
	db     *sql.DB
	dbPath string
	table  string
}

// isSQLiteError checks if err is a sqlite3.Error with a message containing substr.
// Handles both value (sqlite3.Error) and pointer (*sqlite3.Error) forms.
func isSQLiteError(err error, substr string) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return strings.Contains(sqliteErr.Error(), substr)
	}
	var sqliteErrPtr *sqlite3.Error
	if errors.As(err, &sqliteErrPtr) && sqliteErrPtr != nil {
		return strings.Contains(sqliteErrPtr.Error(), substr)
	}
	return false
}

// IsNoSuchColumn reports whether err is SQLite rejecting a statement that
// references a column the table does not have.
func IsNoSuchColumn(err error) bool {
	return isSQLiteError(err, "no such column")
}

// Open opens or creates the database at the given path. An empty table
// selects DefaultTable.
func Open(dbPath, table string) (*Store, error) {
	if strings.HasPrefix(dbPath, "postgresql://") || strings.HasPrefix(dbPath, "postgres://") {
		return nil, fmt.Errorf("PostgreSQL is not supported; use a SQLite path instead")
	}
	if table == "" {
		table = DefaultTable
	}

	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open(DriverName, dbPath+defaultSQLiteParams)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Store{
		db:     db,
		dbPath: dbPath,
		table:  table,
	}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying database connection for advanced queries.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Table returns the message table name.
func (s *Store) Table() string {
	return s.table
}

// QuoteIdent quotes an SQL identifier.
func QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

var indexPlaceholder = regexp.MustCompile(`\{\{index:(\w+)\}\}`)

// InitSchema creates the message table and its indexes if they don't exist.
func (s *Store) InitSchema() error {
	ddl := indexPlaceholder.ReplaceAllStringFunc(schemaSQL, func(m string) string {
		name := indexPlaceholder.FindStringSubmatch(m)[1]
		return QuoteIdent(s.table + "_" + name + "_idx")
	})
	ddl = strings.ReplaceAll(ddl, "{{table}}", QuoteIdent(s.table))

	if _, err := s.db.Exec(ddl); err != nil {
		return fmt.Errorf("execute schema.sql: %w", err)
	}
	return nil
}

// withTx executes fn within a database transaction. If fn returns an error,
// the transaction is rolled back; otherwise it is committed.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// insertInChunks executes a multi-value INSERT in chunks to stay within SQLite's
// parameter limit (999). The valuesPerRow specifies how many parameters are in
// each VALUES tuple. The valueBuilder function generates the VALUES
// placeholders and args for each chunk of indices.
func insertInChunks(ctx context.Context, tx *sql.Tx, totalRows int, valuesPerRow int, queryPrefix string, valueBuilder func(start, end int) ([]string, []interface{})) error {
	// SQLite default SQLITE_MAX_VARIABLE_NUMBER is 999
	const maxParams = 900
	chunkSize := maxParams / valuesPerRow
	if chunkSize < 1 {
		chunkSize = 1
	}

	for i := 0; i < totalRows; i += chunkSize {
		end := i + chunkSize
		if end > totalRows {
			end = totalRows
		}

		values, args := valueBuilder(i, end)
		query := queryPrefix + strings.Join(values, ",")
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return err
		}
	}
	return nil
}

// TableColumns lists the column names of table using PRAGMA table_info.
// A missing table yields an empty list.
func TableColumns(ctx context.Context, db *sql.DB, table string) ([]string, error) {
	rows, err := db.QueryContext(ctx, "SELECT name FROM pragma_table_info(?)", table)
	if err != nil {
		return nil, fmt.Errorf("table info %s: %w", table, err)
	}
	defer rows.Close()

	var cols []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan column: %w", err)
		}
		cols = append(cols, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate columns: %w", err)
	}
	return cols, nil
}

// Columns lists the physical columns of the message table.
func (s *Store) Columns(ctx context.Context) ([]string, error) {
	return TableColumns(ctx, s.db, s.table)
}

// Stats holds database statistics.
type Stats struct {
	MessageCount int64
	ChatCount    int64
	DatabaseSize int64
}

// GetStats returns statistics about the database.
func (s *Store) GetStats() (*Stats, error) {
	stats := &Stats{}
	table := QuoteIdent(s.table)

	queries := []struct {
		query string
		dest  *int64
	}{
		{"SELECT COUNT(*) FROM " + table, &stats.MessageCount},
		{"SELECT COUNT(DISTINCT chat_id) FROM " + table, &stats.ChatCount},
	}

	for _, q := range queries {
		if err := s.db.QueryRow(q.query).Scan(q.dest); err != nil {
			if isSQLiteError(err, "no such table") || IsNoSuchColumn(err) {
				continue
			}
			return nil, fmt.Errorf("get stats %q: %w", q.query, err)
		}
	}

	if info, err := os.Stat(s.dbPath); err == nil {
		stats.DatabaseSize = info.Size()
	}

	return stats, nil
}
