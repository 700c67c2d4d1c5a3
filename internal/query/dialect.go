package query

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/wesm/chanvault/internal/search"
	"github.com/wesm/chanvault/internal/store"
)

// dialect renders the backend-specific parts of a window query. Every
// caller-supplied value is bound as a parameter; only identifiers from the
// schema mapping are written into the query text.
type dialect interface {
	name() string
	quote(ident string) string
	columns(ctx context.Context, db *sql.DB, table string) ([]string, error)
	tableRef(table string) string
	// keyColumn is the tie-breaking row key, ordered together with the date.
	keyColumn() string
	formatDate(expr string) string
	// bound is the placeholder expression for a timestamp parameter.
	bound() string
	// keyParam is the placeholder expression for a row key parameter.
	keyParam() string
	// condition renders p with exactly one placeholder for p.Value().
	condition(p search.Predicate) string
}

const dateFormat = "%Y-%m-%dT%H:%M:%SZ"

// sqliteDialect targets the store's own SQLite database.
type sqliteDialect struct{}

func (sqliteDialect) name() string { return "sqlite" }

// quote uses backticks: SQLite reads a double-quoted name that matches no
// column as a string literal, which would hide a renamed column.
func (sqliteDialect) quote(ident string) string {
	return "`" + strings.ReplaceAll(ident, "`", "``") + "`"
}

func (sqliteDialect) columns(ctx context.Context, db *sql.DB, table string) ([]string, error) {
	return store.TableColumns(ctx, db, table)
}

func (d sqliteDialect) tableRef(table string) string { return d.quote(table) }

func (sqliteDialect) keyColumn() string { return "rowid" }

func (sqliteDialect) formatDate(expr string) string {
	return fmt.Sprintf("strftime('%s', %s)", dateFormat, expr)
}

func (sqliteDialect) bound() string { return "?" }

func (sqliteDialect) keyParam() string { return "?" }

func (d sqliteDialect) condition(p search.Predicate) string {
	col := d.quote(p.Column)
	if p.Multivalued {
		list := fmt.Sprintf("CASE WHEN json_valid(%s) THEN %s ELSE '[]' END", col, col)
		return fmt.Sprintf("EXISTS (SELECT 1 FROM json_each(%s) AS je WHERE %s)", list, d.compare("je.value", p))
	}
	return d.compare(col, p)
}

func (sqliteDialect) compare(expr string, p search.Predicate) string {
	if p.Numeric {
		return expr + " = ?"
	}
	text := "CAST(" + expr + " AS TEXT)"
	switch p.Mode {
	case search.ModeExact:
		return text + " = ?"
	case search.ModeContains:
		return "instr(" + text + ", ?) > 0"
	default:
		// Registered by the store driver; folds Unicode case.
		return "icontains(" + expr + ", ?)"
	}
}

// duckDBDialect reads the message table through DuckDB, either natively or
// from the SQLite file attached under a catalog name.
type duckDBDialect struct {
	catalog string
}

func (duckDBDialect) name() string { return "duckdb" }

func (duckDBDialect) quote(ident string) string { return store.QuoteIdent(ident) }

func (d duckDBDialect) columns(ctx context.Context, db *sql.DB, table string) ([]string, error) {
	query := `SELECT column_name FROM information_schema.columns WHERE table_name = ?`
	args := []any{table}
	if d.catalog != "" {
		query += ` AND table_catalog = ?`
		args = append(args, d.catalog)
	}
	query += ` ORDER BY ordinal_position`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("describe %s: %w", table, err)
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
	return cols, rows.Err()
}

func (d duckDBDialect) tableRef(table string) string {
	if d.catalog == "" {
		return store.QuoteIdent(table)
	}
	return store.QuoteIdent(d.catalog) + "." + store.QuoteIdent(table)
}

// The sqlite scanner does not expose rowid, so DuckDB relies on the
// explicit seq column.
func (duckDBDialect) keyColumn() string { return "seq" }

func (duckDBDialect) formatDate(expr string) string {
	return fmt.Sprintf("strftime(CAST(%s AS TIMESTAMP), '%s')", expr, dateFormat)
}

func (duckDBDialect) bound() string { return "CAST(? AS TIMESTAMP)" }

func (duckDBDialect) keyParam() string { return "CAST(? AS BIGINT)" }

func (d duckDBDialect) condition(p search.Predicate) string {
	col := store.QuoteIdent(p.Column)
	if p.Multivalued {
		list := fmt.Sprintf(`from_json(COALESCE(CAST(%s AS VARCHAR), '[]'), '["VARCHAR"]')`, col)
		return fmt.Sprintf("EXISTS (SELECT 1 FROM (SELECT unnest(%s) AS v) AS je WHERE %s)", list, d.compare("je.v", p))
	}
	return d.compare(col, p)
}

func (duckDBDialect) compare(expr string, p search.Predicate) string {
	// DuckDB cannot always infer parameter types inside function calls.
	if p.Numeric {
		return expr + " = CAST(? AS BIGINT)"
	}
	text := "CAST(" + expr + " AS VARCHAR)"
	switch p.Mode {
	case search.ModeExact:
		return text + " = CAST(? AS VARCHAR)"
	case search.ModeContains:
		return "contains(" + text + ", CAST(? AS VARCHAR))"
	default:
		return "contains(lower(" + text + "), lower(CAST(? AS VARCHAR)))"
	}
}
