package query

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/wesm/chanvault/internal/schema"
	"github.com/wesm/chanvault/internal/store"
)

// Lookup returns message id of chat chatID, or nil when it is not stored.
func (b *Backend) Lookup(ctx context.Context, m *schema.Mapping, chatID, id int64) (Record, error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	param := b.dialect.keyParam()
	query := fmt.Sprintf("SELECT %s, %s FROM %s WHERE %s = %s AND %s = %s LIMIT 1",
		m.SelectList, b.dialect.keyColumn(),
		b.dialect.tableRef(b.table),
		b.column(m, "id"), param,
		b.column(m, "chat_id"), param,
	)
	rows, err := b.queryRows(ctx, m, query, id, chatID)
	if err != nil {
		return nil, fmt.Errorf("lookup message: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0].Record, nil
}

// Count returns the number of stored messages.
func (b *Backend) Count(ctx context.Context) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	var n int64
	query := "SELECT COUNT(*) FROM " + b.dialect.tableRef(b.table)
	if err := b.db.QueryRowContext(ctx, query).Scan(&n); err != nil {
		return 0, fmt.Errorf("count messages: %w", err)
	}
	return n, nil
}

// Ingested returns up to limit messages whose insert date lies in
// [since, until], oldest ingestion first. Messages with neither text nor a
// document are skipped.
func (b *Backend) Ingested(ctx context.Context, m *schema.Mapping, since, until time.Time, limit int) ([]Row, error) {
	if limit <= 0 {
		return nil, nil
	}
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	inserted := b.dialect.quote(m.InsertDateColumn)
	key := b.dialect.keyColumn()
	bound := b.dialect.bound()
	conds := []string{
		fmt.Sprintf("%s >= %s", inserted, bound),
		fmt.Sprintf("%s <= %s", inserted, bound),
	}
	if content := b.contentCondition(m); content != "" {
		conds = append(conds, content)
	}
	query := fmt.Sprintf("SELECT %s, %s FROM %s WHERE %s ORDER BY %s, %s LIMIT %d",
		m.SelectList, key,
		b.dialect.tableRef(b.table),
		strings.Join(conds, " AND "),
		inserted, key,
		limit,
	)
	rows, err := b.queryRows(ctx, m, query, store.FormatTime(since), store.FormatTime(until))
	if err != nil {
		return nil, fmt.Errorf("ingested messages: %w", err)
	}
	return rows, nil
}

// contentCondition keeps rows with text or an attached document. Columns
// the table lacks are left out; with neither the condition is empty.
func (b *Backend) contentCondition(m *schema.Mapping) string {
	var alts []string
	if col, ok := m.Resolve("document_present"); ok && m.Has(col) {
		alts = append(alts, b.dialect.quote(col)+" = 1")
	}
	if col, ok := m.Resolve("text"); ok && m.Has(col) {
		alts = append(alts, b.dialect.quote(col)+" <> ''")
	}
	if len(alts) == 0 {
		return ""
	}
	return "(" + strings.Join(alts, " OR ") + ")"
}

// column quotes the physical column behind a logical field.
func (b *Backend) column(m *schema.Mapping, field string) string {
	col, ok := m.Resolve(field)
	if !ok {
		col = field
	}
	return b.dialect.quote(col)
}
