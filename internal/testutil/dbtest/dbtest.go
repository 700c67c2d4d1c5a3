// Package dbtest provides shared database test helpers for seeding and querying
// test databases. It is designed to be importable from any test package without
// circular dependency issues (it does not import internal/query).
package dbtest

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/wesm/chanvault/internal/store"
)

// TestDB wraps a file-backed store with an auto-increment message ID and
// builder helpers for seeding test data.
type TestDB struct {
	Store *store.Store
	DB    *sql.DB
	Path  string
	T     testing.TB

	nextMessageID int64
}

// NewTestDB creates a store in a temporary directory with the production
// schema loaded. The table name defaults to store.DefaultTable.
func NewTestDB(t testing.TB) *TestDB {
	return NewTestDBWithTable(t, "")
}

// NewTestDBWithTable is NewTestDB with a custom message table name.
func NewTestDBWithTable(t testing.TB, table string) *TestDB {
	t.Helper()

	path := filepath.Join(t.TempDir(), "chanvault.db")
	st, err := store.Open(path, table)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	if err := st.InitSchema(); err != nil {
		t.Fatalf("init schema: %v", err)
	}

	return &TestDB{
		Store:         st,
		DB:            st.DB(),
		Path:          path,
		T:             t,
		nextMessageID: 1000,
	}
}

// MessageOpts configures a message to insert. Zero values get defaults.
type MessageOpts struct {
	ID           int64
	ChatID       int64
	ChatName     string
	Username     string
	SenderChatID int64
	Title        string
	Text         string
	Lang         string
	Date         time.Time
	InsertDate   time.Time // defaults to a minute after Date
	Document     string    // attached document name; marks a document present
	URLs         []string
	Hashtags     []string
}

// AddMessage inserts one message and returns its message ID.
func (tdb *TestDB) AddMessage(opts MessageOpts) int64 {
	tdb.T.Helper()
	ids := tdb.AddMessages(opts)
	return ids[0]
}

// AddMessages inserts messages in one batch and returns their message IDs.
func (tdb *TestDB) AddMessages(opts ...MessageOpts) []int64 {
	tdb.T.Helper()

	msgs := make([]store.Message, len(opts))
	ids := make([]int64, len(opts))
	for i, o := range opts {
		if o.ID == 0 {
			tdb.nextMessageID++
			o.ID = tdb.nextMessageID
		}
		if o.ChatID == 0 {
			o.ChatID = 1
		}
		if o.ChatName == "" {
			o.ChatName = "general"
		}
		if o.Date.IsZero() {
			o.Date = time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)
		}
		if o.InsertDate.IsZero() {
			o.InsertDate = o.Date.Add(time.Minute)
		}
		msgs[i] = store.Message{
			ID:           o.ID,
			ChatID:       o.ChatID,
			ChatName:     o.ChatName,
			Username:     o.Username,
			SenderChatID: o.SenderChatID,
			Title:        o.Title,
			Date:         o.Date,
			InsertDate:   o.InsertDate,
			Text:         o.Text,
			Lang:         o.Lang,
			URLs:         o.URLs,
			Hashtags:     o.Hashtags,
		}
		if o.Document != "" {
			msgs[i].DocumentPresent = true
			msgs[i].DocumentName = o.Document
		}
		ids[i] = o.ID
	}

	if _, err := tdb.Store.InsertMessages(context.Background(), msgs); err != nil {
		tdb.T.Fatalf("insert messages: %v", err)
	}
	return ids
}

// SeedMonths inserts perMonth messages containing text into each of the
// given months, on distinct days at noon UTC. The messages are inserted
// oldest first and their IDs are returned in that order.
func (tdb *TestDB) SeedMonths(text string, perMonth int, months ...time.Time) []int64 {
	tdb.T.Helper()

	var opts []MessageOpts
	for _, m := range months {
		first := time.Date(m.Year(), m.Month(), 1, 12, 0, 0, 0, time.UTC)
		for d := 0; d < perMonth; d++ {
			opts = append(opts, MessageOpts{
				Text: fmt.Sprintf("%s %d", text, d),
				Date: first.AddDate(0, 0, d),
			})
		}
	}
	return tdb.AddMessages(opts...)
}

// RenameColumn renames a column of the message table in place, simulating
// a schema migration underneath a running process.
func (tdb *TestDB) RenameColumn(from, to string) {
	tdb.T.Helper()
	query := fmt.Sprintf("ALTER TABLE %s RENAME COLUMN %s TO %s",
		store.QuoteIdent(tdb.Store.Table()), store.QuoteIdent(from), store.QuoteIdent(to))
	if _, err := tdb.DB.Exec(query); err != nil {
		tdb.T.Fatalf("rename column %s: %v", from, err)
	}
}

// Count returns the number of rows in the message table.
func (tdb *TestDB) Count() int64 {
	tdb.T.Helper()
	var n int64
	query := "SELECT COUNT(*) FROM " + store.QuoteIdent(tdb.Store.Table())
	if err := tdb.DB.QueryRow(query).Scan(&n); err != nil {
		tdb.T.Fatalf("count messages: %v", err)
	}
	return n
}
