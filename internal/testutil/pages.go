package testutil

import (
	"fmt"
	"time"

	"github.com/wesm/chanvault/internal/query"
)

// PageBuilder assembles query.Page values for tests of the transport
// layers, which only need well-formed pages rather than a real store.
type PageBuilder struct {
	page query.Page
	next time.Time
}

// NewPage starts an empty page whose first record is dated start.
func NewPage(start time.Time) *PageBuilder {
	return &PageBuilder{page: query.Page{Results: []query.Record{}}, next: start.UTC()}
}

// WithMessages appends n records with consecutive ids, one hour apart,
// newest first.
func (b *PageBuilder) WithMessages(n int, text string) *PageBuilder {
	for i := 0; i < n; i++ {
		id := int64(len(b.page.Results) + 1)
		b.page.Results = append(b.page.Results, query.Record{
			"id":        id,
			"chat_id":   int64(1),
			"chat_name": "general",
			"date":      b.next.Format(query.CursorLayout),
			"text":      fmt.Sprintf("%s %d", text, id),
			"hashtags":  []string{},
		})
		b.next = b.next.Add(-time.Hour)
	}
	return b
}

// WithMore marks the page as continued after its last record.
func (b *PageBuilder) WithMore() *PageBuilder {
	b.page.HasMore = true
	if n := len(b.page.Results); n > 0 {
		cursor, _ := b.page.Results[n-1]["date"].(string)
		b.page.NextCursor = &cursor
	}
	return b
}

// Build returns the page.
func (b *PageBuilder) Build() *query.Page {
	p := b.page
	return &p
}
