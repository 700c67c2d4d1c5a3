// Package query runs windowed, newest-first searches over the message table.
// A Backend executes single bounded window queries against SQLite or
// DuckDB; a Searcher stitches windows into pages with a continuation cursor.
package query

import (
	"time"
)

// Record is one search result keyed by logical field name.
type Record map[string]any

// Row is a fetched record plus its position in the result order.
type Row struct {
	Record Record
	Date   time.Time // logical date, UTC, second precision
	Key    int64     // row key breaking ties between equal dates
}

// WindowRequest bounds one window query. Upper is exclusive, Lower
// inclusive; either may be nil.
type WindowRequest struct {
	Limit int
	Extra bool // fetch one row beyond Limit
	Upper *Cursor
	Lower *time.Time
}

// Requested returns the LIMIT the window query is issued with.
func (r WindowRequest) Requested() int {
	if r.Extra {
		return r.Limit + 1
	}
	return r.Limit
}

// WindowResult is the outcome of one window query.
type WindowResult struct {
	Rows []Row
	// Exhausted is true when the window returned as many rows as requested,
	// so it may hold more.
	Exhausted bool
	Elapsed   time.Duration
}

// Params are the caller inputs of a search. A nil Value means the value
// parameter was not supplied.
type Params struct {
	Field  string
	Value  *string
	Mode   string
	Limit  int
	Before string
}

// Page is one page of search results, newest first.
type Page struct {
	Results    []Record `json:"results"`
	HasMore    bool     `json:"has_more"`
	Timing     float64  `json:"timing"`
	NextCursor *string  `json:"next_cursor,omitempty"`
}
