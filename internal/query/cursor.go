package query

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/wesm/chanvault/internal/search"
	"github.com/wesm/chanvault/internal/store"
)

// CursorLayout is the rendering of cursor timestamps and result dates.
const CursorLayout = "2006-01-02T15:04:05Z"

// cursorKeySep separates the timestamp from the row key in a compound cursor.
const cursorKeySep = "~"

// Cursor is an exclusive upper bound in (date DESC, key DESC) order.
//
// A plain cursor (Key == 0) admits rows dated strictly before Time. A
// compound cursor also admits rows dated exactly Time whose key is below
// Key; it is only issued when a page ends inside a run of equal dates.
type Cursor struct {
	Time time.Time
	Key  int64
}

// ParseCursor parses "2024-03-01T16:00:00Z" or "2024-03-01T16:00:00Z~1234".
// Any layout accepted by store.ParseTimestamp works for the time part.
// Plain cursors with sub-second precision are rounded up to the next whole
// second so rows stored in that second stay included.
func ParseCursor(s string) (Cursor, error) {
	ts, keyPart, compound := strings.Cut(strings.TrimSpace(s), cursorKeySep)
	t, err := store.ParseTimestamp(ts)
	if err != nil {
		return Cursor{}, fmt.Errorf("%w: %v", search.ErrInvalidBound, err)
	}
	if !compound {
		return Cursor{Time: ceilSecond(t)}, nil
	}
	key, err := strconv.ParseInt(keyPart, 10, 64)
	if err != nil || key <= 0 {
		return Cursor{}, fmt.Errorf("%w: invalid cursor key %q", search.ErrInvalidBound, keyPart)
	}
	return Cursor{Time: t.Truncate(time.Second), Key: key}, nil
}

// String renders the cursor token.
func (c Cursor) String() string {
	s := c.Time.UTC().Format(CursorLayout)
	if c.Key > 0 {
		s += cursorKeySep + strconv.FormatInt(c.Key, 10)
	}
	return s
}

// Before reports whether a row at (t, key) lies below the cursor.
func (c Cursor) Before(t time.Time, key int64) bool {
	return t.Before(c.Time) || (t.Equal(c.Time) && key < c.Key)
}

// Covers reports whether any row dated at or after earliest can lie below
// the cursor.
func (c Cursor) Covers(earliest time.Time) bool {
	return c.Time.After(earliest) || (c.Time.Equal(earliest) && c.Key > 0)
}

// MonthStart returns the first instant of the calendar month holding the
// newest row the cursor admits.
func (c Cursor) MonthStart() time.Time {
	t := c.Time.UTC()
	if c.Key == 0 {
		// Rows dated exactly Time are excluded, so a cursor sitting on a
		// month boundary belongs to the previous month.
		t = t.Add(-time.Nanosecond)
	}
	return monthStart(t)
}

func monthStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

func ceilSecond(t time.Time) time.Time {
	if tr := t.Truncate(time.Second); !tr.Equal(t) {
		return tr.Add(time.Second)
	}
	return t
}
