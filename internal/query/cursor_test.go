package query

import (
	"errors"
	"testing"
	"time"

	"github.com/wesm/chanvault/internal/search"
)

func TestParseCursor(t *testing.T) {
	base := time.Date(2024, 3, 1, 16, 0, 0, 0, time.UTC)
	tests := []struct {
		in   string
		want Cursor
	}{
		{"2024-03-01T16:00:00Z", Cursor{Time: base}},
		{"2024-03-01T16:00:00z", Cursor{Time: base}},
		{"2024-03-01 16:00:00", Cursor{Time: base}},
		{"2024-03-01T18:00:00+02:00", Cursor{Time: base}},
		{"2024-03-01T15:59:59.250Z", Cursor{Time: base}},
		{"2024-03-01T16:00:00Z~42", Cursor{Time: base, Key: 42}},
	}
	for _, tt := range tests {
		got, err := ParseCursor(tt.in)
		if err != nil {
			t.Errorf("ParseCursor(%q): %v", tt.in, err)
			continue
		}
		if !got.Time.Equal(tt.want.Time) || got.Key != tt.want.Key {
			t.Errorf("ParseCursor(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}

	for _, bad := range []string{"", "tomorrow", "2024-03-01T16:00:00Z~", "2024-03-01T16:00:00Z~0", "2024-03-01T16:00:00Z~-3", "x~1"} {
		if _, err := ParseCursor(bad); !errors.Is(err, search.ErrInvalidBound) {
			t.Errorf("ParseCursor(%q) error = %v, want ErrInvalidBound", bad, err)
		}
	}
}

func TestCursorStringRoundTrip(t *testing.T) {
	for _, s := range []string{"2024-03-01T16:00:00Z", "2024-03-01T16:00:00Z~7"} {
		c, err := ParseCursor(s)
		if err != nil {
			t.Fatalf("ParseCursor(%q): %v", s, err)
		}
		if got := c.String(); got != s {
			t.Errorf("String() = %q, want %q", got, s)
		}
	}
}

func TestCursorMonthStart(t *testing.T) {
	tests := []struct {
		c    Cursor
		want time.Time
	}{
		{Cursor{Time: time.Date(2024, 3, 15, 8, 0, 0, 0, time.UTC)}, month(2024, 3)},
		// A plain cursor on a boundary excludes the boundary instant.
		{Cursor{Time: month(2024, 3)}, month(2024, 2)},
		{Cursor{Time: month(2024, 1)}, month(2023, 12)},
		// A compound cursor still admits rows dated exactly at the boundary.
		{Cursor{Time: month(2024, 3), Key: 9}, month(2024, 3)},
	}
	for _, tt := range tests {
		if got := tt.c.MonthStart(); !got.Equal(tt.want) {
			t.Errorf("%v.MonthStart() = %v, want %v", tt.c, got, tt.want)
		}
	}
}

func TestCursorCovers(t *testing.T) {
	earliest := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		c    Cursor
		want bool
	}{
		{Cursor{Time: earliest.Add(time.Second)}, true},
		{Cursor{Time: earliest}, false},
		{Cursor{Time: earliest, Key: 3}, true},
		{Cursor{Time: earliest.Add(-time.Hour), Key: 3}, false},
	}
	for _, tt := range tests {
		if got := tt.c.Covers(earliest); got != tt.want {
			t.Errorf("%v.Covers() = %v, want %v", tt.c, got, tt.want)
		}
	}
}

func TestCursorBefore(t *testing.T) {
	at := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	c := Cursor{Time: at, Key: 10}
	if !c.Before(at, 9) || c.Before(at, 10) || !c.Before(at.Add(-time.Second), 99) || c.Before(at.Add(time.Second), 1) {
		t.Error("compound cursor ordering is wrong")
	}
	if (Cursor{Time: at}).Before(at, 1) {
		t.Error("plain cursor must exclude its own instant")
	}
}

func TestNextCursor(t *testing.T) {
	at := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	page := []Row{{Date: at.Add(time.Hour), Key: 5}, {Date: at, Key: 4}}

	if got := nextCursor(page, nil, false).String(); got != "2024-01-01T12:00:00Z" {
		t.Errorf("no following row: %s", got)
	}
	if got := nextCursor(page, &Row{Date: at.Add(-time.Second), Key: 3}, false).String(); got != "2024-01-01T12:00:00Z" {
		t.Errorf("older following row: %s", got)
	}
	if got := nextCursor(page, &Row{Date: at, Key: 3}, false).String(); got != "2024-01-01T12:00:00Z~4" {
		t.Errorf("tied following row: %s", got)
	}
	if got := nextCursor(page, nil, true).String(); got != "2024-01-01T12:00:00Z~4" {
		t.Errorf("unfetched following row: %s", got)
	}
}
