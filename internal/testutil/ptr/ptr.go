// Package ptr provides pointer helpers for optional test parameters.
package ptr

import "time"

// To returns a pointer to v.
func To[T any](v T) *T { return &v }

// String returns a pointer to the given string value.
func String(v string) *string { return &v }

// Month returns midnight UTC on the first day of the given month.
func Month(year int, month time.Month) time.Time {
	return time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
}
