package store

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
)

// fold returns the case-folded form of s. Casers carry state, so each call
// gets its own.
func fold(s string) string {
	return cases.Fold().String(s)
}

// icontains is registered as the SQL function icontains(haystack, needle).
// It reports 1 when needle occurs in haystack under Unicode case folding, so
// "ПРИВЕТ" matches "привет" where SQLite's own LIKE only folds ASCII.
// NULL on either side never matches.
func icontains(haystack, needle any) int64 {
	h, ok := sqlText(haystack)
	if !ok {
		return 0
	}
	n, ok := sqlText(needle)
	if !ok {
		return 0
	}
	if strings.Contains(fold(h), fold(n)) {
		return 1
	}
	return 0
}

// sqlText converts an SQLite function argument to text.
func sqlText(v any) (string, bool) {
	switch t := v.(type) {
	case nil:
		return "", false
	case string:
		return t, true
	case []byte:
		return string(t), true
	default:
		return fmt.Sprint(t), true
	}
}
