package cmd

import (
	"fmt"
	"strings"

	"github.com/mattn/go-runewidth"
)

// truncate shortens s to at most maxWidth terminal columns, ending with
// "..." when cut. Wide runes (CJK, emoji) count as two columns.
func truncate(s string, maxWidth int) string {
	if runewidth.StringWidth(s) <= maxWidth {
		return s
	}
	if maxWidth <= 3 {
		return runewidth.Truncate(s, maxWidth, "")
	}
	return runewidth.Truncate(s, maxWidth, "...")
}

// singleLine collapses newlines and tabs so a value fits one table row.
func singleLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func formatSize(bytes int64) string {
	const (
		KB = 1024
		MB = 1024 * KB
		GB = 1024 * MB
	)

	switch {
	case bytes >= GB:
		return fmt.Sprintf("%.1fG", float64(bytes)/float64(GB))
	case bytes >= MB:
		return fmt.Sprintf("%.1fM", float64(bytes)/float64(MB))
	case bytes >= KB:
		return fmt.Sprintf("%.1fK", float64(bytes)/float64(KB))
	default:
		return fmt.Sprintf("%dB", bytes)
	}
}
