// Package util provides terminal text helpers shared by the CLI output.
package util

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
)

const ellipsis = "..."

// TruncateANSI truncates a string to maxWidth visual columns, adding "..." if truncated.
// This function properly handles ANSI escape codes and wide characters, making it
// suitable for terminal output with styling.
func TruncateANSI(s string, maxWidth int) string {
	if maxWidth <= len(ellipsis) {
		return ellipsis
	}
	if lipgloss.Width(s) <= maxWidth {
		return s
	}
	// ansi.Truncate includes the tail in the final width calculation
	return ansi.Truncate(s, maxWidth, ellipsis)
}

// TruncatePath shortens s to maxWidth visual columns by cutting from the
// left, so the file name at the end of a path stays visible.
func TruncatePath(s string, maxWidth int) string {
	if maxWidth <= len(ellipsis) {
		return ellipsis
	}
	width := lipgloss.Width(s)
	if width <= maxWidth {
		return s
	}
	return ansi.TruncateLeft(s, width-maxWidth+len(ellipsis), ellipsis)
}
