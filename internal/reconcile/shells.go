package reconcile

import (
	"fmt"

	"github.com/Iron-Ham/vimsaver/internal/psjobs"
	"github.com/gobwas/glob"
)

// DefaultAllowedShells are the shells the engine may send job-control
// commands to.
var DefaultAllowedShells = []string{"bash", "zsh", "sh", "dash", "ksh", "fish"}

// ShellMatcher decides whether a foreground process is a shell the engine
// is allowed to drive. Patterns are globs matched against the program's base
// name with any login-shell "-" prefix removed.
type ShellMatcher struct {
	patterns []string
	globs    []glob.Glob
}

// NewShellMatcher compiles patterns. An empty list selects DefaultAllowedShells.
func NewShellMatcher(patterns []string) (*ShellMatcher, error) {
	if len(patterns) == 0 {
		patterns = DefaultAllowedShells
	}
	m := &ShellMatcher{patterns: patterns}
	for _, p := range patterns {
		g, err := glob.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid shell pattern %q: %w", p, err)
		}
		m.globs = append(m.globs, g)
	}
	return m, nil
}

// Allows reports whether proc is an allowed shell.
func (m *ShellMatcher) Allows(proc psjobs.ProcessRecord) bool {
	base := proc.ProgramBase()
	if base == "" {
		return false
	}
	for _, g := range m.globs {
		if g.Match(base) {
			return true
		}
	}
	return false
}

// Patterns returns the configured patterns.
func (m *ShellMatcher) Patterns() []string {
	return append([]string(nil), m.patterns...)
}
