// Package snapshot defines the persisted form of a terminal session: which
// window holds which application, where it was running and which workspace
// items each application instance had open.
//
// A Snapshot never carries process ids. Application instances are keyed by
// their server identity, which survives a restart of the application.
package snapshot

import (
	"sort"
	"strings"
)

// Modified flag values of a WorkspaceItem.
const (
	ModifiedYes = "+"
	ModifiedNo  = "-"
)

// WorkspaceItem is one open unit of application state, such as a buffer.
type WorkspaceItem struct {
	Index  int    `json:"idx" yaml:"idx"`
	Status string `json:"stat" yaml:"stat"`
	// Modified is ModifiedYes for unsaved changes and ModifiedNo otherwise.
	Modified string `json:"insert" yaml:"insert"`
	// Path is nil for an unnamed scratch item.
	Path *string `json:"path" yaml:"path"`
	Line int     `json:"line" yaml:"line"`
}

// IsHidden reports whether the item's status marks it hidden.
func (w WorkspaceItem) IsHidden() bool {
	return strings.Contains(w.Status, "h")
}

// IsModified reports whether the item had unsaved changes.
func (w WorkspaceItem) IsModified() bool {
	return w.Modified == ModifiedYes
}

// PathOf returns a pointer to path, for building items in code.
func PathOf(path string) *string {
	return &path
}

// WindowState is everything recorded about one window.
type WindowState struct {
	WorkDir string `json:"pwd" yaml:"pwd"`
	// App is the name of the recognizer that owns the instances.
	App   string `json:"app" yaml:"app"`
	Title string `json:"title" yaml:"title"`
	// Buffers maps a server identity to its items in their original order.
	Buffers map[string][]WorkspaceItem `json:"buffers" yaml:"buffers"`
}

// Servers returns the server identities of the window, sorted.
func (w *WindowState) Servers() []string {
	servers := make([]string, 0, len(w.Buffers))
	for name := range w.Buffers {
		servers = append(servers, name)
	}
	sort.Strings(servers)
	return servers
}

// Paths returns the non-nil item paths of server in their original order.
func (w *WindowState) Paths(server string) []string {
	var paths []string
	for _, item := range w.Buffers[server] {
		if item.Path != nil {
			paths = append(paths, *item.Path)
		}
	}
	return paths
}

// Snapshot maps a window index to its state.
type Snapshot map[int]*WindowState

// Indices returns the window indices in ascending order.
func (s Snapshot) Indices() []int {
	indices := make([]int, 0, len(s))
	for idx := range s {
		indices = append(indices, idx)
	}
	sort.Ints(indices)
	return indices
}

// Summary counts what a snapshot holds.
type Summary struct {
	Windows   int
	Instances int
	Items     int
}

// Summarize counts the windows, application instances and items in s.
func (s Snapshot) Summarize() Summary {
	sum := Summary{Windows: len(s)}
	for _, w := range s {
		sum.Instances += len(w.Buffers)
		for _, items := range w.Buffers {
			sum.Items += len(items)
		}
	}
	return sum
}
