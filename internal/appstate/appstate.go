// Package appstate defines application recognizers: plugins that decide
// whether a process is an application vimsaver can save, extract its open
// workspace items, ask it to quit, and relaunch it later.
package appstate

import (
	"context"
	"sort"

	verrors "github.com/Iron-Ham/vimsaver/internal/errors"
	"github.com/Iron-Ham/vimsaver/internal/psjobs"
	"github.com/Iron-Ham/vimsaver/internal/snapshot"
)

// Recognizer classifies processes for one application type.
type Recognizer interface {
	// Name is the application id stored in snapshots, e.g. "vim".
	Name() string
	Matches(proc psjobs.ProcessRecord) bool
	// Attach returns the instance a matching process belongs to.
	Attach(proc psjobs.ProcessRecord) (Instance, error)
	// Lookup returns the instance with the given server identity, running or not.
	Lookup(identity string) Instance
}

// Instance is one named application instance.
type Instance interface {
	// Identity is the server name the instance is addressed by.
	Identity() string
	ExtractItems(ctx context.Context) ([]snapshot.WorkspaceItem, error)
	// IsReachable probes the instance. A probe that times out counts as
	// reachable: the instance exists but does not answer.
	IsReachable(ctx context.Context) bool
	RequestQuit(ctx context.Context) error
	// LaunchCommand returns the argv that starts the instance with paths open.
	LaunchCommand(paths []string) []string
}

// Registry maps application ids to recognizers.
type Registry struct {
	recognizers map[string]Recognizer
}

// NewRegistry returns a registry holding recognizers.
func NewRegistry(recognizers ...Recognizer) *Registry {
	r := &Registry{recognizers: make(map[string]Recognizer)}
	for _, rec := range recognizers {
		r.Register(rec)
	}
	return r
}

// Register adds rec under its name.
func (r *Registry) Register(rec Recognizer) {
	r.recognizers[rec.Name()] = rec
}

// Get returns the recognizer registered under name.
func (r *Registry) Get(name string) (Recognizer, error) {
	rec, ok := r.recognizers[name]
	if !ok {
		return nil, verrors.NewNotFoundError("application", name).WithCause(verrors.ErrUnknownRecognizer)
	}
	return rec, nil
}

// Select resolves names in order, failing on the first unknown one.
func (r *Registry) Select(names []string) ([]Recognizer, error) {
	out := make([]Recognizer, 0, len(names))
	for _, name := range names {
		rec, err := r.Get(name)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// Names returns the registered application ids, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.recognizers))
	for name := range r.recognizers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Match returns the first recognizer in recognizers that matches proc.
func Match(recognizers []Recognizer, proc psjobs.ProcessRecord) (Recognizer, bool) {
	for _, rec := range recognizers {
		if rec.Matches(proc) {
			return rec, true
		}
	}
	return nil, false
}
