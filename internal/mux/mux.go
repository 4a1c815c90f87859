// Package mux defines the capability set vimsaver needs from a terminal
// multiplexer and a registry that resolves backends by name.
//
// Backends live in their own packages (internal/tmux, internal/screen) and are
// registered once at startup. Every backend is bound to one named session;
// terminals that belong to other sessions are reported as "not mine" so that
// several sessions can coexist on one host.
package mux

import (
	"context"
	"sort"

	verrors "github.com/Iron-Ham/vimsaver/internal/errors"
	"github.com/Iron-Ham/vimsaver/internal/logging"
	"github.com/Iron-Ham/vimsaver/internal/psjobs"
	"github.com/Iron-Ham/vimsaver/internal/runner"
)

// Window is a multiplexer-level window handle.
type Window struct {
	Index int
	Title string
	// PID and TTY are filled in by backends that can report them cheaply.
	PID int
	TTY string
}

// Multiplexer is one backend bound to one session.
type Multiplexer interface {
	// Name is the backend name, e.g. "screen".
	Name() string
	// Session is the session this backend is bound to.
	Session() string
	ListWindows(ctx context.Context) ([]Window, error)
	// WindowForTerminal maps a terminal to a window of this session.
	// ok is false when the terminal belongs to something else.
	WindowForTerminal(ctx context.Context, term psjobs.Pseudoterminal) (index int, ok bool, err error)
	WindowTitle(ctx context.Context, index int) (title string, ok bool, err error)
	SetWindowTitle(ctx context.Context, index int, title string) error
	// SendShellCommand types argv as one shell line into window index and
	// presses Enter. Delivery is at-most-once and not acknowledged.
	SendShellCommand(ctx context.Context, argv []string, index int) error
	CreateWindow(ctx context.Context, index int) error
}

// Options configure a backend at construction.
type Options struct {
	// Session is the name of the session to bind to.
	Session string
	// Socket selects a non-default server where the backend supports it.
	Socket string
	Runner runner.Runner
	Logger *logging.Logger
}

// Factory constructs a backend. Implementations must fail with
// errors.ErrSessionNotFound when the session does not exist.
type Factory func(ctx context.Context, opts Options) (Multiplexer, error)

// Registry maps backend names to factories.
type Registry struct {
	factories map[string]Factory
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds a backend under name, replacing any previous registration.
func (r *Registry) Register(name string, f Factory) {
	r.factories[name] = f
}

// Names returns the registered backend names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Open constructs the backend registered under name.
func (r *Registry) Open(ctx context.Context, name string, opts Options) (Multiplexer, error) {
	f, ok := r.factories[name]
	if !ok {
		return nil, verrors.NewNotFoundError("backend", name).WithCause(verrors.ErrUnknownBackend)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NopLogger()
	}
	if opts.Runner == nil {
		opts.Runner = runner.NewExec()
	}
	m, err := f(ctx, opts)
	if err != nil {
		var sessErr *verrors.SessionError
		if verrors.As(err, &sessErr) {
			return nil, err
		}
		if verrors.Is(err, verrors.ErrSessionNotFound) {
			return nil, verrors.NewSessionError("cannot open backend", err).
				WithSession(opts.Session).
				WithBackend(name)
		}
		return nil, err
	}
	return m, nil
}

