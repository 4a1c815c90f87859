// Package tmux implements the multiplexer backend for tmux.
//
// A backend is bound to one tmux session. An optional socket name selects a
// server other than the default one (tmux -L), which keeps vimsaver usable
// alongside tools that run their own isolated tmux servers.
package tmux

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	verrors "github.com/Iron-Ham/vimsaver/internal/errors"
	"github.com/Iron-Ham/vimsaver/internal/logging"
	"github.com/Iron-Ham/vimsaver/internal/mux"
	"github.com/Iron-Ham/vimsaver/internal/psjobs"
	"github.com/Iron-Ham/vimsaver/internal/runner"
	"github.com/kballard/go-shellquote"
)

// Name is the registry name of this backend.
const Name = "tmux"

// Binary is the tmux executable.
const Binary = "tmux"

// CommandArgsWithSocket returns tmux arguments with the socket selector
// prepended. An empty socket selects the default server.
func CommandArgsWithSocket(socket string, args ...string) []string {
	return append(BaseArgsWithSocket(socket), args...)
}

// BaseArgsWithSocket returns the socket arguments [-L, socket], or nothing
// for the default server.
func BaseArgsWithSocket(socket string) []string {
	if socket == "" {
		return []string{}
	}
	return []string{"-L", socket}
}

// Backend is a tmux session.
type Backend struct {
	session string
	socket  string
	runner  runner.Runner
	logger  *logging.Logger
}

// Open binds to an existing tmux session.
func Open(ctx context.Context, opts mux.Options) (mux.Multiplexer, error) {
	b := &Backend{
		session: opts.Session,
		socket:  opts.Socket,
		runner:  opts.Runner,
		logger:  opts.Logger.WithSession(opts.Session).With("backend", Name),
	}
	if _, err := b.run(ctx, "has-session", "-t", "="+b.session); err != nil {
		if verrors.IsEnvironment(err) {
			return nil, err
		}
		return nil, verrors.NewSessionError("tmux has-session failed", verrors.ErrSessionNotFound).
			WithSession(b.session).
			WithBackend(Name)
	}
	return b, nil
}

// Name implements mux.Multiplexer.
func (b *Backend) Name() string { return Name }

// Session implements mux.Multiplexer.
func (b *Backend) Session() string { return b.session }

func (b *Backend) run(ctx context.Context, args ...string) ([]byte, error) {
	return b.runner.Run(ctx, Binary, CommandArgsWithSocket(b.socket, args...)...)
}

func (b *Backend) target(index int) string {
	return fmt.Sprintf("%s:%d", b.session, index)
}

const windowFormat = "#{window_index} #{pane_pid} #{pane_tty} #{window_name}"

// ListWindows implements mux.Multiplexer. PID and TTY describe the active pane.
func (b *Backend) ListWindows(ctx context.Context) ([]mux.Window, error) {
	out, err := b.run(ctx, "list-windows", "-t", b.session, "-F", windowFormat)
	if err != nil {
		return nil, verrors.NewEnvironmentError(Binary, "list windows", err)
	}
	return parseWindows(string(out)), nil
}

func parseWindows(out string) []mux.Window {
	var windows []mux.Window
	for _, line := range strings.Split(out, "\n") {
		fields := strings.SplitN(strings.TrimSpace(line), " ", 4)
		if len(fields) < 3 {
			continue
		}
		index, err := strconv.Atoi(fields[0])
		if err != nil {
			continue
		}
		pid, _ := strconv.Atoi(fields[1])
		w := mux.Window{Index: index, PID: pid, TTY: strings.TrimPrefix(fields[2], "/dev/")}
		if len(fields) == 4 {
			w.Title = fields[3]
		}
		windows = append(windows, w)
	}
	return windows
}

// WindowForTerminal implements mux.Multiplexer by matching the terminal
// device against every pane of the session.
func (b *Backend) WindowForTerminal(ctx context.Context, term psjobs.Pseudoterminal) (int, bool, error) {
	out, err := b.run(ctx, "list-panes", "-s", "-t", b.session, "-F", "#{pane_tty} #{window_index}")
	if err != nil {
		return 0, false, verrors.NewEnvironmentError(Binary, "list panes", err)
	}
	for _, line := range strings.Split(string(out), "\n") {
		tty, idx, found := strings.Cut(strings.TrimSpace(line), " ")
		if !found || tty != term.Device() {
			continue
		}
		index, err := strconv.Atoi(idx)
		if err != nil {
			continue
		}
		return index, true, nil
	}
	return 0, false, nil
}

// WindowTitle implements mux.Multiplexer.
func (b *Backend) WindowTitle(ctx context.Context, index int) (string, bool, error) {
	windows, err := b.ListWindows(ctx)
	if err != nil {
		return "", false, err
	}
	for _, w := range windows {
		if w.Index == index {
			return w.Title, true, nil
		}
	}
	return "", false, nil
}

// SetWindowTitle implements mux.Multiplexer.
func (b *Backend) SetWindowTitle(ctx context.Context, index int, title string) error {
	if _, err := b.run(ctx, "rename-window", "-t", b.target(index), title); err != nil {
		return verrors.Wrapf(err, "rename tmux window %d", index)
	}
	return nil
}

// SendShellCommand implements mux.Multiplexer. The line is sent literally
// so that tmux does not interpret words such as "Enter" as key names.
func (b *Backend) SendShellCommand(ctx context.Context, argv []string, index int) error {
	line := shellquote.Join(argv...)
	if _, err := b.run(ctx, "send-keys", "-t", b.target(index), "-l", line); err != nil {
		return verrors.Wrapf(err, "send keys to tmux window %d", index)
	}
	if _, err := b.run(ctx, "send-keys", "-t", b.target(index), "Enter"); err != nil {
		return verrors.Wrapf(err, "send Enter to tmux window %d", index)
	}
	b.logger.WithWindow(index).Debug("sent shell command", "line", line)
	return nil
}

// CreateWindow implements mux.Multiplexer. A window that already exists at
// index is logged and left alone.
func (b *Backend) CreateWindow(ctx context.Context, index int) error {
	_, err := b.run(ctx, "new-window", "-d", "-t", b.target(index))
	if err == nil {
		return nil
	}
	var exitErr *runner.ExitError
	if verrors.As(err, &exitErr) && strings.Contains(exitErr.Stderr, "in use") {
		b.logger.WithWindow(index).Warn("window already exists", "stderr", exitErr.Stderr)
		return nil
	}
	return verrors.Wrapf(err, "create tmux window %d", index)
}

var _ mux.Multiplexer = (*Backend)(nil)
