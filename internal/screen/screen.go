// Package screen implements the multiplexer backend for GNU screen.
//
// Terminals opened by screen show a FROM column of the form ":pts/1:S.3"
// in w(1), where the number after "S." is the window index. That descriptor
// does not name the session, so every match is confirmed by reading the STY
// variable screen exports to the processes of each window.
package screen

import (
	"context"
	"regexp"
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
const Name = "screen"

// Binary is the screen executable.
const Binary = "screen"

var (
	parentPattern = regexp.MustCompile(`^:\S*:S\.(\d+)$`)
	entrySplit    = regexp.MustCompile(`\s{2,}`)
	windowEntry   = regexp.MustCompile(`^(\d+)[-*$!@&Z]*\s+(.*)$`)
)

// Backend is a screen session.
type Backend struct {
	session string
	runner  runner.Runner
	logger  *logging.Logger
}

// Open binds to an existing screen session. Options.Socket is not used.
func Open(ctx context.Context, opts mux.Options) (mux.Multiplexer, error) {
	b := &Backend{
		session: opts.Session,
		runner:  opts.Runner,
		logger:  opts.Logger.WithSession(opts.Session).With("backend", Name),
	}
	if opts.Socket != "" {
		b.logger.Debug("screen has no socket selector, ignoring", "socket", opts.Socket)
	}
	if _, err := b.query(ctx, -1, "windows"); err != nil {
		if verrors.IsEnvironment(err) {
			return nil, err
		}
		return nil, verrors.NewSessionError("screen -Q windows failed", verrors.ErrSessionNotFound).
			WithSession(b.session).
			WithBackend(Name)
	}
	return b, nil
}

// Name implements mux.Multiplexer.
func (b *Backend) Name() string { return Name }

// Session implements mux.Multiplexer.
func (b *Backend) Session() string { return b.session }

// args builds "-S session [-p window] <flag> command...". A negative window
// addresses the session as a whole.
func (b *Backend) args(window int, flag string, command ...string) []string {
	args := []string{"-S", b.session}
	if window >= 0 {
		args = append(args, "-p", strconv.Itoa(window))
	}
	args = append(args, flag)
	return append(args, command...)
}

func (b *Backend) query(ctx context.Context, window int, command ...string) (string, error) {
	out, err := b.runner.Run(ctx, Binary, b.args(window, "-Q", command...)...)
	return strings.TrimSpace(string(out)), err
}

func (b *Backend) execute(ctx context.Context, window int, command ...string) error {
	_, err := b.runner.Run(ctx, Binary, b.args(window, "-X", command...)...)
	return err
}

// ListWindows implements mux.Multiplexer.
func (b *Backend) ListWindows(ctx context.Context) ([]mux.Window, error) {
	out, err := b.query(ctx, -1, "windows")
	if err != nil {
		return nil, verrors.NewEnvironmentError(Binary, "list windows", err)
	}
	return parseWindows(out), nil
}

// parseWindows parses the "-Q windows" listing, e.g. "0$ bash  1-$ vim  3*$ NOTES".
func parseWindows(out string) []mux.Window {
	var windows []mux.Window
	for _, entry := range entrySplit.Split(strings.TrimSpace(out), -1) {
		m := windowEntry.FindStringSubmatch(entry)
		if m == nil {
			continue
		}
		index, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		windows = append(windows, mux.Window{Index: index, Title: strings.TrimSpace(m[2])})
	}
	return windows
}

// WindowForTerminal implements mux.Multiplexer.
func (b *Backend) WindowForTerminal(ctx context.Context, term psjobs.Pseudoterminal) (int, bool, error) {
	m := parentPattern.FindStringSubmatch(term.Parent)
	if m == nil {
		return 0, false, nil
	}
	index, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false, nil
	}

	owner, err := b.terminalSession(ctx, term)
	if err != nil {
		return 0, false, err
	}
	if !b.owns(owner) {
		b.logger.Debug("terminal belongs to another session", "tty", term.Name, "window", index, "sty", owner)
		return 0, false, nil
	}
	return index, true, nil
}

// terminalSession returns the STY value found in the environment of the
// processes on term, or "" when none carries one.
func (b *Backend) terminalSession(ctx context.Context, term psjobs.Pseudoterminal) (string, error) {
	out, err := b.runner.Run(ctx, "ps", "eww", "-t", term.Name, "-o", "args=")
	if err != nil {
		// ps exits 1 when nothing matched the selection.
		if runner.ExitCode(err) == 1 {
			return "", nil
		}
		if verrors.IsEnvironment(err) {
			return "", err
		}
		return "", verrors.NewEnvironmentError("ps", "read terminal environment", err)
	}
	return parseSTY(string(out)), nil
}

// owns reports whether sty, formatted "<pid>.<name>", names this session.
// The session may be bound by name or by its full "<pid>.<name>" form.
func (b *Backend) owns(sty string) bool {
	if sty == "" {
		return false
	}
	if sty == b.session {
		return true
	}
	_, name, ok := strings.Cut(sty, ".")
	return ok && name == b.session
}

// parseSTY scans "ps eww" output, where each command line is followed by its
// environment, for the first STY=<pid>.<name> entry.
func parseSTY(out string) string {
	for _, field := range strings.Fields(out) {
		if sty, ok := strings.CutPrefix(field, "STY="); ok && sty != "" {
			return sty
		}
	}
	return ""
}

// WindowTitle implements mux.Multiplexer.
func (b *Backend) WindowTitle(ctx context.Context, index int) (string, bool, error) {
	title, err := b.query(ctx, index, "title")
	if err != nil {
		if verrors.IsEnvironment(err) {
			return "", false, err
		}
		return "", false, nil
	}
	return title, true, nil
}

// SetWindowTitle implements mux.Multiplexer.
func (b *Backend) SetWindowTitle(ctx context.Context, index int, title string) error {
	if err := b.execute(ctx, index, "title", title); err != nil {
		return verrors.Wrapf(err, "set screen window %d title", index)
	}
	return nil
}

// SendShellCommand implements mux.Multiplexer. stuff types the line and the
// trailing newline presses Enter.
func (b *Backend) SendShellCommand(ctx context.Context, argv []string, index int) error {
	line := shellquote.Join(argv...)
	if err := b.execute(ctx, index, "stuff", line+"\n"); err != nil {
		return verrors.Wrapf(err, "stuff screen window %d", index)
	}
	b.logger.WithWindow(index).Debug("sent shell command", "line", line)
	return nil
}

// CreateWindow implements mux.Multiplexer.
func (b *Backend) CreateWindow(ctx context.Context, index int) error {
	if err := b.execute(ctx, -1, "screen", strconv.Itoa(index)); err != nil {
		return verrors.Wrapf(err, "create screen window %d", index)
	}
	return nil
}

var _ mux.Multiplexer = (*Backend)(nil)
