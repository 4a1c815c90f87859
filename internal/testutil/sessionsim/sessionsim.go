// Package sessionsim simulates a multiplexer session for engine tests.
//
// A World holds windows, each with a login shell and a stack of jobs, and
// the vim servers running in them. It implements mux.Multiplexer, the
// process listing the reconcile engine consumes, and a runner.Runner that
// answers vim's remote-control commands. Shell lines typed into a window
// are interpreted: fg resumes the newest suspended job, cd changes the
// window's directory, vim --servername starts a server, exit closes the window.
package sessionsim

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/kballard/go-shellquote"

	verrors "github.com/Iron-Ham/vimsaver/internal/errors"
	"github.com/Iron-Ham/vimsaver/internal/mux"
	"github.com/Iron-Ham/vimsaver/internal/psjobs"
	"github.com/Iron-Ham/vimsaver/internal/snapshot"
)

// Job is one process started from a window's shell.
type Job struct {
	PID       int
	CLI       []string
	WorkDir   string
	Suspended bool
}

// Window is one simulated window.
type Window struct {
	Index int
	Title string
	Cwd   string
	Shell Job
	// Jobs are in start order; the newest running job owns the terminal.
	Jobs []*Job
}

func (w *Window) tty() string {
	return fmt.Sprintf("pts/%d", 10+w.Index)
}

// Server is a running vim server.
type Server struct {
	Name   string
	Window int
	PID    int
	Items  []snapshot.WorkspaceItem
}

// Sent is one shell line typed into a window.
type Sent struct {
	Window int
	Argv   []string
}

// World is a simulated session. The zero value is not usable; use New.
type World struct {
	mu      sync.Mutex
	session string
	windows map[int]*Window
	servers map[string]*Server
	nextPID int

	sent        []Sent
	extractions map[string]int

	// IgnoreResume makes fg a no-op, as if the shell never answered.
	IgnoreResume bool
	// OnSend runs after every interpreted shell line, outside the lock.
	OnSend func(Sent)
	// FailExtract makes buffer list queries of the named servers fail.
	FailExtract map[string]bool
}

// New returns an empty world for session.
func New(session string) *World {
	return &World{
		session:     session,
		windows:     make(map[int]*Window),
		servers:     make(map[string]*Server),
		nextPID:     1000,
		extractions: make(map[string]int),
		FailExtract: make(map[string]bool),
	}
}

func (w *World) pid() int {
	w.nextPID++
	return w.nextPID
}

// AddWindow opens a window running a login shell in cwd.
func (w *World) AddWindow(index int, title, cwd string) *Window {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.addWindowLocked(index, title, cwd)
}

func (w *World) addWindowLocked(index int, title, cwd string) *Window {
	win := &Window{
		Index: index,
		Title: title,
		Cwd:   cwd,
		Shell: Job{PID: w.pid(), CLI: []string{"-bash"}, WorkDir: cwd},
	}
	w.windows[index] = win
	return win
}

// StartVim runs a vim server in window index with the given items open.
func (w *World) StartVim(index int, server string, items []snapshot.WorkspaceItem, suspended bool) *Job {
	w.mu.Lock()
	defer w.mu.Unlock()
	win := w.windows[index]
	job := &Job{
		PID:       w.pid(),
		CLI:       []string{"vim", "--servername", server},
		WorkDir:   win.Cwd,
		Suspended: suspended,
	}
	win.Jobs = append(win.Jobs, job)
	w.servers[strings.ToUpper(server)] = &Server{Name: server, Window: index, PID: job.PID, Items: items}
	return job
}

// StartJob runs an arbitrary program in window index.
func (w *World) StartJob(index int, cli []string, suspended bool) *Job {
	w.mu.Lock()
	defer w.mu.Unlock()
	win := w.windows[index]
	job := &Job{PID: w.pid(), CLI: cli, WorkDir: win.Cwd, Suspended: suspended}
	win.Jobs = append(win.Jobs, job)
	return job
}

// Sent returns every shell line typed so far.
func (w *World) Sent() []Sent {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]Sent(nil), w.sent...)
}

// SentCount returns how many times argv[0] == program was typed.
func (w *World) SentCount(program string) int {
	n := 0
	for _, s := range w.Sent() {
		if len(s.Argv) > 0 && s.Argv[0] == program {
			n++
		}
	}
	return n
}

// Extractions returns how many times server's buffer list was queried.
func (w *World) Extractions(server string) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.extractions[strings.ToUpper(server)]
}

// Windows returns a copy of the windows by index.
func (w *World) Windows() map[int]Window {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make(map[int]Window, len(w.windows))
	for idx, win := range w.windows {
		out[idx] = *win
	}
	return out
}

// Servers returns the names of the running servers, sorted.
func (w *World) Servers() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	names := make([]string, 0, len(w.servers))
	for _, s := range w.servers {
		names = append(names, s.Name)
	}
	sort.Strings(names)
	return names
}

func (w *World) sortedWindows() []*Window {
	wins := make([]*Window, 0, len(w.windows))
	for _, win := range w.windows {
		wins = append(wins, win)
	}
	sort.Slice(wins, func(i, j int) bool { return wins[i].Index < wins[j].Index })
	return wins
}

// foreground returns the newest running job, or nil when the shell owns the terminal.
func (win *Window) foreground() *Job {
	for i := len(win.Jobs) - 1; i >= 0; i-- {
		if !win.Jobs[i].Suspended {
			return win.Jobs[i]
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// Process listing
// ---------------------------------------------------------------------------

// ListTerminals lists one terminal per window plus one foreign login.
func (w *World) ListTerminals(context.Context) ([]psjobs.Pseudoterminal, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	terms := []psjobs.Pseudoterminal{{Name: "pts/0", Parent: "10.0.0.5", Command: "w -s"}}
	for _, win := range w.sortedWindows() {
		terms = append(terms, psjobs.Pseudoterminal{
			Name:    win.tty(),
			Parent:  fmt.Sprintf(":pts/1:S.%d", win.Index),
			Command: "bash",
		})
	}
	return terms, nil
}

// ListProcesses lists the shell and jobs of the window on pty.
func (w *World) ListProcesses(_ context.Context, pty string) ([]psjobs.ProcessRecord, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, win := range w.windows {
		if win.tty() != pty {
			continue
		}
		fg := win.foreground()
		shellStat := "Ss"
		if fg == nil {
			shellStat = "Ss+"
		}
		records := []psjobs.ProcessRecord{{
			PID: win.Shell.PID, TTY: pty, Stat: shellStat,
			CLI: win.Shell.CLI, WorkDir: win.Cwd,
		}}
		for _, job := range win.Jobs {
			stat := "S"
			switch {
			case job.Suspended:
				stat = "T"
			case job == fg:
				stat = "S+"
			}
			records = append(records, psjobs.ProcessRecord{
				PID: job.PID, TTY: pty, Stat: stat, CLI: job.CLI, WorkDir: job.WorkDir,
			})
		}
		return records, nil
	}
	return nil, nil
}

// ---------------------------------------------------------------------------
// mux.Multiplexer
// ---------------------------------------------------------------------------

// Name implements mux.Multiplexer.
func (w *World) Name() string { return "sim" }

// Session implements mux.Multiplexer.
func (w *World) Session() string { return w.session }

// ListWindows implements mux.Multiplexer.
func (w *World) ListWindows(context.Context) ([]mux.Window, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	var out []mux.Window
	for _, win := range w.sortedWindows() {
		out = append(out, mux.Window{Index: win.Index, Title: win.Title, PID: win.Shell.PID, TTY: win.tty()})
	}
	return out, nil
}

// WindowForTerminal implements mux.Multiplexer.
func (w *World) WindowForTerminal(_ context.Context, term psjobs.Pseudoterminal) (int, bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, win := range w.windows {
		if win.tty() == term.Name {
			return win.Index, true, nil
		}
	}
	return 0, false, nil
}

// WindowTitle implements mux.Multiplexer.
func (w *World) WindowTitle(_ context.Context, index int) (string, bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	win, ok := w.windows[index]
	if !ok {
		return "", false, nil
	}
	return win.Title, true, nil
}

// SetWindowTitle implements mux.Multiplexer.
func (w *World) SetWindowTitle(_ context.Context, index int, title string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	win, ok := w.windows[index]
	if !ok {
		return fmt.Errorf("no window %d", index)
	}
	win.Title = title
	return nil
}

// CreateWindow implements mux.Multiplexer.
func (w *World) CreateWindow(_ context.Context, index int) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.windows[index]; !ok {
		w.addWindowLocked(index, "bash", "/")
	}
	return nil
}

// SendShellCommand implements mux.Multiplexer by interpreting the line.
// Lines typed while a job owns the terminal are recorded but have no effect.
func (w *World) SendShellCommand(_ context.Context, argv []string, index int) error {
	// Round-trip through shell quoting like a real terminal would.
	words, err := shellquote.Split(shellquote.Join(argv...))
	if err != nil {
		return err
	}
	sent := Sent{Window: index, Argv: words}

	w.mu.Lock()
	w.sent = append(w.sent, sent)
	if win, ok := w.windows[index]; ok && win.foreground() == nil {
		w.interpretLocked(win, words)
	}
	hook := w.OnSend
	w.mu.Unlock()

	if hook != nil {
		hook(sent)
	}
	return nil
}

func (w *World) interpretLocked(win *Window, words []string) {
	if len(words) == 0 {
		return
	}
	switch words[0] {
	case "fg":
		if w.IgnoreResume {
			return
		}
		for i := len(win.Jobs) - 1; i >= 0; i-- {
			if win.Jobs[i].Suspended {
				win.Jobs[i].Suspended = false
				return
			}
		}
	case "cd":
		if len(words) > 1 {
			win.Cwd = words[1]
		}
	case "exit":
		delete(w.windows, win.Index)
	case "vim":
		w.launchVimLocked(win, words)
	}
}

func (w *World) launchVimLocked(win *Window, words []string) {
	var name string
	var paths []string
	for i := 1; i < len(words); i++ {
		switch words[i] {
		case "--servername":
			if i+1 < len(words) {
				name = words[i+1]
				i++
			}
		case "-p":
		default:
			paths = append(paths, words[i])
		}
	}
	job := &Job{PID: w.pid(), CLI: words, WorkDir: win.Cwd}
	win.Jobs = append(win.Jobs, job)
	if name == "" {
		return
	}
	items := make([]snapshot.WorkspaceItem, 0, len(paths))
	for i, p := range paths {
		items = append(items, snapshot.WorkspaceItem{
			Index: i + 1, Status: "a", Modified: snapshot.ModifiedNo, Path: snapshot.PathOf(p), Line: 1,
		})
	}
	w.servers[strings.ToUpper(name)] = &Server{Name: name, Window: win.Index, PID: job.PID, Items: items}
}

// ---------------------------------------------------------------------------
// runner.Runner for vim remote control
// ---------------------------------------------------------------------------

// Run answers vim --serverlist, --remote-expr and --remote-send.
func (w *World) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	if len(args) == 1 && args[0] == "--serverlist" {
		var b strings.Builder
		for _, s := range w.servers {
			b.WriteString(strings.ToUpper(s.Name) + "\n")
		}
		return []byte(b.String()), nil
	}
	if len(args) == 4 && args[0] == "--servername" {
		key := strings.ToUpper(args[1])
		server, ok := w.servers[key]
		if !ok {
			return nil, fmt.Errorf("%s: no server %s: %w", name, args[1], verrors.ErrToolFailed)
		}
		switch args[2] {
		case "--remote-expr":
			w.extractions[key]++
			if w.FailExtract[server.Name] {
				return nil, fmt.Errorf("%s: E449: invalid expression: %w", name, verrors.ErrToolFailed)
			}
			return []byte(renderBufferList(server.Items)), nil
		case "--remote-send":
			w.quitServerLocked(server)
			return nil, nil
		}
	}
	return nil, fmt.Errorf("unexpected command: %s %s", name, strings.Join(args, " "))
}

func (w *World) quitServerLocked(server *Server) {
	delete(w.servers, strings.ToUpper(server.Name))
	win, ok := w.windows[server.Window]
	if !ok {
		return
	}
	for i, job := range win.Jobs {
		if job.PID == server.PID {
			win.Jobs = append(win.Jobs[:i], win.Jobs[i+1:]...)
			return
		}
	}
}

// renderBufferList formats items the way :ls prints buffers.
func renderBufferList(items []snapshot.WorkspaceItem) string {
	var b strings.Builder
	for _, item := range items {
		insert := " "
		if item.IsModified() {
			insert = "+"
		}
		path := "[No Name]"
		if item.Path != nil {
			path = *item.Path
		}
		fmt.Fprintf(&b, "%3d %-2s %s \"%s\" line %d\n", item.Index, item.Status, insert, path, item.Line)
	}
	return b.String()
}

var _ mux.Multiplexer = (*World)(nil)
