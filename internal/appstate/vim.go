package appstate

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	verrors "github.com/Iron-Ham/vimsaver/internal/errors"
	"github.com/Iron-Ham/vimsaver/internal/logging"
	"github.com/Iron-Ham/vimsaver/internal/psjobs"
	"github.com/Iron-Ham/vimsaver/internal/runner"
	"github.com/Iron-Ham/vimsaver/internal/snapshot"
)

// VimName is the application id of the vim recognizer.
const VimName = "vim"

// Defaults for VimOptions.
const (
	DefaultVimBinary      = "vim"
	DefaultBufferListFunc = "BufferList"
	DefaultProbeTimeout   = 2 * time.Second
	DefaultVimQuitKeys    = `<C-\><C-N>:wqa<CR>`
)

// bufferLine matches one entry of the buffer list function, which prints
// lines shaped like :ls output: `  1 %a   "/a/b.txt"   line 10`.
var bufferLine = regexp.MustCompile(`^\s*([0-9]+)\s*(\S+)\s*([+ ])\s*"(.+)"\s*line ([0-9]+)`)

// noNamePath is how vim lists a buffer without a file.
const noNamePath = "[No Name]"

// VimOptions configure the vim recognizer.
type VimOptions struct {
	Binary string
	// BufferListFunc is a user-defined vim function returning the buffer
	// list; it is called as <func>() through --remote-expr.
	BufferListFunc string
	ProbeTimeout   time.Duration
	QuitKeys       string
	Runner         runner.Runner
	Logger         *logging.Logger
}

// Vim recognizes vim processes started with --servername.
type Vim struct {
	opts VimOptions
}

// NewVim creates the vim recognizer, filling unset options with defaults.
func NewVim(opts VimOptions) *Vim {
	if opts.Binary == "" {
		opts.Binary = DefaultVimBinary
	}
	if opts.BufferListFunc == "" {
		opts.BufferListFunc = DefaultBufferListFunc
	}
	if opts.ProbeTimeout <= 0 {
		opts.ProbeTimeout = DefaultProbeTimeout
	}
	if opts.QuitKeys == "" {
		opts.QuitKeys = DefaultVimQuitKeys
	}
	if opts.Runner == nil {
		opts.Runner = runner.NewExec()
	}
	if opts.Logger == nil {
		opts.Logger = logging.NopLogger()
	}
	return &Vim{opts: opts}
}

// Name implements Recognizer.
func (v *Vim) Name() string { return VimName }

// Matches implements Recognizer: argv[0] names a vim and the process serves
// a remote-control name.
func (v *Vim) Matches(proc psjobs.ProcessRecord) bool {
	if !strings.Contains(filepath.Base(proc.Program()), "vim") {
		return false
	}
	return serverName(proc.CLI) != ""
}

// Attach implements Recognizer.
func (v *Vim) Attach(proc psjobs.ProcessRecord) (Instance, error) {
	name := serverName(proc.CLI)
	if name == "" {
		return nil, fmt.Errorf("process %d has no --servername", proc.PID)
	}
	return v.Lookup(name), nil
}

// Lookup implements Recognizer.
func (v *Vim) Lookup(identity string) Instance {
	return &vimInstance{vim: v, server: identity, logger: v.opts.Logger.WithServer(identity)}
}

func serverName(cli []string) string {
	for i := 1; i+1 < len(cli); i++ {
		if cli[i] == "--servername" {
			return cli[i+1]
		}
	}
	return ""
}

type vimInstance struct {
	vim    *Vim
	server string
	logger *logging.Logger
}

func (i *vimInstance) Identity() string { return i.server }

func (i *vimInstance) run(ctx context.Context, args ...string) ([]byte, error) {
	return i.vim.opts.Runner.Run(ctx, i.vim.opts.Binary, args...)
}

// ExtractItems asks the instance for its buffer list.
func (i *vimInstance) ExtractItems(ctx context.Context) ([]snapshot.WorkspaceItem, error) {
	out, err := i.run(ctx, "--servername", i.server, "--remote-expr", i.vim.opts.BufferListFunc+"()")
	if err != nil {
		return nil, verrors.NewEnvironmentError(i.vim.opts.Binary, "query buffer list of "+i.server, err)
	}
	items := ParseBufferList(string(out))
	i.logger.Debug("extracted buffers", "count", len(items))
	return items, nil
}

// IsReachable runs --serverlist under the probe timeout.
func (i *vimInstance) IsReachable(ctx context.Context) bool {
	probeCtx, cancel := context.WithTimeout(ctx, i.vim.opts.ProbeTimeout)
	defer cancel()

	out, err := i.run(probeCtx, "--serverlist")
	if err != nil {
		if probeCtx.Err() != nil || verrors.Is(err, context.DeadlineExceeded) {
			i.logger.Warn("server probe timed out, assuming it is alive",
				"timeout", i.vim.opts.ProbeTimeout.String())
			return true
		}
		i.logger.Debug("server probe failed", "error", err.Error())
		return false
	}
	for _, line := range strings.Split(string(out), "\n") {
		if strings.EqualFold(strings.TrimSpace(line), i.server) {
			return true
		}
	}
	return false
}

// RequestQuit sends the quit keys. Delivery is not confirmed.
func (i *vimInstance) RequestQuit(ctx context.Context) error {
	if _, err := i.run(ctx, "--servername", i.server, "--remote-send", i.vim.opts.QuitKeys); err != nil {
		return verrors.NewEnvironmentError(i.vim.opts.Binary, "send quit to "+i.server, err)
	}
	return nil
}

func (i *vimInstance) LaunchCommand(paths []string) []string {
	argv := []string{i.vim.opts.Binary, "--servername", i.server, "-p"}
	return append(argv, paths...)
}

// ParseBufferList parses buffer list output. Hidden buffers and lines that
// do not match are dropped; a buffer without a file gets a nil path.
func ParseBufferList(out string) []snapshot.WorkspaceItem {
	var items []snapshot.WorkspaceItem
	for _, line := range strings.Split(out, "\n") {
		m := bufferLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		item := snapshot.WorkspaceItem{Status: m[2], Modified: snapshot.ModifiedNo}
		if item.IsHidden() {
			continue
		}
		item.Index, _ = strconv.Atoi(m[1])
		item.Line, _ = strconv.Atoi(m[5])
		if m[3] == "+" {
			item.Modified = snapshot.ModifiedYes
		}
		if m[4] != noNamePath {
			item.Path = snapshot.PathOf(m[4])
		}
		items = append(items, item)
	}
	return items
}

var _ Recognizer = (*Vim)(nil)
