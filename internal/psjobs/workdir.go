package psjobs

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/Iron-Ham/vimsaver/internal/runner"
)

// Work directory resolver names accepted by NewWorkdirResolver.
const (
	ResolverPwdx = "pwdx"
	ResolverProc = "proc"
)

// WorkdirResolver resolves the current working directory of a process.
type WorkdirResolver interface {
	Resolve(ctx context.Context, pid int) (string, error)
}

// NewWorkdirResolver returns the resolver registered under name.
func NewWorkdirResolver(name string, r runner.Runner) (WorkdirResolver, error) {
	switch name {
	case "", ResolverPwdx:
		return PwdxResolver{Runner: r}, nil
	case ResolverProc:
		return ProcResolver{Root: "/proc"}, nil
	default:
		return nil, fmt.Errorf("unknown workdir resolver %q (want %s or %s)", name, ResolverPwdx, ResolverProc)
	}
}

// PwdxResolver asks pwdx(1), which prints "PID: /path".
type PwdxResolver struct {
	Runner runner.Runner
}

// Resolve implements WorkdirResolver.
func (p PwdxResolver) Resolve(ctx context.Context, pid int) (string, error) {
	out, err := p.Runner.Run(ctx, "pwdx", strconv.Itoa(pid))
	if err != nil {
		return "", err
	}
	return parsePwdx(string(out))
}

func parsePwdx(out string) (string, error) {
	_, path, found := strings.Cut(strings.TrimSpace(out), ": ")
	path = strings.TrimSpace(path)
	if !found || !strings.HasPrefix(path, "/") {
		return "", fmt.Errorf("unusable pwdx output %q", strings.TrimSpace(out))
	}
	return path, nil
}

// ProcResolver reads the cwd symlink under a procfs mount.
type ProcResolver struct {
	Root string
}

// Resolve implements WorkdirResolver.
func (p ProcResolver) Resolve(_ context.Context, pid int) (string, error) {
	path, err := os.Readlink(fmt.Sprintf("%s/%d/cwd", p.Root, pid))
	if err != nil {
		return "", err
	}
	return path, nil
}
