// Package runner is the single place vimsaver spawns external programs.
//
// Every interaction with the live terminal session (w, ps, pwdx, tmux,
// screen, vim) goes through a Runner so that tests can script the output of
// those programs without touching the host.
package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	verrors "github.com/Iron-Ham/vimsaver/internal/errors"
	"github.com/kballard/go-shellquote"
)

// Runner runs a program to completion and returns its standard output.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExitError reports a program that ran but exited unsuccessfully.
// Stdout holds whatever the program printed before failing.
type ExitError struct {
	Command string
	Code    int
	Stdout  []byte
	Stderr  string
}

func (e *ExitError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("%s: exit status %d: %s", e.Command, e.Code, e.Stderr)
	}
	return fmt.Sprintf("%s: exit status %d", e.Command, e.Code)
}

// Unwrap lets errors.Is(err, verrors.ErrToolFailed) match.
func (e *ExitError) Unwrap() error {
	return verrors.ErrToolFailed
}

// ExitCode returns the exit status carried by err, or -1 when err is not an ExitError.
func ExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return -1
}

// Exec runs programs on the local host with os/exec.
type Exec struct{}

// NewExec returns a Runner backed by os/exec.
func NewExec() *Exec {
	return &Exec{}
}

// Run executes name with args. A missing binary is reported as an
// EnvironmentError wrapping ErrToolMissing; a non-zero exit as *ExitError.
func (Exec) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	out, err := cmd.Output()
	if err == nil {
		return out, nil
	}

	if errors.Is(err, exec.ErrNotFound) {
		return nil, verrors.NewEnvironmentError(name, "run "+name, verrors.ErrToolMissing)
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return out, fmt.Errorf("%s: %w", CommandLine(name, args...), ctxErr)
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return out, &ExitError{
			Command: CommandLine(name, args...),
			Code:    exitErr.ExitCode(),
			Stdout:  out,
			Stderr:  strings.TrimSpace(stderr.String()),
		}
	}
	return out, fmt.Errorf("%s: %w", CommandLine(name, args...), err)
}

// CommandLine renders a program invocation as a single shell-quoted line.
func CommandLine(name string, args ...string) string {
	return shellquote.Join(append([]string{name}, args...)...)
}
