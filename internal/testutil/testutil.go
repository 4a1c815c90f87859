// Package testutil provides testing utilities for vimsaver tests.
package testutil

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"testing"

	"github.com/Iron-Ham/vimsaver/internal/runner"
)

// Response is one scripted result for a command line.
type Response struct {
	Output string
	Err    error
}

// FakeRunner is a scripted runner.Runner. Commands are matched on their full
// command line (name and args joined by single spaces). Each stubbed command
// line holds a queue of responses; the last response repeats once the queue
// drains. Unstubbed commands fail the call with an error.
type FakeRunner struct {
	mu        sync.Mutex
	responses map[string][]Response
	funcs     map[string]func() Response
	calls     []string
}

// NewFakeRunner returns an empty FakeRunner.
func NewFakeRunner() *FakeRunner {
	return &FakeRunner{
		responses: make(map[string][]Response),
		funcs:     make(map[string]func() Response),
	}
}

// Stub queues output for a command line.
func (f *FakeRunner) Stub(cmdline, output string) *FakeRunner {
	return f.StubResponse(cmdline, Response{Output: output})
}

// StubError queues a failure for a command line.
func (f *FakeRunner) StubError(cmdline string, err error) *FakeRunner {
	return f.StubResponse(cmdline, Response{Err: err})
}

// StubResponse queues an arbitrary response for a command line.
func (f *FakeRunner) StubResponse(cmdline string, resp Response) *FakeRunner {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses[cmdline] = append(f.responses[cmdline], resp)
	return f
}

// StubFunc answers a command line by calling fn on every invocation.
// Functions take precedence over queued responses.
func (f *FakeRunner) StubFunc(cmdline string, fn func() Response) *FakeRunner {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.funcs[cmdline] = fn
	return f
}

// Run implements runner.Runner.
func (f *FakeRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cmdline := strings.Join(append([]string{name}, args...), " ")

	f.mu.Lock()
	f.calls = append(f.calls, cmdline)
	fn, hasFn := f.funcs[cmdline]
	queue := f.responses[cmdline]
	var resp Response
	found := hasFn
	if !hasFn && len(queue) > 0 {
		resp = queue[0]
		if len(queue) > 1 {
			f.responses[cmdline] = queue[1:]
		}
		found = true
	}
	f.mu.Unlock()

	if hasFn {
		resp = fn()
	}
	if !found {
		return nil, fmt.Errorf("unexpected command: %s", cmdline)
	}
	return []byte(resp.Output), resp.Err
}

// Calls returns every command line run so far, in order.
func (f *FakeRunner) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// CallsWithPrefix returns the command lines that start with prefix.
func (f *FakeRunner) CallsWithPrefix(prefix string) []string {
	var out []string
	for _, call := range f.Calls() {
		if strings.HasPrefix(call, prefix) {
			out = append(out, call)
		}
	}
	return out
}

// Count returns how many times cmdline was run exactly.
func (f *FakeRunner) Count(cmdline string) int {
	n := 0
	for _, call := range f.Calls() {
		if call == cmdline {
			n++
		}
	}
	return n
}

// ExitError builds the error a real runner returns for a failed program.
func ExitError(cmdline string, code int) error {
	return &runner.ExitError{Command: cmdline, Code: code}
}

// SkipIfNoTool skips the test if the named program is not installed.
func SkipIfNoTool(t *testing.T, name string) {
	t.Helper()
	if _, err := exec.LookPath(name); err != nil {
		t.Skipf("%s not available", name)
	}
}

var _ runner.Runner = (*FakeRunner)(nil)
