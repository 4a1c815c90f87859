// Package reconcile drives the save and quit workflows over a live session.
//
// Each run is a sequence of discovery passes. A pass walks every terminal
// owned by the session, finds the processes a recognizer claims, makes sure
// each is in the foreground and then acts on it. A suspended process behind
// an allowed shell is resumed by typing the resume command into that shell;
// its effect cannot be observed synchronously, so the pass is abandoned and
// everything it gathered is thrown away. The next pass starts from a fresh
// listing. Only a pass that runs to completion produces a result.
package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/Iron-Ham/vimsaver/internal/appstate"
	verrors "github.com/Iron-Ham/vimsaver/internal/errors"
	"github.com/Iron-Ham/vimsaver/internal/logging"
	"github.com/Iron-Ham/vimsaver/internal/metrics"
	"github.com/Iron-Ham/vimsaver/internal/mux"
	"github.com/Iron-Ham/vimsaver/internal/psjobs"
)

// Defaults for Options.
const (
	DefaultResumeCommand  = "fg"
	DefaultMaxPasses      = 20
	DefaultInitialBackoff = 100 * time.Millisecond
	DefaultMaxBackoff     = 2 * time.Second
	DefaultExitTimeout    = 3 * time.Second
)

// ProcessSource lists terminals and their processes.
type ProcessSource interface {
	ListTerminals(ctx context.Context) ([]psjobs.Pseudoterminal, error)
	ListProcesses(ctx context.Context, pty string) ([]psjobs.ProcessRecord, error)
}

// Options configure an Engine.
type Options struct {
	Recognizers []appstate.Recognizer
	// AllowedShells are glob patterns; empty selects DefaultAllowedShells.
	AllowedShells []string
	ResumeCommand string
	// MaxPasses bounds the number of passes per run. Zero means unbounded.
	MaxPasses      int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	// CloseShell makes quit type "exit" into the shell a quit instance leaves behind.
	CloseShell  bool
	ExitTimeout time.Duration
	// WaitForExit defaults to psjobs.WaitForProcessExit.
	WaitForExit func(ctx context.Context, pid int, timeout time.Duration) bool
	Metrics     *metrics.Metrics
	Logger      *logging.Logger
}

// Step is the tagged outcome of handling one (window, process) pair.
type Step int

const (
	// StepDone means the pair was acted on.
	StepDone Step = iota
	// StepSkipped means the pair cannot be handled and is left out.
	StepSkipped
	// StepRestartPass means a resume was requested and the pass must start over.
	StepRestartPass
)

// String returns the step name.
func (s Step) String() string {
	switch s {
	case StepDone:
		return "done"
	case StepSkipped:
		return "skipped"
	case StepRestartPass:
		return "restart"
	default:
		return "unknown"
	}
}

// InstanceRef names an instance acted on during the final pass.
type InstanceRef struct {
	Window int
	App    string
	Server string
}

// Skip records a pair left out of the final pass.
type Skip struct {
	Window  int
	PID     int
	Program string
	Reason  string
}

// Report describes one run.
type Report struct {
	Operation string
	Passes    int
	Restarts  int
	// Skipped describes the final, completed pass only. So does Instances for
	// save; for quit it lists every instance quit across all passes.
	Instances []InstanceRef
	Skipped   []Skip
}

// Engine runs save and quit over one multiplexer session.
type Engine struct {
	mux    mux.Multiplexer
	procs  ProcessSource
	opts   Options
	shells *ShellMatcher
	logger *logging.Logger
}

// New creates an Engine.
func New(m mux.Multiplexer, procs ProcessSource, opts Options) (*Engine, error) {
	shells, err := NewShellMatcher(opts.AllowedShells)
	if err != nil {
		return nil, err
	}
	if opts.ResumeCommand == "" {
		opts.ResumeCommand = DefaultResumeCommand
	}
	if opts.InitialBackoff <= 0 {
		opts.InitialBackoff = DefaultInitialBackoff
	}
	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = DefaultMaxBackoff
	}
	if opts.ExitTimeout <= 0 {
		opts.ExitTimeout = DefaultExitTimeout
	}
	if opts.WaitForExit == nil {
		opts.WaitForExit = psjobs.WaitForProcessExit
	}
	if opts.Logger == nil {
		opts.Logger = logging.NopLogger()
	}
	return &Engine{
		mux:    m,
		procs:  procs,
		opts:   opts,
		shells: shells,
		logger: opts.Logger.WithSession(m.Session()),
	}, nil
}

// target is one (window, process) pair found during a pass.
type target struct {
	window int
	term   psjobs.Pseudoterminal
	proc   psjobs.ProcessRecord
	rec    appstate.Recognizer
}

// action acts on a foreground instance. An error skips the pair.
type action func(ctx context.Context, t target, inst appstate.Instance, log *logging.Logger) error

// passResult is the state gathered by one pass.
type passResult struct {
	instances []InstanceRef
	skipped   []Skip
}

var errRestartPass = verrors.New("resume requested")

// run executes passes until one completes. begin is called at the start of
// every pass and returns that pass's action and the function that commits
// its local state once the pass completes.
func (e *Engine) run(ctx context.Context, op string, begin func() (action, func())) (*Report, error) {
	report := &Report{Operation: op}

	operation := func() error {
		report.Passes++
		e.opts.Metrics.PassStarted(op)
		start := time.Now()

		act, commit := begin()
		result := &passResult{}
		restart, err := e.pass(ctx, op, report.Passes, act, result)
		e.opts.Metrics.ObservePass(op, time.Since(start))
		if err != nil {
			return backoff.Permanent(err)
		}
		if restart {
			report.Restarts++
			e.opts.Metrics.PassRestarted(op)
			return errRestartPass
		}

		commit()
		report.Instances = result.instances
		report.Skipped = result.skipped
		return nil
	}

	notify := func(_ error, wait time.Duration) {
		e.logger.WithPass(report.Passes).Debug("restarting discovery pass", "wait", wait.String())
	}

	err := backoff.RetryNotify(operation, e.newBackOff(ctx), notify)
	if verrors.Is(err, errRestartPass) {
		return report, fmt.Errorf("%w: still resuming after %d passes", verrors.ErrRetriesExhausted, report.Passes)
	}
	return report, err
}

func (e *Engine) newBackOff(ctx context.Context) backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = e.opts.InitialBackoff
	exp.MaxInterval = e.opts.MaxBackoff
	exp.MaxElapsedTime = 0
	exp.Reset()

	var b backoff.BackOff = exp
	if e.opts.MaxPasses > 0 {
		b = backoff.WithMaxRetries(b, uint64(e.opts.MaxPasses-1))
	}
	return backoff.WithContext(b, ctx)
}

// pass walks the session once. It returns restart=true as soon as a step
// asks for it, abandoning everything gathered so far.
func (e *Engine) pass(ctx context.Context, op string, n int, act action, result *passResult) (bool, error) {
	logger := e.logger.WithPass(n)

	terms, err := e.procs.ListTerminals(ctx)
	if err != nil {
		return false, err
	}

	seen := make(map[int]bool)
	for _, term := range terms {
		window, ok, err := e.mux.WindowForTerminal(ctx, term)
		if err != nil {
			return false, err
		}
		if !ok {
			continue
		}

		procs, err := e.procs.ListProcesses(ctx, term.Name)
		if err != nil {
			return false, err
		}
		for _, proc := range procs {
			rec, ok := appstate.Match(e.opts.Recognizers, proc)
			if !ok || seen[proc.PID] {
				continue
			}
			seen[proc.PID] = true

			t := target{window: window, term: term, proc: proc, rec: rec}
			step, err := e.step(ctx, op, t, act, logger, result)
			if err != nil {
				return false, err
			}
			if step == StepRestartPass {
				return true, nil
			}
		}
	}
	return false, nil
}

// step moves one pair from discovered to acted on, skipped, or a restart.
func (e *Engine) step(ctx context.Context, op string, t target, act action, logger *logging.Logger, result *passResult) (Step, error) {
	log := logger.WithWindow(t.window).With("pid", t.proc.PID, "app", t.rec.Name())

	skip := func(reason, msg string, args ...any) (Step, error) {
		log.Warn(msg, args...)
		e.opts.Metrics.Skipped(op, reason)
		result.skipped = append(result.skipped, Skip{
			Window:  t.window,
			PID:     t.proc.PID,
			Program: t.proc.Program(),
			Reason:  reason,
		})
		return StepSkipped, nil
	}

	if t.proc.IsSuspended() {
		records, err := e.procs.ListProcesses(ctx, t.term.Name)
		if err != nil {
			return StepSkipped, err
		}
		fg, ok := psjobs.Foreground(records)
		if !ok {
			return skip(metrics.ReasonNoForeground, "suspended process has no foreground process to resume it")
		}
		if !e.shells.Allows(fg) {
			return skip(metrics.ReasonForeignProcess, "cannot resume process behind its foreground program",
				"foreground", fg.Program())
		}
		if err := e.mux.SendShellCommand(ctx, []string{e.opts.ResumeCommand}, t.window); err != nil {
			return skip(metrics.ReasonActionFailed, "failed to send resume command", "error", err.Error())
		}
		e.opts.Metrics.ResumeRequested()
		log.Info("resume requested, restarting pass", "shell", fg.ProgramBase())
		return StepRestartPass, nil
	}

	inst, err := t.rec.Attach(t.proc)
	if err != nil {
		return skip(metrics.ReasonAttachFailed, "failed to attach to instance", "error", err.Error())
	}
	log = log.WithServer(inst.Identity())

	if err := act(ctx, t, inst, log); err != nil {
		if ctx.Err() != nil {
			return StepSkipped, ctx.Err()
		}
		return skip(metrics.ReasonActionFailed, "instance skipped", "error", err.Error())
	}

	e.opts.Metrics.Instance(op)
	result.instances = append(result.instances, InstanceRef{
		Window: t.window,
		App:    t.rec.Name(),
		Server: inst.Identity(),
	})
	return StepDone, nil
}
