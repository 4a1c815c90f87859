package reconcile

import (
	"context"

	"github.com/Iron-Ham/vimsaver/internal/appstate"
	"github.com/Iron-Ham/vimsaver/internal/logging"
	"github.com/Iron-Ham/vimsaver/internal/metrics"
	"github.com/Iron-Ham/vimsaver/internal/psjobs"
)

// Quit asks every recognized instance of the session to save and exit.
// With CloseShell set, the shell each instance leaves behind is closed too.
// The report lists every instance quit, including those quit during a pass
// that was later restarted.
func (e *Engine) Quit(ctx context.Context) (*Report, error) {
	var quitted []InstanceRef
	report, err := e.run(ctx, metrics.OpQuit, func() (action, func()) {
		quit := func(ctx context.Context, t target, inst appstate.Instance, log *logging.Logger) error {
			if err := inst.RequestQuit(ctx); err != nil {
				return err
			}
			log.Info("quit requested")
			quitted = append(quitted, InstanceRef{Window: t.window, App: t.rec.Name(), Server: inst.Identity()})
			if e.opts.CloseShell {
				e.closeShell(ctx, t, log)
			}
			return nil
		}
		return quit, func() {}
	})
	if report != nil {
		report.Instances = quitted
	}
	return report, err
}

// closeShell waits for the quit process to exit and types "exit" into the
// shell left in the foreground. Anything else in the foreground is left alone.
func (e *Engine) closeShell(ctx context.Context, t target, log *logging.Logger) {
	if !e.opts.WaitForExit(ctx, t.proc.PID, e.opts.ExitTimeout) {
		log.Warn("instance still running, leaving its shell open", "timeout", e.opts.ExitTimeout.String())
		return
	}

	records, err := e.procs.ListProcesses(ctx, t.term.Name)
	if err != nil {
		log.Warn("failed to list processes after quit", "error", err.Error())
		return
	}
	fg, ok := psjobs.Foreground(records)
	if !ok {
		return
	}
	if !e.shells.Allows(fg) {
		log.Warn("don't know how to close foreground program", "foreground", fg.Program())
		return
	}
	if err := e.mux.SendShellCommand(ctx, []string{"exit"}, t.window); err != nil {
		log.Warn("failed to close shell", "error", err.Error())
	}
}
