package psjobs

import (
	"context"

	verrors "github.com/Iron-Ham/vimsaver/internal/errors"
	"github.com/Iron-Ham/vimsaver/internal/logging"
	"github.com/Iron-Ham/vimsaver/internal/runner"
)

// Inspector lists terminals and the processes attached to them.
type Inspector struct {
	runner   runner.Runner
	workdirs WorkdirResolver
	logger   *logging.Logger
}

// NewInspector creates an Inspector. A nil logger discards output.
func NewInspector(r runner.Runner, workdirs WorkdirResolver, logger *logging.Logger) *Inspector {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Inspector{runner: r, workdirs: workdirs, logger: logger}
}

// ListTerminals returns every pseudoterminal attached to an interactive session.
func (i *Inspector) ListTerminals(ctx context.Context) ([]Pseudoterminal, error) {
	out, err := i.runner.Run(ctx, "w", "-s")
	if err != nil {
		return nil, environmentError("w", "list terminals", err)
	}
	terms := ParseTerminals(string(out))
	i.logger.Debug("listed terminals", "count", len(terms))
	return terms, nil
}

// ListProcesses returns the processes whose controlling terminal is pty.
// Processes whose working directory cannot be resolved are dropped and logged.
func (i *Inspector) ListProcesses(ctx context.Context, pty string) ([]ProcessRecord, error) {
	out, err := i.runner.Run(ctx, "ps", "-t", pty, "-o", "pid,tty,stat,args")
	if err != nil {
		// ps exits 1 when nothing matched the selection.
		if runner.ExitCode(err) == 1 {
			return nil, nil
		}
		return nil, environmentError("ps", "list processes", err)
	}

	parsed := ParseProcesses(string(out))
	records := make([]ProcessRecord, 0, len(parsed))
	for _, rec := range parsed {
		wd, err := i.workdirs.Resolve(ctx, rec.PID)
		if err != nil || wd == "" {
			i.logger.Warn("dropping process with unresolved working directory",
				"pid", rec.PID,
				"tty", pty,
				"program", rec.Program(),
				"error", errString(err),
			)
			continue
		}
		rec.WorkDir = wd
		records = append(records, rec)
	}
	return records, nil
}

func environmentError(tool, op string, err error) error {
	if verrors.IsEnvironment(err) {
		return err
	}
	envErr := verrors.NewEnvironmentError(tool, op, err)
	var exitErr *runner.ExitError
	if verrors.As(err, &exitErr) {
		envErr = envErr.WithOutput(exitErr.Stderr)
	}
	return envErr
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
