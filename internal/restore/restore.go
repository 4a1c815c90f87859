// Package restore replays a snapshot into a live session.
//
// Windows are visited in ascending index order. Each is created if missing
// and retitled, then every saved instance that is not already reachable is
// relaunched by typing a cd and the recognizer's launch command into the
// window's shell. Neither line is acknowledged; the shell runs them in the
// order they were typed.
package restore

import (
	"context"

	"github.com/Iron-Ham/vimsaver/internal/appstate"
	"github.com/Iron-Ham/vimsaver/internal/logging"
	"github.com/Iron-Ham/vimsaver/internal/metrics"
	"github.com/Iron-Ham/vimsaver/internal/mux"
	"github.com/Iron-Ham/vimsaver/internal/snapshot"
)

// RecognizerSource resolves application ids.
type RecognizerSource interface {
	Get(name string) (appstate.Recognizer, error)
}

// Options configure an Engine.
type Options struct {
	Metrics *metrics.Metrics
	Logger  *logging.Logger
}

// Report describes one restore.
type Report struct {
	WindowsCreated []int
	// Launched and AlreadyRunning hold server identities.
	Launched       []string
	AlreadyRunning []string
	// UnknownApps holds windows whose application id was not registered.
	UnknownApps []int
}

// Engine restores snapshots into one session.
type Engine struct {
	mux    mux.Multiplexer
	apps   RecognizerSource
	opts   Options
	logger *logging.Logger
}

// New creates an Engine.
func New(m mux.Multiplexer, apps RecognizerSource, opts Options) *Engine {
	if opts.Logger == nil {
		opts.Logger = logging.NopLogger()
	}
	return &Engine{
		mux:    m,
		apps:   apps,
		opts:   opts,
		logger: opts.Logger.WithSession(m.Session()),
	}
}

// Restore replays snap. Running it twice launches nothing the second time.
func (e *Engine) Restore(ctx context.Context, snap snapshot.Snapshot) (*Report, error) {
	report := &Report{}
	for _, idx := range snap.Indices() {
		if err := e.restoreWindow(ctx, idx, snap[idx], report); err != nil {
			return report, err
		}
	}
	return report, nil
}

func (e *Engine) restoreWindow(ctx context.Context, idx int, w *snapshot.WindowState, report *Report) error {
	log := e.logger.WithWindow(idx)

	_, exists, err := e.mux.WindowTitle(ctx, idx)
	if err != nil {
		return err
	}
	if !exists {
		log.Debug("window missing, creating it")
		if err := e.mux.CreateWindow(ctx, idx); err != nil {
			return err
		}
		e.opts.Metrics.WindowCreated()
		report.WindowsCreated = append(report.WindowsCreated, idx)
	}

	if err := e.mux.SetWindowTitle(ctx, idx, w.Title); err != nil {
		return err
	}

	rec, err := e.apps.Get(w.App)
	if err != nil {
		log.Warn("unknown application, skipping window", "app", w.App)
		e.opts.Metrics.Skipped(metrics.OpLoad, metrics.ReasonUnknownApp)
		report.UnknownApps = append(report.UnknownApps, idx)
		return nil
	}

	for _, server := range w.Servers() {
		inst := rec.Lookup(server)
		ilog := log.WithServer(server)

		if inst.IsReachable(ctx) {
			ilog.Warn("instance is already running, not reopening it")
			e.opts.Metrics.AlreadyRunning()
			report.AlreadyRunning = append(report.AlreadyRunning, server)
			continue
		}

		if err := e.mux.SendShellCommand(ctx, []string{"cd", w.WorkDir}, idx); err != nil {
			return err
		}
		if err := e.mux.SendShellCommand(ctx, inst.LaunchCommand(w.Paths(server)), idx); err != nil {
			return err
		}
		ilog.Info("instance launched", "items", len(w.Buffers[server]))
		e.opts.Metrics.Instance(metrics.OpLoad)
		report.Launched = append(report.Launched, server)
	}
	return nil
}
