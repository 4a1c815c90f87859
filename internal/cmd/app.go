package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Iron-Ham/vimsaver/internal/appstate"
	"github.com/Iron-Ham/vimsaver/internal/config"
	"github.com/Iron-Ham/vimsaver/internal/history"
	"github.com/Iron-Ham/vimsaver/internal/logging"
	"github.com/Iron-Ham/vimsaver/internal/metrics"
	"github.com/Iron-Ham/vimsaver/internal/mux"
	"github.com/Iron-Ham/vimsaver/internal/psjobs"
	"github.com/Iron-Ham/vimsaver/internal/reconcile"
	"github.com/Iron-Ham/vimsaver/internal/runner"
	"github.com/Iron-Ham/vimsaver/internal/screen"
	"github.com/Iron-Ham/vimsaver/internal/session"
	"github.com/Iron-Ham/vimsaver/internal/tmux"
)

// environment is the host a command acts on: the program runner, the
// multiplexer backends and the process listing.
type environment struct {
	Runner    runner.Runner
	Backends  *mux.Registry
	Processes reconcile.ProcessSource
	// WaitForExit overrides how quit waits for an application to exit.
	WaitForExit func(ctx context.Context, pid int, timeout time.Duration) bool
}

// hostEnvironment builds the environment of the real machine.
var hostEnvironment = func(cfg *config.Config, logger *logging.Logger) (*environment, error) {
	r := runner.NewExec()
	workdirs, err := psjobs.NewWorkdirResolver(cfg.Inspector.Workdir, r)
	if err != nil {
		return nil, err
	}

	backends := mux.NewRegistry()
	backends.Register(screen.Name, screen.Open)
	backends.Register(tmux.Name, tmux.Open)

	return &environment{
		Runner:    r,
		Backends:  backends,
		Processes: psjobs.NewInspector(r, workdirs, logger),
	}, nil
}

// app carries what every command needs once configuration is resolved.
type app struct {
	cfg     *config.Config
	logger  *logging.Logger
	metrics *metrics.Metrics
	env     *environment
	apps    *appstate.Registry
}

func newApp() (*app, error) {
	if configErr != nil {
		return nil, fmt.Errorf("failed to read config: %w", configErr)
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	level := cfg.Logging.Level
	if viper.GetBool("verbose") {
		level = logging.LevelDebug
	}
	logger, err := logging.NewLogger(logging.Options{
		Level:      level,
		Format:     cfg.Logging.Format,
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		Compress:   cfg.Logging.Compress,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	env, err := hostEnvironment(cfg, logger)
	if err != nil {
		_ = logger.Close()
		return nil, err
	}

	vim := appstate.NewVim(appstate.VimOptions{
		Binary:         cfg.Apps.Vim.Binary,
		BufferListFunc: cfg.Apps.Vim.BufferListFunc,
		ProbeTimeout:   cfg.Apps.Vim.ProbeTimeout,
		QuitKeys:       cfg.Apps.Vim.QuitKeys,
		Runner:         env.Runner,
		Logger:         logger,
	})

	return &app{
		cfg:     cfg,
		logger:  logger,
		metrics: metrics.New(),
		env:     env,
		apps:    appstate.NewRegistry(vim),
	}, nil
}

// finish records the outcome of op, writes the metrics textfile when
// configured and closes the logger.
func (a *app) finish(op string, err error) {
	a.metrics.RunFinished(op, err)
	if path := a.cfg.Metrics.Textfile; path != "" {
		if werr := a.metrics.WriteTextfile(path); werr != nil {
			a.logger.Warn("failed to write metrics textfile", "path", path, "error", werr)
		}
	}
	if err != nil {
		a.logger.Error("command failed", "operation", op, "error", err)
	}
	_ = a.logger.Close()
}

func (a *app) stateDir() string {
	return a.cfg.Paths.ResolveStateDir()
}

func (a *app) lock(op string) (*session.Lock, error) {
	return session.AcquireLock(a.stateDir(), a.cfg.Session.Name, op, a.logger)
}

func (a *app) openSession(ctx context.Context) (mux.Multiplexer, error) {
	return a.env.Backends.Open(ctx, a.cfg.Multiplexer.Backend, mux.Options{
		Session: a.cfg.Session.Name,
		Socket:  a.cfg.Multiplexer.Socket,
		Runner:  a.env.Runner,
		Logger:  a.logger,
	})
}

func (a *app) engine(m mux.Multiplexer) (*reconcile.Engine, error) {
	recognizers, err := a.apps.Select(a.cfg.Apps.Enabled)
	if err != nil {
		return nil, err
	}
	rc := a.cfg.Reconcile
	return reconcile.New(m, a.env.Processes, reconcile.Options{
		Recognizers:    recognizers,
		AllowedShells:  rc.AllowedShells,
		ResumeCommand:  rc.ResumeCommand,
		MaxPasses:      rc.MaxPasses,
		InitialBackoff: rc.InitialBackoff,
		MaxBackoff:     rc.MaxBackoff,
		CloseShell:     a.cfg.Quit.CloseShell,
		ExitTimeout:    a.cfg.Quit.ExitTimeout,
		WaitForExit:    a.env.WaitForExit,
		Metrics:        a.metrics,
		Logger:         a.logger,
	})
}

func (a *app) openHistory() (*history.Store, error) {
	return history.Open(a.cfg.History.ResolvePath(a.stateDir()))
}

// withSession runs fn holding the invocation lock on an open session.
func (a *app) withSession(cmd *cobra.Command, op string, fn func(ctx context.Context, m mux.Multiplexer) error) error {
	lock, err := a.lock(op)
	if err != nil {
		return err
	}
	defer func() {
		if rerr := lock.Release(); rerr != nil {
			a.logger.Warn("failed to release lock", "error", rerr)
		}
	}()

	ctx := cmd.Context()
	m, err := a.openSession(ctx)
	if err != nil {
		return err
	}
	return fn(ctx, m)
}
