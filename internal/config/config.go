package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// Config represents the complete vimsaver configuration
type Config struct {
	Session     SessionConfig     `mapstructure:"session"`
	Multiplexer MultiplexerConfig `mapstructure:"multiplexer"`
	Apps        AppsConfig        `mapstructure:"apps"`
	Inspector   InspectorConfig   `mapstructure:"inspector"`
	Reconcile   ReconcileConfig   `mapstructure:"reconcile"`
	Quit        QuitConfig        `mapstructure:"quit"`
	Paths       PathsConfig       `mapstructure:"paths"`
	History     HistoryConfig     `mapstructure:"history"`
	Metrics     MetricsConfig     `mapstructure:"metrics"`
	Logging     LoggingConfig     `mapstructure:"logging"`
}

// SessionConfig names the multiplexer session that is saved and restored
type SessionConfig struct {
	// Name is the multiplexer session name (default: "vimsaver")
	Name string `mapstructure:"name"`
}

// MultiplexerConfig selects the multiplexer backend
type MultiplexerConfig struct {
	// Backend is the registered backend name: "screen" or "tmux" (default: "screen")
	Backend string `mapstructure:"backend"`
	// Socket is the tmux server socket name (-L). Ignored by screen.
	Socket string `mapstructure:"socket"`
}

// AppsConfig controls which application recognizers are active
type AppsConfig struct {
	// Enabled lists recognizer names in match order (default: ["vim"])
	Enabled []string  `mapstructure:"enabled"`
	Vim     VimConfig `mapstructure:"vim"`
}

// VimConfig configures the vim recognizer
type VimConfig struct {
	// Binary is the vim executable used for remote calls (default: "vim")
	Binary string `mapstructure:"binary"`
	// BufferListFunc is the user function returning the :ls listing (default: "BufferList")
	BufferListFunc string `mapstructure:"buffer_list_func"`
	// ProbeTimeout bounds the --serverlist reachability probe (default: 2s)
	ProbeTimeout time.Duration `mapstructure:"probe_timeout"`
	// QuitKeys is the key sequence sent to save and quit
	QuitKeys string `mapstructure:"quit_keys"`
}

// InspectorConfig configures process inspection
type InspectorConfig struct {
	// Workdir selects how a process working directory is resolved: "pwdx" or "proc"
	Workdir string `mapstructure:"workdir"`
}

// ReconcileConfig controls the discovery passes of save and quit
type ReconcileConfig struct {
	// MaxPasses bounds the passes per run, 0 = unbounded (default: 20)
	MaxPasses      int           `mapstructure:"max_passes"`
	InitialBackoff time.Duration `mapstructure:"initial_backoff"`
	MaxBackoff     time.Duration `mapstructure:"max_backoff"`
	// ResumeCommand is typed into a shell to resume a suspended job (default: "fg")
	ResumeCommand string `mapstructure:"resume_command"`
	// AllowedShells are glob patterns for programs that may receive typed commands
	AllowedShells []string `mapstructure:"allowed_shells"`
}

// QuitConfig controls the quit workflow
type QuitConfig struct {
	// CloseShell types "exit" into the shell left behind by a quit application (default: true)
	CloseShell  bool          `mapstructure:"close_shell"`
	ExitTimeout time.Duration `mapstructure:"exit_timeout"`
}

// PathsConfig controls where vimsaver reads and writes files
type PathsConfig struct {
	// SnapshotFile is the default snapshot path for save, load and show (default: "vimsaver.json")
	SnapshotFile string `mapstructure:"snapshot_file"`
	// StateDir holds lock files and the history database.
	// If empty, defaults to $XDG_STATE_HOME/vimsaver or ~/.local/state/vimsaver.
	StateDir string `mapstructure:"state_dir"`
}

// HistoryConfig controls the snapshot history database
type HistoryConfig struct {
	// Enabled records every saved snapshot (default: false)
	Enabled bool `mapstructure:"enabled"`
	// Path is the sqlite database. If empty, defaults to <state_dir>/history.db.
	Path string `mapstructure:"path"`
}

// MetricsConfig controls Prometheus textfile output
type MetricsConfig struct {
	// Textfile is written after each run when set
	Textfile string `mapstructure:"textfile"`
}

// LoggingConfig controls diagnostic logging
type LoggingConfig struct {
	// Level is the log level: "debug", "info", "warn", "error" (default: "warn")
	Level string `mapstructure:"level"`
	// Format is "text" or "json". Empty picks text for stderr and json for files.
	Format string `mapstructure:"format"`
	// File is a rotating log file. Empty logs to stderr.
	File string `mapstructure:"file"`
	// MaxSizeMB is the maximum log file size in megabytes before rotation (default: 10)
	MaxSizeMB int `mapstructure:"max_size_mb"`
	// MaxBackups is the number of backup log files to keep (default: 3)
	MaxBackups int  `mapstructure:"max_backups"`
	Compress   bool `mapstructure:"compress"`
}

// Default returns a Config with sensible default values
func Default() *Config {
	return &Config{
		Session: SessionConfig{
			Name: "vimsaver",
		},
		Multiplexer: MultiplexerConfig{
			Backend: "screen",
		},
		Apps: AppsConfig{
			Enabled: []string{"vim"},
			Vim: VimConfig{
				Binary:         "vim",
				BufferListFunc: "BufferList",
				ProbeTimeout:   2 * time.Second,
				QuitKeys:       `<C-\><C-N>:wqa<CR>`,
			},
		},
		Inspector: InspectorConfig{
			Workdir: "pwdx",
		},
		Reconcile: ReconcileConfig{
			MaxPasses:      20,
			InitialBackoff: 100 * time.Millisecond,
			MaxBackoff:     2 * time.Second,
			ResumeCommand:  "fg",
			AllowedShells:  []string{"bash", "zsh", "sh", "dash", "ksh", "fish"},
		},
		Quit: QuitConfig{
			CloseShell:  true,
			ExitTimeout: 3 * time.Second,
		},
		Paths: PathsConfig{
			SnapshotFile: "vimsaver.json",
			StateDir:     "", // Empty means use StateDir()
		},
		History: HistoryConfig{
			Enabled: false,
			Path:    "",
		},
		Logging: LoggingConfig{
			Level:      "warn",
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
	}
}

// SetDefaults registers default values with the global viper
func SetDefaults() {
	SetDefaultsOn(viper.GetViper())
}

// SetDefaultsOn registers default values with v
func SetDefaultsOn(v *viper.Viper) {
	defaults := Default()

	v.SetDefault("session.name", defaults.Session.Name)

	v.SetDefault("multiplexer.backend", defaults.Multiplexer.Backend)
	v.SetDefault("multiplexer.socket", defaults.Multiplexer.Socket)

	v.SetDefault("apps.enabled", defaults.Apps.Enabled)
	v.SetDefault("apps.vim.binary", defaults.Apps.Vim.Binary)
	v.SetDefault("apps.vim.buffer_list_func", defaults.Apps.Vim.BufferListFunc)
	v.SetDefault("apps.vim.probe_timeout", defaults.Apps.Vim.ProbeTimeout)
	v.SetDefault("apps.vim.quit_keys", defaults.Apps.Vim.QuitKeys)

	v.SetDefault("inspector.workdir", defaults.Inspector.Workdir)

	v.SetDefault("reconcile.max_passes", defaults.Reconcile.MaxPasses)
	v.SetDefault("reconcile.initial_backoff", defaults.Reconcile.InitialBackoff)
	v.SetDefault("reconcile.max_backoff", defaults.Reconcile.MaxBackoff)
	v.SetDefault("reconcile.resume_command", defaults.Reconcile.ResumeCommand)
	v.SetDefault("reconcile.allowed_shells", defaults.Reconcile.AllowedShells)

	v.SetDefault("quit.close_shell", defaults.Quit.CloseShell)
	v.SetDefault("quit.exit_timeout", defaults.Quit.ExitTimeout)

	v.SetDefault("paths.snapshot_file", defaults.Paths.SnapshotFile)
	v.SetDefault("paths.state_dir", defaults.Paths.StateDir)

	v.SetDefault("history.enabled", defaults.History.Enabled)
	v.SetDefault("history.path", defaults.History.Path)

	v.SetDefault("metrics.textfile", defaults.Metrics.Textfile)

	v.SetDefault("logging.level", defaults.Logging.Level)
	v.SetDefault("logging.format", defaults.Logging.Format)
	v.SetDefault("logging.file", defaults.Logging.File)
	v.SetDefault("logging.max_size_mb", defaults.Logging.MaxSizeMB)
	v.SetDefault("logging.max_backups", defaults.Logging.MaxBackups)
	v.SetDefault("logging.compress", defaults.Logging.Compress)
}

// DecodeHook converts the string forms accepted from files, env vars and
// flags: durations ("250ms") and comma-separated lists ("vim,nvim").
func DecodeHook() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		trimmedSliceHook(","),
	)
}

// trimmedSliceHook splits a string into a slice and trims each element.
func trimmedSliceHook(sep string) mapstructure.DecodeHookFunc {
	return func(f reflect.Type, t reflect.Type, data any) (any, error) {
		if f.Kind() != reflect.String || t != reflect.TypeOf([]string{}) {
			return data, nil
		}
		raw := data.(string)
		if strings.TrimSpace(raw) == "" {
			return []string{}, nil
		}
		parts := strings.Split(raw, sep)
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return out, nil
	}
}

// Load reads the configuration from viper into a Config struct and validates it
func Load() (*Config, error) {
	return LoadFrom(viper.GetViper())
}

// LoadFrom is Load for an explicit viper instance.
func LoadFrom(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(DecodeHook())); err != nil {
		return nil, err
	}

	// Validate the configuration
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	return &cfg, nil
}

// ConfigDir returns the path to the user's config directory
func ConfigDir() string {
	// Check XDG_CONFIG_HOME first
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "vimsaver")
	}
	// Fall back to ~/.config/vimsaver
	home, err := os.UserHomeDir()
	if err != nil {
		return ".vimsaver"
	}
	return filepath.Join(home, ".config", "vimsaver")
}

// ConfigFile returns the path to the config file
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

// ResolveStateDir returns the directory for lock files and history.
// An empty StateDir falls back to $XDG_STATE_HOME/vimsaver, then
// ~/.local/state/vimsaver. A leading ~ is expanded.
func (p *PathsConfig) ResolveStateDir() string {
	if p.StateDir != "" {
		return expandHome(p.StateDir)
	}
	if xdg := os.Getenv("XDG_STATE_HOME"); xdg != "" {
		return filepath.Join(xdg, "vimsaver")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".vimsaver"
	}
	return filepath.Join(home, ".local", "state", "vimsaver")
}

// ResolvePath returns the history database path under stateDir unless Path is set.
func (h *HistoryConfig) ResolvePath(stateDir string) string {
	if h.Path != "" {
		return expandHome(h.Path)
	}
	return filepath.Join(stateDir, "history.db")
}

func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(home, path[1:])
		}
	}
	return path
}
