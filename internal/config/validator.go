package config

import (
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/gobwas/glob"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config field path (e.g., "reconcile.max_passes")
	Value   any    // The invalid value
	Message string // Human-readable error description
}

// Error implements the error interface for ValidationError
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for ValidationErrors
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// sessionNameRegex matches names both tmux and screen accept as a target.
// tmux treats '.' and ':' as target separators.
var sessionNameRegex = regexp.MustCompile(`^[A-Za-z0-9_][A-Za-z0-9_-]*$`)

// vimFuncRegex matches a callable vim function name, including autoload names.
var vimFuncRegex = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_#.:]*$`)

// ValidBackends returns the list of multiplexer backend names
func ValidBackends() []string {
	return []string{"screen", "tmux"}
}

// ValidApps returns the list of application recognizer names
func ValidApps() []string {
	return []string{"vim"}
}

// ValidWorkdirResolvers returns the list of working directory resolvers
func ValidWorkdirResolvers() []string {
	return []string{"pwdx", "proc"}
}

// ValidLogLevels returns the list of valid log levels
func ValidLogLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}

// ValidLogFormats returns the list of valid log formats
func ValidLogFormats() []string {
	return []string{"text", "json"}
}

// Validate checks the Config for invalid values and returns all validation errors found
func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	errors = append(errors, c.validateSession()...)
	errors = append(errors, c.validateMultiplexer()...)
	errors = append(errors, c.validateApps()...)
	errors = append(errors, c.validateInspector()...)
	errors = append(errors, c.validateReconcile()...)
	errors = append(errors, c.validateQuit()...)
	errors = append(errors, c.validatePaths()...)
	errors = append(errors, c.validateLogging()...)

	return errors
}

func oneOf(field, value string, valid []string) []ValidationError {
	if slices.Contains(valid, value) {
		return nil
	}
	return []ValidationError{{
		Field:   field,
		Value:   value,
		Message: fmt.Sprintf("must be one of: %s", strings.Join(valid, ", ")),
	}}
}

// validateSession validates the SessionConfig
func (c *Config) validateSession() []ValidationError {
	if !sessionNameRegex.MatchString(c.Session.Name) {
		return []ValidationError{{
			Field:   "session.name",
			Value:   c.Session.Name,
			Message: "must start with a letter, digit or underscore and contain only letters, digits, '_' and '-'",
		}}
	}
	return nil
}

// validateMultiplexer validates the MultiplexerConfig
func (c *Config) validateMultiplexer() []ValidationError {
	errors := oneOf("multiplexer.backend", c.Multiplexer.Backend, ValidBackends())

	if strings.ContainsAny(c.Multiplexer.Socket, "/ \t") {
		errors = append(errors, ValidationError{
			Field:   "multiplexer.socket",
			Value:   c.Multiplexer.Socket,
			Message: "must be a socket name, not a path",
		})
	}

	return errors
}

// validateApps validates the AppsConfig
func (c *Config) validateApps() []ValidationError {
	var errors []ValidationError

	if len(c.Apps.Enabled) == 0 {
		errors = append(errors, ValidationError{
			Field:   "apps.enabled",
			Value:   c.Apps.Enabled,
			Message: "must name at least one application",
		})
	}
	seen := make(map[string]bool)
	for i, name := range c.Apps.Enabled {
		field := fmt.Sprintf("apps.enabled[%d]", i)
		errors = append(errors, oneOf(field, name, ValidApps())...)
		if seen[name] {
			errors = append(errors, ValidationError{
				Field:   field,
				Value:   name,
				Message: "duplicate application",
			})
		}
		seen[name] = true
	}

	vim := c.Apps.Vim
	if strings.TrimSpace(vim.Binary) == "" {
		errors = append(errors, ValidationError{
			Field:   "apps.vim.binary",
			Value:   vim.Binary,
			Message: "must not be empty",
		})
	}
	if !vimFuncRegex.MatchString(vim.BufferListFunc) {
		errors = append(errors, ValidationError{
			Field:   "apps.vim.buffer_list_func",
			Value:   vim.BufferListFunc,
			Message: "must be a vim function name",
		})
	}
	if vim.ProbeTimeout <= 0 {
		errors = append(errors, ValidationError{
			Field:   "apps.vim.probe_timeout",
			Value:   vim.ProbeTimeout,
			Message: "must be positive",
		})
	}
	if vim.QuitKeys == "" {
		errors = append(errors, ValidationError{
			Field:   "apps.vim.quit_keys",
			Value:   vim.QuitKeys,
			Message: "must not be empty",
		})
	}

	return errors
}

// validateInspector validates the InspectorConfig
func (c *Config) validateInspector() []ValidationError {
	return oneOf("inspector.workdir", c.Inspector.Workdir, ValidWorkdirResolvers())
}

// validateReconcile validates the ReconcileConfig
func (c *Config) validateReconcile() []ValidationError {
	var errors []ValidationError
	r := c.Reconcile

	if r.MaxPasses < 0 {
		errors = append(errors, ValidationError{
			Field:   "reconcile.max_passes",
			Value:   r.MaxPasses,
			Message: "must be non-negative (0 means unbounded)",
		})
	}
	if r.InitialBackoff <= 0 {
		errors = append(errors, ValidationError{
			Field:   "reconcile.initial_backoff",
			Value:   r.InitialBackoff,
			Message: "must be positive",
		})
	}
	if r.MaxBackoff < r.InitialBackoff {
		errors = append(errors, ValidationError{
			Field:   "reconcile.max_backoff",
			Value:   r.MaxBackoff,
			Message: fmt.Sprintf("must be at least reconcile.initial_backoff (%v)", r.InitialBackoff),
		})
	}
	if strings.TrimSpace(r.ResumeCommand) == "" {
		errors = append(errors, ValidationError{
			Field:   "reconcile.resume_command",
			Value:   r.ResumeCommand,
			Message: "must not be empty",
		})
	}
	for i, pattern := range r.AllowedShells {
		if _, err := glob.Compile(pattern); err != nil {
			errors = append(errors, ValidationError{
				Field:   fmt.Sprintf("reconcile.allowed_shells[%d]", i),
				Value:   pattern,
				Message: fmt.Sprintf("invalid glob pattern: %v", err),
			})
		}
	}

	return errors
}

// validateQuit validates the QuitConfig
func (c *Config) validateQuit() []ValidationError {
	if c.Quit.ExitTimeout < 0 {
		return []ValidationError{{
			Field:   "quit.exit_timeout",
			Value:   c.Quit.ExitTimeout,
			Message: "must be non-negative",
		}}
	}
	return nil
}

// validatePaths validates the PathsConfig
func (c *Config) validatePaths() []ValidationError {
	if strings.TrimSpace(c.Paths.SnapshotFile) == "" {
		return []ValidationError{{
			Field:   "paths.snapshot_file",
			Value:   c.Paths.SnapshotFile,
			Message: "must not be empty",
		}}
	}
	return nil
}

// validateLogging validates the LoggingConfig
func (c *Config) validateLogging() []ValidationError {
	var errors []ValidationError

	if c.Logging.Level != "" {
		errors = append(errors, oneOf("logging.level", strings.ToLower(c.Logging.Level), ValidLogLevels())...)
	}
	if c.Logging.Format != "" {
		errors = append(errors, oneOf("logging.format", c.Logging.Format, ValidLogFormats())...)
	}

	// Max size must be positive
	if c.Logging.MaxSizeMB <= 0 {
		errors = append(errors, ValidationError{
			Field:   "logging.max_size_mb",
			Value:   c.Logging.MaxSizeMB,
			Message: "must be positive",
		})
	}

	// Reasonable upper bound for log file size
	const maxLogSizeMB = 1000 // 1GB
	if c.Logging.MaxSizeMB > maxLogSizeMB {
		errors = append(errors, ValidationError{
			Field:   "logging.max_size_mb",
			Value:   c.Logging.MaxSizeMB,
			Message: fmt.Sprintf("exceeds maximum of %dMB", maxLogSizeMB),
		})
	}

	// Max backups must be non-negative
	if c.Logging.MaxBackups < 0 {
		errors = append(errors, ValidationError{
			Field:   "logging.max_backups",
			Value:   c.Logging.MaxBackups,
			Message: "must be non-negative",
		})
	}

	return errors
}
