package config

import (
	"strings"
	"testing"
	"time"
)

func TestValidationError_Error(t *testing.T) {
	err := ValidationError{
		Field:   "test.field",
		Value:   123,
		Message: "must be greater than zero",
	}

	expected := "test.field: must be greater than zero (got: 123)"
	if err.Error() != expected {
		t.Errorf("Error() = %q, want %q", err.Error(), expected)
	}
}

func TestValidationErrors_Error(t *testing.T) {
	t.Run("empty errors", func(t *testing.T) {
		var errs ValidationErrors
		if errs.Error() != "" {
			t.Errorf("Error() for empty = %q, want empty string", errs.Error())
		}
	})

	t.Run("single error", func(t *testing.T) {
		errs := ValidationErrors{
			{Field: "test.field", Value: 123, Message: "is invalid"},
		}
		expected := "test.field: is invalid (got: 123)"
		if errs.Error() != expected {
			t.Errorf("Error() = %q, want %q", errs.Error(), expected)
		}
	})

	t.Run("multiple errors", func(t *testing.T) {
		errs := ValidationErrors{
			{Field: "field1", Value: "bad", Message: "is invalid"},
			{Field: "field2", Value: -1, Message: "must be positive"},
		}
		result := errs.Error()
		if !strings.Contains(result, "2 validation errors") {
			t.Errorf("Error() should mention 2 errors: %s", result)
		}
		if !strings.Contains(result, "field1") || !strings.Contains(result, "field2") {
			t.Errorf("Error() should mention both fields: %s", result)
		}
	})
}

func TestConfig_Validate_DefaultConfig(t *testing.T) {
	cfg := Default()
	if errs := cfg.Validate(); len(errs) != 0 {
		t.Errorf("Default config should be valid, got errors: %v", errs)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name      string
		modify    func(*Config)
		wantField string
	}{
		{"session name with dot", func(c *Config) { c.Session.Name = "a.b" }, "session.name"},
		{"empty session name", func(c *Config) { c.Session.Name = "" }, "session.name"},
		{"unknown backend", func(c *Config) { c.Multiplexer.Backend = "zellij" }, "multiplexer.backend"},
		{"socket path", func(c *Config) { c.Multiplexer.Socket = "/tmp/sock" }, "multiplexer.socket"},
		{"no apps", func(c *Config) { c.Apps.Enabled = nil }, "apps.enabled"},
		{"unknown app", func(c *Config) { c.Apps.Enabled = []string{"emacs"} }, "apps.enabled[0]"},
		{"duplicate app", func(c *Config) { c.Apps.Enabled = []string{"vim", "vim"} }, "apps.enabled[1]"},
		{"empty vim binary", func(c *Config) { c.Apps.Vim.Binary = " " }, "apps.vim.binary"},
		{"bad buffer list func", func(c *Config) { c.Apps.Vim.BufferListFunc = "Buffer List()" }, "apps.vim.buffer_list_func"},
		{"zero probe timeout", func(c *Config) { c.Apps.Vim.ProbeTimeout = 0 }, "apps.vim.probe_timeout"},
		{"empty quit keys", func(c *Config) { c.Apps.Vim.QuitKeys = "" }, "apps.vim.quit_keys"},
		{"unknown resolver", func(c *Config) { c.Inspector.Workdir = "lsof" }, "inspector.workdir"},
		{"negative passes", func(c *Config) { c.Reconcile.MaxPasses = -1 }, "reconcile.max_passes"},
		{"zero initial backoff", func(c *Config) { c.Reconcile.InitialBackoff = 0 }, "reconcile.initial_backoff"},
		{"max below initial", func(c *Config) { c.Reconcile.MaxBackoff = time.Millisecond }, "reconcile.max_backoff"},
		{"empty resume command", func(c *Config) { c.Reconcile.ResumeCommand = "" }, "reconcile.resume_command"},
		{"bad glob", func(c *Config) { c.Reconcile.AllowedShells = []string{"ba[sh"} }, "reconcile.allowed_shells[0]"},
		{"negative exit timeout", func(c *Config) { c.Quit.ExitTimeout = -time.Second }, "quit.exit_timeout"},
		{"empty snapshot file", func(c *Config) { c.Paths.SnapshotFile = "" }, "paths.snapshot_file"},
		{"bad log level", func(c *Config) { c.Logging.Level = "trace" }, "logging.level"},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }, "logging.format"},
		{"zero log size", func(c *Config) { c.Logging.MaxSizeMB = 0 }, "logging.max_size_mb"},
		{"huge log size", func(c *Config) { c.Logging.MaxSizeMB = 5000 }, "logging.max_size_mb"},
		{"negative backups", func(c *Config) { c.Logging.MaxBackups = -1 }, "logging.max_backups"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)
			errs := cfg.Validate()
			if len(errs) != 1 {
				t.Fatalf("Validate() = %v, want exactly one error", errs)
			}
			if errs[0].Field != tt.wantField {
				t.Errorf("Field = %q, want %q", errs[0].Field, tt.wantField)
			}
		})
	}
}

func TestConfig_Validate_Accepts(t *testing.T) {
	cfg := Default()
	cfg.Session.Name = "work_2-b"
	cfg.Multiplexer.Backend = "tmux"
	cfg.Apps.Vim.BufferListFunc = "my#buffers"
	cfg.Reconcile.MaxPasses = 0
	cfg.Reconcile.AllowedShells = []string{"*sh", "fish"}
	cfg.Logging.Level = "DEBUG"
	cfg.Logging.Format = "json"

	if errs := cfg.Validate(); len(errs) != 0 {
		t.Errorf("Validate() = %v, want no errors", errs)
	}
}
