// Package errors provides centralized error definitions and error handling utilities
// for vimsaver. It defines sentinel errors, typed errors that carry context about
// the multiplexer session or external tool involved, and classification helpers
// used by the CLI layer to decide what is fatal.
//
// # Error Types
//
// Domain-specific errors:
//   - SessionError: the managed multiplexer session is missing or unusable
//   - EnvironmentError: an external tool (w, ps, tmux, screen, vim) is missing
//     or produced output we cannot use
//
// Semantic errors:
//   - NotFoundError: a named backend, recognizer or snapshot was not found
//
// # Usage
//
//	err := errors.NewSessionError("cannot attach", errors.ErrSessionNotFound).
//		WithSession("vimsaver").WithBackend("screen")
//
//	if errors.IsEnvironment(err) { ... }
//	if errors.Is(err, errors.ErrRetriesExhausted) { ... }
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Re-export standard library functions for convenience.
// This allows callers to import only this package for all error handling.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	New    = errors.New
	Join   = errors.Join
)

// Severity represents the severity level of an error.
type Severity int

const (
	// SeverityDebug is for errors that are useful for debugging but not critical.
	SeverityDebug Severity = iota
	// SeverityWarning is for errors that are recovered but worth surfacing.
	SeverityWarning
	// SeverityError is for errors that indicate a real problem.
	SeverityError
	// SeverityFatal is for errors that abort the whole operation.
	SeverityFatal
)

// String returns the string representation of the severity level.
func (s Severity) String() string {
	switch s {
	case SeverityDebug:
		return "debug"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	case SeverityFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// -----------------------------------------------------------------------------
// Sentinel Errors
// -----------------------------------------------------------------------------

// Session-related sentinel errors
var (
	// ErrSessionNotFound indicates that the named multiplexer session does not exist.
	ErrSessionNotFound = New("multiplexer session not found")
	// ErrSessionLocked indicates that another invocation holds the session lock.
	ErrSessionLocked = New("session is locked by another invocation")
)

// Registry sentinel errors
var (
	// ErrUnknownBackend indicates that no multiplexer backend is registered under a name.
	ErrUnknownBackend = New("unknown multiplexer backend")
	// ErrUnknownRecognizer indicates that no application recognizer is registered under a name.
	ErrUnknownRecognizer = New("unknown application recognizer")
)

// Environment sentinel errors
var (
	// ErrToolMissing indicates that a required external program is not installed.
	ErrToolMissing = New("required tool not found")
	// ErrToolFailed indicates that an external program exited unsuccessfully.
	ErrToolFailed = New("external tool failed")
)

// Reconciliation sentinel errors
var (
	// ErrRetriesExhausted indicates that discovery kept restarting past its pass budget.
	ErrRetriesExhausted = New("discovery pass budget exhausted")
	// ErrSnapshotCorrupted indicates that a snapshot document could not be decoded.
	ErrSnapshotCorrupted = New("snapshot data corrupted")
)

// -----------------------------------------------------------------------------
// Base Error Implementation
// -----------------------------------------------------------------------------

// baseError provides common functionality for all error types.
type baseError struct {
	message  string
	cause    error
	severity Severity
}

// Error returns the error message.
func (e *baseError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

// Unwrap returns the underlying error.
func (e *baseError) Unwrap() error {
	return e.cause
}

// Is checks if this error matches the target.
func (e *baseError) Is(target error) bool {
	if e.cause != nil {
		return errors.Is(e.cause, target)
	}
	return false
}

// Severity returns the error severity.
func (e *baseError) Severity() Severity {
	return e.severity
}

// -----------------------------------------------------------------------------
// Domain-Specific Errors
// -----------------------------------------------------------------------------

// SessionError represents a problem with the managed multiplexer session.
//
// Example:
//
//	err := errors.NewSessionError("cannot open backend", errors.ErrSessionNotFound)
//	err = err.WithSession("work").WithBackend("tmux")
//	fmt.Println(err) // "session error [session=work, backend=tmux]: cannot open backend: multiplexer session not found"
type SessionError struct {
	baseError
	Session string
	Backend string
}

// NewSessionError creates a new SessionError. Session errors are fatal.
func NewSessionError(message string, cause error) *SessionError {
	return &SessionError{
		baseError: baseError{
			message:  message,
			cause:    cause,
			severity: SeverityFatal,
		},
	}
}

// WithSession adds the multiplexer session name to the error context.
func (e *SessionError) WithSession(name string) *SessionError {
	e.Session = name
	return e
}

// WithBackend adds the multiplexer backend name to the error context.
func (e *SessionError) WithBackend(name string) *SessionError {
	e.Backend = name
	return e
}

// Error returns the formatted error message.
func (e *SessionError) Error() string {
	var parts []string
	if e.Session != "" {
		parts = append(parts, fmt.Sprintf("session=%s", e.Session))
	}
	if e.Backend != "" {
		parts = append(parts, fmt.Sprintf("backend=%s", e.Backend))
	}
	return formatWithContext("session error", parts, e.message, e.cause)
}

// Is checks if this error matches the target.
func (e *SessionError) Is(target error) bool {
	if _, ok := target.(*SessionError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// EnvironmentError represents a failure of the host environment: a missing
// program, or a program whose output no longer matches what we parse.
//
// Example:
//
//	err := errors.NewEnvironmentError("ps", "list processes", errors.ErrToolMissing)
//	fmt.Println(err) // "environment error [tool=ps]: list processes: required tool not found"
type EnvironmentError struct {
	baseError
	Tool   string
	Output string
}

// NewEnvironmentError creates a new EnvironmentError for the given tool.
func NewEnvironmentError(tool, operation string, cause error) *EnvironmentError {
	return &EnvironmentError{
		baseError: baseError{
			message:  operation,
			cause:    cause,
			severity: SeverityFatal,
		},
		Tool: tool,
	}
}

// WithOutput attaches captured tool output (usually stderr) to the error.
func (e *EnvironmentError) WithOutput(output string) *EnvironmentError {
	e.Output = strings.TrimSpace(output)
	return e
}

// Error returns the formatted error message.
func (e *EnvironmentError) Error() string {
	var parts []string
	if e.Tool != "" {
		parts = append(parts, fmt.Sprintf("tool=%s", e.Tool))
	}
	msg := formatWithContext("environment error", parts, e.message, e.cause)
	if e.Output != "" {
		msg += " (output: " + e.Output + ")"
	}
	return msg
}

// Is checks if this error matches the target.
func (e *EnvironmentError) Is(target error) bool {
	if _, ok := target.(*EnvironmentError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// -----------------------------------------------------------------------------
// Semantic Errors
// -----------------------------------------------------------------------------

// NotFoundError represents a named resource that could not be found.
//
// Example:
//
//	err := errors.NewNotFoundError("backend", "zellij").WithCause(errors.ErrUnknownBackend)
//	fmt.Println(err) // "backend 'zellij' not found: unknown multiplexer backend"
type NotFoundError struct {
	baseError
	ResourceType string
	ResourceID   string
}

// NewNotFoundError creates a new NotFoundError.
func NewNotFoundError(resourceType, resourceID string) *NotFoundError {
	return &NotFoundError{
		baseError: baseError{
			message:  fmt.Sprintf("%s '%s' not found", resourceType, resourceID),
			severity: SeverityError,
		},
		ResourceType: resourceType,
		ResourceID:   resourceID,
	}
}

// WithCause adds a cause to the error.
func (e *NotFoundError) WithCause(cause error) *NotFoundError {
	e.cause = cause
	return e
}

// Is checks if this error matches the target.
func (e *NotFoundError) Is(target error) bool {
	if _, ok := target.(*NotFoundError); ok {
		return true
	}
	return e.baseError.Is(target)
}

func formatWithContext(kind string, parts []string, message string, cause error) string {
	prefix := kind
	if len(parts) > 0 {
		prefix = fmt.Sprintf("%s [%s]", kind, strings.Join(parts, ", "))
	}
	if cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, message, cause)
	}
	return fmt.Sprintf("%s: %s", prefix, message)
}

// -----------------------------------------------------------------------------
// Classification
// -----------------------------------------------------------------------------

// IsEnvironment reports whether err stems from the host environment
// (missing tools, unusable tool output).
func IsEnvironment(err error) bool {
	if err == nil {
		return false
	}
	var envErr *EnvironmentError
	return As(err, &envErr) || Is(err, ErrToolMissing)
}

// IsFatal reports whether err must abort the whole operation.
// Session and environment failures are fatal, as is an exhausted pass budget.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	if Is(err, ErrRetriesExhausted) || Is(err, ErrSessionLocked) {
		return true
	}
	return GetSeverity(err) == SeverityFatal
}

// GetSeverity returns the severity level of the error.
// Returns SeverityError for errors that carry no severity.
func GetSeverity(err error) Severity {
	if err == nil {
		return SeverityDebug
	}
	var sev interface{ Severity() Severity }
	if As(err, &sev) {
		return sev.Severity()
	}
	return SeverityError
}

// -----------------------------------------------------------------------------
// Convenience Constructors
// -----------------------------------------------------------------------------

// Wrap wraps an error with additional context message.
//
// Example:
//
//	err := errors.Wrap(baseErr, "failed to list windows")
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with a formatted context message.
//
// Example:
//
//	err := errors.Wrapf(baseErr, "failed to restore window %d", idx)
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}
