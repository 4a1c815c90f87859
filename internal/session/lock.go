// Package session guards a multiplexer session against concurrent vimsaver
// invocations. Save, load and quit all type into the session's shells, so
// two of them interleaving would corrupt each other's keystrokes.
package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	verrors "github.com/Iron-Ham/vimsaver/internal/errors"
	"github.com/Iron-Ham/vimsaver/internal/logging"
	"github.com/Iron-Ham/vimsaver/internal/psjobs"
)

// LockSuffix is appended to the session name to form the lock file name.
const LockSuffix = ".lock"

// Lock represents an acquired session lock.
type Lock struct {
	Session   string    `json:"session"`
	Operation string    `json:"operation"`
	PID       int       `json:"pid"`
	Hostname  string    `json:"hostname"`
	StartedAt time.Time `json:"started_at"`

	lockFile string
	logger   *logging.Logger
}

// LockPath returns the lock file of session under stateDir.
func LockPath(stateDir, session string) string {
	return filepath.Join(stateDir, session+LockSuffix)
}

// AcquireLock takes the lock of session for operation. A lock left behind by
// a dead process is removed first. A live lock fails with ErrSessionLocked.
// The logger may be nil.
func AcquireLock(stateDir, session, operation string, logger *logging.Logger) (*Lock, error) {
	if logger == nil {
		logger = logging.NopLogger()
	}
	logger = logger.WithSession(session)

	if err := os.MkdirAll(stateDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create state dir: %w", err)
	}
	lockPath := LockPath(stateDir, session)

	existing, err := ReadLock(lockPath)
	switch {
	case err == nil:
		if psjobs.IsProcessAlive(existing.PID) {
			logger.Error("failed to acquire lock", "holder_pid", existing.PID, "holder_op", existing.Operation)
			return nil, lockedError(existing)
		}
		if err := os.Remove(lockPath); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to remove stale lock: %w", err)
		}
		logger.Warn("stale lock cleaned", "old_pid", existing.PID)
	case !os.IsNotExist(err):
		// Locks are published whole, so an unreadable one is debris.
		if rmErr := os.Remove(lockPath); rmErr != nil && !os.IsNotExist(rmErr) {
			return nil, fmt.Errorf("failed to remove unreadable lock: %w", rmErr)
		}
		logger.Warn("unreadable lock cleaned", "error", err.Error())
	}

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	lock := &Lock{
		Session:   session,
		Operation: operation,
		PID:       os.Getpid(),
		Hostname:  hostname,
		StartedAt: time.Now(),
		lockFile:  lockPath,
		logger:    logger,
	}

	data, err := json.MarshalIndent(lock, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal lock: %w", err)
	}

	if err := publish(stateDir, lockPath, data); err != nil {
		if os.IsExist(err) {
			if existing, readErr := ReadLock(lockPath); readErr == nil {
				return nil, lockedError(existing)
			}
			return nil, verrors.ErrSessionLocked
		}
		return nil, err
	}

	logger.Debug("session lock acquired", "pid", lock.PID, "operation", operation)
	return lock, nil
}

// publish writes data to a temporary file and links it into place, so the
// lock file never exists half-written. Link fails with an "exists" error when
// another invocation got there first.
func publish(dir, lockPath string, data []byte) error {
	tmp, err := os.CreateTemp(dir, filepath.Base(lockPath)+".*")
	if err != nil {
		return fmt.Errorf("failed to create lock file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write lock file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write lock file: %w", err)
	}
	if err := os.Link(tmp.Name(), lockPath); err != nil {
		if os.IsExist(err) {
			return err
		}
		return fmt.Errorf("failed to create lock file: %w", err)
	}
	return nil
}

func lockedError(holder *Lock) error {
	return fmt.Errorf("%w: %s by PID %d on %s", verrors.ErrSessionLocked, holder.Operation, holder.PID, holder.Hostname)
}

// Release removes the lock file if this process still owns it.
// Safe to call multiple times and on a nil Lock.
func (l *Lock) Release() error {
	if l == nil || l.lockFile == "" {
		return nil
	}

	existing, err := ReadLock(l.lockFile)
	if err != nil {
		return nil
	}
	if existing.PID != l.PID {
		return nil
	}
	if err := os.Remove(l.lockFile); err != nil {
		return err
	}
	l.logger.Debug("session lock released")
	return nil
}

// ReadLock reads a lock file.
func ReadLock(lockPath string) (*Lock, error) {
	data, err := os.ReadFile(lockPath)
	if err != nil {
		return nil, err
	}

	var lock Lock
	if err := json.Unmarshal(data, &lock); err != nil {
		return nil, fmt.Errorf("failed to parse lock file: %w", err)
	}
	lock.lockFile = lockPath
	return &lock, nil
}

