package psjobs

import (
	"context"
	"syscall"
	"time"
)

// pollInterval is how often WaitForProcessExit re-checks a process.
const pollInterval = 50 * time.Millisecond

// IsProcessAlive checks if a process with the given PID exists.
// Uses kill(pid, 0) which checks for process existence without sending a signal.
func IsProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	return syscall.Kill(pid, 0) == nil
}

// WaitForProcessExit polls until the given PID exits, the timeout elapses or
// ctx is done. Returns true if the process is gone.
func WaitForProcessExit(ctx context.Context, pid int, timeout time.Duration) bool {
	if pid <= 0 || !IsProcessAlive(pid) {
		return true
	}

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return !IsProcessAlive(pid)
		case <-deadline.C:
			return !IsProcessAlive(pid)
		case <-ticker.C:
			if !IsProcessAlive(pid) {
				return true
			}
		}
	}
}
