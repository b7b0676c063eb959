package process

import (
	"errors"
	"fmt"
	"os"
	"syscall"
	"time"

	"github.com/smazurov/torfleet/internal/logging"
)

// DefaultKillGrace is how long TerminateAll waits after SIGTERM before SIGKILL.
const DefaultKillGrace = 5 * time.Second

const pollInterval = 50 * time.Millisecond

// TerminationError reports a process that could not be terminated.
type TerminationError struct {
	PID int
	Err error
}

func (e *TerminationError) Error() string {
	return fmt.Sprintf("terminate pid %d: %v", e.PID, e.Err)
}

func (e *TerminationError) Unwrap() error {
	return e.Err
}

// TerminateResult summarizes one TerminateAll call.
type TerminateResult struct {
	Killed []int
	Errors []error
}

// TerminateAll sends SIGTERM to every match, waits up to grace for them to
// exit and sends SIGKILL to whatever is left. A failure on one pid is
// recorded and never stops the rest. A process that is already gone counts
// as terminated.
func TerminateAll(matches []Match, grace time.Duration, logger logging.Logger) TerminateResult {
	var result TerminateResult
	if len(matches) == 0 {
		return result
	}
	if grace <= 0 {
		grace = DefaultKillGrace
	}

	pending := make(map[int]bool, len(matches))
	for _, m := range matches {
		err := signalPID(m.PID, syscall.SIGTERM)
		switch {
		case err == nil:
			pending[m.PID] = true
		case isGone(err):
			result.Killed = append(result.Killed, m.PID)
		default:
			logger.Warn("Failed to send SIGTERM", "pid", m.PID, "name", m.Name, "error", err)
			result.Errors = append(result.Errors, &TerminationError{PID: m.PID, Err: err})
		}
	}

	deadline := time.Now().Add(grace)
	for len(pending) > 0 && time.Now().Before(deadline) {
		for pid := range pending {
			if !processAlive(pid) {
				delete(pending, pid)
				result.Killed = append(result.Killed, pid)
			}
		}
		if len(pending) > 0 {
			time.Sleep(pollInterval)
		}
	}

	for pid := range pending {
		logger.Warn("Process ignored SIGTERM, forcing kill", "pid", pid, "grace", grace)
		if err := signalPID(pid, syscall.SIGKILL); err != nil && !isGone(err) {
			result.Errors = append(result.Errors, &TerminationError{PID: pid, Err: err})
			continue
		}
		result.Killed = append(result.Killed, pid)
	}

	return result
}

func signalPID(pid int, sig syscall.Signal) error {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	return proc.Signal(sig)
}

func isGone(err error) bool {
	return errors.Is(err, os.ErrProcessDone) || errors.Is(err, syscall.ESRCH)
}
