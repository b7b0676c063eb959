package fleet

import (
	"log/slog"
	"time"

	"github.com/smazurov/torfleet/internal/logging"
	"github.com/smazurov/torfleet/internal/process"
)

// SweepResult summarizes one name-based termination pass.
type SweepResult struct {
	Found  int
	Killed int
	Errors []error
}

// Sweeper terminates every process with the given executable name.
type Sweeper interface {
	Sweep(name string) SweepResult
}

// ProcSweeper finds processes through the OS process table.
type ProcSweeper struct {
	Grace  time.Duration
	Logger logging.Logger
}

// NewProcSweeper creates a sweeper; grace <= 0 uses process.DefaultKillGrace.
func NewProcSweeper(grace time.Duration, logger logging.Logger) *ProcSweeper {
	if logger == nil {
		logger = slog.Default()
	}
	return &ProcSweeper{Grace: grace, Logger: logger}
}

// Sweep terminates all processes named name. Lookup failure is reported as an error.
func (s *ProcSweeper) Sweep(name string) SweepResult {
	matches, err := process.FindByName(name)
	if err != nil {
		return SweepResult{Errors: []error{err}}
	}
	res := process.TerminateAll(matches, s.Grace, s.Logger)
	return SweepResult{
		Found:  len(matches),
		Killed: len(res.Killed),
		Errors: res.Errors,
	}
}
