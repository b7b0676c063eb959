package fleet

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/smazurov/torfleet/internal/logging"
	"github.com/smazurov/torfleet/internal/process"
	"github.com/smazurov/torfleet/internal/tor"
)

// Launcher spawns one daemon for a spec. The spec's data directory must exist.
type Launcher interface {
	Launch(executablePath string, spec InstanceSpec) (*Handle, error)
}

// liveness is the view of a running process a Handle needs.
type liveness interface {
	PID() int
	Alive() bool
	ExitErr() error
	StartedAt() time.Time
}

// Handle is one spawned daemon. It owns its process; nothing outside the
// launcher that created it can signal it.
type Handle struct {
	spec      InstanceSpec
	proc      liveness
	bootstrap atomic.Int32
}

func newHandle(spec InstanceSpec, proc liveness) *Handle {
	h := &Handle{spec: spec, proc: proc}
	h.bootstrap.Store(-1)
	return h
}

// Spec returns the resources assigned to the instance.
func (h *Handle) Spec() InstanceSpec { return h.spec }

// PID returns the OS process id.
func (h *Handle) PID() int { return h.proc.PID() }

// Alive asks the OS whether the process is still running.
func (h *Handle) Alive() bool { return h.proc.Alive() }

// ExitErr returns the wait status once the process has exited.
func (h *Handle) ExitErr() error { return h.proc.ExitErr() }

// StartedAt returns the spawn time.
func (h *Handle) StartedAt() time.Time { return h.proc.StartedAt() }

// Bootstrap returns the last reported bootstrap percentage, or -1 if none was seen.
func (h *Handle) Bootstrap() int { return int(h.bootstrap.Load()) }

func (h *Handle) setBootstrap(pct int) { h.bootstrap.Store(int32(pct)) }

// ExecLauncher starts real tor processes and forwards their output to a Sink.
type ExecLauncher struct {
	sink         *logging.Sink
	extraArgs    []string
	logger       logging.Logger
	daemonLogger logging.Logger
}

// NewExecLauncher creates a launcher. extraArgs are appended to every command line.
func NewExecLauncher(sink *logging.Sink, extraArgs []string, logger, daemonLogger logging.Logger) *ExecLauncher {
	if logger == nil {
		logger = slog.Default()
	}
	if daemonLogger == nil {
		daemonLogger = logger
	}
	return &ExecLauncher{
		sink:         sink,
		extraArgs:    extraArgs,
		logger:       logger,
		daemonLogger: daemonLogger,
	}
}

// Launch spawns the daemon with its working directory set to the executable's directory.
func (l *ExecLauncher) Launch(executablePath string, spec InstanceSpec) (*Handle, error) {
	argv := tor.Command(executablePath, &tor.Params{
		SOCKSPort:     spec.SOCKSPort,
		ControlPort:   spec.ControlPort,
		DataDirectory: spec.DataDirectory,
		ExtraArgs:     l.extraArgs,
	})

	proc := process.NewProcess(fmt.Sprintf("tor-%d", spec.SOCKSPort), argv, l.logger)
	proc.SetDir(filepath.Dir(executablePath))
	proc.SetLogParser(l.daemonLogger, tor.ParseLogLevel)

	h := newHandle(spec, proc)
	proc.SetOutputHandler(process.OutputHandlerFunc(func(source, line string) {
		tag := "out"
		level, _ := tor.ParseLogLevel(line)
		if source == process.SourceStderr {
			tag = "err"
			level = "error"
		}
		if l.sink != nil {
			prefix := fmt.Sprintf("%d %s", spec.SOCKSPort, tag)
			l.sink.Append(level, prefix, "["+prefix+"] "+line)
		}
		if pct, ok := tor.ParseBootstrap(line); ok {
			h.setBootstrap(pct)
		}
	}))

	if err := proc.Start(); err != nil {
		return nil, &SpawnError{Index: spec.Index, Err: err}
	}
	return h, nil
}
