package cmd

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/smazurov/torfleet/internal/events"
	"github.com/smazurov/torfleet/internal/fleet"
	"github.com/smazurov/torfleet/internal/logging"
	"github.com/smazurov/torfleet/internal/process"
)

// FleetConfig is the resolved daemon configuration shared by the server and
// the subcommands. main fills it after config, env and flags are merged.
type FleetConfig struct {
	DaemonPath  string
	DaemonName  string
	DaemonCount int
	ExtraArgs   []string
	KillGrace   time.Duration
	SettleDelay time.Duration
	SOCKSBase   int
	ControlBase int
	DataDirName string
	Scheme      string
}

// ParseExtraArgs splits the daemon.extra_args setting into argv words.
func ParseExtraArgs(s string) ([]string, error) {
	args, err := process.ParseCommand(s)
	if err != nil {
		return nil, fmt.Errorf("daemon extra args: %w", err)
	}
	return args, nil
}

// NewSupervisor builds a supervisor that launches real daemons and sweeps by
// process name. bus may be nil.
func (c *FleetConfig) NewSupervisor(sink *logging.Sink, bus *events.Bus) *fleet.Supervisor {
	processLogger := logging.GetLogger("process")
	grace := c.KillGrace
	if grace <= 0 {
		grace = process.DefaultKillGrace
	}
	return fleet.NewSupervisor(&fleet.Options{
		DaemonName:  c.DaemonName,
		DataDirName: c.DataDirName,
		Scheme:      c.Scheme,
		SOCKSBase:   c.SOCKSBase,
		ControlBase: c.ControlBase,
		SettleDelay: c.SettleDelay,
		Launcher:    fleet.NewExecLauncher(sink, c.ExtraArgs, processLogger, logging.GetLogger("tor")),
		Sweeper:     fleet.NewProcSweeper(grace, processLogger),
		Sink:        sink,
		EventBus:    bus,
		Logger:      logging.GetLogger("fleet"),
	})
}

// echoSink prints every sink line to w until the returned func is called.
func echoSink(sink *logging.Sink, w io.Writer) func() {
	var mu sync.Mutex
	return sink.OnAppend(func(entry logging.LogEntry) {
		mu.Lock()
		defer mu.Unlock()
		fmt.Fprintln(w, logging.FormatLine(entry))
	})
}
