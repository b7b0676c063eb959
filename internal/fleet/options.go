package fleet

import (
	"time"

	"github.com/smazurov/torfleet/internal/events"
	"github.com/smazurov/torfleet/internal/logging"
)

// Defaults applied by NewSupervisor.
const (
	DefaultDaemonName  = "tor"
	DefaultDataDirName = "TorData"
	DefaultScheme      = "socks5"
	DefaultSettleDelay = 3 * time.Second
)

// Options configures a Supervisor. Zero values take the defaults above.
type Options struct {
	// DaemonName is the executable name swept by stop-all and required of
	// the start path (case-insensitive, ".exe" ignored).
	DaemonName string

	// DataDirName is created next to the executable and holds one
	// Data_<port> directory per instance.
	DataDirName string

	// Scheme prefixes reported endpoints.
	Scheme string

	SOCKSBase   int
	ControlBase int

	// SettleDelay is how long a batch waits before counting survivors.
	SettleDelay time.Duration

	// Launcher spawns daemons. Defaults to an ExecLauncher writing to Sink.
	Launcher Launcher

	// Sweeper terminates daemons by name. Defaults to a ProcSweeper.
	Sweeper Sweeper

	// Sink receives operator log lines. A private sink is created if nil.
	Sink *logging.Sink

	// EventBus receives state, instance and batch events (optional).
	EventBus *events.Bus

	// Logger for supervisor operations. If nil, uses slog.Default().
	Logger logging.Logger
}
