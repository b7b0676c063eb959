package events

import (
	"time"

	"github.com/smazurov/torfleet/internal/logging"
)

// Event type constants for kelindar/event.
const (
	TypeStateChanged uint32 = iota + 1
	TypeInstanceStarted
	TypeInstanceExited
	TypeBatchCompleted
	TypeInstancesStopped
	TypeOperatorLine
	TypeLogEntry
)

// Event interface required by kelindar/event.
type Event interface {
	Type() uint32
}

// StateChangedEvent is published on every supervisor state transition.
type StateChangedEvent struct {
	From      string `json:"from" example:"idle" doc:"Previous supervisor state"`
	To        string `json:"to" example:"starting" doc:"New supervisor state"`
	Timestamp string `json:"timestamp" example:"2026-10-18T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for StateChangedEvent.
func (e StateChangedEvent) Type() uint32 { return TypeStateChanged }

// InstanceStartedEvent is published when a daemon was spawned and registered.
type InstanceStartedEvent struct {
	Index         int    `json:"index" example:"0" doc:"Instance index within the batch"`
	PID           int    `json:"pid" example:"4242" doc:"Operating system process id"`
	SOCKSPort     int    `json:"socks_port" example:"9050" doc:"SOCKS listener port"`
	ControlPort   int    `json:"control_port" example:"9151" doc:"Control listener port"`
	DataDirectory string `json:"data_directory" example:"/opt/tor/TorData/Data_9050" doc:"Instance data directory"`
	Timestamp     string `json:"timestamp" example:"2026-10-18T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for InstanceStartedEvent.
func (e InstanceStartedEvent) Type() uint32 { return TypeInstanceStarted }

// InstanceExitedEvent is published when an instance is found dead after the settle delay.
type InstanceExitedEvent struct {
	Index     int    `json:"index" example:"1" doc:"Instance index within the batch"`
	PID       int    `json:"pid" example:"4243" doc:"Operating system process id"`
	SOCKSPort int    `json:"socks_port" example:"9051" doc:"SOCKS listener port"`
	Error     string `json:"error,omitempty" example:"exit status 1" doc:"Exit status reported by the OS"`
	Timestamp string `json:"timestamp" example:"2026-10-18T10:30:03Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for InstanceExitedEvent.
func (e InstanceExitedEvent) Type() uint32 { return TypeInstanceExited }

// BatchCompletedEvent carries the outcome of a start batch.
type BatchCompletedEvent struct {
	Requested int      `json:"requested" example:"3" doc:"Instances requested"`
	Launched  int      `json:"launched" example:"3" doc:"Instances spawned successfully"`
	Survivors int      `json:"survivors" example:"2" doc:"Instances alive after the settle delay"`
	Endpoints []string `json:"endpoints" example:"[\"socks5://127.0.0.1:9050\"]" doc:"Proxy endpoints of surviving instances"`
	Errors    []string `json:"errors,omitempty" doc:"Per-instance failures"`
	Timestamp string   `json:"timestamp" example:"2026-10-18T10:30:03Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for BatchCompletedEvent.
func (e BatchCompletedEvent) Type() uint32 { return TypeBatchCompleted }

// InstancesStoppedEvent is published after a stop-all sweep.
type InstancesStoppedEvent struct {
	Killed    int    `json:"killed" example:"3" doc:"Processes terminated"`
	Failed    int    `json:"failed" example:"0" doc:"Processes that could not be terminated"`
	Timestamp string `json:"timestamp" example:"2026-10-18T10:31:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for InstancesStoppedEvent.
func (e InstancesStoppedEvent) Type() uint32 { return TypeInstancesStopped }

// OperatorLineEvent is one line of the operator log.
type OperatorLineEvent struct {
	Seq       uint64 `json:"seq" example:"17" doc:"Position of the line in the operator log"`
	Timestamp string `json:"timestamp" example:"2026-10-18T10:30:00.123Z" doc:"Time the line was appended"`
	Level     string `json:"level" example:"info" doc:"Line severity"`
	Source    string `json:"source" example:"9050 err" doc:"Producer of the line"`
	Message   string `json:"message" example:"Starting 3 tor instance(s)" doc:"Line text"`
	Line      string `json:"line" example:"[10:30:00] Starting 3 tor instance(s)" doc:"Formatted line as shown to operators"`
}

// Type returns the event type identifier for OperatorLineEvent.
func (e OperatorLineEvent) Type() uint32 { return TypeOperatorLine }

// NewOperatorLineEvent converts a stored sink line.
func NewOperatorLineEvent(entry logging.LogEntry) OperatorLineEvent {
	return OperatorLineEvent{
		Seq:       entry.Seq,
		Timestamp: entry.Timestamp.Format(time.RFC3339Nano),
		Level:     entry.Level,
		Source:    entry.Module,
		Message:   entry.Message,
		Line:      logging.FormatLine(entry),
	}
}

// LogEntryEvent represents a structured log entry for SSE streaming.
type LogEntryEvent struct {
	Seq        uint64         `json:"seq" example:"42" doc:"Position of the entry in the log buffer"`
	Timestamp  string         `json:"timestamp" example:"2026-10-18T10:30:00.123Z" doc:"Log timestamp"`
	Level      string         `json:"level" example:"info" doc:"Log level"`
	Module     string         `json:"module" example:"fleet" doc:"Source module"`
	Message    string         `json:"message" doc:"Log message"`
	Attributes map[string]any `json:"attributes,omitempty" doc:"Structured log attributes"`
}

// Type returns the event type identifier for LogEntryEvent.
func (e LogEntryEvent) Type() uint32 { return TypeLogEntry }

// NewLogEntryEvent converts a stored application log entry.
func NewLogEntryEvent(entry logging.LogEntry) LogEntryEvent {
	return LogEntryEvent{
		Seq:        entry.Seq,
		Timestamp:  entry.Timestamp.Format(time.RFC3339Nano),
		Level:      entry.Level,
		Module:     entry.Module,
		Message:    entry.Message,
		Attributes: entry.Attributes,
	}
}
