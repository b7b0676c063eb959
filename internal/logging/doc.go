// Package logging provides structured logging with per-module log level configuration.
//
// # Overview
//
// The logging system uses Go's slog package with automatic output routing:
//   - Logs to systemd journal when available (Linux systems with journald)
//   - Logs to stdout when a terminal, pipe, or file is connected
//   - Logs to both when both are available
//
// # Usage
//
// Initialize the logging system once at startup:
//
//	logging.Initialize(logging.Config{
//		Level:  "info",      // Global log level: debug, info, warn, error
//		Format: "text",      // Output format: text or json
//		Modules: map[string]string{
//			"fleet": "debug",  // Per-module overrides
//			"api":   "warn",
//		},
//	})
//
// Get a logger for your module:
//
//	logger := logging.GetLogger("mymodule")
//	logger.Info("Starting up", "port", 8080)
//	logger.Debug("Details", "config", cfg)
//	logger.Warn("Something unusual", "error", err)
//	logger.Error("Failed", "error", err)
//
// Add contextual attributes:
//
//	logger := logging.GetLogger("fleet").With("socks_port", 9050)
//	logger.Info("Instance started")  // Includes socks_port in all logs
//
// # Log Levels
//
//	debug - Verbose debugging information
//	info  - General operational messages
//	warn  - Warning conditions
//	error - Error conditions
//
// # Output Destinations
//
// The system automatically detects available outputs:
//
//	stdout  → TextHandler or JSONHandler, when a terminal, pipe or file is attached
//	journal → journald, when [github.com/coreos/go-systemd/v22/journal.Enabled]
//	buffer  → the in-memory ring behind GetBuffer, always
//
// Every record is fanned out to each destination enabled for its level.
//
// # Operator Log Sink
//
// [Sink] is a separate, human-readable line stream (the supervisor's log box).
// It stamps each line when it is appended and keeps a bounded history:
//
//	sink := logging.NewSink(0)
//	sink.Infof("fleet", "Starting %d instances", n)
//	for _, e := range sink.Lines(true) {
//		fmt.Println(logging.FormatLine(e)) // [15:04:05] Starting 3 instances
//	}
//
// # Viewing Logs
//
// When running as a systemd service or on a system with journald:
//
//	journalctl -t torfleet              # All torfleet logs
//	journalctl -t torfleet -f           # Follow live
//	journalctl -t torfleet --since "5m" # Last 5 minutes
//	journalctl -t torfleet -p err       # Errors only
//
// Filter by structured fields:
//
//	journalctl -t torfleet MODULE=fleet
//	journalctl -t torfleet SOCKS_PORT=9050
//
// # Configuration
//
// Log levels can be set globally or per-module. Module-specific levels
// override the global level for that module only.
//
// Example TOML configuration:
//
//	[logging]
//	level = "info"
//	format = "text"
//	fleet = "debug"
//	api = "warn"
//	tor = "error"
package logging
