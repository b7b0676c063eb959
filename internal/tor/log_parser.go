package tor

import (
	"strconv"
	"strings"
)

// ParseLogLevel extracts the severity from a tor log line.
// Tor writes lines like "Oct 18 12:00:00.000 [notice] Bootstrapped 5% (conn): Connecting".
// The returned level uses the names process output logging understands
// (debug, info, warn, error) and the message has the timestamp and tag removed.
func ParseLogLevel(line string) (level, msg string) {
	start := strings.Index(line, "[")
	if start == -1 {
		return "info", line
	}
	end := strings.Index(line[start:], "] ")
	if end == -1 {
		return "info", line
	}
	end += start

	mapped, ok := mapLevel(line[start+1 : end])
	if !ok {
		return "info", line
	}
	return mapped, line[end+2:]
}

func mapLevel(s string) (string, bool) {
	switch s {
	case "debug":
		return "debug", true
	case "info", "notice":
		return "info", true
	case "warn":
		return "warn", true
	case "err":
		return "error", true
	}
	return "", false
}

const bootstrapMarker = "Bootstrapped "

// ParseBootstrap returns the percentage from a "Bootstrapped NN%" line.
func ParseBootstrap(line string) (int, bool) {
	i := strings.Index(line, bootstrapMarker)
	if i == -1 {
		return 0, false
	}
	rest := line[i+len(bootstrapMarker):]
	pct := strings.IndexByte(rest, '%')
	if pct <= 0 {
		return 0, false
	}
	n, err := strconv.Atoi(rest[:pct])
	if err != nil || n < 0 || n > 100 {
		return 0, false
	}
	return n, true
}
