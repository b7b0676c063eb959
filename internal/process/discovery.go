package process

import (
	"path/filepath"
	"strings"
)

// Match is a running process found by name.
type Match struct {
	PID     int
	Name    string
	Cmdline string
}

// NormalizeName lowercases a process or file name and strips a directory
// prefix and a trailing ".exe" so "C:/x/Tor.exe", "tor.exe" and "tor" compare equal.
func NormalizeName(name string) string {
	name = strings.TrimSpace(name)
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		name = name[i+1:]
	}
	name = strings.ToLower(name)
	return strings.TrimSuffix(name, ".exe")
}

// nameMatches reports whether any candidate names the wanted process.
// Candidates are the kernel comm, the executable path and argv[0].
func nameMatches(want string, candidates ...string) bool {
	if want == "" {
		return false
	}
	for _, c := range candidates {
		if c == "" {
			continue
		}
		if NormalizeName(filepath.Base(c)) == want {
			return true
		}
	}
	return false
}
