//go:build unix && !linux

package process

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"syscall"
)

// FindByName returns every live process whose name matches, using pgrep.
func FindByName(name string) ([]Match, error) {
	want := NormalizeName(name)
	if want == "" {
		return nil, fmt.Errorf("empty process name")
	}

	out, err := exec.Command("pgrep", "-i", "-l", "-x", want).Output()
	if err != nil {
		var exitErr *exec.ExitError
		// pgrep exits 1 when nothing matched.
		if errors.As(err, &exitErr) && exitErr.ExitCode() == 1 {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to run pgrep: %w", err)
	}

	self := os.Getpid()
	var matches []Match
	for _, line := range bytes.Split(bytes.TrimSpace(out), []byte("\n")) {
		fields := strings.Fields(string(line))
		if len(fields) == 0 {
			continue
		}
		pid, err := strconv.Atoi(fields[0])
		if err != nil || pid == self {
			continue
		}
		m := Match{PID: pid, Name: want}
		if len(fields) > 1 {
			m.Name = fields[1]
		}
		matches = append(matches, m)
	}
	return matches, nil
}

func processAlive(pid int) bool {
	err := syscall.Kill(pid, 0)
	return err == nil || errors.Is(err, syscall.EPERM)
}
