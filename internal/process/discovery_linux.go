//go:build linux

package process

import (
	"fmt"
	"os"
	"strings"

	"github.com/prometheus/procfs"
)

// FindByName returns every live process whose comm, executable or argv[0]
// names the given program. Zombies and the calling process are skipped.
func FindByName(name string) ([]Match, error) {
	want := NormalizeName(name)
	if want == "" {
		return nil, fmt.Errorf("empty process name")
	}

	procs, err := procfs.AllProcs()
	if err != nil {
		return nil, fmt.Errorf("failed to list processes: %w", err)
	}

	self := os.Getpid()
	var matches []Match
	for _, p := range procs {
		if p.PID == self {
			continue
		}

		// Processes can vanish while we walk /proc; any read error means skip.
		comm, err := p.Comm()
		if err != nil {
			continue
		}
		exe, _ := p.Executable()
		cmdline, _ := p.CmdLine()
		argv0 := ""
		if len(cmdline) > 0 {
			argv0 = cmdline[0]
		}

		if !nameMatches(want, comm, exe, argv0) {
			continue
		}

		if stat, err := p.Stat(); err == nil && stat.State == "Z" {
			continue
		}

		matches = append(matches, Match{
			PID:     p.PID,
			Name:    comm,
			Cmdline: strings.Join(cmdline, " "),
		})
	}
	return matches, nil
}

// processAlive reports whether pid exists and is not a zombie.
func processAlive(pid int) bool {
	p, err := procfs.NewProc(pid)
	if err != nil {
		return false
	}
	stat, err := p.Stat()
	if err != nil {
		return false
	}
	return stat.State != "Z" && stat.State != "X"
}
