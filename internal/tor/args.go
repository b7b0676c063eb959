// Package tor knows the tor daemon's command line and log format.
package tor

import (
	"strconv"
)

// Params holds the per-instance settings passed on the tor command line.
type Params struct {
	SOCKSPort     int
	ControlPort   int
	DataDirectory string
	ExtraArgs     []string // appended verbatim after the per-instance flags
}

// BuildArgs returns the tor arguments for one instance, without argv[0].
// The per-instance flags always come first so ExtraArgs cannot reorder them.
func BuildArgs(p *Params) []string {
	args := make([]string, 0, 6+len(p.ExtraArgs))
	args = append(args,
		"--SOCKSPort", strconv.Itoa(p.SOCKSPort),
		"--DataDirectory", p.DataDirectory,
		"--ControlPort", strconv.Itoa(p.ControlPort),
	)
	return append(args, p.ExtraArgs...)
}

// Command returns the full argv for executablePath.
func Command(executablePath string, p *Params) []string {
	return append([]string{executablePath}, BuildArgs(p)...)
}
