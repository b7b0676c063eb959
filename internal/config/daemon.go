package config

import "sync"

// DaemonDefaults are the [daemon] values used when a start request leaves
// the executable path or the count empty.
type DaemonDefaults struct {
	Path  string `json:"path"`
	Count int    `json:"count"`
}

// Defaults holds the current DaemonDefaults for concurrent readers.
type Defaults struct {
	mu sync.RWMutex
	v  DaemonDefaults
}

// NewDefaults creates a holder seeded with v.
func NewDefaults(v DaemonDefaults) *Defaults {
	return &Defaults{v: v}
}

// Get returns the current defaults.
func (d *Defaults) Get() DaemonDefaults {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.v
}

// Set replaces the defaults. Callers pass fully resolved values, see Resolve.
func (d *Defaults) Set(v DaemonDefaults) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.v = v
}
