package fleet

import (
	"errors"
	"fmt"
)

var (
	// ErrBusy is returned when a start or stop is already in flight.
	ErrBusy = errors.New("a start or stop request is already in progress")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("supervisor is closed")
)

// ValidationError rejects a start request before anything happens.
type ValidationError struct {
	Field  string // "executable_path" or "count"
	Value  string
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s %q: %s", e.Field, e.Value, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// ResourceError reports a data directory that could not be created.
// Index is -1 for the shared base directory.
type ResourceError struct {
	Index int
	Path  string
	Err   error
}

func (e *ResourceError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("create base data directory %s: %v", e.Path, e.Err)
	}
	return fmt.Sprintf("instance %d: create data directory %s: %v", e.Index, e.Path, e.Err)
}

func (e *ResourceError) Unwrap() error {
	return e.Err
}

// SpawnError reports a daemon the OS refused to start.
type SpawnError struct {
	Index int
	Err   error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("instance %d: spawn failed: %v", e.Index, e.Err)
}

func (e *SpawnError) Unwrap() error {
	return e.Err
}
