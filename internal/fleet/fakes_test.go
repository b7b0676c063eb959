package fleet

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// recorder keeps the order in which fakes were called.
type recorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *recorder) add(call string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, call)
}

func (r *recorder) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

type fakeProc struct {
	pid     int
	alive   atomic.Bool
	started time.Time
}

func (p *fakeProc) PID() int             { return p.pid }
func (p *fakeProc) Alive() bool          { return p.alive.Load() }
func (p *fakeProc) StartedAt() time.Time { return p.started }
func (p *fakeProc) ExitErr() error {
	if p.alive.Load() {
		return nil
	}
	return errors.New("exit status 1")
}

type fakeLauncher struct {
	rec      *recorder
	failAt   map[int]bool
	dieEarly map[int]bool

	mu    sync.Mutex
	specs []InstanceSpec
	procs []*fakeProc
	next  int
}

func (l *fakeLauncher) Launch(_ string, spec InstanceSpec) (*Handle, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.rec != nil {
		l.rec.add("launch")
	}
	l.specs = append(l.specs, spec)
	if l.failAt[spec.Index] {
		return nil, &SpawnError{Index: spec.Index, Err: errors.New("permission denied")}
	}
	l.next++
	p := &fakeProc{pid: 1000 + l.next, started: time.Now()}
	p.alive.Store(!l.dieEarly[spec.Index])
	l.procs = append(l.procs, p)
	return newHandle(spec, p), nil
}

func (l *fakeLauncher) launched() []InstanceSpec {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]InstanceSpec(nil), l.specs...)
}

// killAll marks every live fake process dead and returns how many it killed.
func (l *fakeLauncher) killAll() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, p := range l.procs {
		if p.alive.Swap(false) {
			n++
		}
	}
	return n
}

type fakeSweeper struct {
	rec      *recorder
	launcher *fakeLauncher
	errs     []error

	mu    sync.Mutex
	names []string
}

func (s *fakeSweeper) Sweep(name string) SweepResult {
	s.mu.Lock()
	s.names = append(s.names, name)
	s.mu.Unlock()
	if s.rec != nil {
		s.rec.add("sweep")
	}
	killed := 0
	if s.launcher != nil {
		killed = s.launcher.killAll()
	}
	return SweepResult{Found: killed + len(s.errs), Killed: killed, Errors: s.errs}
}

func (s *fakeSweeper) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.names)
}

// writeExecutable creates an executable file named name in a fresh temp dir.
func writeExecutable(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755); err != nil {
		t.Fatalf("failed to write executable: %v", err)
	}
	return path
}

func waitResult(t *testing.T, ch <-chan BatchResult, timeout time.Duration) BatchResult {
	t.Helper()
	select {
	case res, ok := <-ch:
		if !ok {
			t.Fatal("result channel closed without a result")
		}
		return res
	case <-time.After(timeout):
		t.Fatal("timeout waiting for batch result")
		return BatchResult{}
	}
}
