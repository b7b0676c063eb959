package fleet

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/smazurov/torfleet/internal/events"
	"github.com/smazurov/torfleet/internal/logging"
)

type testFleet struct {
	sup      *Supervisor
	launcher *fakeLauncher
	sweeper  *fakeSweeper
	rec      *recorder
	sink     *logging.Sink
	exe      string
}

func newTestFleet(t *testing.T, settle time.Duration, configure func(*Options)) *testFleet {
	t.Helper()
	rec := &recorder{}
	launcher := &fakeLauncher{rec: rec, failAt: map[int]bool{}, dieEarly: map[int]bool{}}
	sweeper := &fakeSweeper{rec: rec, launcher: launcher}
	sink := logging.NewSink(0)

	opts := &Options{
		SettleDelay: settle,
		Launcher:    launcher,
		Sweeper:     sweeper,
		Sink:        sink,
		Logger:      testLogger(),
	}
	if configure != nil {
		configure(opts)
	}

	sup := NewSupervisor(opts)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = sup.Close(ctx)
	})

	return &testFleet{
		sup:      sup,
		launcher: launcher,
		sweeper:  sweeper,
		rec:      rec,
		sink:     sink,
		exe:      writeExecutable(t, "tor", "exit 0"),
	}
}

func (f *testFleet) sinkText() string {
	var b strings.Builder
	for _, e := range f.sink.Lines(false) {
		b.WriteString(e.Message)
		b.WriteByte('\n')
	}
	return b.String()
}

func TestStartInstancesAllSurvive(t *testing.T) {
	f := newTestFleet(t, 20*time.Millisecond, nil)

	ch, err := f.sup.StartInstances(f.exe, "3")
	if err != nil {
		t.Fatalf("StartInstances: %v", err)
	}
	res := waitResult(t, ch, 2*time.Second)

	want := []string{"socks5://127.0.0.1:9050", "socks5://127.0.0.1:9051", "socks5://127.0.0.1:9052"}
	if !slices.Equal(res.Endpoints, want) {
		t.Errorf("endpoints = %v, want %v", res.Endpoints, want)
	}
	if res.Requested != 3 || res.Launched != 3 || res.Survivors != 3 {
		t.Errorf("result = %+v", res)
	}
	if n := f.sup.registry.Len(); n != 3 {
		t.Errorf("registry size = %d, want 3", n)
	}
	if f.sup.State() != StateRunning || !f.sup.Running() {
		t.Errorf("state = %s running = %v", f.sup.State(), f.sup.Running())
	}
	if !slices.Equal(f.sup.Endpoints(), want) {
		t.Errorf("Endpoints() = %v", f.sup.Endpoints())
	}

	base := filepath.Join(filepath.Dir(f.exe), DefaultDataDirName)
	for _, port := range []string{"9050", "9051", "9052"} {
		if info, err := os.Stat(filepath.Join(base, "Data_"+port)); err != nil || !info.IsDir() {
			t.Errorf("expected data dir for %s: %v", port, err)
		}
	}

	for i, spec := range f.launcher.launched() {
		if spec.Index != i {
			t.Errorf("launch %d had index %d", i, spec.Index)
		}
	}
}

func TestStartInstancesSweepsFirst(t *testing.T) {
	f := newTestFleet(t, 10*time.Millisecond, nil)

	ch, err := f.sup.StartInstances(f.exe, "2")
	if err != nil {
		t.Fatalf("StartInstances: %v", err)
	}
	waitResult(t, ch, 2*time.Second)

	calls := f.rec.list()
	if len(calls) != 3 || calls[0] != "sweep" {
		t.Errorf("calls = %v, want sweep before launches", calls)
	}
	if f.sweeper.names[0] != DefaultDaemonName {
		t.Errorf("swept %q, want %q", f.sweeper.names[0], DefaultDaemonName)
	}
}

func TestStartInstancesInvalidCount(t *testing.T) {
	for _, count := range []string{"0", "-1", "abc", "", "1.5", "102"} {
		t.Run(count, func(t *testing.T) {
			f := newTestFleet(t, 10*time.Millisecond, nil)

			ch, err := f.sup.StartInstances(f.exe, count)
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if verr.Field != "count" {
				t.Errorf("field = %s, want count", verr.Field)
			}
			if ch != nil {
				t.Error("expected no result channel")
			}
			if f.sweeper.count() != 0 || len(f.launcher.launched()) != 0 {
				t.Error("validation failure must have no side effects")
			}
			if f.sup.registry.Len() != 0 {
				t.Error("registry must be untouched")
			}
			if _, err := os.Stat(filepath.Join(filepath.Dir(f.exe), DefaultDataDirName)); !os.IsNotExist(err) {
				t.Error("no directories may be created")
			}
			if f.sup.State() != StateIdle {
				t.Errorf("state = %s, want idle", f.sup.State())
			}
			if f.sink.Count() != 1 {
				t.Errorf("expected one log line, got %d", f.sink.Count())
			}
		})
	}
}

func TestStartInstancesInvalidExecutable(t *testing.T) {
	dir := t.TempDir()
	notExec := filepath.Join(dir, "tor")
	if err := os.WriteFile(notExec, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		path func(f *testFleet) string
	}{
		{"missing", func(_ *testFleet) string { return filepath.Join(dir, "missing", "tor") }},
		{"empty", func(_ *testFleet) string { return "  " }},
		{"directory", func(_ *testFleet) string { return dir }},
		{"not executable", func(_ *testFleet) string { return notExec }},
		{"wrong name", func(_ *testFleet) string { return writeExecutable(t, "torsocks", "exit 0") }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newTestFleet(t, 10*time.Millisecond, nil)
			_, err := f.sup.StartInstances(tt.path(f), "1")
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if verr.Field != "executable_path" {
				t.Errorf("field = %s", verr.Field)
			}
			if f.sweeper.count() != 0 {
				t.Error("validation failure must not sweep")
			}
		})
	}
}

func TestStartInstancesExeSuffixAndCase(t *testing.T) {
	f := newTestFleet(t, 10*time.Millisecond, nil)
	exe := writeExecutable(t, "Tor.exe", "exit 0")

	ch, err := f.sup.StartInstances(exe, " 1 ")
	if err != nil {
		t.Fatalf("StartInstances: %v", err)
	}
	if res := waitResult(t, ch, 2*time.Second); res.Survivors != 1 {
		t.Errorf("survivors = %d, want 1", res.Survivors)
	}
}

func TestStartInstancesSpawnFailureContinues(t *testing.T) {
	f := newTestFleet(t, 10*time.Millisecond, nil)
	f.launcher.failAt[1] = true

	ch, err := f.sup.StartInstances(f.exe, "4")
	if err != nil {
		t.Fatalf("StartInstances: %v", err)
	}
	res := waitResult(t, ch, 2*time.Second)

	if n := len(f.launcher.launched()); n != 4 {
		t.Errorf("launch attempts = %d, want 4", n)
	}
	want := []string{"socks5://127.0.0.1:9050", "socks5://127.0.0.1:9052", "socks5://127.0.0.1:9053"}
	if !slices.Equal(res.Endpoints, want) {
		t.Errorf("endpoints = %v, want %v", res.Endpoints, want)
	}
	if len(res.Errors) != 1 {
		t.Fatalf("errors = %v", res.Errors)
	}
	var serr *SpawnError
	if !errors.As(res.Errors[0], &serr) || serr.Index != 1 {
		t.Errorf("expected SpawnError for index 1, got %v", res.Errors[0])
	}
	if !strings.Contains(f.sinkText(), "permission denied") {
		t.Error("sink must carry the failure reason")
	}
}

func TestStartInstancesDataDirFailure(t *testing.T) {
	f := newTestFleet(t, 10*time.Millisecond, nil)

	// A file where instance 1's directory should go makes MkdirAll fail.
	base := filepath.Join(filepath.Dir(f.exe), DefaultDataDirName)
	if err := os.MkdirAll(base, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(base, "Data_9051"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	ch, err := f.sup.StartInstances(f.exe, "2")
	if err != nil {
		t.Fatalf("StartInstances: %v", err)
	}
	res := waitResult(t, ch, 2*time.Second)

	if res.Survivors != 1 || f.sup.registry.Len() != 1 {
		t.Errorf("survivors = %d registry = %d, want 1", res.Survivors, f.sup.registry.Len())
	}
	if len(res.Errors) != 1 {
		t.Fatalf("errors = %v", res.Errors)
	}
	var rerr *ResourceError
	if !errors.As(res.Errors[0], &rerr) || rerr.Index != 1 {
		t.Errorf("expected ResourceError for index 1, got %v", res.Errors[0])
	}

	lines := 0
	for _, e := range f.sink.Lines(false) {
		if strings.Contains(e.Message, "Instance 1 skipped") {
			lines++
		}
	}
	if lines != 1 {
		t.Errorf("expected one log line for index 1, got %d", lines)
	}
}

func TestStartInstancesBaseDirFailure(t *testing.T) {
	f := newTestFleet(t, 10*time.Millisecond, nil)
	if err := os.WriteFile(filepath.Join(filepath.Dir(f.exe), DefaultDataDirName), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	ch, err := f.sup.StartInstances(f.exe, "3")
	if err != nil {
		t.Fatalf("StartInstances: %v", err)
	}
	res := waitResult(t, ch, 2*time.Second)

	if len(f.launcher.launched()) != 0 {
		t.Error("no spawn may be attempted")
	}
	if f.sweeper.count() != 1 {
		t.Error("stale sweep still runs before the directory step")
	}
	var rerr *ResourceError
	if len(res.Errors) != 1 || !errors.As(res.Errors[0], &rerr) || rerr.Index != -1 {
		t.Errorf("expected base ResourceError, got %v", res.Errors)
	}
	if res.Survivors != 0 || f.sup.State() != StateIdle {
		t.Errorf("survivors = %d state = %s", res.Survivors, f.sup.State())
	}
}

func TestStartInstancesEarlyExitPruned(t *testing.T) {
	bus := events.New()
	exited := make(chan events.InstanceExitedEvent, 4)
	unsub := bus.Subscribe(func(e events.InstanceExitedEvent) { exited <- e })
	defer unsub()

	f := newTestFleet(t, 10*time.Millisecond, func(o *Options) { o.EventBus = bus })
	f.launcher.dieEarly[0] = true

	ch, err := f.sup.StartInstances(f.exe, "2")
	if err != nil {
		t.Fatalf("StartInstances: %v", err)
	}
	res := waitResult(t, ch, 2*time.Second)

	if res.Launched != 2 || res.Survivors != 1 {
		t.Errorf("result = %+v", res)
	}
	if !slices.Equal(res.Endpoints, []string{"socks5://127.0.0.1:9051"}) {
		t.Errorf("endpoints = %v", res.Endpoints)
	}
	if len(res.Endpoints) != f.sup.registry.Len() {
		t.Error("endpoint count must equal registry size")
	}

	select {
	case e := <-exited:
		if e.Index != 0 || e.SOCKSPort != 9050 {
			t.Errorf("exited event = %+v", e)
		}
	case <-time.After(time.Second):
		t.Error("expected InstanceExitedEvent")
	}
}

func TestStartInstancesZeroSurvivors(t *testing.T) {
	f := newTestFleet(t, 10*time.Millisecond, nil)
	f.launcher.failAt[0] = true
	f.launcher.dieEarly[1] = true

	ch, err := f.sup.StartInstances(f.exe, "2")
	if err != nil {
		t.Fatalf("StartInstances: %v", err)
	}
	res := waitResult(t, ch, 2*time.Second)

	if res.Survivors != 0 || len(res.Endpoints) != 0 {
		t.Errorf("result = %+v", res)
	}
	if f.sup.State() != StateIdle || f.sup.Running() {
		t.Errorf("state = %s", f.sup.State())
	}
	if !strings.Contains(f.sinkText(), "No tor instance started successfully") {
		t.Error("expected terminal failure line")
	}
}

func TestStartInstancesBusy(t *testing.T) {
	f := newTestFleet(t, 300*time.Millisecond, nil)

	ch, err := f.sup.StartInstances(f.exe, "1")
	if err != nil {
		t.Fatalf("StartInstances: %v", err)
	}
	if f.sup.State() != StateStarting {
		t.Errorf("state = %s, want starting", f.sup.State())
	}
	if _, err := f.sup.StartInstances(f.exe, "1"); !errors.Is(err, ErrBusy) {
		t.Errorf("expected ErrBusy, got %v", err)
	}
	waitResult(t, ch, 2*time.Second)

	if n := len(f.launcher.launched()); n != 1 {
		t.Errorf("launches = %d, want 1", n)
	}

	// Idle again once the batch finished.
	ch, err = f.sup.StartInstances(f.exe, "1")
	if err != nil {
		t.Fatalf("second StartInstances: %v", err)
	}
	waitResult(t, ch, 2*time.Second)
}

func TestStartInstancesReplacesPreviousBatch(t *testing.T) {
	f := newTestFleet(t, 10*time.Millisecond, nil)

	ch, _ := f.sup.StartInstances(f.exe, "3")
	waitResult(t, ch, 2*time.Second)

	ch, err := f.sup.StartInstances(f.exe, "1")
	if err != nil {
		t.Fatalf("StartInstances: %v", err)
	}
	res := waitResult(t, ch, 2*time.Second)

	if res.Survivors != 1 || f.sup.registry.Len() != 1 {
		t.Errorf("registry must only hold the current batch, got %d", f.sup.registry.Len())
	}
	for _, p := range f.launcher.procs[:3] {
		if p.Alive() {
			t.Error("previous batch must be swept")
		}
	}
}

func TestStopAllInstancesIdempotent(t *testing.T) {
	f := newTestFleet(t, 10*time.Millisecond, nil)

	ch, _ := f.sup.StartInstances(f.exe, "2")
	waitResult(t, ch, 2*time.Second)

	ctx := context.Background()
	first, err := f.sup.StopAllInstances(ctx)
	if err != nil {
		t.Fatalf("StopAllInstances: %v", err)
	}
	if first.Killed != 2 {
		t.Errorf("first stop killed %d, want 2", first.Killed)
	}
	if f.sup.registry.Len() != 0 || f.sup.State() != StateIdle || f.sup.Running() {
		t.Error("stop must leave an empty registry and idle state")
	}

	second, err := f.sup.StopAllInstances(ctx)
	if err != nil {
		t.Fatalf("second StopAllInstances: %v", err)
	}
	if second.Found != 0 || second.Killed != 0 {
		t.Errorf("second stop = %+v, want no kills", second)
	}
	if f.sweeper.count() != 3 {
		t.Errorf("sweeps = %d, want 3 (batch + two stops)", f.sweeper.count())
	}
	if f.sup.registry.Len() != 0 {
		t.Error("registry must stay empty")
	}
}

func TestStopAllInstancesContinuesOnTerminationError(t *testing.T) {
	f := newTestFleet(t, 10*time.Millisecond, nil)
	f.sweeper.errs = []error{errors.New("terminate pid 42: operation not permitted")}

	res, err := f.sup.StopAllInstances(context.Background())
	if err != nil {
		t.Fatalf("StopAllInstances: %v", err)
	}
	if len(res.Errors) != 1 {
		t.Errorf("errors = %v", res.Errors)
	}
	if f.sup.State() != StateIdle {
		t.Errorf("state = %s", f.sup.State())
	}
	if !strings.Contains(f.sinkText(), "operation not permitted") {
		t.Error("termination failure must be logged")
	}
}

func TestStopDuringBatchRunsAfterIt(t *testing.T) {
	f := newTestFleet(t, 200*time.Millisecond, nil)

	ch, err := f.sup.StartInstances(f.exe, "2")
	if err != nil {
		t.Fatalf("StartInstances: %v", err)
	}

	stopped := make(chan StopResult, 1)
	go func() {
		res, _ := f.sup.StopAllInstances(context.Background())
		stopped <- res
	}()

	batch := waitResult(t, ch, 2*time.Second)
	if batch.Survivors != 2 {
		t.Errorf("batch survivors = %d", batch.Survivors)
	}

	select {
	case res := <-stopped:
		if res.Killed != 2 {
			t.Errorf("stop killed %d, want 2", res.Killed)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("stop did not complete")
	}
	if f.sup.State() != StateIdle || f.sup.registry.Len() != 0 {
		t.Errorf("state = %s registry = %d", f.sup.State(), f.sup.registry.Len())
	}
}

func TestStopAllInstancesContextCancel(t *testing.T) {
	f := newTestFleet(t, 500*time.Millisecond, nil)
	ch, _ := f.sup.StartInstances(f.exe, "1")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := f.sup.StopAllInstances(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
	waitResult(t, ch, 2*time.Second)
}

func TestCloseInterruptsSettleAndStops(t *testing.T) {
	f := newTestFleet(t, 10*time.Second, nil)

	ch, err := f.sup.StartInstances(f.exe, "2")
	if err != nil {
		t.Fatalf("StartInstances: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	start := time.Now()
	if err := f.sup.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if time.Since(start) > time.Second {
		t.Error("Close must interrupt the settle delay")
	}
	waitResult(t, ch, time.Second)

	for _, p := range f.launcher.procs {
		if p.Alive() {
			t.Error("Close must stop every instance")
		}
	}
	if err := f.sup.Close(ctx); err != nil {
		t.Errorf("second Close: %v", err)
	}
	if _, err := f.sup.StartInstances(f.exe, "1"); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
	if _, err := f.sup.StopAllInstances(ctx); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
}

func TestShutdownReturnsFinalSweep(t *testing.T) {
	f := newTestFleet(t, 10*time.Millisecond, nil)

	ch, err := f.sup.StartInstances(f.exe, "2")
	if err != nil {
		t.Fatalf("StartInstances: %v", err)
	}
	waitResult(t, ch, 2*time.Second)
	sweepsBefore := f.sweeper.count()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	res, err := f.sup.Shutdown(ctx)
	if err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if res.Found != 2 || res.Killed != 2 {
		t.Errorf("result = %+v, want 2 found and killed", res)
	}
	if got := f.sweeper.count() - sweepsBefore; got != 1 {
		t.Errorf("Shutdown swept %d times, want 1", got)
	}
	if _, err := f.sup.Shutdown(ctx); !errors.Is(err, ErrClosed) {
		t.Errorf("second Shutdown: expected ErrClosed, got %v", err)
	}
	if err := f.sup.Close(ctx); err != nil {
		t.Errorf("Close after Shutdown: %v", err)
	}
}

func TestSupervisorEvents(t *testing.T) {
	bus := events.New()
	states := make(chan events.StateChangedEvent, 16)
	batches := make(chan events.BatchCompletedEvent, 1)
	started := make(chan events.InstanceStartedEvent, 4)
	stopped := make(chan events.InstancesStoppedEvent, 1)
	defer bus.Subscribe(func(e events.StateChangedEvent) { states <- e })()
	defer bus.Subscribe(func(e events.BatchCompletedEvent) { batches <- e })()
	defer bus.Subscribe(func(e events.InstanceStartedEvent) { started <- e })()
	defer bus.Subscribe(func(e events.InstancesStoppedEvent) { stopped <- e })()

	f := newTestFleet(t, 10*time.Millisecond, func(o *Options) { o.EventBus = bus })
	ch, _ := f.sup.StartInstances(f.exe, "2")
	waitResult(t, ch, 2*time.Second)

	select {
	case b := <-batches:
		if b.Survivors != 2 || len(b.Endpoints) != 2 {
			t.Errorf("batch event = %+v", b)
		}
	case <-time.After(time.Second):
		t.Fatal("expected BatchCompletedEvent")
	}
	for range 2 {
		select {
		case <-started:
		case <-time.After(time.Second):
			t.Fatal("expected InstanceStartedEvent")
		}
	}

	if _, err := f.sup.StopAllInstances(context.Background()); err != nil {
		t.Fatal(err)
	}
	select {
	case s := <-stopped:
		if s.Killed != 2 {
			t.Errorf("stopped event = %+v", s)
		}
	case <-time.After(time.Second):
		t.Fatal("expected InstancesStoppedEvent")
	}

	var seen []string
	deadline := time.After(time.Second)
	for len(seen) < 4 {
		select {
		case s := <-states:
			seen = append(seen, s.From+">"+s.To)
		case <-deadline:
			t.Fatalf("state events = %v", seen)
		}
	}
	want := []string{"idle>starting", "starting>running", "running>stopping", "stopping>idle"}
	if !slices.Equal(seen, want) {
		t.Errorf("state events = %v, want %v", seen, want)
	}
}

func TestInstancesInfo(t *testing.T) {
	f := newTestFleet(t, 10*time.Millisecond, func(o *Options) { o.Scheme = "socks5h" })
	ch, _ := f.sup.StartInstances(f.exe, "2")
	waitResult(t, ch, 2*time.Second)

	infos := f.sup.Instances()
	if len(infos) != 2 {
		t.Fatalf("instances = %d", len(infos))
	}
	if infos[1].Spec.SOCKSPort != 9051 || infos[1].Endpoint != "socks5h://127.0.0.1:9051" {
		t.Errorf("info = %+v", infos[1])
	}
	if !infos[0].Alive || infos[0].PID == 0 || infos[0].Bootstrap != -1 {
		t.Errorf("info = %+v", infos[0])
	}
}

func TestSinkLinesAreTimestamped(t *testing.T) {
	fixed := time.Date(2026, 10, 18, 12, 34, 56, 0, time.UTC)
	sink := logging.NewSink(0, logging.WithClock(func() time.Time { return fixed }))
	f := newTestFleet(t, 10*time.Millisecond, func(o *Options) { o.Sink = sink })

	ch, _ := f.sup.StartInstances(f.exe, "1")
	waitResult(t, ch, 2*time.Second)

	lines := sink.Lines(false)
	if len(lines) == 0 {
		t.Fatal("expected sink lines")
	}
	if got := logging.FormatLine(lines[0]); !strings.HasPrefix(got, "[12:34:56] ") {
		t.Errorf("line = %q", got)
	}
}

func TestSinkLinesPublishedOnBus(t *testing.T) {
	bus := events.New()
	lines := make(chan events.OperatorLineEvent, 64)
	defer bus.Subscribe(func(e events.OperatorLineEvent) { lines <- e })()

	f := newTestFleet(t, 10*time.Millisecond, func(o *Options) { o.EventBus = bus })
	f.sink.Infof("test", "hello %d", 7)

	deadline := time.After(2 * time.Second)
	for {
		select {
		case e := <-lines:
			if e.Message != "hello 7" {
				continue
			}
			if e.Source != "test" || e.Level != "info" || !strings.HasSuffix(e.Line, "] hello 7") {
				t.Errorf("event = %+v", e)
			}
			if f.sup.Scheme() != DefaultScheme {
				t.Errorf("Scheme() = %q", f.sup.Scheme())
			}
			return
		case <-deadline:
			t.Fatal("no OperatorLineEvent received")
		}
	}
}
