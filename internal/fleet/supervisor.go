package fleet

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/smazurov/torfleet/internal/events"
	"github.com/smazurov/torfleet/internal/logging"
	"github.com/smazurov/torfleet/internal/metrics"
	"github.com/smazurov/torfleet/internal/process"
)

const sinkSource = "fleet"

// BatchResult is the outcome of one StartInstances call.
type BatchResult struct {
	Requested int
	Launched  int
	Survivors int
	Endpoints []string
	Errors    []error
}

// StopResult is the outcome of one stop-all sweep.
type StopResult struct {
	Found  int
	Killed int
	Errors []error
}

// InstanceInfo describes a registered instance.
type InstanceInfo struct {
	Spec      InstanceSpec
	PID       int
	Alive     bool
	Bootstrap int
	StartedAt time.Time
	Endpoint  string
}

type startRequest struct {
	executablePath string
	count          int
}

type stopJob struct {
	done   chan struct{}
	result StopResult
}

// Supervisor owns the registry and runs start and stop requests in order on
// one worker goroutine.
type Supervisor struct {
	opts     Options
	registry *Registry
	sink     *logging.Sink
	logger   logging.Logger
	launcher Launcher
	sweeper  Sweeper
	bus      *events.Bus

	jobs       chan func()
	ctx        context.Context
	cancel     context.CancelFunc
	workerDone chan struct{}

	mu          sync.Mutex
	state       State
	batching    bool
	pendingStop *stopJob
	closed      bool

	unsubSink func()
}

// NewSupervisor creates a supervisor and starts its worker.
func NewSupervisor(opts *Options) *Supervisor {
	var o Options
	if opts != nil {
		o = *opts
	}
	if o.DaemonName == "" {
		o.DaemonName = DefaultDaemonName
	}
	if o.DataDirName == "" {
		o.DataDirName = DefaultDataDirName
	}
	if o.Scheme == "" {
		o.Scheme = DefaultScheme
	}
	if o.SOCKSBase == 0 {
		o.SOCKSBase = DefaultSOCKSBase
	}
	if o.ControlBase == 0 {
		o.ControlBase = DefaultControlBase
	}
	if o.SettleDelay <= 0 {
		o.SettleDelay = DefaultSettleDelay
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Sink == nil {
		o.Sink = logging.NewSink(0)
	}
	if o.Launcher == nil {
		o.Launcher = NewExecLauncher(o.Sink, nil, o.Logger, nil)
	}
	if o.Sweeper == nil {
		o.Sweeper = NewProcSweeper(process.DefaultKillGrace, o.Logger)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Supervisor{
		opts:     o,
		registry: NewRegistry(),
		sink:     o.Sink,
		logger:   o.Logger,
		launcher: o.Launcher,
		sweeper:  o.Sweeper,
		bus:      o.EventBus,
		// At most one batch, one coalesced stop and the final close job are queued.
		jobs:       make(chan func(), 3),
		ctx:        ctx,
		cancel:     cancel,
		workerDone: make(chan struct{}),
		state:      StateIdle,
	}
	if s.bus != nil {
		s.unsubSink = s.sink.OnAppend(s.publishLine)
	}
	go s.worker()
	return s
}

func (s *Supervisor) worker() {
	defer close(s.workerDone)
	if s.unsubSink != nil {
		defer s.unsubSink()
	}
	for job := range s.jobs {
		job()
	}
}

// Allocator returns the allocator used for an executable at executablePath.
func (s *Supervisor) Allocator(executablePath string) Allocator {
	return AllocatorFor(executablePath, s.opts.DataDirName, s.opts.SOCKSBase, s.opts.ControlBase)
}

// Scheme returns the scheme used in reported endpoints.
func (s *Supervisor) Scheme() string {
	return s.opts.Scheme
}

// Sink returns the operator log.
func (s *Supervisor) Sink() *logging.Sink {
	return s.sink
}

// StartInstances validates the request and queues a batch. The returned
// channel yields exactly one BatchResult. Validation failures and ErrBusy are
// returned synchronously and leave no trace besides a log line.
func (s *Supervisor) StartInstances(executablePath, countText string) (<-chan BatchResult, error) {
	req, err := s.validate(executablePath, countText)
	if err != nil {
		s.sink.Errorf(sinkSource, "Error: %v", err)
		s.logger.Warn("Rejected start request", "error", err)
		return nil, err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	if s.batching || s.pendingStop != nil || s.state.Busy() {
		s.mu.Unlock()
		return nil, ErrBusy
	}
	s.batching = true
	from := s.setStateLocked(StateStarting)

	results := make(chan BatchResult, 1)
	s.jobs <- func() {
		s.publishState(from, StateStarting)
		res := s.runBatch(req)
		results <- res
		close(results)
	}
	s.mu.Unlock()

	s.logger.Info("Start batch queued", "count", req.count, "executable", req.executablePath)
	return results, nil
}

// StopAllInstances terminates every process named DaemonName and forgets all
// handles. A stop requested while a batch runs is executed after the batch.
// Concurrent stop requests share one sweep.
func (s *Supervisor) StopAllInstances(ctx context.Context) (StopResult, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return StopResult{}, ErrClosed
	}
	job := s.pendingStop
	if job == nil {
		job = &stopJob{done: make(chan struct{})}
		s.pendingStop = job
		s.jobs <- func() {
			s.mu.Lock()
			s.pendingStop = nil
			s.mu.Unlock()
			job.result = s.stopAll()
			close(job.done)
		}
	}
	s.mu.Unlock()

	select {
	case <-job.done:
		return job.result, nil
	case <-ctx.Done():
		return StopResult{}, ctx.Err()
	}
}

// Shutdown interrupts a running settle delay, stops every instance, ends the
// worker and returns the result of that final sweep. Later calls return ErrClosed.
func (s *Supervisor) Shutdown(ctx context.Context) (StopResult, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return StopResult{}, ErrClosed
	}
	s.closed = true
	s.cancel()
	job := &stopJob{done: make(chan struct{})}
	s.jobs <- func() {
		job.result = s.stopAll()
		close(job.done)
	}
	close(s.jobs)
	s.mu.Unlock()

	select {
	case <-job.done:
	case <-ctx.Done():
		return StopResult{}, ctx.Err()
	}
	select {
	case <-s.workerDone:
		return job.result, nil
	case <-ctx.Done():
		return job.result, ctx.Err()
	}
}

// Close is Shutdown without the result. It is safe to call more than once.
func (s *Supervisor) Close(ctx context.Context) error {
	if _, err := s.Shutdown(ctx); err != nil && !errors.Is(err, ErrClosed) {
		return err
	}
	select {
	case <-s.workerDone:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// State returns the current state.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Running reports whether at least one registered instance is alive.
func (s *Supervisor) Running() bool {
	for _, h := range s.registry.Handles() {
		if h.Alive() {
			return true
		}
	}
	return false
}

// Endpoints returns the endpoints of registered instances that are alive.
func (s *Supervisor) Endpoints() []string {
	var out []string
	for _, h := range s.registry.Handles() {
		if h.Alive() {
			out = append(out, h.Spec().Endpoint(s.opts.Scheme))
		}
	}
	return out
}

// Instances describes every registered instance in index order.
func (s *Supervisor) Instances() []InstanceInfo {
	handles := s.registry.Handles()
	out := make([]InstanceInfo, 0, len(handles))
	for _, h := range handles {
		out = append(out, InstanceInfo{
			Spec:      h.Spec(),
			PID:       h.PID(),
			Alive:     h.Alive(),
			Bootstrap: h.Bootstrap(),
			StartedAt: h.StartedAt(),
			Endpoint:  h.Spec().Endpoint(s.opts.Scheme),
		})
	}
	return out
}

func (s *Supervisor) validate(executablePath, countText string) (startRequest, error) {
	path := strings.TrimSpace(executablePath)
	if path == "" {
		return startRequest{}, &ValidationError{Field: "executable_path", Value: executablePath, Reason: "path is empty"}
	}
	info, err := os.Stat(path)
	if err != nil {
		return startRequest{}, &ValidationError{Field: "executable_path", Value: path, Reason: "file does not exist", Err: err}
	}
	if !info.Mode().IsRegular() {
		return startRequest{}, &ValidationError{Field: "executable_path", Value: path, Reason: "not a regular file"}
	}
	if info.Mode().Perm()&0o111 == 0 {
		return startRequest{}, &ValidationError{Field: "executable_path", Value: path, Reason: "file is not executable"}
	}
	if process.NormalizeName(path) != process.NormalizeName(s.opts.DaemonName) {
		return startRequest{}, &ValidationError{
			Field:  "executable_path",
			Value:  path,
			Reason: fmt.Sprintf("expected the %s executable", s.opts.DaemonName),
		}
	}

	text := strings.TrimSpace(countText)
	count, err := strconv.Atoi(text)
	if err != nil {
		return startRequest{}, &ValidationError{Field: "count", Value: countText, Reason: "not an integer", Err: err}
	}
	if count < 1 {
		return startRequest{}, &ValidationError{Field: "count", Value: countText, Reason: "must be greater than zero"}
	}
	if limit := s.Allocator(path).MaxInstances(); count > limit {
		return startRequest{}, &ValidationError{
			Field:  "count",
			Value:  countText,
			Reason: fmt.Sprintf("at most %d instances fit the configured port ranges", limit),
		}
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	return startRequest{executablePath: abs, count: count}, nil
}

func (s *Supervisor) runBatch(req startRequest) BatchResult {
	started := time.Now()
	res := BatchResult{Requested: req.count}

	s.sink.Infof(sinkSource, "Preparing to start %d %s instance(s)", req.count, s.opts.DaemonName)
	s.sink.Infof(sinkSource, "Looking for leftover %s processes", s.opts.DaemonName)
	s.sweepAndClear()

	alloc := s.Allocator(req.executablePath)
	if err := os.MkdirAll(alloc.BaseDataDir, 0o755); err != nil {
		rerr := &ResourceError{Index: -1, Path: alloc.BaseDataDir, Err: err}
		res.Errors = append(res.Errors, rerr)
		s.sink.Errorf(sinkSource, "Fatal: %v", rerr)
		s.logger.Error("Failed to create base data directory", "path", alloc.BaseDataDir, "error", err)
		return s.finishBatch(res, metrics.BatchAborted, started)
	}
	s.sink.Infof(sinkSource, "Using data directory %s", alloc.BaseDataDir)

	for i := range req.count {
		spec := alloc.Allocate(i)

		if err := os.MkdirAll(spec.DataDirectory, 0o700); err != nil {
			rerr := &ResourceError{Index: i, Path: spec.DataDirectory, Err: err}
			res.Errors = append(res.Errors, rerr)
			metrics.RecordLaunch(metrics.LaunchResourceError)
			s.sink.Errorf(sinkSource, "Instance %d skipped: %v", i, rerr)
			s.logger.Warn("Failed to create instance data directory", "index", i, "path", spec.DataDirectory, "error", err)
			continue
		}

		h, err := s.launcher.Launch(req.executablePath, spec)
		if err != nil {
			var serr *SpawnError
			if !errors.As(err, &serr) {
				serr = &SpawnError{Index: i, Err: err}
			}
			res.Errors = append(res.Errors, serr)
			metrics.RecordLaunch(metrics.LaunchSpawnError)
			s.sink.Errorf(sinkSource, "Instance %d failed to start: %v", i, serr.Err)
			s.logger.Warn("Failed to launch instance", "index", i, "socks_port", spec.SOCKSPort, "error", serr.Err)
			continue
		}

		s.registry.Add(h)
		res.Launched++
		metrics.RecordLaunch(metrics.LaunchOK)
		s.sink.Infof(sinkSource, "Launched instance %d on port %d (pid %d)", i, spec.SOCKSPort, h.PID())
		s.logger.Info("Instance launched", "index", i, "socks_port", spec.SOCKSPort, "control_port", spec.ControlPort, "pid", h.PID())
		s.publish(events.InstanceStartedEvent{
			Index:         i,
			PID:           h.PID(),
			SOCKSPort:     spec.SOCKSPort,
			ControlPort:   spec.ControlPort,
			DataDirectory: spec.DataDirectory,
			Timestamp:     now(),
		})
	}

	s.settle()

	survivors, dead := s.registry.prune()
	for _, h := range dead {
		ev := events.InstanceExitedEvent{
			Index:     h.Spec().Index,
			PID:       h.PID(),
			SOCKSPort: h.Spec().SOCKSPort,
			Timestamp: now(),
		}
		if err := h.ExitErr(); err != nil {
			ev.Error = err.Error()
		}
		s.sink.Errorf(sinkSource, "Instance %d on port %d exited during startup", ev.Index, ev.SOCKSPort)
		s.logger.Warn("Instance exited before settle delay elapsed", "index", ev.Index, "pid", ev.PID, "error", ev.Error)
		s.publish(ev)
	}
	metrics.RecordEarlyExits(len(dead))

	res.Survivors = len(survivors)
	for _, h := range survivors {
		res.Endpoints = append(res.Endpoints, h.Spec().Endpoint(s.opts.Scheme))
	}

	if res.Survivors == 0 {
		s.sink.Errorf(sinkSource, "No %s instance started successfully, check the errors above", s.opts.DaemonName)
		return s.finishBatch(res, metrics.BatchFailed, started)
	}
	s.sink.Infof(sinkSource, "Batch complete: %d of %d instance(s) running", res.Survivors, res.Requested)
	for _, ep := range res.Endpoints {
		s.sink.Infof(sinkSource, "%s", ep)
	}
	return s.finishBatch(res, metrics.BatchRunning, started)
}

// settle waits SettleDelay unless Close interrupts it.
func (s *Supervisor) settle() {
	timer := time.NewTimer(s.opts.SettleDelay)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-s.ctx.Done():
	}
}

func (s *Supervisor) finishBatch(res BatchResult, outcome string, started time.Time) BatchResult {
	next := StateIdle
	if res.Survivors > 0 {
		next = StateRunning
	}

	s.mu.Lock()
	s.batching = false
	from := s.setStateLocked(next)
	s.mu.Unlock()
	s.publishState(from, next)

	metrics.SetInstancesLive(res.Survivors)
	metrics.RecordBatch(outcome, time.Since(started))
	s.logger.Info("Start batch finished",
		"requested", res.Requested,
		"launched", res.Launched,
		"survivors", res.Survivors,
		"outcome", outcome,
		"duration", time.Since(started))

	ev := events.BatchCompletedEvent{
		Requested: res.Requested,
		Launched:  res.Launched,
		Survivors: res.Survivors,
		Endpoints: res.Endpoints,
		Timestamp: now(),
	}
	for _, err := range res.Errors {
		ev.Errors = append(ev.Errors, err.Error())
	}
	s.publish(ev)
	return res
}

func (s *Supervisor) stopAll() StopResult {
	s.mu.Lock()
	from := s.setStateLocked(StateStopping)
	s.mu.Unlock()
	s.publishState(from, StateStopping)

	s.sink.Infof(sinkSource, "Stopping all %s processes", s.opts.DaemonName)
	sweep := s.sweepAndClear()

	s.mu.Lock()
	s.setStateLocked(StateIdle)
	s.mu.Unlock()
	s.publishState(StateStopping, StateIdle)

	s.sink.Infof(sinkSource, "All processes stopped")
	s.publish(events.InstancesStoppedEvent{
		Killed:    sweep.Killed,
		Failed:    len(sweep.Errors),
		Timestamp: now(),
	})
	return StopResult(sweep)
}

// sweepAndClear terminates daemons by name, logs each failure and forgets all handles.
func (s *Supervisor) sweepAndClear() SweepResult {
	sweep := s.sweeper.Sweep(s.opts.DaemonName)
	for _, err := range sweep.Errors {
		s.sink.Errorf(sinkSource, "Could not stop process: %v", err)
		s.logger.Warn("Termination failed", "error", err)
	}
	if sweep.Found > 0 {
		s.sink.Infof(sinkSource, "Terminated %d of %d %s process(es)", sweep.Killed, sweep.Found, s.opts.DaemonName)
	}
	s.logger.Info("Swept processes by name", "name", s.opts.DaemonName, "found", sweep.Found, "killed", sweep.Killed, "failed", len(sweep.Errors))
	metrics.RecordTerminations(sweep.Killed, len(sweep.Errors))
	metrics.SetInstancesLive(0)

	s.registry.Clear()
	return sweep
}

// setStateLocked updates the state and returns the previous one. Caller holds s.mu.
func (s *Supervisor) setStateLocked(next State) State {
	prev := s.state
	s.state = next
	return prev
}

func (s *Supervisor) publishState(from, to State) {
	if from == to {
		return
	}
	s.logger.Debug("State changed", "from", from, "to", to)
	s.publish(events.StateChangedEvent{From: string(from), To: string(to), Timestamp: now()})
}

func (s *Supervisor) publish(ev events.Event) {
	if s.bus != nil {
		s.bus.Publish(ev)
	}
}

// publishLine forwards an operator log line to the event bus.
func (s *Supervisor) publishLine(entry logging.LogEntry) {
	s.bus.Publish(events.NewOperatorLineEvent(entry))
}

func now() string {
	return time.Now().Format(time.RFC3339)
}
