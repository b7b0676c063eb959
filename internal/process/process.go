package process

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/smazurov/torfleet/internal/logging"
)

// Output stream identifiers passed to OutputHandler.
const (
	SourceStdout = "stdout"
	SourceStderr = "stderr"
)

// maxLineSize bounds a single output line. A longer line ends scanning and the
// rest of the stream is discarded so the child never blocks on a full pipe.
const maxLineSize = 1024 * 1024

// OutputHandler receives output lines from the subprocess.
// It is called from the reader goroutines, once per line, in stream order.
type OutputHandler interface {
	HandleLine(source, line string)
}

// OutputHandlerFunc adapts a function to OutputHandler.
type OutputHandlerFunc func(source, line string)

// HandleLine implements OutputHandler.
func (f OutputHandlerFunc) HandleLine(source, line string) { f(source, line) }

// LogParser parses a log line and returns the log level and message.
// Used to extract structured log info from process output (tor, etc.)
type LogParser func(line string) (level, msg string)

// Process is a single long-running subprocess.
// Start spawns it and returns immediately; output is read by two background
// goroutines that end on EOF, and a third goroutine reaps the process so
// Alive reflects the OS view rather than cached state.
type Process struct {
	id            string
	args          []string
	dir           string
	cmd           *exec.Cmd
	logger        logging.Logger
	processLogger logging.Logger // logger for process output (nil = use logger)
	logParser     LogParser      // parses process output for log level (nil = no parsing)
	outputHandler OutputHandler

	mu        sync.Mutex
	started   bool
	startedAt time.Time
	exitErr   error
	done      chan struct{}
}

// NewProcess creates a process for argv; nothing runs until Start.
func NewProcess(id string, args []string, logger logging.Logger) *Process {
	return &Process{
		id:     id,
		args:   args,
		logger: logger,
		done:   make(chan struct{}),
	}
}

// SetDir sets the working directory of the subprocess.
func (p *Process) SetDir(dir string) {
	p.dir = dir
}

// SetOutputHandler sets the receiver of stdout/stderr lines.
func (p *Process) SetOutputHandler(handler OutputHandler) {
	p.outputHandler = handler
}

// SetLogParser sets a custom logger and log parser for process output.
// The logger is used for process output (e.g., module="tor").
// The parser extracts log level from process-specific output formats.
func (p *Process) SetLogParser(logger logging.Logger, parser LogParser) {
	p.processLogger = logger
	p.logParser = parser
}

// ID returns the identifier given at construction.
func (p *Process) ID() string {
	return p.id
}

// Args returns a copy of the argv the process is started with.
func (p *Process) Args() []string {
	return append([]string(nil), p.args...)
}

// Start spawns the subprocess and wires its output readers.
// It returns once the OS accepted (or rejected) the spawn.
func (p *Process) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started {
		return fmt.Errorf("process %s already started", p.id)
	}
	if len(p.args) == 0 {
		return fmt.Errorf("empty command")
	}

	// Plain pipes rather than cmd.StdoutPipe so Wait can reap the child as soon
	// as it exits, independent of when the readers see EOF.
	stdoutR, stdoutW, err := os.Pipe()
	if err != nil {
		return fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	stderrR, stderrW, err := os.Pipe()
	if err != nil {
		stdoutR.Close()
		stdoutW.Close()
		return fmt.Errorf("failed to create stderr pipe: %w", err)
	}

	cmd := exec.Command(p.args[0], p.args[1:]...)
	cmd.Dir = p.dir
	cmd.Stdout = stdoutW
	cmd.Stderr = stderrW
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	startErr := cmd.Start()
	// The child holds its own copies of the write ends.
	stdoutW.Close()
	stderrW.Close()
	if startErr != nil {
		stdoutR.Close()
		stderrR.Close()
		p.logger.Error("Failed to start process", "id", p.id, "error", startErr)
		return startErr
	}

	p.cmd = cmd
	p.started = true
	p.startedAt = time.Now()
	p.logger.Info("Process started", "id", p.id, "pid", cmd.Process.Pid, "command", strings.Join(p.args, " "))

	go p.streamOutput(stdoutR, SourceStdout)
	go p.streamOutput(stderrR, SourceStderr)

	go func() {
		err := cmd.Wait()
		p.mu.Lock()
		p.exitErr = err
		p.mu.Unlock()
		close(p.done)
		p.logger.Info("Process exited", "id", p.id, "pid", cmd.Process.Pid, "exit_code", exitCodeFromError(err))
	}()

	return nil
}

// PID returns the OS process id, or 0 before a successful Start.
func (p *Process) PID() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cmd == nil || p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

// StartedAt returns when Start succeeded.
func (p *Process) StartedAt() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.startedAt
}

// Done is closed once the process has exited and been reaped.
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// Alive reports whether the process is still running according to the OS.
func (p *Process) Alive() bool {
	p.mu.Lock()
	started := p.started
	cmd := p.cmd
	p.mu.Unlock()

	if !started {
		return false
	}
	select {
	case <-p.done:
		return false
	default:
	}
	// Signal 0 performs the existence check without delivering anything.
	if err := cmd.Process.Signal(syscall.Signal(0)); err != nil {
		return false
	}
	return true
}

// ExitErr returns the error from Wait once the process has exited.
func (p *Process) ExitErr() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exitErr
}

// ExitCode returns the exit code, or -1 while the process is running.
func (p *Process) ExitCode() int {
	select {
	case <-p.done:
		return exitCodeFromError(p.ExitErr())
	default:
		return -1
	}
}

// exitCodeFromError extracts exit code from process error.
// Returns 0 for nil error, the exit code for ExitError, or 1 for other errors.
func exitCodeFromError(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return 1
}

// streamOutput reads one output stream until EOF.
// Uses the configured processLogger (or falls back to default logger).
// Uses the configured LogParser to extract log levels from process output.
func (p *Process) streamOutput(reader io.ReadCloser, source string) {
	defer reader.Close()

	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	logger := p.processLogger
	if logger == nil {
		logger = p.logger
	}

	for scanner.Scan() {
		line := strings.ToValidUTF8(scanner.Text(), "�")

		if p.outputHandler != nil {
			p.outputHandler.HandleLine(source, line)
		}

		level, msg := "info", line
		if p.logParser != nil {
			level, msg = p.logParser(line)
		}

		switch level {
		case "fatal", "error", "err":
			logger.Error(msg, "id", p.id, "source", source)
		case "warning", "warn":
			logger.Warn(msg, "id", p.id, "source", source)
		case "debug", "trace":
			logger.Debug(msg, "id", p.id, "source", source)
		default:
			logger.Info(msg, "id", p.id, "source", source)
		}
	}

	if err := scanner.Err(); err != nil {
		p.logger.Warn("Error reading output", "id", p.id, "source", source, "error", err)
		_, _ = io.Copy(io.Discard, reader)
	}
}

// ParseCommand splits a command string into arguments.
// Handles quoted strings and basic escaping.
func ParseCommand(command string) ([]string, error) {
	var args []string
	var current strings.Builder
	inQuote := false
	quoteChar := rune(0)

	command = strings.TrimSpace(command)
	runes := []rune(command)

	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch {
		case r == '"' || r == '\'':
			switch {
			case !inQuote:
				inQuote = true
				quoteChar = r
			case r == quoteChar:
				inQuote = false
				quoteChar = 0
			default:
				current.WriteRune(r)
			}
		case r == ' ' && !inQuote:
			if current.Len() > 0 {
				args = append(args, current.String())
				current.Reset()
			}
		case r == '\\' && i+1 < len(runes):
			i++ // Skip the backslash
			current.WriteRune(runes[i])
		default:
			current.WriteRune(r)
		}
	}

	if current.Len() > 0 {
		args = append(args, current.String())
	}

	if inQuote {
		return nil, fmt.Errorf("unclosed quote in command")
	}

	return args, nil
}
