package logging

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

const defaultSinkSize = 2000

// Sink is the append-only, timestamped line stream shown to operators.
// Any number of goroutines may Append concurrently. Entries are stamped by
// the sink under its lock, so buffer order always matches timestamp order and
// lines from one producer stay in the order that producer appended them.
type Sink struct {
	mu          sync.Mutex
	buffer      *RingBuffer
	now         func() time.Time
	subscribers map[int]func(LogEntry)
	nextID      int
}

// SinkOption configures a Sink.
type SinkOption func(*Sink)

// WithClock overrides the clock used to stamp lines.
func WithClock(now func() time.Time) SinkOption {
	return func(s *Sink) {
		s.now = now
	}
}

// NewSink creates a sink holding at most capacity lines (<= 0 uses the default).
func NewSink(capacity int, opts ...SinkOption) *Sink {
	if capacity <= 0 {
		capacity = defaultSinkSize
	}
	s := &Sink{
		buffer:      NewRingBuffer(capacity),
		now:         time.Now,
		subscribers: make(map[int]func(LogEntry)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Append stamps and stores one line from source at the given level.
func (s *Sink) Append(level, source, line string) LogEntry {
	s.mu.Lock()
	entry := LogEntry{
		Timestamp: s.now(),
		Level:     level,
		Module:    source,
		Message:   strings.ToValidUTF8(line, "�"),
	}
	entry = s.buffer.Write(entry)
	subs := make([]func(LogEntry), 0, len(s.subscribers))
	for _, fn := range s.subscribers {
		subs = append(subs, fn)
	}
	s.mu.Unlock()

	for _, fn := range subs {
		fn(entry)
	}
	return entry
}

// Infof appends a formatted info line.
func (s *Sink) Infof(source, format string, args ...any) {
	s.Append("info", source, fmt.Sprintf(format, args...))
}

// Errorf appends a formatted error line.
func (s *Sink) Errorf(source, format string, args ...any) {
	s.Append("error", source, fmt.Sprintf(format, args...))
}

// Lines returns the stored lines, either in append order or newest first.
func (s *Sink) Lines(newestFirst bool) []LogEntry {
	entries := s.buffer.ReadAll()
	if newestFirst {
		for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
			entries[i], entries[j] = entries[j], entries[i]
		}
	}
	return entries
}

// Since returns the stored lines appended after seq, oldest first.
func (s *Sink) Since(seq uint64) []LogEntry {
	return s.buffer.Since(seq)
}

// Count returns the number of stored lines.
func (s *Sink) Count() int {
	return s.buffer.Count()
}

// OnAppend registers fn to receive every new entry and returns an unsubscribe func.
// fn runs on the appending goroutine and must not block.
func (s *Sink) OnAppend(fn func(LogEntry)) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subscribers[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subscribers, id)
		s.mu.Unlock()
	}
}

// FormatLine renders an entry as "[HH:MM:SS] message".
func FormatLine(entry LogEntry) string {
	return "[" + entry.Timestamp.Format("15:04:05") + "] " + entry.Message
}
