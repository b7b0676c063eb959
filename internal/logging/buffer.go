package logging

import (
	"sync"
	"time"
)

// LogEntry is one stored log line. Seq is assigned by the RingBuffer that
// stored it and increases by one per write, starting at 1.
type LogEntry struct {
	Seq        uint64         `json:"seq"`
	Timestamp  time.Time      `json:"timestamp"`
	Level      string         `json:"level"`
	Module     string         `json:"module"`
	Message    string         `json:"message"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// RingBuffer keeps the last N entries, addressed by sequence number.
// Entry seq lives in slot seq % N, so readers can resume from any seq still held.
type RingBuffer struct {
	mu      sync.RWMutex
	entries []LogEntry
	last    uint64
}

// NewRingBuffer creates a buffer holding at most size entries.
func NewRingBuffer(size int) *RingBuffer {
	if size <= 0 {
		size = 1
	}
	return &RingBuffer{entries: make([]LogEntry, size)}
}

// Write stores entry under the next sequence number and returns it as stored.
// The oldest entry is overwritten once the buffer is full.
func (rb *RingBuffer) Write(entry LogEntry) LogEntry {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	rb.last++
	entry.Seq = rb.last
	rb.entries[rb.last%uint64(len(rb.entries))] = entry
	return entry
}

// ReadAll returns every held entry in write order.
func (rb *RingBuffer) ReadAll() []LogEntry {
	return rb.Since(0)
}

// Since returns the held entries with Seq greater than after, in write order.
// Entries already overwritten are skipped.
func (rb *RingBuffer) Since(after uint64) []LogEntry {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	first := rb.firstSeq()
	if after+1 > first {
		first = after + 1
	}
	if first > rb.last {
		return nil
	}

	size := uint64(len(rb.entries))
	result := make([]LogEntry, 0, rb.last-first+1)
	for seq := first; seq <= rb.last; seq++ {
		result = append(result, rb.entries[seq%size])
	}
	return result
}

// LastSeq returns the sequence number of the newest entry, or 0 when empty.
func (rb *RingBuffer) LastSeq() uint64 {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.last
}

// Count returns the number of held entries.
func (rb *RingBuffer) Count() int {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	if rb.last == 0 {
		return 0
	}
	return int(rb.last - rb.firstSeq() + 1)
}

// firstSeq is the oldest held seq; it exceeds last when the buffer is empty.
func (rb *RingBuffer) firstSeq() uint64 {
	size := uint64(len(rb.entries))
	if rb.last < size {
		return 1
	}
	return rb.last - size + 1
}
