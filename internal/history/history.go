// Package history keeps a bounded, newest-first log of executed commands.
package history

import (
	"sync"
	"time"
)

// DefaultCapacity is the number of entries kept when none is configured.
const DefaultCapacity = 100

// DefaultMaxOutputBytes is the per-stream byte budget for stored output.
const DefaultMaxOutputBytes = 10 * 1024

// Entry is one finished command. Entries are immutable once appended.
type Entry struct {
	Command         string    `json:"command"`
	Directory       string    `json:"directory,omitempty"`
	Stdout          string    `json:"stdout"`
	Stderr          string    `json:"stderr"`
	Error           *string   `json:"error"`
	ExecutionTimeMs int64     `json:"executionTime"`
	Timestamp       time.Time `json:"timestamp"`
	Success         bool      `json:"success"`
	StdoutTruncated bool      `json:"stdoutTruncated,omitempty"`
	StderrTruncated bool      `json:"stderrTruncated,omitempty"`
}

// NewEntry builds an entry, truncating both streams to maxBytes.
// A nil errMsg marks success.
func NewEntry(command, dir, stdout, stderr string, errMsg *string, elapsed time.Duration, maxBytes int) Entry {
	e := Entry{
		Command:         command,
		Directory:       dir,
		Error:           errMsg,
		ExecutionTimeMs: elapsed.Milliseconds(),
		Timestamp:       time.Now().UTC(),
		Success:         errMsg == nil,
	}
	e.Stdout, e.StdoutTruncated = Truncate(stdout, maxBytes)
	e.Stderr, e.StderrTruncated = Truncate(stderr, maxBytes)
	return e
}

// Truncate cuts s to at most max bytes without splitting a UTF-8 sequence.
func Truncate(s string, max int) (string, bool) {
	if max <= 0 || len(s) <= max {
		return s, false
	}
	cut := max
	for cut > 0 && cut < len(s) && s[cut]&0xC0 == 0x80 {
		cut--
	}
	return s[:cut], true
}

// Ring is a fixed-capacity circular buffer of entries. Add is O(1); when full
// the oldest entry is overwritten.
type Ring struct {
	mu    sync.RWMutex
	buf   []Entry
	head  int // index of the next write
	count int
}

// NewRing creates a ring holding at most capacity entries.
func NewRing(capacity int) *Ring {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Ring{buf: make([]Entry, capacity)}
}

// Add inserts e as the newest entry.
func (r *Ring) Add(e Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.buf[r.head] = e
	r.head = (r.head + 1) % len(r.buf)
	if r.count < len(r.buf) {
		r.count++
	}
}

// Entries returns a copy of all entries, newest first.
func (r *Ring) Entries() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Entry, 0, r.count)
	for i := 1; i <= r.count; i++ {
		idx := (r.head - i + len(r.buf)) % len(r.buf)
		out = append(out, r.buf[idx])
	}
	return out
}

// Len returns the number of stored entries.
func (r *Ring) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.count
}

// Capacity returns the maximum number of entries.
func (r *Ring) Capacity() int {
	return len(r.buf)
}

// Clear removes every entry.
func (r *Ring) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.buf = make([]Entry, len(r.buf))
	r.head = 0
	r.count = 0
}
