package watcher

import (
	"sync"
	"testing"
	"time"
)

type callRecorder struct {
	mu    sync.Mutex
	calls [][]string
	fired chan struct{}
}

func newCallRecorder() *callRecorder {
	return &callRecorder{fired: make(chan struct{}, 16)}
}

func (r *callRecorder) record(paths []string) {
	r.mu.Lock()
	r.calls = append(r.calls, paths)
	r.mu.Unlock()
	r.fired <- struct{}{}
}

func (r *callRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func TestDebouncerCoalescesBurst(t *testing.T) {
	rec := newCallRecorder()
	d := NewDebouncer(50*time.Millisecond, rec.record)
	defer d.Stop()

	for i := 0; i < 20; i++ {
		d.Add("a.txt")
		d.Add("b.txt")
		time.Sleep(2 * time.Millisecond)
	}

	select {
	case <-rec.fired:
	case <-time.After(2 * time.Second):
		t.Fatal("debouncer never fired")
	}
	time.Sleep(150 * time.Millisecond)

	if got := rec.count(); got != 1 {
		t.Fatalf("calls = %d, want 1", got)
	}
	rec.mu.Lock()
	paths := rec.calls[0]
	rec.mu.Unlock()
	if len(paths) != 2 || paths[0] != "a.txt" || paths[1] != "b.txt" {
		t.Fatalf("paths = %v, want [a.txt b.txt]", paths)
	}
}

func TestDebouncerResetsQuietPeriod(t *testing.T) {
	rec := newCallRecorder()
	d := NewDebouncer(80*time.Millisecond, rec.record)
	defer d.Stop()

	start := time.Now()
	d.Add("x")
	time.Sleep(50 * time.Millisecond)
	d.Add("x")

	select {
	case <-rec.fired:
	case <-time.After(2 * time.Second):
		t.Fatal("debouncer never fired")
	}
	if elapsed := time.Since(start); elapsed < 120*time.Millisecond {
		t.Fatalf("fired after %v, want the timer to restart on the second event", elapsed)
	}
}

func TestDebouncerSeparateBursts(t *testing.T) {
	rec := newCallRecorder()
	d := NewDebouncer(20*time.Millisecond, rec.record)
	defer d.Stop()

	d.Add("one")
	<-rec.fired
	if d.Pending() {
		t.Fatal("Pending() = true after fire")
	}
	d.Add("two")
	<-rec.fired

	if got := rec.count(); got != 2 {
		t.Fatalf("calls = %d, want 2", got)
	}
}

func TestDebouncerStopCancelsPending(t *testing.T) {
	rec := newCallRecorder()
	d := NewDebouncer(30*time.Millisecond, rec.record)

	d.Add("a")
	if !d.Pending() {
		t.Fatal("Pending() = false after Add")
	}
	d.Stop()
	d.Add("b")

	time.Sleep(100 * time.Millisecond)
	if got := rec.count(); got != 0 {
		t.Fatalf("calls = %d, want 0 after Stop", got)
	}
}
