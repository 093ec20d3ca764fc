package watcher

import (
	"sort"
	"sync"
	"time"
)

// Debouncer coalesces bursts of file system events into one trailing call.
// Every Add restarts the quiet period; there is never more than one pending
// timer.
type Debouncer struct {
	window   time.Duration
	callback func(paths []string)

	mu      sync.Mutex
	timer   *time.Timer
	gen     uint64
	pending map[string]struct{}
	stopped bool
}

// NewDebouncer creates a new debouncer with the given window and callback.
func NewDebouncer(window time.Duration, callback func(paths []string)) *Debouncer {
	return &Debouncer{
		window:   window,
		callback: callback,
		pending:  make(map[string]struct{}),
	}
}

// Add records a changed path and restarts the quiet period.
func (d *Debouncer) Add(path string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}

	d.pending[path] = struct{}{}

	if d.timer != nil {
		d.timer.Stop()
	}
	// A timer whose Stop lost the race still runs; the generation makes it a no-op.
	d.gen++
	gen := d.gen
	d.timer = time.AfterFunc(d.window, func() {
		d.fire(gen)
	})
}

// Pending reports whether a call is scheduled.
func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.timer != nil
}

func (d *Debouncer) fire(gen uint64) {
	d.mu.Lock()
	if d.stopped || gen != d.gen {
		d.mu.Unlock()
		return
	}
	paths := make([]string, 0, len(d.pending))
	for p := range d.pending {
		paths = append(paths, p)
	}
	d.pending = make(map[string]struct{})
	d.timer = nil
	d.mu.Unlock()

	sort.Strings(paths)
	if d.callback != nil {
		d.callback(paths)
	}
}

// Stop cancels the pending call, if any. Later Adds are ignored.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopped = true
	d.gen++
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.pending = make(map[string]struct{})
}
