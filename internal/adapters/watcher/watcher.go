// Package watcher implements the working tree watcher using fsnotify.
package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// DefaultDebounce is the quiet period used when none is configured.
const DefaultDebounce = time.Second

// Watcher implements the FileWatcher port. It never computes status itself:
// after a burst of changes settles it invokes onChange once.
type Watcher struct {
	rootPath string
	debounce time.Duration
	onChange func(paths []string)

	mu             sync.RWMutex
	watcher        *fsnotify.Watcher
	ignorePatterns []string
	running        bool
	cancel         context.CancelFunc
	done           chan struct{}

	debouncer *Debouncer
}

// NewWatcher creates a watcher for rootPath.
func NewWatcher(rootPath string, debounce time.Duration, ignorePatterns []string, onChange func(paths []string)) *Watcher {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Watcher{
		rootPath:       rootPath,
		debounce:       debounce,
		onChange:       onChange,
		ignorePatterns: append([]string(nil), ignorePatterns...),
	}
}

// Root returns the watched directory.
func (w *Watcher) Root() string {
	return w.rootPath
}

// Start begins watching the directory tree.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		w.mu.Unlock()
		return err
	}
	w.watcher = fw

	watchCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.done = make(chan struct{})
	w.debouncer = NewDebouncer(w.debounce, w.handleDebounced)
	w.running = true
	done := w.done
	w.mu.Unlock()

	go w.eventLoop(watchCtx, fw, done)

	if err := w.addWatchRecursive(w.rootPath); err != nil {
		_ = w.Stop()
		return err
	}

	log.Info().
		Str("path", w.rootPath).
		Dur("debounce", w.debounce).
		Msg("file watcher started")

	return nil
}

// Stop terminates watching and cancels any pending recomputation. It waits
// for the event loop to exit so no callback starts after Stop returns.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = false

	if w.cancel != nil {
		w.cancel()
	}
	if w.debouncer != nil {
		w.debouncer.Stop()
	}

	var err error
	if w.watcher != nil {
		err = w.watcher.Close()
		w.watcher = nil
	}
	done := w.done
	w.mu.Unlock()

	if done != nil {
		<-done
	}
	log.Info().Str("path", w.rootPath).Msg("file watcher stopped")
	return err
}

// IsRunning returns true if the watcher is active.
func (w *Watcher) IsRunning() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.running
}

func (w *Watcher) addWatchRecursive(root string) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if !info.IsDir() {
			return nil
		}
		if rel, err := filepath.Rel(w.rootPath, path); err == nil && rel != "." && w.shouldIgnore(rel) {
			return filepath.SkipDir
		}

		w.mu.RLock()
		fw := w.watcher
		w.mu.RUnlock()
		if fw == nil {
			return filepath.SkipAll
		}
		if err := fw.Add(path); err != nil {
			log.Warn().Err(err).Str("path", path).Msg("failed to add watch")
		}
		return nil
	})
}

func (w *Watcher) eventLoop(ctx context.Context, fw *fsnotify.Watcher, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-fw.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-fw.Errors:
			if !ok {
				return
			}
			log.Warn().Err(err).Msg("watcher error")
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	relPath, err := filepath.Rel(w.rootPath, event.Name)
	if err != nil {
		relPath = event.Name
	}
	if w.shouldIgnore(relPath) {
		return
	}

	switch {
	case event.Has(fsnotify.Create):
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			_ = w.addWatchRecursive(event.Name)
		}
	case event.Has(fsnotify.Write), event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
	default:
		// chmod
		return
	}

	w.mu.RLock()
	d := w.debouncer
	running := w.running
	w.mu.RUnlock()
	if running && d != nil {
		d.Add(relPath)
	}
}

func (w *Watcher) handleDebounced(paths []string) {
	log.Debug().
		Str("path", w.rootPath).
		Int("changes", len(paths)).
		Msg("working tree changed")

	if w.onChange != nil {
		w.onChange(paths)
	}
}

// shouldIgnore reports whether any component of path matches an ignore pattern.
func (w *Watcher) shouldIgnore(path string) bool {
	w.mu.RLock()
	patterns := w.ignorePatterns
	w.mu.RUnlock()

	parts := splitPath(path)
	for _, pattern := range patterns {
		for _, part := range parts {
			if matched, _ := filepath.Match(pattern, part); matched {
				return true
			}
		}
	}
	return false
}

// splitPath splits a path into its components.
func splitPath(path string) []string {
	var parts []string
	for path != "" && path != "/" && path != "." {
		dir, file := filepath.Split(path)
		if file != "" {
			parts = append([]string{file}, parts...)
		}
		next := filepath.Clean(dir)
		if next == path {
			break
		}
		path = next
	}
	return parts
}
