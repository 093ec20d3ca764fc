// Package project owns the active working directory and its broadcast room.
package project

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/brianly1003/gitdeck/internal/domain"
	"github.com/brianly1003/gitdeck/internal/domain/events"
	"github.com/brianly1003/gitdeck/internal/domain/ports"
	"github.com/brianly1003/gitdeck/internal/pathutil"
	"github.com/rs/zerolog/log"
)

// SessionContext is the immutable identity of the active project.
type SessionContext struct {
	Directory string `json:"directory"`
	Room      string `json:"room"`
	IsRepo    bool   `json:"is_repo"`
}

// NewSessionContext resolves dir and derives its room.
func NewSessionContext(dir string) (SessionContext, error) {
	abs, err := pathutil.ResolveDir(dir)
	if err != nil {
		return SessionContext{}, domain.NewValidationError("path", err.Error())
	}
	return SessionContext{
		Directory: abs,
		Room:      pathutil.RoomID(abs),
		IsRepo:    pathutil.IsGitRepo(abs),
	}, nil
}

// StatusSource computes the working tree status of the directory the fact
// cache currently points at.
type StatusSource interface {
	Status(ctx context.Context, force bool) (events.GitStatusPayload, error)
}

// DirSetter retargets the repository fact cache.
type DirSetter interface {
	SetDir(dir string)
}

// RoomMigrator moves room membership from one room to another.
type RoomMigrator interface {
	MigrateRoom(oldRoom, newRoom string) int
}

// WatcherFactory builds a watcher for dir that calls onChange after a burst
// of changes settles.
type WatcherFactory func(dir string, onChange func(paths []string)) ports.FileWatcher

// Options configures a Broadcaster.
type Options struct {
	Hub        ports.EventHub
	Status     StatusSource
	Facts      DirSetter
	NewWatcher WatcherFactory
	// Migrator is optional. When set, members of the old room follow a
	// project switch without having to rejoin.
	Migrator RoomMigrator
}

// Broadcaster publishes project status to the active room and migrates the
// room when the active directory changes.
type Broadcaster struct {
	hub        ports.EventHub
	status     StatusSource
	facts      DirSetter
	newWatcher WatcherFactory
	migrator   RoomMigrator

	current atomic.Pointer[SessionContext]

	// mu serializes Start, Switch and Stop.
	mu      sync.Mutex
	watcher ports.FileWatcher
	baseCtx context.Context
}

// NewBroadcaster creates a broadcaster. Call Start before use.
func NewBroadcaster(opts Options) *Broadcaster {
	b := &Broadcaster{
		hub:        opts.Hub,
		status:     opts.Status,
		facts:      opts.Facts,
		newWatcher: opts.NewWatcher,
		migrator:   opts.Migrator,
		baseCtx:    context.Background(),
	}
	b.current.Store(&SessionContext{})
	return b
}

// Start activates dir. ctx bounds the lifetime of watcher-triggered work.
func (b *Broadcaster) Start(ctx context.Context, dir string) error {
	sc, err := NewSessionContext(dir)
	if err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.baseCtx = ctx
	if b.facts != nil {
		b.facts.SetDir(sc.Directory)
	}
	b.current.Store(&sc)
	b.startWatcherLocked(sc)

	log.Info().
		Str("directory", sc.Directory).
		Str("room", sc.Room).
		Bool("is_repo", sc.IsRepo).
		Msg("project activated")
	return nil
}

// Stop tears down the active watcher.
func (b *Broadcaster) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stopWatcherLocked()
}

// Current returns the active session context.
func (b *Broadcaster) Current() SessionContext {
	return *b.current.Load()
}

// WatcherRunning reports whether the active project is being watched.
func (b *Broadcaster) WatcherRunning() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.watcher != nil && b.watcher.IsRunning()
}

// Publish sends status to every subscriber joined to the active room.
// Monitored updates only reach subscribers with monitoring switched on.
func (b *Broadcaster) Publish(status events.GitStatusPayload, monitored bool) {
	sc := b.Current()
	b.hub.Publish(events.NewGitStatusChangedEvent(sc.Room, status, monitored))
}

// Recompute reads the current status and publishes it to the active room.
func (b *Broadcaster) Recompute(ctx context.Context, force, monitored bool) (events.GitStatusPayload, error) {
	sc := b.Current()
	if !sc.IsRepo {
		return events.GitStatusPayload{}, domain.ErrNotGitRepo
	}

	status, err := b.status.Status(ctx, force)
	if err != nil {
		return events.GitStatusPayload{}, err
	}

	// A switch may have happened while the status was being read.
	if b.Current().Room != sc.Room {
		return status, nil
	}
	b.Publish(status, monitored)
	return status, nil
}

// Switch makes newPath the active project. Subscribers of the old room are
// told about the new room before the old watcher is torn down; the context
// swap and watcher restart happen under one lock.
func (b *Broadcaster) Switch(ctx context.Context, newPath string) (SessionContext, error) {
	next, err := NewSessionContext(newPath)
	if err != nil {
		return SessionContext{}, err
	}

	b.mu.Lock()
	prev := b.Current()
	if prev.Directory == next.Directory {
		b.mu.Unlock()
		return prev, nil
	}
	b.migrateLocked(prev, next)
	b.mu.Unlock()

	log.Info().
		Str("old_directory", prev.Directory).
		Str("directory", next.Directory).
		Str("room", next.Room).
		Msg("project switched")

	if next.IsRepo {
		if _, err := b.Recompute(ctx, true, false); err != nil && !errors.Is(err, context.Canceled) {
			log.Warn().Err(err).Str("directory", next.Directory).Msg("initial status after switch failed")
		}
	}
	return next, nil
}

func (b *Broadcaster) migrateLocked(prev, next SessionContext) {
	if prev.Room != "" {
		b.hub.PublishSync(events.NewProjectChangedEvent(prev.Room, next.Room, prev.Directory, next.Directory, next.IsRepo))
	}

	b.stopWatcherLocked()

	if b.facts != nil {
		b.facts.SetDir(next.Directory)
	}
	b.current.Store(&next)

	if b.migrator != nil && prev.Room != "" {
		b.migrator.MigrateRoom(prev.Room, next.Room)
	}

	b.startWatcherLocked(next)
}

func (b *Broadcaster) startWatcherLocked(sc SessionContext) {
	if !sc.IsRepo || b.newWatcher == nil {
		return
	}

	room := sc.Room
	w := b.newWatcher(sc.Directory, func(paths []string) {
		if b.Current().Room != room {
			return
		}
		if _, err := b.Recompute(b.baseCtx, false, true); err != nil {
			log.Debug().Err(err).Str("room", room).Msg("status recompute failed")
		}
	})
	if err := w.Start(b.baseCtx); err != nil {
		log.Warn().Err(err).Str("directory", sc.Directory).Msg("failed to start watcher")
		return
	}
	b.watcher = w
}

func (b *Broadcaster) stopWatcherLocked() {
	if b.watcher == nil {
		return
	}
	if err := b.watcher.Stop(); err != nil {
		log.Warn().Err(err).Msg("failed to stop watcher")
	}
	b.watcher = nil
}

// String implements fmt.Stringer for logging.
func (sc SessionContext) String() string {
	return fmt.Sprintf("%s (%s)", sc.Directory, sc.Room)
}
