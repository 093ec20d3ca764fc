// Package terminal tracks detached, user-visible terminal windows. Unlike
// supervised processes they are not piped; their liveness is polled.
package terminal

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/brianly1003/gitdeck/internal/domain"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Launcher is the platform surface the tracker needs.
type Launcher interface {
	OpenTerminal(ctx context.Context, command, dir string) (int, error)
	IsAlive(pid int) bool
	Kill(pid int) error
}

// Session is one tracked terminal window.
type Session struct {
	ID            string    `json:"id"`
	Command       string    `json:"command"`
	Dir           string    `json:"workingDirectory"`
	PID           *int      `json:"pid"`
	CreatedAt     time.Time `json:"createdAt"`
	LastStartedAt time.Time `json:"lastStartedAt"`
}

// Status is the result of probing one session.
type Status struct {
	Session
	Alive bool `json:"alive"`
}

// Tracker records terminal sessions by id.
type Tracker struct {
	launcher Launcher

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewTracker creates a Tracker.
func NewTracker(launcher Launcher) *Tracker {
	return &Tracker{
		launcher: launcher,
		sessions: make(map[string]*Session),
	}
}

// Open launches a terminal and records it once its pid is known.
func (t *Tracker) Open(ctx context.Context, command, dir string) (Session, error) {
	pid, err := t.launcher.OpenTerminal(ctx, command, dir)
	if err != nil {
		return Session{}, err
	}

	now := time.Now().UTC()
	s := &Session{
		ID:            uuid.New().String(),
		Command:       command,
		Dir:           dir,
		PID:           &pid,
		CreatedAt:     now,
		LastStartedAt: now,
	}

	t.mu.Lock()
	t.sessions[s.ID] = s
	t.mu.Unlock()

	log.Info().Str("terminal_id", s.ID).Int("pid", pid).Str("command", command).Msg("terminal opened")
	return *s, nil
}

// List returns all sessions, oldest first.
func (t *Tracker) List() []Session {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]Session, 0, len(t.sessions))
	for _, s := range t.sessions {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Get returns one session.
func (t *Tracker) Get(id string) (Session, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s, ok := t.sessions[id]
	if !ok {
		return Session{}, false
	}
	return *s, true
}

// Restart kills the previous terminal if it is still alive and opens a new
// one with the same command and directory.
func (t *Tracker) Restart(ctx context.Context, id string) (Session, error) {
	t.mu.RLock()
	s, ok := t.sessions[id]
	var command, dir string
	var oldPID *int
	if ok {
		command, dir, oldPID = s.Command, s.Dir, s.PID
	}
	t.mu.RUnlock()
	if !ok {
		return Session{}, domain.ErrTerminalNotFound
	}

	if oldPID != nil {
		t.killIfAlive(*oldPID)
	}

	pid, err := t.launcher.OpenTerminal(ctx, command, dir)
	if err != nil {
		t.mu.Lock()
		if cur, ok := t.sessions[id]; ok {
			cur.PID = nil
		}
		t.mu.Unlock()
		return Session{}, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	cur, ok := t.sessions[id]
	if !ok {
		// Closed while relaunching; do not resurrect it.
		t.killIfAlive(pid)
		return Session{}, domain.ErrTerminalNotFound
	}
	cur.PID = &pid
	cur.LastStartedAt = time.Now().UTC()

	log.Info().Str("terminal_id", id).Int("pid", pid).Msg("terminal restarted")
	return *cur, nil
}

// CheckStatus checks every tracked pid. With cleanup, sessions whose pid is
// confirmed dead are removed. A session without a pid (its last relaunch
// failed) is reported as not alive but kept, so it can still be restarted.
func (t *Tracker) CheckStatus(cleanup bool) []Status {
	sessions := t.List()
	out := make([]Status, 0, len(sessions))
	dead := make(map[string]int)

	for _, s := range sessions {
		alive := s.PID != nil && t.isAlive(*s.PID)
		out = append(out, Status{Session: s, Alive: alive})
		if !alive && s.PID != nil {
			dead[s.ID] = *s.PID
		}
	}

	if cleanup && len(dead) > 0 {
		removed := 0
		t.mu.Lock()
		for id, pid := range dead {
			// Skip sessions restarted since the check.
			if cur, ok := t.sessions[id]; ok && cur.PID != nil && *cur.PID == pid {
				delete(t.sessions, id)
				removed++
			}
		}
		t.mu.Unlock()
		log.Debug().Int("removed", removed).Msg("cleaned up dead terminals")
	}
	return out
}

// Close kills the terminal if alive and forgets it.
func (t *Tracker) Close(id string) error {
	t.mu.Lock()
	s, ok := t.sessions[id]
	if ok {
		delete(t.sessions, id)
	}
	t.mu.Unlock()
	if !ok {
		return domain.ErrTerminalNotFound
	}

	if s.PID != nil {
		t.killIfAlive(*s.PID)
	}
	log.Info().Str("terminal_id", id).Msg("terminal closed")
	return nil
}

func (t *Tracker) killIfAlive(pid int) {
	if !t.isAlive(pid) {
		return
	}
	if err := t.launcher.Kill(pid); err != nil {
		log.Debug().Err(err).Int("pid", pid).Msg("failed to kill terminal")
	}
}

// isAlive never panics on a vanished pid; any failed check is "not alive".
func (t *Tracker) isAlive(pid int) (alive bool) {
	defer func() {
		if r := recover(); r != nil {
			alive = false
		}
	}()
	return t.launcher.IsAlive(pid)
}
