// Package process supervises streamed and interactive child processes.
package process

import (
	"io"
	"os/exec"
	"sort"
	"sync"
	"time"

	"github.com/brianly1003/gitdeck/internal/domain"
)

// Handle is a live subprocess owned by the Registry.
type Handle struct {
	ID        int       `json:"id"`
	Command   string    `json:"command"`
	StartedAt time.Time `json:"startedAt"`
	Dir       string    `json:"workingDirectory"`
	SessionID string    `json:"sessionId,omitempty"`
	PID       int       `json:"pid"`

	cmd    *exec.Cmd
	exited chan struct{}

	inputMu sync.Mutex
	stdin   io.WriteCloser
}

// Exited returns a channel closed once the process has been reaped.
func (h *Handle) Exited() <-chan struct{} {
	return h.exited
}

func (h *Handle) hasExited() bool {
	select {
	case <-h.exited:
		return true
	default:
		return false
	}
}

// Registry maps ids to live subprocesses. Ids are monotonic and never reused.
type Registry struct {
	mu        sync.RWMutex
	next      int
	byID      map[int]*Handle
	bySession map[string]int
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byID:      make(map[int]*Handle),
		bySession: make(map[string]int),
	}
}

// Create assigns the next id to h and stores it. A session id may only be
// bound to one live process at a time.
func (r *Registry) Create(h *Handle) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if h.SessionID != "" {
		if _, ok := r.bySession[h.SessionID]; ok {
			return 0, domain.ErrSessionExists
		}
	}

	r.next++
	h.ID = r.next
	r.byID[h.ID] = h
	if h.SessionID != "" {
		r.bySession[h.SessionID] = h.ID
	}
	return h.ID, nil
}

// Get returns the handle for id.
func (r *Registry) Get(id int) (*Handle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.byID[id]
	return h, ok
}

// GetBySession returns the handle bound to sessionID.
func (r *Registry) GetBySession(sessionID string) (*Handle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.bySession[sessionID]
	if !ok {
		return nil, false
	}
	h, ok := r.byID[id]
	return h, ok
}

// Remove deletes id. Removing an absent id is a no-op.
func (r *Registry) Remove(id int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	h, ok := r.byID[id]
	if !ok {
		return
	}
	delete(r.byID, id)
	if h.SessionID != "" && r.bySession[h.SessionID] == id {
		delete(r.bySession, h.SessionID)
	}
}

// List returns all live handles ordered by id.
func (r *Registry) List() []*Handle {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Handle, 0, len(r.byID))
	for _, h := range r.byID {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Len returns the number of live handles.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}
