// Package hub fans events out to every connected subscriber.
//
// The hub does no routing of its own: project rooms and the monitoring
// switch are enforced by RoomSubscriber, so the same event can be offered
// to everyone and each subscriber decides. A subscriber whose Send fails is
// closed and evicted.
package hub

import (
	"sync"
	"sync/atomic"

	"github.com/brianly1003/gitdeck/internal/domain/events"
	"github.com/brianly1003/gitdeck/internal/domain/ports"
	"github.com/rs/zerolog/log"
)

// queueSize bounds events accepted by Publish but not yet delivered.
const queueSize = 256

// RoomMember is a subscriber that tracks which project rooms it has joined.
type RoomMember interface {
	ports.Subscriber
	InRoom(room string) bool
	Join(room string)
	Leave(room string)
}

// Stats counts hub traffic since New.
type Stats struct {
	Published uint64 `json:"published"`
	Dropped   uint64 `json:"dropped"`
	Evicted   uint64 `json:"evicted"`
}

// Hub delivers published events on a single goroutine in publish order.
type Hub struct {
	mu      sync.RWMutex
	subs    map[string]ports.Subscriber
	running bool
	stopped bool

	queue chan events.Event
	quit  chan struct{}
	wg    sync.WaitGroup

	published atomic.Uint64
	dropped   atomic.Uint64
	evicted   atomic.Uint64
}

// New creates a stopped hub.
func New() *Hub {
	return &Hub{
		subs:  make(map[string]ports.Subscriber),
		queue: make(chan events.Event, queueSize),
		quit:  make(chan struct{}),
	}
}

// Start launches the delivery loop. Starting twice is a no-op; a stopped
// hub cannot be restarted.
func (h *Hub) Start() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.running || h.stopped {
		return nil
	}
	h.running = true

	h.wg.Add(1)
	go h.loop()
	log.Debug().Msg("event hub started")
	return nil
}

// Stop ends the delivery loop and closes every subscriber. Events still
// queued are discarded.
func (h *Hub) Stop() error {
	h.mu.Lock()
	if !h.running {
		h.mu.Unlock()
		return nil
	}
	h.running = false
	h.stopped = true
	close(h.quit)
	h.mu.Unlock()

	h.wg.Wait()

	h.mu.Lock()
	subs := h.subs
	h.subs = make(map[string]ports.Subscriber)
	h.mu.Unlock()

	for _, sub := range subs {
		_ = sub.Close()
	}
	log.Debug().Int("subscribers", len(subs)).Msg("event hub stopped")
	return nil
}

func (h *Hub) loop() {
	defer h.wg.Done()
	for {
		select {
		case <-h.quit:
			return
		case event := <-h.queue:
			h.deliver(event)
		}
	}
}

// deliver offers event to every subscriber, then evicts the ones that failed.
func (h *Hub) deliver(event events.Event) {
	var failed []string

	h.mu.RLock()
	for id, sub := range h.subs {
		if err := sub.Send(event); err != nil {
			log.Warn().
				Err(err).
				Str("subscriber_id", id).
				Str("event_type", string(event.Type())).
				Msg("evicting subscriber after failed send")
			failed = append(failed, id)
		}
	}
	h.mu.RUnlock()

	for _, id := range failed {
		if h.remove(id) {
			h.evicted.Add(1)
		}
	}
}

// remove closes and forgets the subscriber. It reports whether id was present.
func (h *Hub) remove(id string) bool {
	h.mu.Lock()
	sub, ok := h.subs[id]
	delete(h.subs, id)
	h.mu.Unlock()

	if ok {
		_ = sub.Close()
	}
	return ok
}

// Publish queues event for delivery. When the queue is full the event is
// dropped rather than blocking the caller.
func (h *Hub) Publish(event events.Event) {
	select {
	case h.queue <- event:
		h.published.Add(1)
	default:
		h.dropped.Add(1)
		log.Warn().
			Str("event_type", string(event.Type())).
			Str("room", event.GetRoom()).
			Msg("event dropped: hub queue full")
	}
}

// PublishSync hands the event to every subscriber before returning. Events
// already queued by Publish may be delivered after it.
func (h *Hub) PublishSync(event events.Event) {
	h.published.Add(1)
	h.deliver(event)
}

// Subscribe adds sub, replacing any subscriber with the same id. After Stop
// the subscriber is closed straight away.
func (h *Hub) Subscribe(sub ports.Subscriber) {
	h.mu.Lock()
	if h.stopped {
		h.mu.Unlock()
		_ = sub.Close()
		return
	}
	prev := h.subs[sub.ID()]
	h.subs[sub.ID()] = sub
	h.mu.Unlock()

	if prev != nil && prev != sub {
		_ = prev.Close()
	}
	log.Debug().Str("subscriber_id", sub.ID()).Msg("subscriber registered")
}

// Unsubscribe closes and removes the subscriber with the given id.
func (h *Hub) Unsubscribe(id string) {
	if h.remove(id) {
		log.Debug().Str("subscriber_id", id).Msg("subscriber unregistered")
	}
}

// SubscriberCount returns the number of active subscribers.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Stats returns the traffic counters.
func (h *Hub) Stats() Stats {
	return Stats{
		Published: h.published.Load(),
		Dropped:   h.dropped.Load(),
		Evicted:   h.evicted.Load(),
	}
}

// members returns the room-aware subscribers currently in room.
func (h *Hub) members(room string) []RoomMember {
	h.mu.RLock()
	defer h.mu.RUnlock()
	var out []RoomMember
	for _, sub := range h.subs {
		if m, ok := sub.(RoomMember); ok && m.InRoom(room) {
			out = append(out, m)
		}
	}
	return out
}

// RoomSize returns how many subscribers have joined room.
func (h *Hub) RoomSize(room string) int {
	return len(h.members(room))
}

// MigrateRoom moves every member of oldRoom into newRoom and returns how
// many subscribers moved.
func (h *Hub) MigrateRoom(oldRoom, newRoom string) int {
	if oldRoom == newRoom {
		return 0
	}
	moved := h.members(oldRoom)
	for _, m := range moved {
		m.Leave(oldRoom)
		m.Join(newRoom)
	}
	if len(moved) > 0 {
		log.Info().
			Str("old_room", oldRoom).
			Str("new_room", newRoom).
			Int("subscribers", len(moved)).
			Msg("room migrated")
	}
	return len(moved)
}

// IsRunning reports whether the delivery loop is active.
func (h *Hub) IsRunning() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.running
}
