package hub

import (
	"sort"
	"sync"

	"github.com/brianly1003/gitdeck/internal/domain/events"
	"github.com/brianly1003/gitdeck/internal/domain/ports"
)

// RoomSubscriber wraps a subscriber and filters events by project room and
// monitoring preference.
//
// Events without a room are always forwarded. Room events are forwarded only
// if the room was joined. Monitoring updates additionally require monitoring
// to be switched on, which it is not by default.
type RoomSubscriber struct {
	inner      ports.Subscriber
	rooms      map[string]bool
	monitoring bool
	mu         sync.RWMutex
}

// NewRoomSubscriber creates a new room-filtered subscriber wrapping inner.
func NewRoomSubscriber(inner ports.Subscriber) *RoomSubscriber {
	return &RoomSubscriber{
		inner: inner,
		rooms: make(map[string]bool),
	}
}

// ID returns the subscriber's unique identifier.
func (r *RoomSubscriber) ID() string {
	return r.inner.ID()
}

// Send sends an event to the subscriber if it passes the filter.
func (r *RoomSubscriber) Send(event events.Event) error {
	if !r.shouldForward(event) {
		return nil
	}
	return r.inner.Send(event)
}

// Close closes the subscriber.
func (r *RoomSubscriber) Close() error {
	return r.inner.Close()
}

// Done returns a channel that's closed when the subscriber is done.
func (r *RoomSubscriber) Done() <-chan struct{} {
	return r.inner.Done()
}

// Join adds a room to the filter.
func (r *RoomSubscriber) Join(room string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rooms[room] = true
}

// Leave removes a room from the filter.
func (r *RoomSubscriber) Leave(room string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.rooms, room)
}

// InRoom reports whether room was joined.
func (r *RoomSubscriber) InRoom(room string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.rooms[room]
}

// Rooms returns the joined rooms, sorted.
func (r *RoomSubscriber) Rooms() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]string, 0, len(r.rooms))
	for id := range r.rooms {
		result = append(result, id)
	}
	sort.Strings(result)
	return result
}

// SetMonitoring switches delivery of monitoring updates on or off.
func (r *RoomSubscriber) SetMonitoring(on bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.monitoring = on
}

// Monitoring reports whether monitoring updates are delivered.
func (r *RoomSubscriber) Monitoring() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.monitoring
}

func (r *RoomSubscriber) shouldForward(event events.Event) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	room := event.GetRoom()
	if room == "" {
		return true
	}
	if !r.rooms[room] {
		return false
	}
	if event.IsMonitored() && !r.monitoring {
		return false
	}
	return true
}

var _ RoomMember = (*RoomSubscriber)(nil)
