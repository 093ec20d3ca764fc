// Package testutil holds the hub and subscriber doubles shared by gitdeck tests.
package testutil

import (
	"sync"
	"testing"
	"time"

	"github.com/brianly1003/gitdeck/internal/domain/events"
	"github.com/brianly1003/gitdeck/internal/domain/ports"
)

// recorder is a goroutine-safe event log.
type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recorder) record(e events.Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func (r *recorder) snapshot() []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]events.Event, len(r.events))
	copy(out, r.events)
	return out
}

func (r *recorder) ofType(t events.EventType) []events.Event {
	var out []events.Event
	for _, e := range r.snapshot() {
		if e.Type() == t {
			out = append(out, e)
		}
	}
	return out
}

// rooms lists the distinct rooms events were addressed to, in arrival order.
// Room-less events are skipped.
func (r *recorder) rooms() []string {
	seen := make(map[string]bool)
	var out []string
	for _, e := range r.snapshot() {
		room := e.GetRoom()
		if room == "" || seen[room] {
			continue
		}
		seen[room] = true
		out = append(out, room)
	}
	return out
}

// MockSubscriber records what the hub delivers to it.
type MockSubscriber struct {
	recorder
	id      string
	done    chan struct{}
	sendErr error
	closed  bool
}

// NewMockSubscriber creates a subscriber with the given id.
func NewMockSubscriber(id string) *MockSubscriber {
	return &MockSubscriber{id: id, done: make(chan struct{})}
}

func (m *MockSubscriber) ID() string { return m.id }

// Send records e unless an error was configured with SetSendError.
func (m *MockSubscriber) Send(e events.Event) error {
	m.mu.Lock()
	err := m.sendErr
	m.mu.Unlock()
	if err != nil {
		return err
	}
	m.record(e)
	return nil
}

func (m *MockSubscriber) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		m.closed = true
		close(m.done)
	}
	return nil
}

func (m *MockSubscriber) Done() <-chan struct{} { return m.done }

// SetSendError makes every following Send fail with err.
func (m *MockSubscriber) SetSendError(err error) {
	m.mu.Lock()
	m.sendErr = err
	m.mu.Unlock()
}

func (m *MockSubscriber) IsClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func (m *MockSubscriber) Events() []events.Event { return m.snapshot() }

func (m *MockSubscriber) EventCount() int { return len(m.snapshot()) }

func (m *MockSubscriber) EventsOfType(t events.EventType) []events.Event { return m.ofType(t) }

// Rooms lists the rooms of the received events.
func (m *MockSubscriber) Rooms() []string { return m.rooms() }

var _ ports.Subscriber = (*MockSubscriber)(nil)

// MockEventHub records publishes synchronously and keeps a subscriber list
// without delivering to it.
type MockEventHub struct {
	recorder
	subsMu    sync.Mutex
	subs      []ports.Subscriber
	onPublish func(events.Event)
}

func NewMockEventHub() *MockEventHub {
	return &MockEventHub{}
}

func (m *MockEventHub) Start() error { return nil }

func (m *MockEventHub) Stop() error { return nil }

func (m *MockEventHub) Publish(e events.Event) {
	m.record(e)
	m.subsMu.Lock()
	fn := m.onPublish
	m.subsMu.Unlock()
	if fn != nil {
		fn(e)
	}
}

func (m *MockEventHub) PublishSync(e events.Event) { m.Publish(e) }

// OnPublish registers a hook called after every recorded event.
func (m *MockEventHub) OnPublish(fn func(events.Event)) {
	m.subsMu.Lock()
	m.onPublish = fn
	m.subsMu.Unlock()
}

func (m *MockEventHub) Subscribe(sub ports.Subscriber) {
	m.subsMu.Lock()
	m.subs = append(m.subs, sub)
	m.subsMu.Unlock()
}

func (m *MockEventHub) Unsubscribe(id string) {
	m.subsMu.Lock()
	defer m.subsMu.Unlock()
	for i, sub := range m.subs {
		if sub.ID() == id {
			m.subs = append(m.subs[:i], m.subs[i+1:]...)
			return
		}
	}
}

func (m *MockEventHub) SubscriberCount() int {
	m.subsMu.Lock()
	defer m.subsMu.Unlock()
	return len(m.subs)
}

func (m *MockEventHub) PublishedEvents() []events.Event { return m.snapshot() }

func (m *MockEventHub) EventsOfType(t events.EventType) []events.Event { return m.ofType(t) }

// Rooms lists the rooms published to.
func (m *MockEventHub) Rooms() []string { return m.rooms() }

var _ ports.EventHub = (*MockEventHub)(nil)

// Eventually polls cond until it holds or timeout elapses.
func Eventually(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("condition not met within %v: %s", timeout, msg)
		}
		time.Sleep(5 * time.Millisecond)
	}
}
