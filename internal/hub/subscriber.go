package hub

import (
	"sync"
	"sync/atomic"

	"github.com/brianly1003/gitdeck/internal/domain"
	"github.com/brianly1003/gitdeck/internal/domain/events"
)

// subscriberBase carries the id and the close bookkeeping shared by the
// in-process subscribers.
type subscriberBase struct {
	id        string
	done      chan struct{}
	closed    atomic.Bool
	closeOnce sync.Once
}

func (b *subscriberBase) ID() string { return b.id }

func (b *subscriberBase) Done() <-chan struct{} { return b.done }

// ChannelSubscriber delivers events to a buffered channel. A reader that
// falls a full buffer behind is reported closed so the hub drops it.
type ChannelSubscriber struct {
	subscriberBase
	mu sync.Mutex
	ch chan events.Event
}

// NewChannelSubscriber creates a subscriber buffering up to size events.
func NewChannelSubscriber(id string, size int) *ChannelSubscriber {
	return &ChannelSubscriber{
		subscriberBase: subscriberBase{id: id, done: make(chan struct{})},
		ch:             make(chan events.Event, size),
	}
}

func (s *ChannelSubscriber) Send(event events.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed.Load() {
		return domain.ErrSubscriberClosed
	}
	select {
	case s.ch <- event:
		return nil
	default:
		return domain.ErrSubscriberClosed
	}
}

func (s *ChannelSubscriber) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed.Store(true)
		close(s.ch)
		s.mu.Unlock()
		close(s.done)
	})
	return nil
}

// Events is closed after Close.
func (s *ChannelSubscriber) Events() <-chan events.Event {
	return s.ch
}

// Observer hands events to a callback on the publishing goroutine, which
// must not block. With no types given it sees every event.
type Observer struct {
	subscriberBase
	fn    func(events.Event)
	types map[events.EventType]bool
}

// NewObserver creates an observer limited to the given event types.
func NewObserver(id string, fn func(events.Event), types ...events.EventType) *Observer {
	o := &Observer{subscriberBase: subscriberBase{id: id, done: make(chan struct{})}, fn: fn}
	if len(types) > 0 {
		o.types = make(map[events.EventType]bool, len(types))
		for _, t := range types {
			o.types[t] = true
		}
	}
	return o
}

func (o *Observer) Send(event events.Event) error {
	if o.closed.Load() {
		return domain.ErrSubscriberClosed
	}
	if o.fn == nil || (o.types != nil && !o.types[event.Type()]) {
		return nil
	}
	o.fn(event)
	return nil
}

func (o *Observer) Close() error {
	o.closeOnce.Do(func() {
		o.closed.Store(true)
		close(o.done)
	})
	return nil
}
