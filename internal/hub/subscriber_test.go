package hub

import (
	"sync"
	"testing"
	"time"

	"github.com/brianly1003/gitdeck/internal/domain"
	"github.com/brianly1003/gitdeck/internal/domain/events"
)

func TestChannelSubscriber_Send(t *testing.T) {
	sub := NewChannelSubscriber("test", 10)

	if err := sub.Send(events.NewEvent(events.EventTypeHeartbeat, nil)); err != nil {
		t.Fatalf("Send() error = %v, want nil", err)
	}

	select {
	case received := <-sub.Events():
		if received.Type() != events.EventTypeHeartbeat {
			t.Errorf("received event type = %v, want %v", received.Type(), events.EventTypeHeartbeat)
		}
	default:
		t.Error("expected event in channel")
	}
}

func TestChannelSubscriber_Send_BufferFull(t *testing.T) {
	sub := NewChannelSubscriber("test", 2)

	_ = sub.Send(events.NewEvent(events.EventTypeHeartbeat, nil))
	_ = sub.Send(events.NewEvent(events.EventTypeHeartbeat, nil))

	if err := sub.Send(events.NewEvent(events.EventTypeHeartbeat, nil)); err != domain.ErrSubscriberClosed {
		t.Errorf("Send() error = %v, want ErrSubscriberClosed", err)
	}
}

func TestChannelSubscriber_CloseIsIdempotent(t *testing.T) {
	sub := NewChannelSubscriber("test", 10)

	if err := sub.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := sub.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}

	select {
	case <-sub.Done():
	case <-time.After(100 * time.Millisecond):
		t.Error("Done channel should be closed after Close()")
	}

	if err := sub.Send(events.NewEvent(events.EventTypeHeartbeat, nil)); err != domain.ErrSubscriberClosed {
		t.Errorf("Send() after close error = %v, want ErrSubscriberClosed", err)
	}
}

func TestChannelSubscriber_ConcurrentSendAndClose(t *testing.T) {
	sub := NewChannelSubscriber("test", 1000)
	var wg sync.WaitGroup

	wg.Add(10)
	for i := 0; i < 10; i++ {
		go func(sender int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = sub.Send(events.NewEvent(events.EventTypeCommandExecuted, map[string]int{"sender": sender, "seq": j}))
			}
		}(i)
	}
	go func() { _ = sub.Close() }()

	wg.Wait()
}

func TestObserver(t *testing.T) {
	var mu sync.Mutex
	var seen []events.EventType
	obs := NewObserver("log", func(e events.Event) {
		mu.Lock()
		seen = append(seen, e.Type())
		mu.Unlock()
	})

	_ = obs.Send(events.NewEvent(events.EventTypeHeartbeat, nil))
	_ = obs.Send(events.NewEvent(events.EventTypeCommandExecuted, nil))

	mu.Lock()
	if len(seen) != 2 || seen[1] != events.EventTypeCommandExecuted {
		t.Errorf("observed = %v", seen)
	}
	mu.Unlock()

	_ = obs.Close()
	_ = obs.Close()
	if err := obs.Send(events.NewEvent(events.EventTypeHeartbeat, nil)); err != domain.ErrSubscriberClosed {
		t.Errorf("Send() after close error = %v, want ErrSubscriberClosed", err)
	}

	nilFn := NewObserver("nil", nil)
	if err := nilFn.Send(events.NewEvent(events.EventTypeHeartbeat, nil)); err != nil {
		t.Errorf("Send() with nil callback error = %v", err)
	}
}

func TestObserver_TypeFilter(t *testing.T) {
	var got []events.EventType
	obs := NewObserver("git", func(e events.Event) {
		got = append(got, e.Type())
	}, events.EventTypeGitStatusChanged)

	_ = obs.Send(events.NewEvent(events.EventTypeHeartbeat, nil))
	_ = obs.Send(events.NewEvent(events.EventTypeGitStatusChanged, nil))

	if len(got) != 1 || got[0] != events.EventTypeGitStatusChanged {
		t.Errorf("observed = %v, want only git_status_changed", got)
	}
}
