package websocket

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/brianly1003/gitdeck/internal/domain/events"
	"github.com/brianly1003/gitdeck/internal/server/common"
)

func stdoutChunk(data string) events.Event {
	return events.NewInteractiveEvent("s1", events.OutputEvent{Stream: events.StreamStdout, Data: data})
}

// fillQueue queues capacity output frames on a client whose pumps are not
// running, so nothing drains.
func fillQueue(t *testing.T, c *Client) {
	t.Helper()
	for i := 0; i < common.SendBufferSize; i++ {
		if err := c.Send(stdoutChunk("x")); err != nil {
			t.Fatalf("Send() #%d error = %v", i, err)
		}
	}
}

func frameTypes(t *testing.T, frames []common.Frame) []string {
	t.Helper()
	out := make([]string, 0, len(frames))
	for _, f := range frames {
		var ev struct {
			Event string `json:"event"`
		}
		if err := json.Unmarshal(f.Data, &ev); err != nil {
			t.Fatalf("bad frame %s: %v", f.Data, err)
		}
		out = append(out, ev.Event)
	}
	return out
}

func TestClient_SessionExitFitsBehindFullQueue(t *testing.T) {
	c := NewClient(nil, nil, nil)
	fillQueue(t, c)

	exit := events.NewInteractiveEvent("s1", events.ExitEvent{Code: 0, Success: true})
	done := make(chan error, 1)
	go func() { done <- c.Send(exit) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Send(interactive_exit) error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Send(interactive_exit) blocked on a full queue")
	}

	types := frameTypes(t, c.send.Drain())
	if len(types) != common.SendBufferSize+1 {
		t.Fatalf("queued %d frames, want %d", len(types), common.SendBufferSize+1)
	}
	if last := types[len(types)-1]; last != string(events.EventTypeInteractiveExit) {
		t.Errorf("last frame = %s, want interactive_exit", last)
	}
	if c.send.Dropped() != 0 {
		t.Errorf("Dropped() = %d, want 0", c.send.Dropped())
	}
}

func TestClient_SessionOutputWaitsForRoom(t *testing.T) {
	c := NewClient(nil, nil, nil)
	fillQueue(t, c)

	done := make(chan error, 1)
	go func() { done <- c.Send(stdoutChunk("late")) }()

	select {
	case err := <-done:
		t.Fatalf("Send() returned %v on a full queue, want it to wait", err)
	case <-time.After(50 * time.Millisecond):
	}

	if n := len(c.send.Drain()); n != common.SendBufferSize {
		t.Fatalf("drained %d frames, want %d", n, common.SendBufferSize)
	}
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Send() after drain error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Send() still blocked after drain")
	}
	if types := frameTypes(t, c.send.Drain()); len(types) != 1 {
		t.Errorf("late chunk not queued: %v", types)
	}
}

func TestClient_CloseReleasesWaitingSender(t *testing.T) {
	c := NewClient(nil, nil, nil)
	fillQueue(t, c)

	done := make(chan error, 1)
	go func() { done <- c.Send(stdoutChunk("late")) }()
	time.Sleep(20 * time.Millisecond)
	c.Close()

	select {
	case err := <-done:
		if err != common.ErrClosed {
			t.Errorf("Send() error = %v, want ErrClosed", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Send() not released by Close")
	}
}

func TestClient_HubFramesDropInsteadOfBlocking(t *testing.T) {
	c := NewClient(nil, nil, nil)
	fillQueue(t, c)

	if err := c.offer(events.NewHeartbeatEvent(1, 1)); err != common.ErrBufferFull {
		t.Errorf("offer() error = %v, want ErrBufferFull", err)
	}
	sub := connSubscriber{client: c}
	if err := sub.Send(events.NewHeartbeatEvent(2, 1)); err != nil {
		t.Errorf("subscriber Send() error = %v, want nil on back pressure", err)
	}
}
