package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/brianly1003/gitdeck/internal/domain/commands"
	"github.com/brianly1003/gitdeck/internal/domain/events"
	"github.com/brianly1003/gitdeck/internal/hub"
	"github.com/brianly1003/gitdeck/internal/testutil"
	"github.com/gorilla/websocket"
)

type wireEvent struct {
	Event     string          `json:"event"`
	Room      string          `json:"room"`
	Payload   json.RawMessage `json:"payload"`
	RequestID string          `json:"request_id"`
}

type harness struct {
	t         *testing.T
	hub       *hub.Hub
	srv       *Server
	http      *httptest.Server
	connected chan string
	gone      chan string
	commands  chan *commands.Command
}

func newHarness(t *testing.T, mutate func(*Options)) *harness {
	t.Helper()
	h := &harness{
		t:         t,
		hub:       hub.New(),
		connected: make(chan string, 4),
		gone:      make(chan string, 4),
		commands:  make(chan *commands.Command, 4),
	}
	if err := h.hub.Start(); err != nil {
		t.Fatalf("hub start: %v", err)
	}
	opts := Options{
		Hub:          h.hub,
		Handler:      func(_ string, cmd *commands.Command) { h.commands <- cmd },
		OnConnect:    func(id string) { h.connected <- id },
		OnDisconnect: func(id string) { h.gone <- id },
	}
	if mutate != nil {
		mutate(&opts)
	}
	h.srv = NewServer(opts)
	h.srv.Start()
	h.http = httptest.NewServer(h.srv)
	t.Cleanup(func() {
		h.http.Close()
		_ = h.srv.Stop(context.Background())
		_ = h.hub.Stop()
	})
	return h
}

func (h *harness) dial() (*websocket.Conn, string) {
	h.t.Helper()
	url := "ws" + strings.TrimPrefix(h.http.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		h.t.Fatalf("dial: %v", err)
	}
	h.t.Cleanup(func() { _ = conn.Close() })
	var id string
	select {
	case id = <-h.connected:
	case <-time.After(2 * time.Second):
		h.t.Fatal("client never connected")
	}
	want := h.srv.ClientCount()
	testutil.Eventually(h.t, time.Second, func() bool {
		return h.hub.SubscriberCount() == want
	}, "client not subscribed")
	return conn, id
}

func readEvent(t *testing.T, conn *websocket.Conn) wireEvent {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ev wireEvent
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("read: %v", err)
	}
	return ev
}

func TestServer_ConnectAndDisconnect(t *testing.T) {
	h := newHarness(t, nil)
	conn, id := h.dial()

	if h.srv.ClientCount() != 1 {
		t.Errorf("ClientCount = %d, want 1", h.srv.ClientCount())
	}

	_ = conn.Close()
	select {
	case got := <-h.gone:
		if got != id {
			t.Errorf("disconnect id = %q, want %q", got, id)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("OnDisconnect not called")
	}
	testutil.Eventually(t, time.Second, func() bool {
		return h.srv.ClientCount() == 0 && h.hub.SubscriberCount() == 0
	}, "client not removed")
}

func TestServer_RoomFiltering(t *testing.T) {
	h := newHarness(t, nil)
	conn, id := h.dial()

	if err := h.srv.JoinRoom(id, "project:a"); err != nil {
		t.Fatalf("JoinRoom: %v", err)
	}

	h.hub.PublishSync(events.NewRoomEvent(events.EventTypeGitStatusChanged, nil, "project:b"))
	h.hub.PublishSync(events.NewRoomEvent(events.EventTypeGitStatusChanged, nil, "project:a"))

	ev := readEvent(t, conn)
	if ev.Room != "project:a" {
		t.Errorf("first delivered room = %q, want project:a", ev.Room)
	}

	if got := h.srv.Rooms(id); len(got) != 1 || got[0] != "project:a" {
		t.Errorf("Rooms = %v", got)
	}
}

func TestServer_MonitoringGate(t *testing.T) {
	h := newHarness(t, nil)
	conn, id := h.dial()
	_ = h.srv.JoinRoom(id, "project:a")

	monitored := events.NewGitStatusChangedEvent("project:a", events.GitStatusPayload{Branch: "main"}, true)
	h.hub.PublishSync(monitored)
	h.hub.PublishSync(events.NewEvent(events.EventTypeHeartbeat, nil))

	if ev := readEvent(t, conn); ev.Event != string(events.EventTypeHeartbeat) {
		t.Fatalf("got %q before monitoring enabled, want heartbeat", ev.Event)
	}

	if err := h.srv.SetMonitoring(id, true); err != nil {
		t.Fatalf("SetMonitoring: %v", err)
	}
	h.hub.PublishSync(monitored)
	if ev := readEvent(t, conn); ev.Event != string(events.EventTypeGitStatusChanged) {
		t.Errorf("got %q, want git_status_changed", ev.Event)
	}
}

func TestServer_CommandDispatch(t *testing.T) {
	h := newHarness(t, nil)
	conn, _ := h.dial()

	msg := `{"command":"join_room","request_id":"r1","payload":{"room":"project:x"}}`
	if err := conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
		t.Fatalf("write: %v", err)
	}

	select {
	case cmd := <-h.commands:
		if cmd.Command != commands.CommandJoinRoom || cmd.RequestID != "r1" {
			t.Errorf("unexpected command %+v", cmd)
		}
		p, err := cmd.ParseJoinRoomPayload()
		if err != nil || p.Room != "project:x" {
			t.Errorf("payload = %+v, %v", p, err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("handler not called")
	}
}

func TestServer_MalformedCommand(t *testing.T) {
	h := newHarness(t, nil)
	conn, _ := h.dial()

	if err := conn.WriteMessage(websocket.TextMessage, []byte("{not json")); err != nil {
		t.Fatalf("write: %v", err)
	}
	ev := readEvent(t, conn)
	if ev.Event != string(events.EventTypeError) {
		t.Fatalf("event = %q, want error", ev.Event)
	}
	var p events.ErrorPayload
	_ = json.Unmarshal(ev.Payload, &p)
	if p.Code != "INVALID_COMMAND" {
		t.Errorf("code = %q", p.Code)
	}
	select {
	case cmd := <-h.commands:
		t.Errorf("handler called with %+v", cmd)
	default:
	}
}

func TestServer_SendEvent(t *testing.T) {
	h := newHarness(t, nil)
	conn, id := h.dial()

	if err := h.srv.SendEvent(id, events.NewProjectInfoEvent("/a", "project:a", true)); err != nil {
		t.Fatalf("SendEvent: %v", err)
	}
	if ev := readEvent(t, conn); ev.Event != string(events.EventTypeProjectInfo) {
		t.Errorf("event = %q", ev.Event)
	}

	if err := h.srv.SendEvent("missing", events.NewEvent(events.EventTypeHeartbeat, nil)); err != ErrClientNotFound {
		t.Errorf("err = %v, want ErrClientNotFound", err)
	}
	if err := h.srv.JoinRoom("missing", "r"); err != ErrClientNotFound {
		t.Errorf("JoinRoom err = %v", err)
	}
}

func TestServer_Heartbeat(t *testing.T) {
	h := newHarness(t, func(o *Options) {
		o.HeartbeatInterval = 20 * time.Millisecond
		o.Uptime = func() int64 { return 42 }
	})
	conn, _ := h.dial()

	ev := readEvent(t, conn)
	if ev.Event != string(events.EventTypeHeartbeat) {
		t.Fatalf("event = %q, want heartbeat", ev.Event)
	}
	var p events.HeartbeatPayload
	_ = json.Unmarshal(ev.Payload, &p)
	if p.Uptime != 42 || p.Sequence < 1 {
		t.Errorf("payload = %+v", p)
	}
}

func TestServer_RejectsOrigin(t *testing.T) {
	h := newHarness(t, func(o *Options) {
		o.CheckOrigin = func(r *http.Request) bool { return r.Header.Get("Origin") == "http://ok" }
	})

	url := "ws" + strings.TrimPrefix(h.http.URL, "http")
	_, resp, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": {"http://evil"}})
	if err == nil {
		t.Fatal("expected handshake failure")
	}
	if resp != nil && resp.StatusCode != http.StatusForbidden {
		t.Errorf("status = %d, want 403", resp.StatusCode)
	}
}
