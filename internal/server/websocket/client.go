// Package websocket serves the live status channel. Each connection becomes a
// hub subscriber scoped to the rooms it has joined; inbound frames are parsed
// as commands and handed to the application.
//
// Message flow:
//   - Incoming: WebSocket → readPump → Server.handleMessage → CommandHandler
//   - Outgoing: Event Hub → RoomSubscriber → connSubscriber → writePump
package websocket

import (
	"time"

	"github.com/brianly1003/gitdeck/internal/domain/events"
	"github.com/brianly1003/gitdeck/internal/server/common"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// Client represents a single WebSocket connection.
type Client struct {
	id        string
	conn      *websocket.Conn
	send      *common.SendBuffer
	onMessage func(c *Client, message []byte)
	onClose   func(c *Client)
}

// NewClient creates a client for conn. onMessage receives every text frame;
// onClose runs once after the read loop exits.
func NewClient(conn *websocket.Conn, onMessage func(*Client, []byte), onClose func(*Client)) *Client {
	id := uuid.New().String()
	return &Client{
		id:        id,
		conn:      conn,
		send:      common.NewSendBuffer(id, common.SendBufferSize),
		onMessage: onMessage,
		onClose:   onClose,
	}
}

// ID returns the client's unique identifier.
func (c *Client) ID() string {
	return c.id
}

// Start starts the read and write pumps.
func (c *Client) Start() {
	go c.writePump()
	go c.readPump()
}

// Send serializes event and queues it for the client. Interactive session
// frames are never dropped: while the queue is full Send blocks until the
// write pump makes room or the client closes, which pushes back on the
// session's output pipe.
func (c *Client) Send(event events.Event) error {
	f, err := newFrame(event)
	if err != nil {
		return err
	}
	if isSessionFrame(event.Type()) {
		return c.send.PushWait(f)
	}
	return c.send.Push(f)
}

// offer queues event without ever blocking. Hub fan-out uses it so one slow
// client cannot stall delivery to the others.
func (c *Client) offer(event events.Event) error {
	f, err := newFrame(event)
	if err != nil {
		return err
	}
	return c.send.Push(f)
}

func newFrame(event events.Event) (common.Frame, error) {
	data, err := event.ToJSON()
	if err != nil {
		return common.Frame{}, err
	}
	t := event.Type()
	return common.Frame{
		Data:     data,
		Key:      coalesceKey(event),
		Reserved: t == events.EventTypeInteractiveExit || t == events.EventTypeInteractiveError,
	}, nil
}

func isSessionFrame(t events.EventType) bool {
	switch t {
	case events.EventTypeInteractiveProcessID,
		events.EventTypeInteractiveStdout,
		events.EventTypeInteractiveStderr,
		events.EventTypeInteractiveExit,
		events.EventTypeInteractiveError:
		return true
	}
	return false
}

// coalesceKey lets a newer status snapshot for a room replace one the client
// has not been sent yet.
func coalesceKey(event events.Event) string {
	if event.Type() == events.EventTypeGitStatusChanged {
		return string(event.Type()) + ":" + event.GetRoom()
	}
	return ""
}

// Close stops the write pump, which sends a close frame.
func (c *Client) Close() {
	c.send.Close()
}

// Done is closed once the client is closed.
func (c *Client) Done() <-chan struct{} {
	return c.send.Done()
}

// IsClosed reports whether Close has been called.
func (c *Client) IsClosed() bool {
	return c.send.IsClosed()
}

func (c *Client) readPump() {
	defer func() {
		c.Close()
		_ = c.conn.Close()
		if c.onClose != nil {
			c.onClose(c)
		}
	}()

	c.conn.SetReadLimit(common.MaxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(common.PongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(common.PongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Warn().Err(err).Str("client_id", c.id).Msg("websocket read error")
			}
			return
		}
		if c.onMessage != nil {
			c.onMessage(c, message)
		}
	}
}

// writePump sends each queued frame as its own websocket message.
func (c *Client) writePump() {
	ticker := time.NewTicker(common.PingPeriod)
	defer func() {
		ticker.Stop()
		// Release senders blocked on a full queue.
		c.send.Close()
		_ = c.conn.SetWriteDeadline(time.Now().Add(common.WriteWait))
		_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
		_ = c.conn.Close()
	}()

	for {
		select {
		case <-c.send.Done():
			return

		case <-c.send.Ready():
			for _, f := range c.send.Drain() {
				_ = c.conn.SetWriteDeadline(time.Now().Add(common.WriteWait))
				if err := c.conn.WriteMessage(websocket.TextMessage, f.Data); err != nil {
					log.Debug().Err(err).Str("client_id", c.id).Msg("write error")
					return
				}
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(common.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Debug().Err(err).Str("client_id", c.id).Msg("ping error")
				return
			}
		}
	}
}
