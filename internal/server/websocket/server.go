package websocket

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/brianly1003/gitdeck/internal/domain"
	"github.com/brianly1003/gitdeck/internal/domain/commands"
	"github.com/brianly1003/gitdeck/internal/domain/events"
	"github.com/brianly1003/gitdeck/internal/domain/ports"
	"github.com/brianly1003/gitdeck/internal/hub"
	"github.com/brianly1003/gitdeck/internal/server/common"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// ErrClientNotFound is returned for operations on an unknown connection.
var ErrClientNotFound = errors.New("client not found")

// CommandHandler handles a parsed inbound command.
type CommandHandler func(clientID string, cmd *commands.Command)

// Options configures a Server.
type Options struct {
	Hub     ports.EventHub
	Handler CommandHandler

	// OnConnect runs after the client is subscribed to the hub.
	OnConnect func(clientID string)
	// OnDisconnect runs after the client is unsubscribed.
	OnDisconnect func(clientID string)

	// CheckOrigin validates the Origin header. Nil allows all origins.
	CheckOrigin func(r *http.Request) bool

	// Uptime reports seconds since start for heartbeat events.
	Uptime            func() int64
	HeartbeatInterval time.Duration
}

type member struct {
	client *Client
	sub    *hub.RoomSubscriber
}

// Server upgrades HTTP requests to WebSocket connections. It does not own a
// listener; mount it on a router.
type Server struct {
	opts     Options
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	members map[string]*member

	heartbeatSeq  int64
	heartbeatDone chan struct{}
	stopOnce      sync.Once
	startTime     time.Time
}

// NewServer creates a WebSocket server.
func NewServer(opts Options) *Server {
	if opts.HeartbeatInterval <= 0 {
		opts.HeartbeatInterval = common.HeartbeatInterval
	}
	s := &Server{
		opts:          opts,
		members:       make(map[string]*member),
		heartbeatDone: make(chan struct{}),
		startTime:     time.Now(),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if opts.CheckOrigin == nil {
				return true
			}
			return opts.CheckOrigin(r)
		},
	}
	return s
}

// Start begins the heartbeat loop.
func (s *Server) Start() {
	go s.heartbeatLoop()
}

// Stop closes every connection and stops the heartbeat.
func (s *Server) Stop(ctx context.Context) error {
	s.stopOnce.Do(func() {
		close(s.heartbeatDone)
	})

	s.mu.Lock()
	members := s.members
	s.members = make(map[string]*member)
	s.mu.Unlock()

	for _, m := range members {
		m.client.Close()
	}
	return ctx.Err()
}

// ServeHTTP upgrades the request and registers the connection.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Str("remote_addr", r.RemoteAddr).Msg("failed to upgrade connection")
		return
	}

	client := NewClient(conn, s.handleMessage, s.handleClose)
	sub := hub.NewRoomSubscriber(connSubscriber{client: client})

	s.mu.Lock()
	s.members[client.ID()] = &member{client: client, sub: sub}
	s.mu.Unlock()

	if s.opts.Hub != nil {
		s.opts.Hub.Subscribe(sub)
	}

	log.Info().
		Str("client_id", client.ID()).
		Str("remote_addr", conn.RemoteAddr().String()).
		Msg("client connected")

	client.Start()

	if s.opts.OnConnect != nil {
		s.opts.OnConnect(client.ID())
	}
}

func (s *Server) handleMessage(c *Client, message []byte) {
	cmd, err := commands.ParseCommand(message)
	if err != nil {
		log.Debug().Err(err).Str("client_id", c.ID()).Msg("invalid command")
		_ = c.Send(events.NewErrorEvent(domain.ErrCodeInvalidCommand, err.Error(), ""))
		return
	}
	if s.opts.Handler != nil {
		s.opts.Handler(c.ID(), cmd)
	}
}

func (s *Server) handleClose(c *Client) {
	s.mu.Lock()
	_, ok := s.members[c.ID()]
	delete(s.members, c.ID())
	s.mu.Unlock()

	if s.opts.Hub != nil {
		s.opts.Hub.Unsubscribe(c.ID())
	}
	log.Info().Str("client_id", c.ID()).Msg("client disconnected")

	if ok && s.opts.OnDisconnect != nil {
		s.opts.OnDisconnect(c.ID())
	}
}

func (s *Server) member(clientID string) (*member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.members[clientID]
	if !ok {
		return nil, ErrClientNotFound
	}
	return m, nil
}

// JoinRoom adds the connection to room.
func (s *Server) JoinRoom(clientID, room string) error {
	m, err := s.member(clientID)
	if err != nil {
		return err
	}
	m.sub.Join(room)
	log.Debug().Str("client_id", clientID).Str("room", room).Msg("joined room")
	return nil
}

// LeaveRoom removes the connection from room.
func (s *Server) LeaveRoom(clientID, room string) error {
	m, err := s.member(clientID)
	if err != nil {
		return err
	}
	m.sub.Leave(room)
	return nil
}

// Rooms lists the rooms a connection has joined.
func (s *Server) Rooms(clientID string) []string {
	m, err := s.member(clientID)
	if err != nil {
		return nil
	}
	return m.sub.Rooms()
}

// SetMonitoring toggles delivery of watcher-triggered events to a connection.
func (s *Server) SetMonitoring(clientID string, on bool) error {
	m, err := s.member(clientID)
	if err != nil {
		return err
	}
	m.sub.SetMonitoring(on)
	return nil
}

// SendEvent delivers an event to one connection, bypassing room filters.
func (s *Server) SendEvent(clientID string, event events.Event) error {
	m, err := s.member(clientID)
	if err != nil {
		return err
	}
	return m.client.Send(event)
}

// ClientCount returns the number of connected clients.
func (s *Server) ClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.members)
}

func (s *Server) heartbeatLoop() {
	ticker := time.NewTicker(s.opts.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.heartbeatDone:
			return
		case <-ticker.C:
			s.broadcastHeartbeat()
		}
	}
}

// broadcastHeartbeat publishes a room-less heartbeat, which every
// connection receives.
func (s *Server) broadcastHeartbeat() {
	if s.ClientCount() == 0 || s.opts.Hub == nil {
		return
	}
	uptime := int64(time.Since(s.startTime).Seconds())
	if s.opts.Uptime != nil {
		uptime = s.opts.Uptime()
	}
	seq := atomic.AddInt64(&s.heartbeatSeq, 1)
	s.opts.Hub.Publish(events.NewHeartbeatEvent(seq, uptime))
	log.Trace().Int64("seq", seq).Msg("heartbeat sent")
}
