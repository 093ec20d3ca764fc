package common

import "time"

// Websocket keepalive. Browser tabs in the background can stall for a minute
// or more, so the read deadline is generous.
const (
	WriteWait  = 15 * time.Second
	PongWait   = 90 * time.Second
	PingPeriod = (PongWait * 9) / 10

	// HeartbeatInterval is the application-level heartbeat sent to every client.
	HeartbeatInterval = 30 * time.Second
)

const (
	// MaxMessageSize caps inbound command frames. Interactive stdin is the
	// largest thing a client sends.
	MaxMessageSize = 512 * 1024

	// SendBufferSize is the per-client outbound queue length. Streamed
	// interactive output arrives in bursts of small chunks.
	SendBufferSize = 1024
)
