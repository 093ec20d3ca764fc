// Package events defines all event types used in gitdeck.
package events

import (
	"encoding/json"
	"time"
)

// EventType represents the type of event.
type EventType string

const (
	// Project events
	EventTypeProjectInfo    EventType = "project_info"
	EventTypeProjectChanged EventType = "project_changed"

	// Git events
	EventTypeGitStatusChanged EventType = "git_status_changed"

	// Command history events
	EventTypeCommandExecuted       EventType = "command_executed"
	EventTypeCommandHistory        EventType = "command_history"
	EventTypeCommandHistoryCleared EventType = "command_history_cleared"

	// Interactive session events
	EventTypeInteractiveProcessID EventType = "interactive_process_id"
	EventTypeInteractiveStdout    EventType = "interactive_stdout"
	EventTypeInteractiveStderr    EventType = "interactive_stderr"
	EventTypeInteractiveExit      EventType = "interactive_exit"
	EventTypeInteractiveError     EventType = "interactive_error"

	// Connection events
	EventTypeRoomJoined        EventType = "room_joined"
	EventTypeMonitoringChanged EventType = "monitoring_changed"
	EventTypeHeartbeat         EventType = "heartbeat"
	EventTypeError             EventType = "error"
)

// Event is the base interface for all events.
type Event interface {
	// Type returns the event type.
	Type() EventType

	// Timestamp returns when the event occurred.
	Timestamp() time.Time

	// ToJSON serializes the event to JSON.
	ToJSON() ([]byte, error)

	// GetRoom returns the project room the event is scoped to (may be empty).
	GetRoom() string

	// IsMonitored reports whether the event came from background monitoring
	// and should only reach subscribers that opted in.
	IsMonitored() bool
}

// BaseEvent contains common fields for all events.
type BaseEvent struct {
	EventType EventType   `json:"event"`
	EventTime time.Time   `json:"timestamp"`
	Room      string      `json:"room,omitempty"`
	Payload   interface{} `json:"payload"`
	RequestID string      `json:"request_id,omitempty"`
	Monitored bool        `json:"-"`
}

// GetRoom returns the room.
func (e *BaseEvent) GetRoom() string {
	return e.Room
}

// IsMonitored reports whether the event is a monitoring update.
func (e *BaseEvent) IsMonitored() bool {
	return e.Monitored
}

// Type returns the event type.
func (e *BaseEvent) Type() EventType {
	return e.EventType
}

// Timestamp returns when the event occurred.
func (e *BaseEvent) Timestamp() time.Time {
	return e.EventTime
}

// ToJSON serializes the event to JSON.
func (e *BaseEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// NewEvent creates a new base event with the given type and payload.
func NewEvent(eventType EventType, payload interface{}) *BaseEvent {
	return &BaseEvent{
		EventType: eventType,
		EventTime: time.Now().UTC(),
		Payload:   payload,
	}
}

// NewEventWithRequestID creates a new event with a request ID for correlation.
func NewEventWithRequestID(eventType EventType, payload interface{}, requestID string) *BaseEvent {
	return &BaseEvent{
		EventType: eventType,
		EventTime: time.Now().UTC(),
		Payload:   payload,
		RequestID: requestID,
	}
}

// NewRoomEvent creates a new event scoped to a project room.
func NewRoomEvent(eventType EventType, payload interface{}, room string) *BaseEvent {
	return &BaseEvent{
		EventType: eventType,
		EventTime: time.Now().UTC(),
		Room:      room,
		Payload:   payload,
	}
}

// ErrorPayload is the payload for error events.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// HeartbeatPayload is the payload for heartbeat events.
type HeartbeatPayload struct {
	ServerTime string `json:"server_time"`
	Sequence   int64  `json:"sequence"`
	Uptime     int64  `json:"uptime_seconds"`
}

// NewErrorEvent creates a new error event.
func NewErrorEvent(code, message, requestID string) *BaseEvent {
	return NewEventWithRequestID(EventTypeError, ErrorPayload{
		Code:    code,
		Message: message,
	}, requestID)
}

// NewHeartbeatEvent creates a new heartbeat event.
func NewHeartbeatEvent(sequence int64, uptimeSeconds int64) *BaseEvent {
	return NewEvent(EventTypeHeartbeat, HeartbeatPayload{
		ServerTime: time.Now().UTC().Format(time.RFC3339),
		Sequence:   sequence,
		Uptime:     uptimeSeconds,
	})
}
