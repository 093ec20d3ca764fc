package events

import "encoding/json"

// StreamKind identifies one of the event kinds a streamed execution emits.
type StreamKind string

const (
	StreamProcessID StreamKind = "process_id"
	StreamStdout    StreamKind = "stdout"
	StreamStderr    StreamKind = "stderr"
	StreamExit      StreamKind = "exit"
	StreamError     StreamKind = "error"
)

// StreamEvent is the closed set of events produced by a streamed execution:
// one ProcessIDEvent, any number of OutputEvents, then exactly one ExitEvent
// or ErrorEvent.
type StreamEvent interface {
	Kind() StreamKind
	// Terminal reports whether no further events follow this one.
	Terminal() bool
	isStreamEvent()
}

// ProcessIDEvent announces the registry id of a spawned process.
type ProcessIDEvent struct {
	ProcessID int
}

// OutputEvent is one decoded chunk read from stdout or stderr.
type OutputEvent struct {
	Stream StreamKind // StreamStdout or StreamStderr
	Data   string
}

// ExitEvent reports that the process ran and exited.
type ExitEvent struct {
	Code    int  `json:"code"`
	Success bool `json:"success"`
}

// ErrorEvent reports that the process could not be run.
type ErrorEvent struct {
	Message string `json:"message"`
}

func (ProcessIDEvent) Kind() StreamKind { return StreamProcessID }
func (e OutputEvent) Kind() StreamKind  { return e.Stream }
func (ExitEvent) Kind() StreamKind      { return StreamExit }
func (ErrorEvent) Kind() StreamKind     { return StreamError }

func (ProcessIDEvent) Terminal() bool { return false }
func (OutputEvent) Terminal() bool    { return false }
func (ExitEvent) Terminal() bool      { return true }
func (ErrorEvent) Terminal() bool     { return true }

func (ProcessIDEvent) isStreamEvent() {}
func (OutputEvent) isStreamEvent()    {}
func (ExitEvent) isStreamEvent()      {}
func (ErrorEvent) isStreamEvent()     {}

// Frame is the {type, data} wire shape of a stream event.
type Frame struct {
	Type StreamKind  `json:"type"`
	Data interface{} `json:"data"`
}

// ToFrame converts a stream event to its wire frame.
func ToFrame(e StreamEvent) Frame {
	switch ev := e.(type) {
	case ProcessIDEvent:
		return Frame{Type: StreamProcessID, Data: ev.ProcessID}
	case OutputEvent:
		return Frame{Type: ev.Stream, Data: ev.Data}
	case ExitEvent:
		return Frame{Type: StreamExit, Data: ev}
	case ErrorEvent:
		return Frame{Type: StreamError, Data: ev}
	}
	return Frame{Type: e.Kind()}
}

// MarshalFrame encodes a stream event as a JSON frame.
func MarshalFrame(e StreamEvent) ([]byte, error) {
	return json.Marshal(ToFrame(e))
}
