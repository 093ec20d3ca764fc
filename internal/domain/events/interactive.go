package events

// InteractiveProcessIDPayload announces the process behind a session.
type InteractiveProcessIDPayload struct {
	SessionID string `json:"session_id"`
	ProcessID int    `json:"process_id"`
}

// InteractiveOutputPayload carries a chunk of session output.
type InteractiveOutputPayload struct {
	SessionID string `json:"session_id"`
	Data      string `json:"data"`
}

// InteractiveExitPayload reports the exit of a session's process.
type InteractiveExitPayload struct {
	SessionID string `json:"session_id"`
	Code      int    `json:"code"`
	Success   bool   `json:"success"`
}

// InteractiveErrorPayload reports a spawn failure for a session.
type InteractiveErrorPayload struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

// NewInteractiveEvent maps a stream event onto the interactive channel for sessionID.
func NewInteractiveEvent(sessionID string, e StreamEvent) *BaseEvent {
	switch ev := e.(type) {
	case ProcessIDEvent:
		return NewEvent(EventTypeInteractiveProcessID, InteractiveProcessIDPayload{
			SessionID: sessionID,
			ProcessID: ev.ProcessID,
		})
	case OutputEvent:
		t := EventTypeInteractiveStdout
		if ev.Stream == StreamStderr {
			t = EventTypeInteractiveStderr
		}
		return NewEvent(t, InteractiveOutputPayload{SessionID: sessionID, Data: ev.Data})
	case ExitEvent:
		return NewEvent(EventTypeInteractiveExit, InteractiveExitPayload{
			SessionID: sessionID,
			Code:      ev.Code,
			Success:   ev.Success,
		})
	case ErrorEvent:
		return NewEvent(EventTypeInteractiveError, InteractiveErrorPayload{
			SessionID: sessionID,
			Message:   ev.Message,
		})
	}
	return nil
}
