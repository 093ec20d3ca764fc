package events

// CommandHistoryPayload carries the full history ring, newest first.
type CommandHistoryPayload struct {
	Entries interface{} `json:"entries"`
	Count   int         `json:"count"`
}

// NewCommandExecutedEvent echoes a single finished command.
func NewCommandExecutedEvent(entry interface{}) *BaseEvent {
	return NewEvent(EventTypeCommandExecuted, entry)
}

// NewCommandHistoryEvent answers request_full_history.
func NewCommandHistoryEvent(entries interface{}, count int, requestID string) *BaseEvent {
	return NewEventWithRequestID(EventTypeCommandHistory, CommandHistoryPayload{
		Entries: entries,
		Count:   count,
	}, requestID)
}

// NewCommandHistoryClearedEvent announces that the history ring was emptied.
func NewCommandHistoryClearedEvent(requestID string) *BaseEvent {
	return NewEventWithRequestID(EventTypeCommandHistoryCleared, struct{}{}, requestID)
}
