package events

// ProjectInfoPayload describes the active project.
type ProjectInfoPayload struct {
	Directory string `json:"directory"`
	Room      string `json:"room"`
	IsRepo    bool   `json:"is_repo"`
}

// ProjectChangedPayload tells subscribers of the old room where to rejoin.
type ProjectChangedPayload struct {
	OldRoom      string `json:"old_room"`
	NewRoom      string `json:"new_room"`
	OldDirectory string `json:"old_directory"`
	Directory    string `json:"directory"`
	IsRepo       bool   `json:"is_repo"`
}

// RoomJoinedPayload acknowledges a join_room command.
type RoomJoinedPayload struct {
	Room string `json:"room"`
}

// MonitoringChangedPayload acknowledges start/stop_monitoring.
type MonitoringChangedPayload struct {
	Enabled bool `json:"enabled"`
}

// NewProjectInfoEvent creates a project_info event.
func NewProjectInfoEvent(directory, room string, isRepo bool) *BaseEvent {
	return NewEvent(EventTypeProjectInfo, ProjectInfoPayload{
		Directory: directory,
		Room:      room,
		IsRepo:    isRepo,
	})
}

// NewProjectChangedEvent creates a project_changed event addressed to the old room.
func NewProjectChangedEvent(oldRoom, newRoom, oldDir, newDir string, isRepo bool) *BaseEvent {
	return NewRoomEvent(EventTypeProjectChanged, ProjectChangedPayload{
		OldRoom:      oldRoom,
		NewRoom:      newRoom,
		OldDirectory: oldDir,
		Directory:    newDir,
		IsRepo:       isRepo,
	}, oldRoom)
}

// NewRoomJoinedEvent creates a room_joined acknowledgement.
func NewRoomJoinedEvent(room, requestID string) *BaseEvent {
	return NewEventWithRequestID(EventTypeRoomJoined, RoomJoinedPayload{Room: room}, requestID)
}

// NewMonitoringChangedEvent creates a monitoring_changed acknowledgement.
func NewMonitoringChangedEvent(enabled bool, requestID string) *BaseEvent {
	return NewEventWithRequestID(EventTypeMonitoringChanged, MonitoringChangedPayload{Enabled: enabled}, requestID)
}
