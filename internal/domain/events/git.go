package events

// GitStatusPayload is the payload for git_status_changed events and the
// body of the status endpoint.
type GitStatusPayload struct {
	Branch         string   `json:"branch"`
	Upstream       string   `json:"upstream,omitempty"`
	HasUpstream    bool     `json:"has_upstream"`
	Ahead          int      `json:"ahead"`
	Behind         int      `json:"behind"`
	StagedCount    int      `json:"staged_count"`
	UnstagedCount  int      `json:"unstaged_count"`
	UntrackedCount int      `json:"untracked_count"`
	HasConflicts   bool     `json:"has_conflicts"`
	ChangedFiles   []string `json:"changed_files,omitempty"`
}

// NewGitStatusChangedEvent creates a git_status_changed event for a room.
// Monitored events only reach subscribers that have monitoring enabled.
func NewGitStatusChangedEvent(room string, status GitStatusPayload, monitored bool) *BaseEvent {
	e := NewRoomEvent(EventTypeGitStatusChanged, status, room)
	e.Monitored = monitored
	return e
}
