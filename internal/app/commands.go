package app

import (
	"errors"
	"fmt"
	"strings"

	"github.com/brianly1003/gitdeck/internal/domain"
	"github.com/brianly1003/gitdeck/internal/domain/commands"
	"github.com/brianly1003/gitdeck/internal/domain/events"
	"github.com/brianly1003/gitdeck/internal/pathutil"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// handleCommand dispatches one websocket command. Replies go to the sending
// client only; history clears are announced to everyone.
func (a *App) handleCommand(clientID string, cmd *commands.Command) {
	log.Debug().
		Str("client_id", clientID).
		Str("command", string(cmd.Command)).
		Msg("received command")

	if prefix, sessionID, ok := cmd.SessionTarget(); ok {
		a.handleSessionCommand(clientID, cmd, prefix, sessionID)
		return
	}

	switch cmd.Command {
	case commands.CommandJoinRoom:
		payload, err := cmd.ParseJoinRoomPayload()
		if err != nil || payload.Room == "" {
			a.sendError(clientID, domain.ErrCodeInvalidPayload, "room is required", cmd.RequestID)
			return
		}
		if err := a.clients.JoinRoom(clientID, payload.Room); err != nil {
			return
		}
		a.sendEvent(clientID, events.NewRoomJoinedEvent(payload.Room, cmd.RequestID))
		a.sendInitialStatus(clientID, payload.Room)

	case commands.CommandLeaveRoom:
		payload, err := cmd.ParseJoinRoomPayload()
		if err != nil || payload.Room == "" {
			a.sendError(clientID, domain.ErrCodeInvalidPayload, "room is required", cmd.RequestID)
			return
		}
		_ = a.clients.LeaveRoom(clientID, payload.Room)

	case commands.CommandStartMonitoring, commands.CommandStopMonitoring:
		on := cmd.Command == commands.CommandStartMonitoring
		if err := a.clients.SetMonitoring(clientID, on); err != nil {
			return
		}
		a.sendEvent(clientID, events.NewMonitoringChangedEvent(on, cmd.RequestID))

	case commands.CommandExecInteractive:
		a.handleExecInteractive(clientID, cmd)

	case commands.CommandRequestFullHistory:
		entries := a.ring.Entries()
		a.sendEvent(clientID, events.NewCommandHistoryEvent(entries, len(entries), cmd.RequestID))

	case commands.CommandClearHistory:
		a.ring.Clear()
		a.hub.Publish(events.NewCommandHistoryClearedEvent(cmd.RequestID))

	default:
		a.sendError(clientID, domain.ErrCodeInvalidCommand, fmt.Sprintf("Unknown command: %s", cmd.Command), cmd.RequestID)
	}
}

// sendInitialStatus gives a client joining the active room the current
// status without waiting for the next change.
func (a *App) sendInitialStatus(clientID, room string) {
	sc := a.broadcaster.Current()
	if room != sc.Room || !sc.IsRepo {
		return
	}
	ctx := a.context()
	go func() {
		status, err := a.status.Status(ctx, false)
		if err != nil {
			log.Debug().Err(err).Str("room", room).Msg("initial status failed")
			return
		}
		a.sendEvent(clientID, events.NewGitStatusChangedEvent(room, status, false))
	}()
}

func (a *App) handleExecInteractive(clientID string, cmd *commands.Command) {
	payload, err := cmd.ParseExecInteractivePayload()
	if err != nil {
		a.sendError(clientID, domain.ErrCodeInvalidPayload, "Invalid exec_interactive payload", cmd.RequestID)
		return
	}
	command := strings.TrimSpace(payload.Command)
	if command == "" {
		a.sendError(clientID, domain.ErrCodeInvalidPayload, "command is required", cmd.RequestID)
		return
	}
	sessionID := payload.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	dir := payload.Directory
	if dir != "" {
		resolved, err := pathutil.ResolveDir(dir)
		if err != nil {
			a.sendError(clientID, domain.ErrCodeInvalidPayload, err.Error(), cmd.RequestID)
			return
		}
		dir = resolved
	}

	sink := func(ev events.StreamEvent) {
		a.sendEvent(clientID, events.NewInteractiveEvent(sessionID, ev))
		if ev.Terminal() {
			a.untrackSession(clientID, sessionID)
		}
	}

	// Tracked before the start so a fast exit cannot race the bookkeeping.
	added := a.trackSession(clientID, sessionID)
	if _, err := a.processes.StartInteractive(a.context(), sessionID, command, dir, sink); err != nil {
		if added {
			a.untrackSession(clientID, sessionID)
		}
		if errors.Is(err, domain.ErrSessionExists) {
			a.sendError(clientID, domain.ErrCodeSessionExists, err.Error(), cmd.RequestID)
			return
		}
		// Spawn failures have already been delivered as interactive_error.
		log.Debug().Err(err).Str("session_id", sessionID).Msg("interactive start failed")
	}
}

func (a *App) handleSessionCommand(clientID string, cmd *commands.Command, prefix, sessionID string) {
	var err error
	switch prefix {
	case commands.InteractiveStdinPrefix:
		payload, perr := cmd.ParseStdinPayload()
		if perr != nil {
			a.sendError(clientID, domain.ErrCodeInvalidPayload, "Invalid stdin payload", cmd.RequestID)
			return
		}
		err = a.processes.SendInput(sessionID, payload.Input)
	case commands.InteractiveStopPrefix:
		err = a.processes.Stop(sessionID)
	}
	if errors.Is(err, domain.ErrProcessNotFound) {
		a.sendError(clientID, domain.ErrCodeProcessNotFound, fmt.Sprintf("no interactive session %q", sessionID), cmd.RequestID)
	}
}

// trackSession reports whether sessionID was not already tracked for clientID.
func (a *App) trackSession(clientID, sessionID string) bool {
	a.sessionsMu.Lock()
	defer a.sessionsMu.Unlock()
	set, ok := a.sessions[clientID]
	if !ok {
		set = make(map[string]struct{})
		a.sessions[clientID] = set
	}
	if _, dup := set[sessionID]; dup {
		return false
	}
	set[sessionID] = struct{}{}
	return true
}

func (a *App) untrackSession(clientID, sessionID string) {
	a.sessionsMu.Lock()
	defer a.sessionsMu.Unlock()
	set := a.sessions[clientID]
	delete(set, sessionID)
	if len(set) == 0 {
		delete(a.sessions, clientID)
	}
}

// clientSessions returns the live sessions started by clientID.
func (a *App) clientSessions(clientID string) []string {
	a.sessionsMu.Lock()
	defer a.sessionsMu.Unlock()
	ids := make([]string, 0, len(a.sessions[clientID]))
	for id := range a.sessions[clientID] {
		ids = append(ids, id)
	}
	return ids
}

// onClientConnect tells a new client which room carries the active project.
func (a *App) onClientConnect(clientID string) {
	sc := a.broadcaster.Current()
	a.sendEvent(clientID, events.NewProjectInfoEvent(sc.Directory, sc.Room, sc.IsRepo))
}

// onClientDisconnect stops the interactive sessions the client left behind.
func (a *App) onClientDisconnect(clientID string) {
	for _, id := range a.clientSessions(clientID) {
		if err := a.processes.Stop(id); err != nil && !errors.Is(err, domain.ErrProcessNotFound) {
			log.Warn().Err(err).Str("session_id", id).Msg("failed to stop orphaned session")
		}
	}
}

func (a *App) sendError(clientID, code, message, requestID string) {
	a.sendEvent(clientID, events.NewErrorEvent(code, message, requestID))
}

func (a *App) sendEvent(clientID string, event events.Event) {
	if err := a.clients.SendEvent(clientID, event); err != nil {
		log.Debug().Err(err).Str("client_id", clientID).Str("event_type", string(event.Type())).Msg("failed to send event")
	}
}
