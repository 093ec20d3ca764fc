// Package commands defines all command types used in gitdeck.
package commands

import (
	"encoding/json"
	"strings"
)

// CommandType represents the type of command.
type CommandType string

const (
	CommandJoinRoom           CommandType = "join_room"
	CommandLeaveRoom          CommandType = "leave_room"
	CommandStartMonitoring    CommandType = "start_monitoring"
	CommandStopMonitoring     CommandType = "stop_monitoring"
	CommandExecInteractive    CommandType = "exec_interactive"
	CommandRequestFullHistory CommandType = "request_full_history"
	CommandClearHistory       CommandType = "clear_command_history"
)

// Prefixes of per-session commands. The session id follows the prefix.
const (
	InteractiveStdinPrefix = "interactive_stdin_"
	InteractiveStopPrefix  = "interactive_stop_"
)

// Command represents a command received from a client.
type Command struct {
	Command   CommandType     `json:"command"`
	RequestID string          `json:"request_id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// JoinRoomPayload is the payload for join_room and leave_room.
type JoinRoomPayload struct {
	Room string `json:"room"`
}

// ExecInteractivePayload is the payload for exec_interactive.
type ExecInteractivePayload struct {
	SessionID string `json:"session_id"`
	Command   string `json:"command"`
	Directory string `json:"directory,omitempty"`
}

// StdinPayload is the payload for interactive_stdin_<id>.
type StdinPayload struct {
	Input string `json:"input"`
}

// ParseCommand parses a JSON message into a Command.
func ParseCommand(data []byte) (*Command, error) {
	var cmd Command
	if err := json.Unmarshal(data, &cmd); err != nil {
		return nil, err
	}
	return &cmd, nil
}

// SessionTarget splits a per-session command into its prefix and session id.
// ok is false for commands that are not session scoped.
func (c *Command) SessionTarget() (prefix, sessionID string, ok bool) {
	name := string(c.Command)
	for _, p := range []string{InteractiveStdinPrefix, InteractiveStopPrefix} {
		if strings.HasPrefix(name, p) && len(name) > len(p) {
			return p, name[len(p):], true
		}
	}
	return "", "", false
}

// ParseJoinRoomPayload parses the payload for join_room.
func (c *Command) ParseJoinRoomPayload() (*JoinRoomPayload, error) {
	var payload JoinRoomPayload
	if err := json.Unmarshal(c.Payload, &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

// ParseExecInteractivePayload parses the payload for exec_interactive.
func (c *Command) ParseExecInteractivePayload() (*ExecInteractivePayload, error) {
	var payload ExecInteractivePayload
	if err := json.Unmarshal(c.Payload, &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

// ParseStdinPayload parses the payload for interactive_stdin_<id>.
func (c *Command) ParseStdinPayload() (*StdinPayload, error) {
	var payload StdinPayload
	if err := json.Unmarshal(c.Payload, &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}
