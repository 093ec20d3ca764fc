package commands

import "testing"

func TestParseCommand(t *testing.T) {
	cmd, err := ParseCommand([]byte(`{"command":"join_room","request_id":"r1","payload":{"room":"project:-a"}}`))
	if err != nil {
		t.Fatalf("ParseCommand() error = %v", err)
	}
	if cmd.Command != CommandJoinRoom {
		t.Errorf("Command = %v, want %v", cmd.Command, CommandJoinRoom)
	}
	if cmd.RequestID != "r1" {
		t.Errorf("RequestID = %q, want r1", cmd.RequestID)
	}

	p, err := cmd.ParseJoinRoomPayload()
	if err != nil {
		t.Fatalf("ParseJoinRoomPayload() error = %v", err)
	}
	if p.Room != "project:-a" {
		t.Errorf("Room = %q, want project:-a", p.Room)
	}
}

func TestParseCommand_Invalid(t *testing.T) {
	if _, err := ParseCommand([]byte(`{not json`)); err == nil {
		t.Error("expected error for malformed JSON")
	}
}

func TestCommand_SessionTarget(t *testing.T) {
	tests := []struct {
		command    string
		wantPrefix string
		wantID     string
		wantOK     bool
	}{
		{"interactive_stdin_abc", InteractiveStdinPrefix, "abc", true},
		{"interactive_stop_s-1", InteractiveStopPrefix, "s-1", true},
		{"interactive_stdin_", "", "", false},
		{"exec_interactive", "", "", false},
		{"join_room", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.command, func(t *testing.T) {
			c := &Command{Command: CommandType(tt.command)}
			prefix, id, ok := c.SessionTarget()
			if ok != tt.wantOK || prefix != tt.wantPrefix || id != tt.wantID {
				t.Errorf("SessionTarget() = (%q, %q, %v), want (%q, %q, %v)",
					prefix, id, ok, tt.wantPrefix, tt.wantID, tt.wantOK)
			}
		})
	}
}

func TestParseExecInteractivePayload(t *testing.T) {
	cmd := &Command{
		Command: CommandExecInteractive,
		Payload: []byte(`{"session_id":"s1","command":"npm init","directory":"/tmp"}`),
	}
	p, err := cmd.ParseExecInteractivePayload()
	if err != nil {
		t.Fatalf("error = %v", err)
	}
	if p.SessionID != "s1" || p.Command != "npm init" || p.Directory != "/tmp" {
		t.Errorf("payload = %+v", p)
	}
}
