package http

import (
	"github.com/brianly1003/gitdeck/internal/history"
	"github.com/brianly1003/gitdeck/internal/process"
	"github.com/brianly1003/gitdeck/internal/terminal"
)

// ExecRequest is the body of POST /exec and POST /exec-stream.
type ExecRequest struct {
	Command   string `json:"command"`
	Directory string `json:"directory,omitempty"`
}

// ExecResponse is the result of POST /exec.
type ExecResponse struct {
	Success bool   `json:"success"`
	Stdout  string `json:"stdout"`
	Stderr  string `json:"stderr"`
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Success  bool    `json:"success"`
	Error    string  `json:"error"`
	Stdout   *string `json:"stdout,omitempty"`
	Stderr   *string `json:"stderr,omitempty"`
	ExitCode *int    `json:"exitCode,omitempty"`
}

// KillRequest is the body of POST /kill-process.
type KillRequest struct {
	ProcessID int `json:"processId"`
}

// SuccessResponse acknowledges an action.
type SuccessResponse struct {
	Success bool `json:"success"`
}

// ProcessListResponse is the result of GET /processes.
type ProcessListResponse struct {
	Processes []*process.Handle `json:"processes"`
	Count     int               `json:"count"`
}

// OpenTerminalRequest is the body of POST /terminal-sessions.
type OpenTerminalRequest struct {
	Command   string `json:"command"`
	Directory string `json:"directory,omitempty"`
}

// TerminalListResponse is the result of GET /terminal-sessions.
type TerminalListResponse struct {
	Sessions []terminal.Session `json:"sessions"`
}

// TerminalStatusResponse is the result of GET /terminal-sessions/status.
type TerminalStatusResponse struct {
	Sessions []terminal.Status `json:"sessions"`
}

// BranchStatusResponse is the result of GET /branch-status.
type BranchStatusResponse struct {
	Branch         string `json:"branch,omitempty"`
	HasUpstream    bool   `json:"hasUpstream"`
	UpstreamBranch string `json:"upstreamBranch,omitempty"`
	Ahead          int    `json:"ahead"`
	Behind         int    `json:"behind"`
}

// SwitchProjectRequest is the body of POST /project.
type SwitchProjectRequest struct {
	Path string `json:"path"`
}

// HistoryResponse is the result of GET /history.
type HistoryResponse struct {
	Entries  []history.Entry `json:"entries"`
	Count    int             `json:"count"`
	Capacity int             `json:"capacity"`
}

// HealthResponse is the result of GET /health.
type HealthResponse struct {
	Status        string `json:"status"`
	Time          string `json:"time"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	Processes     int    `json:"processes"`
	Subscribers   int    `json:"subscribers"`
}
