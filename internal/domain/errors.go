// Package domain contains domain errors used throughout the application.
package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for common error conditions.
var (
	ErrProcessNotFound    = errors.New("process not found")
	ErrSessionExists      = errors.New("interactive session already exists")
	ErrTerminalNotFound   = errors.New("terminal session not found")
	ErrNotGitRepo         = errors.New("not a git repository")
	ErrNoUpstream         = errors.New("branch has no upstream")
	ErrInvalidDirectory   = errors.New("invalid directory")
	ErrInvalidCommand     = errors.New("invalid command")
	ErrInvalidPayload     = errors.New("invalid payload")
	ErrIllegalTransition  = errors.New("illegal execution state transition")
	ErrHubNotRunning      = errors.New("event hub is not running")
	ErrSubscriberClosed   = errors.New("subscriber is closed")
	ErrWatcherNotRunning  = errors.New("watcher is not running")
	ErrUnsupportedRuntime = errors.New("operation not supported on this platform")
)

// Error codes for client responses.
const (
	ErrCodeInvalidCommand  = "INVALID_COMMAND"
	ErrCodeInvalidPayload  = "INVALID_PAYLOAD"
	ErrCodeProcessNotFound = "PROCESS_NOT_FOUND"
	ErrCodeSessionExists   = "SESSION_EXISTS"
	ErrCodeGitError        = "GIT_ERROR"
	ErrCodeInternalError   = "INTERNAL_ERROR"
)

// CommandError is returned when a command cannot be spawned or exits non-zero.
// Captured output is kept so callers can still show partial results.
type CommandError struct {
	Message  string
	Stdout   string
	Stderr   string
	ExitCode int   // -1 when the process never ran
	Err      error // underlying spawn or wait error
}

func (e *CommandError) Error() string {
	return e.Message
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// NewExitError creates a CommandError for a process that ran and exited non-zero.
func NewExitError(code int, stdout, stderr string) *CommandError {
	return &CommandError{
		Message:  fmt.Sprintf("Command exited with code %d", code),
		Stdout:   stdout,
		Stderr:   stderr,
		ExitCode: code,
	}
}

// NewSpawnError creates a CommandError for a process that failed to start.
func NewSpawnError(err error) *CommandError {
	return &CommandError{
		Message:  fmt.Sprintf("failed to start command: %v", err),
		ExitCode: -1,
		Err:      err,
	}
}

// GitError represents an error from Git operations.
type GitError struct {
	Op  string // Operation that failed
	Err error  // Underlying error
}

func (e *GitError) Error() string {
	return fmt.Sprintf("git %s: %v", e.Op, e.Err)
}

func (e *GitError) Unwrap() error {
	return e.Err
}

// NewGitError creates a new GitError.
func NewGitError(op string, err error) *GitError {
	return &GitError{
		Op:  op,
		Err: err,
	}
}

// ValidationError represents a validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s: %s", e.Field, e.Message)
}

// NewValidationError creates a new ValidationError.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}
