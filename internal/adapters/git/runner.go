// Package git reads repository facts through the git CLI.
package git

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/brianly1003/gitdeck/internal/domain"
)

// Runner executes git with args in dir and returns its stdout.
type Runner interface {
	Run(ctx context.Context, dir string, args ...string) (string, error)
}

// CLIRunner runs the git binary directly, bypassing the shell and the
// command history.
type CLIRunner struct {
	command string
}

// NewCLIRunner creates a runner for the given git binary.
func NewCLIRunner(command string) *CLIRunner {
	if command == "" {
		command = "git"
	}
	return &CLIRunner{command: command}
}

// Run implements Runner.
func (r *CLIRunner) Run(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, r.command, args...)
	cmd.Dir = dir

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	out, err := cmd.Output()
	if err != nil {
		op := "exec"
		if len(args) > 0 {
			op = args[0]
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return "", domain.NewGitError(op, &ExitError{Code: exitErr.ExitCode(), Stderr: strings.TrimSpace(stderr.String())})
		}
		return "", domain.NewGitError(op, err)
	}
	return string(out), nil
}

// ExitError is a git invocation that ran and exited non-zero.
type ExitError struct {
	Code   int
	Stderr string
}

func (e *ExitError) Error() string {
	if e.Stderr == "" {
		return fmt.Sprintf("exit code %d", e.Code)
	}
	return fmt.Sprintf("exit code %d: %s", e.Code, e.Stderr)
}

// isExit reports whether err came from git running and failing, as opposed
// to git not being runnable at all.
func isExit(err error) bool {
	var exitErr *ExitError
	return errors.As(err, &exitErr)
}
