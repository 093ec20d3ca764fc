// Package platform isolates operating-system specific process handling:
// shell invocation, process-group signalling, liveness probing, detached
// terminal windows and output decoding.
package platform

import (
	"context"
	"os/exec"
	"time"
)

// Ops is the set of behaviours that differ between operating systems.
// One implementation is selected at startup with New and shared.
type Ops interface {
	// Name identifies the implementation, e.g. "posix" or "windows".
	Name() string

	// ShellCommand builds a command that runs text through the platform shell.
	ShellCommand(ctx context.Context, text string) *exec.Cmd

	// Prepare configures cmd so that Terminate and Kill reach its children.
	Prepare(cmd *exec.Cmd)

	// Terminate asks the process tree rooted at pid to exit.
	Terminate(pid int) error

	// Kill stops the process tree rooted at pid unconditionally.
	Kill(pid int) error

	// SupportsSignals reports whether Terminate is a catchable signal. When
	// false, Terminate is already a tree kill and no escalation is needed.
	SupportsSignals() bool

	// IsAlive reports whether pid exists. Failed checks count as not alive.
	IsAlive(pid int) bool

	// OpenTerminal spawns a detached, user-visible terminal running command
	// in dir and returns the pid of its top-level shell.
	OpenTerminal(ctx context.Context, command, dir string) (int, error)

	// Encoding returns the output decoding policy.
	Encoding() *EncodingPolicy
}

// Options configures New.
type Options struct {
	// TerminalEmulator overrides the program used by OpenTerminal.
	TerminalEmulator string

	// LegacyCodePage names the 8-bit code page used by built-in shell verbs
	// on platforms that have them, e.g. "cp866".
	LegacyCodePage string

	// TargetScript names the unicode script that marks correctly decoded
	// error output, e.g. "Cyrillic".
	TargetScript string

	// LegacyVerbs overrides the built-in shell verbs whose stdout is decoded
	// with the legacy code page.
	LegacyVerbs []string
}

// pidResolveTimeout bounds how long OpenTerminal waits for a helper to report
// the pid of a freshly spawned terminal.
const pidResolveTimeout = 10 * time.Second
