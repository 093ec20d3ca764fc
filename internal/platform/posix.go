//go:build !windows

package platform

import (
	"context"
	"errors"
	"os/exec"
	"sync"
	"syscall"
)

type posixOps struct {
	shell    string
	terminal string
}

// New returns the operations for the running operating system.
func New(opts Options) Ops {
	shell := "bash"
	if _, err := exec.LookPath(shell); err != nil {
		shell = "sh"
	}
	return &posixOps{shell: shell, terminal: opts.TerminalEmulator}
}

var (
	currentOnce sync.Once
	current     Ops
)

// Current returns a process-wide Ops built with default options.
func Current() Ops {
	currentOnce.Do(func() { current = New(Options{}) })
	return current
}

func (p *posixOps) Name() string { return "posix" }

func (p *posixOps) ShellCommand(ctx context.Context, text string) *exec.Cmd {
	return exec.CommandContext(ctx, p.shell, "-c", text)
}

// Prepare puts the child in its own process group so signals reach the whole tree.
func (p *posixOps) Prepare(cmd *exec.Cmd) {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.Setpgid = true
}

func (p *posixOps) Terminate(pid int) error {
	return signalTree(pid, syscall.SIGTERM)
}

func (p *posixOps) Kill(pid int) error {
	return signalTree(pid, syscall.SIGKILL)
}

func (p *posixOps) SupportsSignals() bool { return true }

// IsAlive checks pid with signal 0. EPERM means the process exists but
// belongs to someone else.
func (p *posixOps) IsAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := syscall.Kill(pid, 0)
	return err == nil || errors.Is(err, syscall.EPERM)
}

func (p *posixOps) Encoding() *EncodingPolicy {
	return utf8Policy()
}

// signalTree signals the process group led by pid, falling back to the
// process itself when it is not a group leader.
func signalTree(pid int, sig syscall.Signal) error {
	if pid <= 0 {
		return syscall.ESRCH
	}
	pgid, err := syscall.Getpgid(pid)
	if err == nil && pgid == pid {
		if err := syscall.Kill(-pgid, sig); err == nil {
			return nil
		}
	}
	return syscall.Kill(pid, sig)
}
