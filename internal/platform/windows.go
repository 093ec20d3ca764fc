//go:build windows

package platform

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"unicode"

	"golang.org/x/text/encoding/charmap"
)

type windowsOps struct {
	encoding *EncodingPolicy
}

// New returns the operations for the running operating system.
func New(opts Options) Ops {
	cp, ok := LookupCodePage(opts.LegacyCodePage)
	if !ok {
		cp = charmap.CodePage866
	}
	target := unicode.Cyrillic
	if t, ok := unicode.Scripts[opts.TargetScript]; ok {
		target = t
	}
	return &windowsOps{encoding: NewEncodingPolicy(cp, target, opts.LegacyVerbs)}
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

func (w *windowsOps) Name() string { return "windows" }

func (w *windowsOps) ShellCommand(ctx context.Context, text string) *exec.Cmd {
	return exec.CommandContext(ctx, "cmd.exe", "/C", text)
}

func (w *windowsOps) Prepare(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		CreationFlags: syscall.CREATE_NEW_PROCESS_GROUP,
	}
}

// Terminate has no graceful form here; it kills the tree immediately.
func (w *windowsOps) Terminate(pid int) error {
	return w.Kill(pid)
}

func (w *windowsOps) Kill(pid int) error {
	return exec.Command("taskkill", "/T", "/F", "/PID", strconv.Itoa(pid)).Run()
}

func (w *windowsOps) SupportsSignals() bool { return false }

func (w *windowsOps) IsAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	out, err := exec.Command("tasklist", "/FI", fmt.Sprintf("PID eq %d", pid), "/NH", "/FO", "CSV").Output()
	if err != nil {
		return false
	}
	return strings.Contains(string(out), fmt.Sprintf(`"%d"`, pid))
}

// OpenTerminal opens a new console window. Start-Process -PassThru is the
// helper that reports the pid of the spawned cmd.exe.
func (w *windowsOps) OpenTerminal(ctx context.Context, command, dir string) (int, error) {
	args := fmt.Sprintf("'/K','cd /d \"%s\" && %s'", strings.ReplaceAll(dir, "'", "''"), strings.ReplaceAll(command, "'", "''"))
	ps := exec.CommandContext(ctx, "powershell", "-NoProfile", "-Command",
		fmt.Sprintf("(Start-Process cmd.exe -ArgumentList %s -PassThru).Id", args))
	out, err := ps.Output()
	if err != nil {
		return 0, fmt.Errorf("start terminal: %w", err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(out)))
	if err != nil {
		return 0, fmt.Errorf("parse terminal pid %q: %w", strings.TrimSpace(string(out)), err)
	}
	return pid, nil
}

func (w *windowsOps) Encoding() *EncodingPolicy {
	return w.encoding
}
