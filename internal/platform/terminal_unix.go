//go:build !windows && !darwin

package platform

import (
	"context"
	"fmt"
	"os/exec"
)

// OpenTerminal starts a terminal emulator running an interactive shell. The
// emulator process often forks and exits, so the inner shell reports its own
// pid through a pid file.
func (p *posixOps) OpenTerminal(ctx context.Context, command, dir string) (int, error) {
	pidFile, err := newPIDFile()
	if err != nil {
		return 0, err
	}

	emulator := p.terminal
	if emulator == "" {
		emulator = "x-terminal-emulator"
	}
	if _, err := exec.LookPath(emulator); err != nil {
		return 0, fmt.Errorf("terminal emulator %q not found: %w", emulator, err)
	}

	script := fmt.Sprintf("echo $$ > %s; cd %s && %s; exec %s", quoteSingle(pidFile), quoteSingle(dir), command, p.shell)
	cmd := exec.Command(emulator, "-e", p.shell, "-c", script)
	cmd.Dir = dir
	p.Prepare(cmd)
	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("start %s: %w", emulator, err)
	}
	go func() { _ = cmd.Wait() }()

	return waitPIDFile(ctx, pidFile, pidResolveTimeout)
}
