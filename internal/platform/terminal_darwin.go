//go:build darwin

package platform

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// OpenTerminal opens a Terminal.app window. osascript does not return the
// shell pid, so the shell writes $$ to a pid file that is polled afterwards.
func (p *posixOps) OpenTerminal(ctx context.Context, command, dir string) (int, error) {
	pidFile, err := newPIDFile()
	if err != nil {
		return 0, err
	}

	script := fmt.Sprintf("echo $$ > %s; cd %s && %s", quoteSingle(pidFile), quoteSingle(dir), command)
	script = strings.ReplaceAll(strings.ReplaceAll(script, `\`, `\\`), `"`, `\"`)

	app := p.terminal
	if app == "" {
		app = "Terminal"
	}
	osa := exec.CommandContext(ctx, "osascript",
		"-e", fmt.Sprintf(`tell application "%s" to do script "%s"`, app, script),
		"-e", fmt.Sprintf(`tell application "%s" to activate`, app))
	if out, err := osa.CombinedOutput(); err != nil {
		return 0, fmt.Errorf("osascript: %v: %s", err, strings.TrimSpace(string(out)))
	}

	return waitPIDFile(ctx, pidFile, pidResolveTimeout)
}
