package platform

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// newPIDFile reserves a path a launched shell can write its pid to.
func newPIDFile() (string, error) {
	f, err := os.CreateTemp("", "gitdeck-term-*.pid")
	if err != nil {
		return "", err
	}
	name := f.Name()
	_ = f.Close()
	return name, nil
}

// waitPIDFile polls path until it holds a pid or the timeout elapses. The
// file is removed afterwards.
func waitPIDFile(ctx context.Context, path string, timeout time.Duration) (int, error) {
	defer os.Remove(path)

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		if data, err := os.ReadFile(path); err == nil {
			if pid, err := strconv.Atoi(strings.TrimSpace(string(data))); err == nil && pid > 0 {
				return pid, nil
			}
		}
		select {
		case <-ctx.Done():
			return 0, fmt.Errorf("terminal pid not reported: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}

// quoteSingle quotes s for a POSIX shell.
func quoteSingle(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
