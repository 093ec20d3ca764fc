//go:build !windows

package process

import (
	"errors"
	"io"
	"os/exec"
	"syscall"

	"github.com/creack/pty"
)

// startPTY starts cmd on a pseudo-terminal. Stdout and stderr are merged.
// pty.Start makes the child a session leader, so its pid is also its
// process group id.
func startPTY(cmd *exec.Cmd) (io.ReadCloser, io.WriteCloser, error) {
	ptmx, err := pty.StartWithSize(cmd, &pty.Winsize{Rows: 40, Cols: 120})
	if err != nil {
		return nil, nil, err
	}
	return ptmx, nopCloser{ptmx}, nil
}

// isPTYClosed reports the EIO Linux returns once the pty slave side is gone.
func isPTYClosed(err error) bool {
	return errors.Is(err, syscall.EIO)
}

// nopCloser lets stdin share the pty file without closing it under the reader.
type nopCloser struct {
	io.Writer
}

func (nopCloser) Close() error { return nil }
