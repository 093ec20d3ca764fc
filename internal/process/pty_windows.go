//go:build windows

package process

import (
	"io"
	"os/exec"

	"github.com/brianly1003/gitdeck/internal/domain"
)

func startPTY(cmd *exec.Cmd) (io.ReadCloser, io.WriteCloser, error) {
	return nil, nil, domain.ErrUnsupportedRuntime
}

func isPTYClosed(err error) bool {
	return false
}
