// Package executor runs shell commands to completion and records them in the
// command history.
package executor

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/brianly1003/gitdeck/internal/domain"
	"github.com/brianly1003/gitdeck/internal/history"
	"github.com/brianly1003/gitdeck/internal/platform"
	"github.com/rs/zerolog/log"
)

// Options tunes a single Run.
type Options struct {
	// Dir overrides the working directory. Empty means the default directory.
	Dir string
}

// Result is the captured output of a successful run.
type Result struct {
	Stdout string `json:"stdout"`
	Stderr string `json:"stderr"`
}

// Listener is notified of every history entry the executor records.
type Listener func(entry history.Entry)

// Executor runs commands through the platform shell. It never touches
// repository caches; callers decide what a finished command invalidates.
type Executor struct {
	ops        platform.Ops
	history    *history.Ring
	maxOutput  int
	defaultDir func() string

	mu        sync.RWMutex
	listeners []Listener
}

// New creates an Executor. defaultDir supplies the working directory when a
// run has no override; nil falls back to the process working directory.
func New(ops platform.Ops, ring *history.Ring, maxOutput int, defaultDir func() string) *Executor {
	if maxOutput <= 0 {
		maxOutput = history.DefaultMaxOutputBytes
	}
	return &Executor{
		ops:        ops,
		history:    ring,
		maxOutput:  maxOutput,
		defaultDir: defaultDir,
	}
}

// OnRecord registers a listener for recorded history entries.
func (e *Executor) OnRecord(l Listener) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listeners = append(e.listeners, l)
}

// History returns the ring the executor appends to.
func (e *Executor) History() *history.Ring {
	return e.history
}

// MaxOutput returns the per-stream byte budget for recorded output.
func (e *Executor) MaxOutput() int {
	return e.maxOutput
}

// Platform returns the platform operations used to spawn commands.
func (e *Executor) Platform() platform.Ops {
	return e.ops
}

// ResolveDir picks the directory a command runs in.
func (e *Executor) ResolveDir(override string) string {
	if override != "" {
		return override
	}
	if e.defaultDir != nil {
		if d := e.defaultDir(); d != "" {
			return d
		}
	}
	wd, _ := os.Getwd()
	return wd
}

// Run executes command and waits for it to finish. It returns a
// *domain.CommandError when the command cannot start or exits non-zero.
// Either way one history entry is recorded.
func (e *Executor) Run(ctx context.Context, command string, opts Options) (*Result, error) {
	dir := e.ResolveDir(opts.Dir)
	start := time.Now()

	cmd := e.ops.ShellCommand(ctx, command)
	cmd.Dir = dir
	e.ops.Prepare(cmd)

	var stdoutBuf, stderrBuf bytes.Buffer
	cmd.Stdout = &stdoutBuf
	cmd.Stderr = &stderrBuf

	runErr := cmd.Run()
	elapsed := time.Since(start)

	policy := e.ops.Encoding()
	stdout := decodeAll(policy.StdoutDecoder(command), stdoutBuf.Bytes())
	stderr := decodeAll(policy.StderrDecoder(), stderrBuf.Bytes())

	if runErr != nil {
		cmdErr := toCommandError(runErr, stdout, stderr)
		e.Record(command, dir, stdout, stderr, &cmdErr.Message, elapsed)
		log.Debug().
			Str("command", command).
			Str("dir", dir).
			Int("exit_code", cmdErr.ExitCode).
			Dur("elapsed", elapsed).
			Msg("command failed")
		return nil, cmdErr
	}

	e.Record(command, dir, stdout, stderr, nil, elapsed)
	log.Debug().
		Str("command", command).
		Str("dir", dir).
		Dur("elapsed", elapsed).
		Msg("command finished")
	return &Result{Stdout: stdout, Stderr: stderr}, nil
}

// Record appends a history entry and notifies listeners. A nil errMsg marks
// a successful run.
func (e *Executor) Record(command, dir, stdout, stderr string, errMsg *string, elapsed time.Duration) history.Entry {
	entry := history.NewEntry(command, dir, stdout, stderr, errMsg, elapsed, e.maxOutput)
	if e.history != nil {
		e.history.Add(entry)
	}

	e.mu.RLock()
	listeners := make([]Listener, len(e.listeners))
	copy(listeners, e.listeners)
	e.mu.RUnlock()

	for _, l := range listeners {
		l(entry)
	}
	return entry
}

func toCommandError(err error, stdout, stderr string) *domain.CommandError {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		ce := domain.NewExitError(exitErr.ExitCode(), stdout, stderr)
		ce.Err = err
		return ce
	}
	ce := domain.NewSpawnError(err)
	ce.Stdout = stdout
	ce.Stderr = stderr
	return ce
}

func decodeAll(d *platform.Decoder, b []byte) string {
	return d.Decode(b) + d.Flush()
}
