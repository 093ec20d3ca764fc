package process

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/brianly1003/gitdeck/internal/domain"
	"github.com/brianly1003/gitdeck/internal/domain/events"
	"github.com/brianly1003/gitdeck/internal/executor"
	"github.com/brianly1003/gitdeck/internal/platform"
	"github.com/rs/zerolog/log"
)

// chunkSize is the read size for output pipes. Each read is relayed as soon
// as it returns.
const chunkSize = 4096

// DefaultStopGrace is how long Stop waits after a terminate signal before
// killing the process.
const DefaultStopGrace = 2 * time.Second

// Config configures a Service.
type Config struct {
	StopGrace time.Duration
	// UsePTY runs interactive sessions on a pseudo-terminal where supported.
	UsePTY bool
}

// Service spawns supervised processes and relays their output.
type Service struct {
	registry *Registry
	exec     *executor.Executor
	ops      platform.Ops
	cfg      Config
}

// NewService creates a Service. History entries and directory resolution go
// through exec.
func NewService(registry *Registry, exec *executor.Executor, cfg Config) *Service {
	if cfg.StopGrace <= 0 {
		cfg.StopGrace = DefaultStopGrace
	}
	return &Service{
		registry: registry,
		exec:     exec,
		ops:      exec.Platform(),
		cfg:      cfg,
	}
}

// Registry returns the registry of live processes.
func (s *Service) Registry() *Registry {
	return s.registry
}

// List returns the live processes ordered by id.
func (s *Service) List() []*Handle {
	return s.registry.List()
}

// StartStream spawns command in dir and relays its events to sink. It
// returns once the process is running (or failed to start); events keep
// arriving until the terminal event. Cancelling ctx kills the process.
func (s *Service) StartStream(ctx context.Context, command, dir string, sink Sink) (*Handle, error) {
	return s.start(ctx, command, dir, "", sink)
}

// StartInteractive is StartStream with input routed by sessionID. The
// session id is chosen by the caller.
func (s *Service) StartInteractive(ctx context.Context, sessionID, command, dir string, sink Sink) (*Handle, error) {
	if sessionID == "" {
		return nil, domain.NewValidationError("session_id", "is required")
	}
	if _, ok := s.registry.GetBySession(sessionID); ok {
		return nil, domain.ErrSessionExists
	}
	return s.start(ctx, command, dir, sessionID, sink)
}

func (s *Service) start(ctx context.Context, command, dir, sessionID string, sink Sink) (*Handle, error) {
	dir = s.exec.ResolveDir(dir)
	x := newExecution(sink)
	started := time.Now()

	cmd := s.ops.ShellCommand(context.Background(), command)
	cmd.Dir = dir

	usePTY := sessionID != "" && s.cfg.UsePTY
	var (
		stdout, stderr io.ReadCloser
		stdin          io.WriteCloser
		err            error
	)
	if usePTY {
		stdout, stdin, err = startPTY(cmd)
	} else {
		s.ops.Prepare(cmd)
		stdout, stderr, stdin, err = startPiped(cmd, sessionID != "")
	}
	if err != nil {
		cmdErr := domain.NewSpawnError(err)
		s.exec.Record(command, dir, "", "", &cmdErr.Message, time.Since(started))
		_ = x.fire(events.ErrorEvent{Message: cmdErr.Message})
		log.Warn().Err(err).Str("command", command).Str("dir", dir).Msg("failed to spawn process")
		return nil, cmdErr
	}

	h := &Handle{
		Command:   command,
		StartedAt: started.UTC(),
		Dir:       dir,
		SessionID: sessionID,
		PID:       cmd.Process.Pid,
		cmd:       cmd,
		exited:    make(chan struct{}),
		stdin:     stdin,
	}
	id, err := s.registry.Create(h)
	if err != nil {
		// Lost a race on the session id; the process never became visible.
		_ = s.ops.Kill(cmd.Process.Pid)
		_ = cmd.Wait()
		_ = x.fire(events.ErrorEvent{Message: err.Error()})
		return nil, err
	}
	_ = x.fire(events.ProcessIDEvent{ProcessID: id})

	log.Info().
		Int("process_id", id).
		Int("pid", h.PID).
		Str("session_id", sessionID).
		Str("command", command).
		Msg("process started")

	policy := s.ops.Encoding()
	outBuf := newCappedBuffer(s.maxCapture())
	errBuf := newCappedBuffer(s.maxCapture())

	var readers sync.WaitGroup
	readers.Add(1)
	go s.relay(&readers, x, stdout, events.StreamStdout, policy.StdoutDecoder(command), outBuf)
	if stderr != nil {
		readers.Add(1)
		go s.relay(&readers, x, stderr, events.StreamStderr, policy.StderrDecoder(), errBuf)
	}

	go func() {
		select {
		case <-ctx.Done():
			log.Debug().Int("process_id", id).Msg("consumer gone, killing process")
			_ = s.ops.Kill(h.PID)
		case <-h.exited:
		}
	}()

	go s.wait(x, h, &readers, outBuf, errBuf)
	return h, nil
}

// relay copies one output stream to the sink until EOF.
func (s *Service) relay(wg *sync.WaitGroup, x *execution, r io.ReadCloser, stream events.StreamKind, dec *platform.Decoder, capture *cappedBuffer) {
	defer wg.Done()
	defer r.Close()

	buf := make([]byte, chunkSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			capture.Write(buf[:n])
			if text := dec.Decode(buf[:n]); text != "" {
				_ = x.fire(events.OutputEvent{Stream: stream, Data: text})
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !isPTYClosed(err) {
				log.Debug().Err(err).Str("stream", string(stream)).Msg("output read error")
			}
			break
		}
	}
	if text := dec.Flush(); text != "" {
		_ = x.fire(events.OutputEvent{Stream: stream, Data: text})
	}
}

// wait reaps the process once both streams are drained, removes it from the
// registry, records it and then emits the terminal event.
func (s *Service) wait(x *execution, h *Handle, readers *sync.WaitGroup, outBuf, errBuf *cappedBuffer) {
	readers.Wait()
	waitErr := h.cmd.Wait()
	close(h.exited)

	h.inputMu.Lock()
	if h.stdin != nil {
		_ = h.stdin.Close()
		h.stdin = nil
	}
	h.inputMu.Unlock()

	s.registry.Remove(h.ID)

	code := 0
	var terminal events.StreamEvent
	var errMsg *string
	var exitErr *exec.ExitError
	switch {
	case waitErr == nil:
		terminal = events.ExitEvent{Code: 0, Success: true}
	case errors.As(waitErr, &exitErr):
		code = exitErr.ExitCode()
		terminal = events.ExitEvent{Code: code, Success: false}
		msg := fmt.Sprintf("Command exited with code %d", code)
		errMsg = &msg
	default:
		code = -1
		msg := waitErr.Error()
		terminal = events.ErrorEvent{Message: msg}
		errMsg = &msg
	}

	// Recorded first so cache maintenance has run by the time a consumer
	// reacts to the terminal event.
	policy := s.ops.Encoding()
	s.exec.Record(h.Command, h.Dir,
		decodeAll(policy.StdoutDecoder(h.Command), outBuf.Bytes()),
		decodeAll(policy.StderrDecoder(), errBuf.Bytes()),
		errMsg, time.Since(h.StartedAt))

	if err := x.fire(terminal); err != nil {
		log.Error().Err(err).Int("process_id", h.ID).Msg("terminal event rejected")
	}

	log.Info().
		Int("process_id", h.ID).
		Int("exit_code", code).
		Str("session_id", h.SessionID).
		Msg("process finished")
}

// SendInput writes text and a newline to the session's stdin. Writing to a
// session whose input is already closed is a silent no-op.
func (s *Service) SendInput(sessionID, text string) error {
	h, ok := s.registry.GetBySession(sessionID)
	if !ok {
		return domain.ErrProcessNotFound
	}

	h.inputMu.Lock()
	defer h.inputMu.Unlock()
	if h.stdin == nil {
		return nil
	}
	if _, err := io.WriteString(h.stdin, text+"\n"); err != nil {
		log.Debug().Err(err).Str("session_id", sessionID).Msg("stdin closed, dropping input")
	}
	return nil
}

// Stop terminates a session gracefully, escalating to a kill if it has not
// exited within the stop grace period.
func (s *Service) Stop(sessionID string) error {
	h, ok := s.registry.GetBySession(sessionID)
	if !ok {
		return domain.ErrProcessNotFound
	}
	s.terminate(h)
	return nil
}

// Kill stops the process with id unconditionally.
func (s *Service) Kill(id int) error {
	h, ok := s.registry.Get(id)
	if !ok {
		return domain.ErrProcessNotFound
	}
	if h.hasExited() {
		return nil
	}
	if err := s.ops.Kill(h.PID); err != nil && !h.hasExited() {
		log.Debug().Err(err).Int("process_id", id).Msg("kill failed")
	}
	return nil
}

// Shutdown kills every live process.
func (s *Service) Shutdown() {
	for _, h := range s.registry.List() {
		_ = s.ops.Kill(h.PID)
	}
}

func (s *Service) terminate(h *Handle) {
	if !s.ops.SupportsSignals() {
		_ = s.ops.Kill(h.PID)
		return
	}
	if err := s.ops.Terminate(h.PID); err != nil {
		log.Debug().Err(err).Int("process_id", h.ID).Msg("terminate failed")
	}
	go func() {
		timer := time.NewTimer(s.cfg.StopGrace)
		defer timer.Stop()
		select {
		case <-h.exited:
		case <-timer.C:
			log.Debug().Int("process_id", h.ID).Msg("process ignored terminate, killing")
			_ = s.ops.Kill(h.PID)
		}
	}()
}

func (s *Service) maxCapture() int {
	return s.exec.MaxOutput() + 1
}

func startPiped(cmd *exec.Cmd, withStdin bool) (stdout, stderr io.ReadCloser, stdin io.WriteCloser, err error) {
	if stdout, err = cmd.StdoutPipe(); err != nil {
		return nil, nil, nil, err
	}
	if stderr, err = cmd.StderrPipe(); err != nil {
		return nil, nil, nil, err
	}
	if withStdin {
		if stdin, err = cmd.StdinPipe(); err != nil {
			return nil, nil, nil, err
		}
	}
	if err = cmd.Start(); err != nil {
		return nil, nil, nil, err
	}
	return stdout, stderr, stdin, nil
}

func decodeAll(d *platform.Decoder, b []byte) string {
	return d.Decode(b) + d.Flush()
}

// cappedBuffer keeps the first max bytes written to it.
type cappedBuffer struct {
	mu  sync.Mutex
	max int
	b   strings.Builder
}

func newCappedBuffer(max int) *cappedBuffer {
	return &cappedBuffer{max: max}
}

func (c *cappedBuffer) Write(p []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	room := c.max - c.b.Len()
	if room <= 0 {
		return
	}
	if len(p) > room {
		p = p[:room]
	}
	c.b.Write(p)
}

func (c *cappedBuffer) Bytes() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return []byte(c.b.String())
}
