package http

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/brianly1003/gitdeck/internal/domain"
	"github.com/brianly1003/gitdeck/internal/domain/events"
	"github.com/brianly1003/gitdeck/internal/executor"
	"github.com/brianly1003/gitdeck/internal/pathutil"
	"github.com/rs/zerolog/log"
)

// streamBuffer bounds the frames queued between the relay goroutines and
// the response writer.
const streamBuffer = 256

func (s *Server) parseExecRequest(w http.ResponseWriter, r *http.Request) (ExecRequest, error) {
	var req ExecRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		return req, err
	}
	req.Command = strings.TrimSpace(req.Command)
	if req.Command == "" {
		return req, domain.NewValidationError("command", "is required")
	}
	if req.Directory != "" {
		dir, err := pathutil.ResolveDir(req.Directory)
		if err != nil {
			return req, domain.NewValidationError("directory", err.Error())
		}
		req.Directory = dir
	}
	return req, nil
}

// handleExec runs a command to completion.
func (s *Server) handleExec(w http.ResponseWriter, r *http.Request) {
	req, err := s.parseExecRequest(w, r)
	if err != nil {
		respondError(w, err)
		return
	}

	res, err := s.deps.Executor.Run(r.Context(), req.Command, executor.Options{Dir: req.Directory})
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ExecResponse{Success: true, Stdout: res.Stdout, Stderr: res.Stderr})
}

// handleExecStream runs a command and streams its events as server-sent
// {type, data} frames. The client going away kills the process.
func (s *Server) handleExecStream(w http.ResponseWriter, r *http.Request) {
	req, err := s.parseExecRequest(w, r)
	if err != nil {
		respondError(w, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	ctx := r.Context()
	frames := make(chan events.StreamEvent, streamBuffer)
	sink := func(ev events.StreamEvent) {
		select {
		case frames <- ev:
		case <-ctx.Done():
		}
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	// A spawn failure has already queued its error frame.
	if _, err := s.deps.Processes.StartStream(ctx, req.Command, req.Directory, sink); err != nil {
		log.Debug().Err(err).Str("command", req.Command).Msg("stream start failed")
	}

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-frames:
			if err := writeSSEFrame(w, flusher, ev); err != nil {
				return
			}
			if ev.Terminal() {
				return
			}
		}
	}
}

func writeSSEFrame(w http.ResponseWriter, flusher http.Flusher, ev events.StreamEvent) error {
	data, err := events.MarshalFrame(ev)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}

func (s *Server) handleKillProcess(w http.ResponseWriter, r *http.Request) {
	var req KillRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		respondError(w, err)
		return
	}
	if err := s.deps.Processes.Kill(req.ProcessID); err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, SuccessResponse{Success: true})
}

func (s *Server) handleListProcesses(w http.ResponseWriter, r *http.Request) {
	procs := s.deps.Processes.List()
	writeJSON(w, http.StatusOK, ProcessListResponse{Processes: procs, Count: len(procs)})
}
