// Package http provides the HTTP surface of gitdeck: command execution,
// process and terminal management, repository status, and the WebSocket
// upgrade endpoint.
package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/brianly1003/gitdeck/internal/domain"
	"github.com/brianly1003/gitdeck/internal/domain/events"
	"github.com/brianly1003/gitdeck/internal/domain/ports"
	"github.com/brianly1003/gitdeck/internal/executor"
	"github.com/brianly1003/gitdeck/internal/history"
	"github.com/brianly1003/gitdeck/internal/process"
	"github.com/brianly1003/gitdeck/internal/project"
	"github.com/brianly1003/gitdeck/internal/security"
	"github.com/brianly1003/gitdeck/internal/server/http/middleware"
	"github.com/brianly1003/gitdeck/internal/terminal"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"
)

// CommandRunner runs a command to completion.
type CommandRunner interface {
	Run(ctx context.Context, command string, opts executor.Options) (*executor.Result, error)
}

// ProcessManager starts and stops streamed processes.
type ProcessManager interface {
	StartStream(ctx context.Context, command, dir string, sink process.Sink) (*process.Handle, error)
	Kill(id int) error
	List() []*process.Handle
}

// TerminalManager tracks detached terminal windows.
type TerminalManager interface {
	Open(ctx context.Context, command, dir string) (terminal.Session, error)
	List() []terminal.Session
	Restart(ctx context.Context, id string) (terminal.Session, error)
	CheckStatus(cleanup bool) []terminal.Status
	Close(id string) error
}

// BranchFacts answers branch identity and sync questions.
type BranchFacts interface {
	CurrentBranch(ctx context.Context, force bool) (string, error)
	AheadBehind(ctx context.Context, force bool) (ports.AheadBehind, error)
}

// ProjectManager owns the active working directory.
type ProjectManager interface {
	Current() project.SessionContext
	Switch(ctx context.Context, path string) (project.SessionContext, error)
	Recompute(ctx context.Context, force, monitored bool) (events.GitStatusPayload, error)
}

// HistoryStore is the command history ring.
type HistoryStore interface {
	Entries() []history.Entry
	Len() int
	Capacity() int
	Clear()
}

// Deps are the services the HTTP server exposes.
type Deps struct {
	Executor  CommandRunner
	Processes ProcessManager
	Terminals TerminalManager
	Facts     BranchFacts
	Project   ProjectManager
	History   HistoryStore
	Hub       ports.EventHub

	// WebSocket is mounted at /ws when set.
	WebSocket http.Handler
}

// Options tunes the server.
type Options struct {
	Host            string
	Port            int
	AllowedOrigins  []string
	// TrustedProxies may set the client address used for rate limiting.
	TrustedProxies  security.TrustedProxies
	MaxRequestBytes int64
	RateLimiter     *middleware.RateLimiter
	RequestTimeout  time.Duration
	// Debug mounts /debug/runtime; Pprof adds the profiling handlers.
	Debug           bool
	Pprof           bool
}

// Server is the gitdeck HTTP server.
type Server struct {
	deps    Deps
	opts    Options
	addr    string
	router  *mux.Router
	origins *security.OriginChecker
	started time.Time

	mu     sync.Mutex
	server *http.Server
}

// New creates a server and registers its routes.
func New(deps Deps, opts Options) *Server {
	if opts.MaxRequestBytes <= 0 {
		opts.MaxRequestBytes = 1 << 20
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 30 * time.Second
	}
	s := &Server{
		deps:    deps,
		opts:    opts,
		addr:    net.JoinHostPort(opts.Host, strconv.Itoa(opts.Port)),
		router:  mux.NewRouter(),
		origins: security.NewOriginChecker(opts.AllowedOrigins),
		started: time.Now(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	r := s.router

	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	// Commands run for as long as they need; only the exec routes are rate limited.
	execRoutes := r.NewRoute().Subrouter()
	execRoutes.Use(middleware.RateLimit(s.opts.RateLimiter, s.opts.TrustedProxies.ClientIP))
	execRoutes.HandleFunc("/exec", s.handleExec).Methods(http.MethodPost)
	execRoutes.HandleFunc("/exec-stream", s.handleExecStream).Methods(http.MethodPost)

	api := r.NewRoute().Subrouter()
	api.Use(func(next http.Handler) http.Handler {
		return timeoutMiddleware(s.opts.RequestTimeout, next)
	})
	api.HandleFunc("/kill-process", s.handleKillProcess).Methods(http.MethodPost)
	api.HandleFunc("/processes", s.handleListProcesses).Methods(http.MethodGet)

	api.HandleFunc("/terminal-sessions", s.handleListTerminals).Methods(http.MethodGet)
	api.HandleFunc("/terminal-sessions", s.handleOpenTerminal).Methods(http.MethodPost)
	api.HandleFunc("/terminal-sessions/status", s.handleTerminalStatus).Methods(http.MethodGet)
	api.HandleFunc("/terminal-sessions/{id}/restart", s.handleRestartTerminal).Methods(http.MethodPost)
	api.HandleFunc("/terminal-sessions/{id}", s.handleCloseTerminal).Methods(http.MethodDelete)

	api.HandleFunc("/branch-status", s.handleBranchStatus).Methods(http.MethodGet)
	api.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	api.HandleFunc("/project", s.handleGetProject).Methods(http.MethodGet)
	api.HandleFunc("/project", s.handleSwitchProject).Methods(http.MethodPost)

	api.HandleFunc("/history", s.handleGetHistory).Methods(http.MethodGet)
	api.HandleFunc("/history", s.handleClearHistory).Methods(http.MethodDelete)

	if s.deps.WebSocket != nil {
		r.Handle("/ws", s.deps.WebSocket)
	}
	if s.opts.Debug {
		s.debugRoutes(r)
	}

	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
}

// Handler returns the full middleware chain:
// request -> logging -> cors -> router.
func (s *Server) Handler() http.Handler {
	var h http.Handler = s.router
	h = s.corsMiddleware(h)
	h = requestLoggingMiddleware(h)
	return h
}

// Addr returns the listen address.
func (s *Server) Addr() string {
	return s.addr
}

// Start listens on the configured address and serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.addr, err)
	}

	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	s.mu.Lock()
	s.server = srv
	s.mu.Unlock()

	log.Info().Str("addr", ln.Addr().String()).Msg("HTTP server starting")

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("HTTP server error")
		}
	}()
	return nil
}

// Stop gracefully stops the server.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv := s.server
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	log.Info().Msg("HTTP server stopping")
	return srv.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:        "ok",
		Time:          time.Now().UTC().Format(time.RFC3339),
		UptimeSeconds: int64(time.Since(s.started).Seconds()),
	}
	if s.deps.Processes != nil {
		resp.Processes = len(s.deps.Processes.List())
	}
	if s.deps.Hub != nil {
		resp.Subscribers = s.deps.Hub.SubscriberCount()
	}
	writeJSON(w, http.StatusOK, resp)
}

// requestLoggingMiddleware logs every request at debug level.
func requestLoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("remote_addr", r.RemoteAddr).
			Dur("duration", time.Since(start)).
			Msg("request completed")
	})
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" {
			if !s.origins.Allowed(origin) {
				log.Warn().
					Str("origin", origin).
					Str("remote", r.RemoteAddr).
					Msg("CORS request rejected")
				writeError(w, http.StatusForbidden, "origin not allowed")
				return
			}
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Add("Vary", "Origin")
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// timeoutMiddleware answers 504 if the handler has not finished by timeout.
// The handler writes into its own header map and body buffer; only this
// goroutine touches w, and a late handler's output is discarded.
func timeoutMiddleware(timeout time.Duration, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()

		done := make(chan struct{})
		panicked := make(chan any, 1)
		tw := &timeoutWriter{header: make(http.Header)}

		go func() {
			defer func() {
				if p := recover(); p != nil {
					panicked <- p
				}
			}()
			next.ServeHTTP(tw, r.WithContext(ctx))
			close(done)
		}()

		select {
		case p := <-panicked:
			panic(p)
		case <-done:
			tw.mu.Lock()
			defer tw.mu.Unlock()
			dst := w.Header()
			for k, v := range tw.header {
				dst[k] = v
			}
			if tw.code == 0 {
				tw.code = http.StatusOK
			}
			w.WriteHeader(tw.code)
			_, _ = w.Write(tw.buf.Bytes())
		case <-ctx.Done():
			tw.mu.Lock()
			tw.timedOut = true
			tw.mu.Unlock()
			log.Warn().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Dur("timeout", timeout).
				Msg("request timed out")
			writeError(w, http.StatusGatewayTimeout, "request timed out")
		}
	})
}

// timeoutWriter collects a handler's response until timeoutMiddleware
// decides whether to send it.
type timeoutWriter struct {
	header http.Header

	mu       sync.Mutex
	buf      bytes.Buffer
	code     int
	timedOut bool
}

func (tw *timeoutWriter) Header() http.Header {
	return tw.header
}

func (tw *timeoutWriter) WriteHeader(code int) {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	if tw.timedOut || tw.code != 0 {
		return
	}
	tw.code = code
}

func (tw *timeoutWriter) Write(b []byte) (int, error) {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	if tw.timedOut {
		return 0, http.ErrHandlerTimeout
	}
	if tw.code == 0 {
		tw.code = http.StatusOK
	}
	return tw.buf.Write(b)
}

// decodeJSON reads a size-limited JSON body into v.
func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxRequestBytes)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			return domain.NewValidationError("body", "request body too large")
		case errors.Is(err, io.EOF):
			return domain.NewValidationError("body", "request body is empty")
		default:
			return domain.NewValidationError("body", "invalid JSON: "+err.Error())
		}
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Success: false, Error: msg})
}

// respondError maps an error to its HTTP status.
func respondError(w http.ResponseWriter, err error) {
	var cmdErr *domain.CommandError
	if errors.As(err, &cmdErr) {
		stdout, stderr, code := cmdErr.Stdout, cmdErr.Stderr, cmdErr.ExitCode
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:    cmdErr.Message,
			Stdout:   &stdout,
			Stderr:   &stderr,
			ExitCode: &code,
		})
		return
	}

	var valErr *domain.ValidationError
	switch {
	case errors.As(err, &valErr),
		errors.Is(err, domain.ErrInvalidCommand),
		errors.Is(err, domain.ErrInvalidDirectory),
		errors.Is(err, domain.ErrInvalidPayload),
		errors.Is(err, domain.ErrNotGitRepo):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrProcessNotFound),
		errors.Is(err, domain.ErrTerminalNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrSessionExists):
		writeError(w, http.StatusConflict, err.Error())
	default:
		log.Error().Err(err).Msg("request failed")
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func queryBool(r *http.Request, name string) bool {
	v := r.URL.Query().Get(name)
	if v == "" {
		if _, present := r.URL.Query()[name]; present {
			return true
		}
		return false
	}
	b, err := strconv.ParseBool(v)
	return err == nil && b
}
