package http

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/brianly1003/gitdeck/internal/domain"
	"github.com/brianly1003/gitdeck/internal/domain/events"
	"github.com/brianly1003/gitdeck/internal/domain/ports"
	"github.com/brianly1003/gitdeck/internal/executor"
	"github.com/brianly1003/gitdeck/internal/history"
	"github.com/brianly1003/gitdeck/internal/process"
	"github.com/brianly1003/gitdeck/internal/project"
	"github.com/brianly1003/gitdeck/internal/server/http/middleware"
	"github.com/brianly1003/gitdeck/internal/terminal"
	"github.com/brianly1003/gitdeck/internal/testutil"
)

type fakeRunner struct {
	gotDir string
	res    *executor.Result
	err    error
}

func (f *fakeRunner) Run(_ context.Context, _ string, opts executor.Options) (*executor.Result, error) {
	f.gotDir = opts.Dir
	return f.res, f.err
}

type fakeProcesses struct {
	mu      sync.Mutex
	start   func(ctx context.Context, sink process.Sink) error
	killed  []int
	handles []*process.Handle
}

func (f *fakeProcesses) StartStream(ctx context.Context, _, _ string, sink process.Sink) (*process.Handle, error) {
	if err := f.start(ctx, sink); err != nil {
		return nil, err
	}
	return &process.Handle{ID: 1}, nil
}

func (f *fakeProcesses) Kill(id int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, h := range f.handles {
		if h.ID == id {
			f.killed = append(f.killed, id)
			return nil
		}
	}
	return domain.ErrProcessNotFound
}

func (f *fakeProcesses) List() []*process.Handle {
	return f.handles
}

type fakeTerminals struct {
	sessions map[string]terminal.Session
	cleanup  bool
}

func (f *fakeTerminals) Open(_ context.Context, command, dir string) (terminal.Session, error) {
	s := terminal.Session{ID: "t1", Command: command, Dir: dir}
	f.sessions[s.ID] = s
	return s, nil
}

func (f *fakeTerminals) List() []terminal.Session {
	var out []terminal.Session
	for _, s := range f.sessions {
		out = append(out, s)
	}
	return out
}

func (f *fakeTerminals) Restart(_ context.Context, id string) (terminal.Session, error) {
	s, ok := f.sessions[id]
	if !ok {
		return terminal.Session{}, domain.ErrTerminalNotFound
	}
	return s, nil
}

func (f *fakeTerminals) CheckStatus(cleanup bool) []terminal.Status {
	f.cleanup = cleanup
	return []terminal.Status{}
}

func (f *fakeTerminals) Close(id string) error {
	if _, ok := f.sessions[id]; !ok {
		return domain.ErrTerminalNotFound
	}
	delete(f.sessions, id)
	return nil
}

type fakeFacts struct {
	forced bool
	ab     ports.AheadBehind
}

func (f *fakeFacts) CurrentBranch(context.Context, bool) (string, error) {
	return "main", nil
}

func (f *fakeFacts) AheadBehind(_ context.Context, force bool) (ports.AheadBehind, error) {
	f.forced = force
	return f.ab, nil
}

type fakeProject struct {
	sc       project.SessionContext
	status   events.GitStatusPayload
	switched string
}

func (f *fakeProject) Current() project.SessionContext { return f.sc }

func (f *fakeProject) Switch(_ context.Context, path string) (project.SessionContext, error) {
	if path == "/missing" {
		return f.sc, domain.NewValidationError("path", "does not exist")
	}
	f.switched = path
	f.sc = project.SessionContext{Directory: path, Room: "project:-x", IsRepo: true}
	return f.sc, nil
}

func (f *fakeProject) Recompute(context.Context, bool, bool) (events.GitStatusPayload, error) {
	if !f.sc.IsRepo {
		return events.GitStatusPayload{}, domain.ErrNotGitRepo
	}
	return f.status, nil
}

type fixture struct {
	srv       *Server
	runner    *fakeRunner
	procs     *fakeProcesses
	terminals *fakeTerminals
	facts     *fakeFacts
	project   *fakeProject
	ring      *history.Ring
	hub       *testutil.MockEventHub
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	f := &fixture{
		runner:    &fakeRunner{res: &executor.Result{Stdout: "ok\n"}},
		procs:     &fakeProcesses{handles: []*process.Handle{{ID: 7, Command: "sleep 10"}}},
		terminals: &fakeTerminals{sessions: map[string]terminal.Session{}},
		facts:     &fakeFacts{ab: ports.AheadBehind{HasUpstream: true, UpstreamBranch: "origin/main", Ahead: 2, Behind: 1}},
		project: &fakeProject{
			sc:     project.SessionContext{Directory: t.TempDir(), Room: "project:-tmp", IsRepo: true},
			status: events.GitStatusPayload{Branch: "main", StagedCount: 1},
		},
		ring: history.NewRing(10),
		hub:  testutil.NewMockEventHub(),
	}
	f.srv = New(Deps{
		Executor:  f.runner,
		Processes: f.procs,
		Terminals: f.terminals,
		Facts:     f.facts,
		Project:   f.project,
		History:   f.ring,
		Hub:       f.hub,
	}, opts)
	return f
}

func (f *fixture) do(method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	req.RemoteAddr = "127.0.0.1:40000"
	rec := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestHealth(t *testing.T) {
	f := newFixture(t, Options{})
	rec := f.do(http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	h := decode[HealthResponse](t, rec)
	if h.Status != "ok" || h.Processes != 1 {
		t.Errorf("health = %+v", h)
	}
}

func TestExec(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		err        error
		wantStatus int
		wantError  string
	}{
		{"success", `{"command":"echo ok"}`, nil, http.StatusOK, ""},
		{"empty command", `{"command":"  "}`, nil, http.StatusBadRequest, "command"},
		{"invalid json", `{`, nil, http.StatusBadRequest, "invalid JSON"},
		{"missing body", ``, nil, http.StatusBadRequest, "empty"},
		{"bad directory", `{"command":"ls","directory":"/definitely/not/here"}`, nil, http.StatusBadRequest, "directory"},
		{"non-zero exit", `{"command":"false"}`, domain.NewExitError(1, "", "boom"), http.StatusBadRequest, "exited with code 1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, Options{})
			f.runner.err = tt.err
			rec := f.do(http.MethodPost, "/exec", tt.body)
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
			}
			if tt.wantStatus == http.StatusOK {
				res := decode[ExecResponse](t, rec)
				if !res.Success || res.Stdout != "ok\n" {
					t.Errorf("response = %+v", res)
				}
				return
			}
			res := decode[ErrorResponse](t, rec)
			if res.Success || !strings.Contains(res.Error, tt.wantError) {
				t.Errorf("error = %q, want substring %q", res.Error, tt.wantError)
			}
		})
	}
}

func TestExec_CommandErrorCarriesOutput(t *testing.T) {
	f := newFixture(t, Options{})
	f.runner.err = domain.NewExitError(2, "partial", "bad flag")

	rec := f.do(http.MethodPost, "/exec", `{"command":"git frob"}`)
	res := decode[ErrorResponse](t, rec)
	if res.Stdout == nil || *res.Stdout != "partial" || res.Stderr == nil || *res.Stderr != "bad flag" {
		t.Errorf("output not attached: %+v", res)
	}
	if res.ExitCode == nil || *res.ExitCode != 2 {
		t.Errorf("exit code = %v", res.ExitCode)
	}
}

func TestExec_DirectoryResolved(t *testing.T) {
	f := newFixture(t, Options{})
	dir := t.TempDir()
	body, _ := json.Marshal(ExecRequest{Command: "ls", Directory: dir})

	if rec := f.do(http.MethodPost, "/exec", string(body)); rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if f.runner.gotDir != dir {
		t.Errorf("dir = %q, want %q", f.runner.gotDir, dir)
	}
}

func TestExec_BodyLimit(t *testing.T) {
	f := newFixture(t, Options{MaxRequestBytes: 32})
	body := `{"command":"` + strings.Repeat("x", 100) + `"}`
	rec := f.do(http.MethodPost, "/exec", body)
	if rec.Code != http.StatusBadRequest || !strings.Contains(rec.Body.String(), "too large") {
		t.Errorf("status = %d body = %s", rec.Code, rec.Body.String())
	}
}

func TestExec_RateLimited(t *testing.T) {
	limiter := middleware.NewRateLimiter(middleware.WithRate(0.001), middleware.WithBurst(1))
	defer limiter.Close()
	f := newFixture(t, Options{RateLimiter: limiter})

	if rec := f.do(http.MethodPost, "/exec", `{"command":"echo"}`); rec.Code != http.StatusOK {
		t.Fatalf("first status = %d", rec.Code)
	}
	if rec := f.do(http.MethodPost, "/exec", `{"command":"echo"}`); rec.Code != http.StatusTooManyRequests {
		t.Errorf("second status = %d, want 429", rec.Code)
	}
	// Other routes are not limited.
	if rec := f.do(http.MethodGet, "/processes", ""); rec.Code != http.StatusOK {
		t.Errorf("processes status = %d", rec.Code)
	}
}

func readFrames(t *testing.T, body *bufio.Reader, n int) []events.Frame {
	t.Helper()
	var frames []events.Frame
	for len(frames) < n {
		line, err := body.ReadString('\n')
		if err != nil {
			t.Fatalf("read frame: %v (got %d)", err, len(frames))
		}
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var fr events.Frame
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &fr); err != nil {
			t.Fatalf("frame %q: %v", line, err)
		}
		frames = append(frames, fr)
	}
	return frames
}

func TestExecStream_Frames(t *testing.T) {
	f := newFixture(t, Options{})
	f.procs.start = func(_ context.Context, sink process.Sink) error {
		sink(events.ProcessIDEvent{ProcessID: 3})
		sink(events.OutputEvent{Stream: events.StreamStdout, Data: "hello"})
		sink(events.OutputEvent{Stream: events.StreamStderr, Data: "warn"})
		sink(events.ExitEvent{Code: 0, Success: true})
		return nil
	}

	rec := f.do(http.MethodPost, "/exec-stream", `{"command":"echo hello"}`)
	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type = %q", ct)
	}
	frames := readFrames(t, bufio.NewReader(bytes.NewReader(rec.Body.Bytes())), 4)

	wantTypes := []events.StreamKind{events.StreamProcessID, events.StreamStdout, events.StreamStderr, events.StreamExit}
	for i, want := range wantTypes {
		if frames[i].Type != want {
			t.Errorf("frame %d type = %s, want %s", i, frames[i].Type, want)
		}
	}
	if frames[0].Data != float64(3) || frames[1].Data != "hello" {
		t.Errorf("frames = %+v", frames)
	}
}

func TestExecStream_SpawnError(t *testing.T) {
	f := newFixture(t, Options{})
	f.procs.start = func(_ context.Context, sink process.Sink) error {
		err := domain.NewSpawnError(context.DeadlineExceeded)
		sink(events.ErrorEvent{Message: err.Message})
		return err
	}

	rec := f.do(http.MethodPost, "/exec-stream", `{"command":"nope"}`)
	frames := readFrames(t, bufio.NewReader(bytes.NewReader(rec.Body.Bytes())), 1)
	if frames[0].Type != events.StreamError {
		t.Errorf("frame type = %s, want error", frames[0].Type)
	}
}

func TestExecStream_DisconnectCancels(t *testing.T) {
	f := newFixture(t, Options{})
	var cancelled atomic.Bool
	f.procs.start = func(ctx context.Context, sink process.Sink) error {
		sink(events.ProcessIDEvent{ProcessID: 1})
		go func() {
			<-ctx.Done()
			cancelled.Store(true)
		}()
		return nil
	}

	ts := httptest.NewServer(f.srv.Handler())
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	req, _ := http.NewRequestWithContext(ctx, http.MethodPost, ts.URL+"/exec-stream", strings.NewReader(`{"command":"sleep 100"}`))
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	defer resp.Body.Close()

	readFrames(t, bufio.NewReader(resp.Body), 1)
	cancel()

	testutil.Eventually(t, 2*time.Second, cancelled.Load, "stream context not cancelled after disconnect")
}

func TestKillProcess(t *testing.T) {
	f := newFixture(t, Options{})

	if rec := f.do(http.MethodPost, "/kill-process", `{"processId":7}`); rec.Code != http.StatusOK {
		t.Errorf("status = %d", rec.Code)
	}
	if rec := f.do(http.MethodPost, "/kill-process", `{"processId":99}`); rec.Code != http.StatusNotFound {
		t.Errorf("unknown id status = %d, want 404", rec.Code)
	}
}

func TestListProcesses(t *testing.T) {
	f := newFixture(t, Options{})
	res := decode[ProcessListResponse](t, f.do(http.MethodGet, "/processes", ""))
	if res.Count != 1 || res.Processes[0].ID != 7 {
		t.Errorf("processes = %+v", res)
	}
}

func TestTerminalSessions(t *testing.T) {
	f := newFixture(t, Options{})

	rec := f.do(http.MethodPost, "/terminal-sessions", `{"command":"htop"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("open status = %d body %s", rec.Code, rec.Body.String())
	}
	sess := decode[terminal.Session](t, rec)
	if sess.Dir != f.project.sc.Directory {
		t.Errorf("dir = %q, want project dir", sess.Dir)
	}

	if rec := f.do(http.MethodGet, "/terminal-sessions", ""); len(decode[TerminalListResponse](t, rec).Sessions) != 1 {
		t.Errorf("list = %s", rec.Body.String())
	}
	if rec := f.do(http.MethodPost, "/terminal-sessions/t1/restart", ""); rec.Code != http.StatusOK {
		t.Errorf("restart status = %d", rec.Code)
	}
	if rec := f.do(http.MethodGet, "/terminal-sessions/status?cleanup=true", ""); rec.Code != http.StatusOK || !f.terminals.cleanup {
		t.Errorf("status check: code %d cleanup %v", rec.Code, f.terminals.cleanup)
	}
	if rec := f.do(http.MethodDelete, "/terminal-sessions/t1", ""); rec.Code != http.StatusOK {
		t.Errorf("close status = %d", rec.Code)
	}
	if rec := f.do(http.MethodDelete, "/terminal-sessions/t1", ""); rec.Code != http.StatusNotFound {
		t.Errorf("second close status = %d, want 404", rec.Code)
	}
	if rec := f.do(http.MethodPost, "/terminal-sessions/zzz/restart", ""); rec.Code != http.StatusNotFound {
		t.Errorf("restart unknown status = %d, want 404", rec.Code)
	}
}

func TestBranchStatus(t *testing.T) {
	f := newFixture(t, Options{})

	res := decode[BranchStatusResponse](t, f.do(http.MethodGet, "/branch-status", ""))
	if !res.HasUpstream || res.UpstreamBranch != "origin/main" || res.Branch != "main" || res.Ahead != 2 || res.Behind != 1 {
		t.Errorf("branch status = %+v", res)
	}
	if f.facts.forced {
		t.Error("force should default to false")
	}

	res = decode[BranchStatusResponse](t, f.do(http.MethodGet, "/branch-status?force=true&countOnly", ""))
	if !f.facts.forced {
		t.Error("force not passed through")
	}
	if res.Branch != "" || res.UpstreamBranch != "" || res.Ahead != 2 {
		t.Errorf("countOnly response = %+v", res)
	}

	f.project.sc.IsRepo = false
	if rec := f.do(http.MethodGet, "/branch-status", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("non-repo status = %d, want 400", rec.Code)
	}
}

func TestStatus(t *testing.T) {
	f := newFixture(t, Options{})
	res := decode[events.GitStatusPayload](t, f.do(http.MethodGet, "/status", ""))
	if res.Branch != "main" || res.StagedCount != 1 {
		t.Errorf("status = %+v", res)
	}
}

func TestProject(t *testing.T) {
	f := newFixture(t, Options{})

	got := decode[project.SessionContext](t, f.do(http.MethodGet, "/project", ""))
	if got.Room != "project:-tmp" {
		t.Errorf("project = %+v", got)
	}

	rec := f.do(http.MethodPost, "/project", `{"path":"/other"}`)
	if rec.Code != http.StatusOK || f.project.switched != "/other" {
		t.Errorf("switch status = %d switched = %q", rec.Code, f.project.switched)
	}
	if rec := f.do(http.MethodPost, "/project", `{"path":"/missing"}`); rec.Code != http.StatusBadRequest {
		t.Errorf("invalid switch status = %d", rec.Code)
	}
	if rec := f.do(http.MethodPost, "/project", `{}`); rec.Code != http.StatusBadRequest {
		t.Errorf("empty path status = %d", rec.Code)
	}
}

func TestHistory(t *testing.T) {
	f := newFixture(t, Options{})
	f.ring.Add(history.NewEntry("git status", "/r", "clean", "", nil, time.Millisecond, 100))
	f.ring.Add(history.NewEntry("git log", "/r", "", "", nil, time.Millisecond, 100))

	res := decode[HistoryResponse](t, f.do(http.MethodGet, "/history", ""))
	if res.Count != 2 || res.Capacity != 10 || res.Entries[0].Command != "git log" {
		t.Errorf("history = %+v", res)
	}

	if rec := f.do(http.MethodDelete, "/history", ""); rec.Code != http.StatusOK {
		t.Fatalf("clear status = %d", rec.Code)
	}
	if f.ring.Len() != 0 {
		t.Error("ring not cleared")
	}
	if len(f.hub.EventsOfType(events.EventTypeCommandHistoryCleared)) != 1 {
		t.Error("history cleared event not published")
	}
}

func TestCORS(t *testing.T) {
	f := newFixture(t, Options{AllowedOrigins: []string{"https://app.example.com"}})

	tests := []struct {
		origin string
		want   int
	}{
		{"http://localhost:5173", http.StatusOK},
		{"http://127.0.0.1:3000", http.StatusOK},
		{"https://app.example.com", http.StatusOK},
		{"https://evil.example.com", http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.origin, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/health", nil)
			req.Header.Set("Origin", tt.origin)
			rec := httptest.NewRecorder()
			f.srv.Handler().ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
			if tt.want == http.StatusOK && rec.Header().Get("Access-Control-Allow-Origin") != tt.origin {
				t.Errorf("allow origin = %q", rec.Header().Get("Access-Control-Allow-Origin"))
			}
		})
	}

	req := httptest.NewRequest(http.MethodOptions, "/exec", nil)
	req.Header.Set("Origin", "http://localhost")
	rec := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Errorf("preflight status = %d", rec.Code)
	}
}

func TestRouting_NotFoundAndMethod(t *testing.T) {
	f := newFixture(t, Options{})
	if rec := f.do(http.MethodGet, "/nope", ""); rec.Code != http.StatusNotFound {
		t.Errorf("unknown path status = %d", rec.Code)
	}
	if rec := f.do(http.MethodGet, "/exec", ""); rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET /exec status = %d, want 405", rec.Code)
	}
}

func TestTimeoutMiddleware(t *testing.T) {
	release := make(chan struct{})
	finished := make(chan struct{})
	slow := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer close(finished)
		<-release
		w.Header().Set("X-Late", "1")
		w.WriteHeader(http.StatusTeapot)
		if _, err := w.Write([]byte("late")); err != http.ErrHandlerTimeout {
			t.Errorf("late Write() error = %v, want ErrHandlerTimeout", err)
		}
	})
	rec := httptest.NewRecorder()
	timeoutMiddleware(20*time.Millisecond, slow).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	close(release)
	<-finished

	if rec.Code != http.StatusGatewayTimeout {
		t.Errorf("status = %d, want 504", rec.Code)
	}
	if rec.Header().Get("X-Late") != "" {
		t.Error("late handler header reached the response")
	}
	if strings.Contains(rec.Body.String(), "late") {
		t.Errorf("body = %q, late output leaked", rec.Body.String())
	}
}

func TestTimeoutMiddleware_PassesFastResponse(t *testing.T) {
	fast := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Handler", "fast")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte("ok"))
	})
	rec := httptest.NewRecorder()
	timeoutMiddleware(time.Second, fast).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusCreated {
		t.Errorf("status = %d, want 201", rec.Code)
	}
	if rec.Header().Get("X-Handler") != "fast" {
		t.Error("handler header missing")
	}
	if rec.Body.String() != "ok" {
		t.Errorf("body = %q, want ok", rec.Body.String())
	}
}

func TestTimeoutMiddleware_DefaultStatus(t *testing.T) {
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("{}"))
	})
	rec := httptest.NewRecorder()
	timeoutMiddleware(time.Second, h).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}
