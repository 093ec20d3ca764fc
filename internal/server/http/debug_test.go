package http

import (
	"net/http"
	"runtime"
	"testing"

	"github.com/brianly1003/gitdeck/internal/history"
)

func TestDebug_DisabledByDefault(t *testing.T) {
	f := newFixture(t, Options{})
	if rec := f.do(http.MethodGet, "/debug/runtime", ""); rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404 when debug is off", rec.Code)
	}
}

func TestDebug_RuntimeInfo(t *testing.T) {
	f := newFixture(t, Options{Debug: true})
	f.ring.Add(history.NewEntry("git status", "", "", "", nil, 0, 100))

	rec := f.do(http.MethodGet, "/debug/runtime", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	info := decode[RuntimeInfo](t, rec)
	if info.GoVersion != runtime.Version() {
		t.Errorf("go_version = %q", info.GoVersion)
	}
	if info.NumGoroutine < 1 {
		t.Errorf("num_goroutine = %d", info.NumGoroutine)
	}
	if info.Processes != 1 {
		t.Errorf("processes = %d, want 1", info.Processes)
	}
	if info.HistoryLen != 1 {
		t.Errorf("history_len = %d, want 1", info.HistoryLen)
	}
	if info.Memory.HeapAllocMB <= 0 {
		t.Errorf("heap_alloc_mb = %v", info.Memory.HeapAllocMB)
	}
}

func TestDebug_Pprof(t *testing.T) {
	f := newFixture(t, Options{Debug: true})
	if rec := f.do(http.MethodGet, "/debug/pprof/", ""); rec.Code != http.StatusNotFound {
		t.Errorf("pprof index status = %d, want 404 without Pprof", rec.Code)
	}

	f = newFixture(t, Options{Debug: true, Pprof: true})
	if rec := f.do(http.MethodGet, "/debug/pprof/", ""); rec.Code != http.StatusOK {
		t.Errorf("pprof index status = %d, want 200", rec.Code)
	}
	if rec := f.do(http.MethodGet, "/debug/pprof/goroutine?debug=1", ""); rec.Code != http.StatusOK {
		t.Errorf("goroutine profile status = %d, want 200", rec.Code)
	}
}
