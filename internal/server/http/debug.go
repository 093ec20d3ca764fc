package http

import (
	"net/http"
	"net/http/pprof"
	"runtime"
	"time"

	"github.com/brianly1003/gitdeck/internal/hub"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"
)

// RuntimeInfo is the result of GET /debug/runtime.
type RuntimeInfo struct {
	GoVersion     string      `json:"go_version"`
	GOOS          string      `json:"go_os"`
	GOARCH        string      `json:"go_arch"`
	NumCPU        int         `json:"num_cpu"`
	NumGoroutine  int         `json:"num_goroutine"`
	UptimeSeconds int64       `json:"uptime_seconds"`
	Memory        MemoryStats `json:"memory"`

	Processes   int `json:"processes"`
	Terminals   int `json:"terminals"`
	Subscribers int `json:"subscribers"`
	HistoryLen  int `json:"history_len"`

	Events *hub.Stats `json:"events,omitempty"`
}

// hubStats is implemented by the production hub.
type hubStats interface {
	Stats() hub.Stats
}

// MemoryStats is a subset of runtime.MemStats in megabytes.
type MemoryStats struct {
	AllocMB        float64 `json:"alloc_mb"`
	SysMB          float64 `json:"sys_mb"`
	HeapAllocMB    float64 `json:"heap_alloc_mb"`
	HeapInuseMB    float64 `json:"heap_inuse_mb"`
	HeapObjects    uint64  `json:"heap_objects"`
	NumGC          uint32  `json:"num_gc"`
	GCPauseTotalMS float64 `json:"gc_pause_total_ms"`
}

func toMB(b uint64) float64 { return float64(b) / 1024 / 1024 }

// debugRoutes mounts /debug/runtime and, when enabled, the pprof handlers.
func (s *Server) debugRoutes(r *mux.Router) {
	r.HandleFunc("/debug/runtime", s.handleRuntimeInfo).Methods(http.MethodGet)

	if s.opts.Pprof {
		r.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		r.HandleFunc("/debug/pprof/profile", pprof.Profile)
		r.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		r.HandleFunc("/debug/pprof/trace", pprof.Trace)
		// Named profiles (heap, goroutine, ...) are served by Index.
		r.PathPrefix("/debug/pprof/").HandlerFunc(pprof.Index)
	}

	log.Info().Bool("pprof", s.opts.Pprof).Msg("debug endpoints registered at /debug/")
}

func (s *Server) handleRuntimeInfo(w http.ResponseWriter, r *http.Request) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	info := RuntimeInfo{
		GoVersion:     runtime.Version(),
		GOOS:          runtime.GOOS,
		GOARCH:        runtime.GOARCH,
		NumCPU:        runtime.NumCPU(),
		NumGoroutine:  runtime.NumGoroutine(),
		UptimeSeconds: int64(time.Since(s.started).Seconds()),
		Memory: MemoryStats{
			AllocMB:        toMB(m.Alloc),
			SysMB:          toMB(m.Sys),
			HeapAllocMB:    toMB(m.HeapAlloc),
			HeapInuseMB:    toMB(m.HeapInuse),
			HeapObjects:    m.HeapObjects,
			NumGC:          m.NumGC,
			GCPauseTotalMS: float64(m.PauseTotalNs) / 1e6,
		},
	}
	if s.deps.Processes != nil {
		info.Processes = len(s.deps.Processes.List())
	}
	if s.deps.Terminals != nil {
		info.Terminals = len(s.deps.Terminals.List())
	}
	if s.deps.Hub != nil {
		info.Subscribers = s.deps.Hub.SubscriberCount()
		if hs, ok := s.deps.Hub.(hubStats); ok {
			st := hs.Stats()
			info.Events = &st
		}
	}
	if s.deps.History != nil {
		info.HistoryLen = s.deps.History.Len()
	}
	writeJSON(w, http.StatusOK, info)
}
