// Package app wires the gitdeck components together and owns their lifecycle.
package app

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/brianly1003/gitdeck/internal/adapters/git"
	"github.com/brianly1003/gitdeck/internal/adapters/watcher"
	"github.com/brianly1003/gitdeck/internal/config"
	"github.com/brianly1003/gitdeck/internal/domain/events"
	"github.com/brianly1003/gitdeck/internal/domain/ports"
	"github.com/brianly1003/gitdeck/internal/executor"
	"github.com/brianly1003/gitdeck/internal/history"
	"github.com/brianly1003/gitdeck/internal/hub"
	"github.com/brianly1003/gitdeck/internal/platform"
	"github.com/brianly1003/gitdeck/internal/process"
	"github.com/brianly1003/gitdeck/internal/project"
	"github.com/brianly1003/gitdeck/internal/security"
	httpserver "github.com/brianly1003/gitdeck/internal/server/http"
	"github.com/brianly1003/gitdeck/internal/server/http/middleware"
	"github.com/brianly1003/gitdeck/internal/server/websocket"
	"github.com/brianly1003/gitdeck/internal/terminal"
	"github.com/rs/zerolog/log"
)

// shutdownTimeout bounds how long each server gets to drain on shutdown.
const shutdownTimeout = 5 * time.Second

// clientRouter is the part of the websocket server commands talk back through.
type clientRouter interface {
	JoinRoom(clientID, room string) error
	LeaveRoom(clientID, room string) error
	SetMonitoring(clientID string, on bool) error
	SendEvent(clientID string, event events.Event) error
}

// App owns every long-lived component.
type App struct {
	cfg     *config.Config
	version string

	hub         *hub.Hub
	ops         platform.Ops
	ring        *history.Ring
	executor    *executor.Executor
	processes   *process.Service
	terminals   *terminal.Tracker
	facts       *git.FactCache
	status      *git.StatusReader
	broadcaster *project.Broadcaster
	origins     *security.OriginChecker
	limiter     *middleware.RateLimiter
	wsServer    *websocket.Server
	httpServer  *httpserver.Server

	// clients is where command replies go; the websocket server in production.
	clients clientRouter

	// sessions maps a client id to the interactive sessions it started.
	sessionsMu sync.Mutex
	sessions   map[string]map[string]struct{}

	ctxMu     sync.RWMutex
	baseCtx   context.Context
	startTime time.Time

	mu      sync.Mutex
	running bool
}

// New builds every component from cfg. Nothing is started.
func New(cfg *config.Config, version string) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	a := &App{
		cfg:       cfg,
		version:   version,
		hub:       hub.New(),
		sessions:  make(map[string]map[string]struct{}),
		baseCtx:   context.Background(),
		startTime: time.Now(),
	}

	a.ops = platform.New(platform.Options{
		TerminalEmulator: cfg.Terminal.Emulator,
		LegacyCodePage:   cfg.Exec.LegacyCodePage,
		TargetScript:     cfg.Exec.TargetScript,
		LegacyVerbs:      cfg.Exec.LegacyVerbs,
	})
	a.ring = history.NewRing(cfg.History.Capacity)
	a.executor = executor.New(a.ops, a.ring, cfg.History.MaxOutputBytes, a.currentDir)
	a.executor.OnRecord(a.onCommandRecorded)

	a.processes = process.NewService(process.NewRegistry(), a.executor, process.Config{
		StopGrace: cfg.Interactive.StopGrace(),
		UsePTY:    cfg.Interactive.UsePTY,
	})
	a.terminals = terminal.NewTracker(a.ops)

	runner := git.NewCLIRunner(cfg.Git.Command)
	a.facts = git.NewFactCache(runner, cfg.Project.Path, git.WithTTLs(git.TTLs{
		Branch:          cfg.Cache.BranchTTL(),
		Upstream:        cfg.Cache.UpstreamTTL(),
		AheadBehind:     cfg.Cache.AheadBehindTTL(),
		PushSuppression: cfg.Cache.PushSuppression(),
	}))

	a.status = git.NewStatusReader(runner, a.facts)
	a.broadcaster = project.NewBroadcaster(project.Options{
		Hub:        a.hub,
		Status:     a.status,
		Facts:      a.facts,
		NewWatcher: a.watcherFactory(),
		Migrator:   a.hub,
	})

	proxies, err := security.ParseTrustedProxies(cfg.Server.TrustedProxies)
	if err != nil {
		return nil, fmt.Errorf("server.trusted_proxies: %w", err)
	}
	a.origins = security.NewOriginChecker(cfg.Server.AllowedOrigins)

	a.wsServer = websocket.NewServer(websocket.Options{
		Hub:          a.hub,
		Handler:      a.handleCommand,
		OnConnect:    a.onClientConnect,
		OnDisconnect: a.onClientDisconnect,
		CheckOrigin:  a.origins.CheckOrigin,
		Uptime:       a.UptimeSeconds,
	})
	a.clients = a.wsServer

	a.limiter = middleware.NewRateLimiter(
		middleware.WithRate(cfg.Limits.ExecRatePerSec),
		middleware.WithBurst(cfg.Limits.ExecBurst),
	)

	a.httpServer = httpserver.New(httpserver.Deps{
		Executor:  a.executor,
		Processes: a.processes,
		Terminals: a.terminals,
		Facts:     a.facts,
		Project:   a.broadcaster,
		History:   a.ring,
		Hub:       a.hub,
		WebSocket: a.wsServer,
	}, httpserver.Options{
		Host:            cfg.Server.Host,
		Port:            cfg.Server.Port,
		AllowedOrigins:  cfg.Server.AllowedOrigins,
		TrustedProxies:  proxies,
		MaxRequestBytes: cfg.Limits.MaxRequestBytes,
		RateLimiter:     a.limiter,
		Debug:           cfg.Server.Debug,
		Pprof:           cfg.Server.Pprof,
	})

	return a, nil
}

// watcherFactory returns nil when watching is disabled, leaving status
// updates to explicit requests and git commands.
func (a *App) watcherFactory() project.WatcherFactory {
	if !a.cfg.Watcher.Enabled {
		return nil
	}
	return func(dir string, onChange func(paths []string)) ports.FileWatcher {
		return watcher.NewWatcher(dir, a.cfg.Watcher.Debounce(), a.cfg.Watcher.IgnorePatterns, onChange)
	}
}

// Start starts the application and blocks until ctx is cancelled.
func (a *App) Start(ctx context.Context) error {
	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		return fmt.Errorf("application is already running")
	}
	a.running = true
	a.startTime = time.Now()
	a.mu.Unlock()

	a.ctxMu.Lock()
	a.baseCtx = ctx
	a.ctxMu.Unlock()

	if err := a.hub.Start(); err != nil {
		return fmt.Errorf("failed to start event hub: %w", err)
	}

	a.hub.Subscribe(hub.NewObserver("internal-logger", func(event events.Event) {
		log.Trace().
			Str("event_type", string(event.Type())).
			Str("room", event.GetRoom()).
			Time("timestamp", event.Timestamp()).
			Msg("event broadcast")
	}))

	if err := a.broadcaster.Start(ctx, a.cfg.Project.Path); err != nil {
		_ = a.hub.Stop()
		return fmt.Errorf("failed to activate project: %w", err)
	}

	a.wsServer.Start()

	if err := a.httpServer.Start(); err != nil {
		a.broadcaster.Stop()
		_ = a.hub.Stop()
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	a.printConnectionInfo()

	<-ctx.Done()
	return a.shutdown()
}

// shutdown stops everything in reverse dependency order.
func (a *App) shutdown() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.running {
		return nil
	}
	a.running = false

	log.Info().Msg("shutting down...")

	a.broadcaster.Stop()
	a.processes.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := a.wsServer.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("error stopping websocket server")
	}
	if err := a.httpServer.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("error stopping HTTP server")
	}

	a.limiter.Close()

	if err := a.hub.Stop(); err != nil {
		log.Error().Err(err).Msg("error stopping event hub")
	}
	return nil
}

// onCommandRecorded runs for every history entry: it announces the command
// and keeps the repository facts and room status in step with what it did.
func (a *App) onCommandRecorded(entry history.Entry) {
	a.hub.Publish(events.NewCommandExecutedEvent(entry))

	if !entry.Success {
		return
	}
	fx := git.Classify(entry.Command)
	if !fx.Git {
		return
	}
	if fx.BranchChanged {
		a.facts.InvalidateAll()
	}
	if fx.Pushed {
		a.facts.MarkPushed()
	}

	if !a.broadcaster.Current().IsRepo {
		return
	}
	ctx := a.context()
	go func() {
		if _, err := a.broadcaster.Recompute(ctx, false, false); err != nil {
			log.Debug().Err(err).Str("command", entry.Command).Msg("status refresh after git command failed")
		}
	}()
}

// context returns the context bounding background work.
func (a *App) context() context.Context {
	a.ctxMu.RLock()
	defer a.ctxMu.RUnlock()
	return a.baseCtx
}

func (a *App) currentDir() string {
	return a.broadcaster.Current().Directory
}

// printConnectionInfo prints the listen addresses to the console.
func (a *App) printConnectionInfo() {
	sc := a.broadcaster.Current()
	httpURL := fmt.Sprintf("http://%s", a.httpServer.Addr())
	wsURL := security.WebSocketURL(httpURL)

	fmt.Println()
	fmt.Println("╔════════════════════════════════════════════════════════════╗")
	fmt.Println("║                     gitdeck ready                          ║")
	fmt.Println("╠════════════════════════════════════════════════════════════╣")
	fmt.Printf("║  Version:    %-46s ║\n", truncateString(a.version, 46))
	fmt.Printf("║  Project:    %-46s ║\n", truncateString(filepath.Base(sc.Directory), 46))
	fmt.Printf("║  Room:       %-46s ║\n", truncateString(sc.Room, 46))
	fmt.Println("╠════════════════════════════════════════════════════════════╣")
	fmt.Printf("║  API:        %-46s ║\n", truncateString(httpURL, 46))
	fmt.Printf("║  WebSocket:  %-46s ║\n", truncateString(wsURL, 46))
	fmt.Println("╚════════════════════════════════════════════════════════════╝")
	fmt.Println()
}

// Hub returns the event hub.
func (a *App) Hub() *hub.Hub {
	return a.hub
}

// Config returns the configuration.
func (a *App) Config() *config.Config {
	return a.cfg
}

// UptimeSeconds returns how long the app has been running.
func (a *App) UptimeSeconds() int64 {
	return int64(time.Since(a.startTime).Seconds())
}

func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
