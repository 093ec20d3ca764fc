package git

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/brianly1003/gitdeck/internal/domain"
	"github.com/brianly1003/gitdeck/internal/domain/ports"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

// Default lifetimes of cached facts. Branch identity rarely changes; the
// sync delta changes on every fetch or push.
const (
	DefaultBranchTTL       = 5 * time.Minute
	DefaultUpstreamTTL     = 5 * time.Minute
	DefaultAheadBehindTTL  = 5 * time.Second
	DefaultPushSuppression = 10 * time.Second
)

// CacheEntry is a value with the time it was stored and how long it stays fresh.
type CacheEntry[T any] struct {
	Value      T
	LastUpdate time.Time
	TTL        time.Duration
	set        bool
}

// Fresh reports whether the entry holds a value younger than its TTL.
func (e CacheEntry[T]) Fresh(now time.Time) bool {
	return e.set && now.Sub(e.LastUpdate) < e.TTL
}

// Known reports whether the entry holds any value, fresh or stale.
func (e CacheEntry[T]) Known() bool {
	return e.set
}

func newEntry[T any](v T, now time.Time, ttl time.Duration) CacheEntry[T] {
	return CacheEntry[T]{Value: v, LastUpdate: now, TTL: ttl, set: true}
}

// PushSuppression short-circuits ahead/behind right after a successful push.
type PushSuppression struct {
	JustPushed    bool
	PushTime      time.Time
	ValidDuration time.Duration
}

func (p PushSuppression) active(now time.Time) bool {
	return p.JustPushed && now.Sub(p.PushTime) < p.ValidDuration
}

// branchPair is the branch/upstream pair an ahead/behind result belongs to.
type branchPair struct {
	Branch   string
	Upstream string
}

type aheadBehindState struct {
	Pair   branchPair
	Result ports.AheadBehind
}

// TTLs configures the cache lifetimes.
type TTLs struct {
	Branch          time.Duration
	Upstream        time.Duration
	AheadBehind     time.Duration
	PushSuppression time.Duration
}

// DefaultTTLs returns the default lifetimes.
func DefaultTTLs() TTLs {
	return TTLs{
		Branch:          DefaultBranchTTL,
		Upstream:        DefaultUpstreamTTL,
		AheadBehind:     DefaultAheadBehindTTL,
		PushSuppression: DefaultPushSuppression,
	}
}

// Option configures a FactCache.
type Option func(*FactCache)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *FactCache) { c.now = now }
}

// WithTTLs replaces the default lifetimes. Zero fields keep their default.
func WithTTLs(t TTLs) Option {
	return func(c *FactCache) {
		if t.Branch > 0 {
			c.ttl.Branch = t.Branch
		}
		if t.Upstream > 0 {
			c.ttl.Upstream = t.Upstream
		}
		if t.AheadBehind > 0 {
			c.ttl.AheadBehind = t.AheadBehind
		}
		if t.PushSuppression > 0 {
			c.ttl.PushSuppression = t.PushSuppression
		}
	}
}

// FactCache caches the current branch, its upstream and the ahead/behind
// delta for one working directory.
//
// Every mutation bumps a generation counter. A resolution that started
// before InvalidateAll or SetDir never stores its result, so no read after
// an invalidation can observe a value resolved before it.
type FactCache struct {
	runner Runner
	now    func() time.Time
	ttl    TTLs
	group  singleflight.Group

	mu          sync.Mutex
	dir         string
	generation  uint64
	branch      CacheEntry[string]
	upstream    CacheEntry[string]
	aheadBehind CacheEntry[aheadBehindState]
	push        PushSuppression
}

var _ ports.RepositoryFacts = (*FactCache)(nil)

// NewFactCache creates a cache for dir.
func NewFactCache(runner Runner, dir string, opts ...Option) *FactCache {
	c := &FactCache{
		runner: runner,
		now:    time.Now,
		ttl:    DefaultTTLs(),
		dir:    dir,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Dir returns the directory facts are resolved in.
func (c *FactCache) Dir() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dir
}

// SetDir points the cache at another directory and drops everything cached.
func (c *FactCache) SetDir(dir string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dir = dir
	c.resetLocked()
}

// InvalidateAll clears every cached fact and the push suppression flag.
func (c *FactCache) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resetLocked()
	log.Debug().Msg("repository facts invalidated")
}

func (c *FactCache) resetLocked() {
	c.generation++
	c.branch = CacheEntry[string]{}
	c.upstream = CacheEntry[string]{}
	c.aheadBehind = CacheEntry[aheadBehindState]{}
	c.push = PushSuppression{}
}

// MarkPushed records a successful push.
func (c *FactCache) MarkPushed() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.push = PushSuppression{
		JustPushed:    true,
		PushTime:      c.now(),
		ValidDuration: c.ttl.PushSuppression,
	}
}

// snapshot returns the directory and generation a resolution runs against.
func (c *FactCache) snapshot() (string, uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dir, c.generation
}

// CurrentBranch returns the checked-out branch, or "HEAD" when detached.
func (c *FactCache) CurrentBranch(ctx context.Context, force bool) (string, error) {
	c.mu.Lock()
	if !force && c.branch.Fresh(c.now()) {
		v := c.branch.Value
		c.mu.Unlock()
		return v, nil
	}
	c.mu.Unlock()

	dir, gen := c.snapshot()
	v, err, _ := c.group.Do(fmt.Sprintf("branch:%d", gen), func() (interface{}, error) {
		out, err := c.runner.Run(ctx, dir, "branch", "--show-current")
		if err != nil {
			return "", err
		}
		name := strings.TrimSpace(out)
		if name == "" {
			name = "HEAD"
		}
		return name, nil
	})

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		if c.generation == gen && c.branch.Known() {
			log.Debug().Err(err).Msg("branch resolution failed, serving cached value")
			return c.branch.Value, nil
		}
		return "", err
	}
	name := v.(string)
	if c.generation == gen {
		c.branch = newEntry(name, c.now(), c.ttl.Branch)
	}
	return name, nil
}

// UpstreamBranch returns the upstream of the current branch, or "" when it
// has none.
func (c *FactCache) UpstreamBranch(ctx context.Context, force bool) (string, error) {
	c.mu.Lock()
	if !force && c.upstream.Fresh(c.now()) {
		v := c.upstream.Value
		c.mu.Unlock()
		return v, nil
	}
	c.mu.Unlock()

	dir, gen := c.snapshot()
	v, err, _ := c.group.Do(fmt.Sprintf("upstream:%d", gen), func() (interface{}, error) {
		out, err := c.runner.Run(ctx, dir, "rev-parse", "--abbrev-ref", "--symbolic-full-name", "@{upstream}")
		if err != nil {
			if isExit(err) {
				// git exits non-zero when no upstream is configured.
				return "", nil
			}
			return "", err
		}
		return strings.TrimSpace(out), nil
	})

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		if c.generation == gen && c.upstream.Known() {
			log.Debug().Err(err).Msg("upstream resolution failed, serving cached value")
			return c.upstream.Value, nil
		}
		return "", err
	}
	name := v.(string)
	if c.generation == gen {
		c.upstream = newEntry(name, c.now(), c.ttl.Upstream)
	}
	return name, nil
}

// AheadBehind returns how far the current branch leads and trails its
// upstream.
//
// Right after a push it answers {0, 0} without running git. While the
// branch pair is fresh only the cheap count is recomputed against it.
// Otherwise the branch and upstream are re-resolved first (each honouring
// its own TTL unless force cascades). A failed count falls back to the last
// known result.
func (c *FactCache) AheadBehind(ctx context.Context, force bool) (ports.AheadBehind, error) {
	c.mu.Lock()
	now := c.now()
	if c.push.active(now) {
		res := ports.AheadBehind{HasUpstream: true}
		if c.upstream.Known() {
			res.UpstreamBranch = c.upstream.Value
		}
		c.mu.Unlock()
		return res, nil
	}
	if c.push.JustPushed {
		c.push = PushSuppression{}
	}

	var pair branchPair
	pairFresh := !force && c.aheadBehind.Fresh(now)
	if pairFresh {
		pair = c.aheadBehind.Value.Pair
	}
	c.mu.Unlock()

	if !pairFresh {
		branch, err := c.CurrentBranch(ctx, force)
		if err != nil {
			return c.fallbackAheadBehind(err)
		}
		upstream, err := c.UpstreamBranch(ctx, force)
		if err != nil {
			return c.fallbackAheadBehind(err)
		}
		pair = branchPair{Branch: branch, Upstream: upstream}
	}

	dir, gen := c.snapshot()
	if pair.Upstream == "" {
		res := ports.AheadBehind{HasUpstream: false}
		c.storeAheadBehind(gen, pair, res, !pairFresh)
		return res, nil
	}

	ahead, behind, err := c.countAheadBehind(ctx, dir, pair)
	if err != nil {
		return c.fallbackAheadBehind(err)
	}
	res := ports.AheadBehind{
		HasUpstream:    true,
		UpstreamBranch: pair.Upstream,
		Ahead:          ahead,
		Behind:         behind,
	}
	c.storeAheadBehind(gen, pair, res, !pairFresh)
	return res, nil
}

// storeAheadBehind records a result. A fresh pair keeps its original
// timestamp so it still expires on schedule.
func (c *FactCache) storeAheadBehind(gen uint64, pair branchPair, res ports.AheadBehind, newPair bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generation != gen {
		return
	}
	state := aheadBehindState{Pair: pair, Result: res}
	if newPair || !c.aheadBehind.Known() {
		c.aheadBehind = newEntry(state, c.now(), c.ttl.AheadBehind)
		return
	}
	c.aheadBehind.Value = state
}

func (c *FactCache) fallbackAheadBehind(err error) (ports.AheadBehind, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.aheadBehind.Known() {
		log.Debug().Err(err).Msg("ahead/behind failed, serving cached value")
		return c.aheadBehind.Value.Result, nil
	}
	return ports.AheadBehind{}, err
}

func (c *FactCache) countAheadBehind(ctx context.Context, dir string, pair branchPair) (ahead, behind int, err error) {
	spec := pair.Branch + "..." + pair.Upstream
	if pair.Branch == "HEAD" {
		spec = "HEAD..." + pair.Upstream
	}
	out, err := c.runner.Run(ctx, dir, "rev-list", "--left-right", "--count", spec)
	if err != nil {
		return 0, 0, err
	}
	return parseLeftRight(out)
}

// parseLeftRight parses the "<ahead>\t<behind>" output of rev-list --left-right --count.
func parseLeftRight(out string) (ahead, behind int, err error) {
	parts := strings.Fields(strings.TrimSpace(out))
	if len(parts) != 2 {
		return 0, 0, domain.NewGitError("rev-list", fmt.Errorf("unexpected output %q", out))
	}
	if ahead, err = strconv.Atoi(parts[0]); err != nil {
		return 0, 0, domain.NewGitError("rev-list", err)
	}
	if behind, err = strconv.Atoi(parts[1]); err != nil {
		return 0, 0, domain.NewGitError("rev-list", err)
	}
	return ahead, behind, nil
}
