// Package middleware provides HTTP middleware for the gitdeck server.
package middleware

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	DefaultRate    = 10.0
	DefaultBurst   = 20
	DefaultIdleTTL = 5 * time.Minute
)

// RateLimiter is a per-key token bucket limiter.
type RateLimiter struct {
	limit   rate.Limit
	burst   int
	idleTTL time.Duration
	now     func() time.Time

	mu      sync.Mutex
	buckets map[string]*bucket

	cleanupDone chan struct{}
	closeOnce   sync.Once
}

type bucket struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// RateLimiterOption configures a RateLimiter.
type RateLimiterOption func(*RateLimiter)

// WithRate sets the sustained requests per second. Zero disables limiting.
func WithRate(perSecond float64) RateLimiterOption {
	return func(r *RateLimiter) {
		if perSecond >= 0 {
			r.limit = rate.Limit(perSecond)
		}
	}
}

// WithBurst sets the bucket size.
func WithBurst(n int) RateLimiterOption {
	return func(r *RateLimiter) {
		if n > 0 {
			r.burst = n
		}
	}
}

// WithIdleTTL sets how long an unused bucket is kept.
func WithIdleTTL(d time.Duration) RateLimiterOption {
	return func(r *RateLimiter) {
		if d > 0 {
			r.idleTTL = d
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) RateLimiterOption {
	return func(r *RateLimiter) {
		r.now = now
	}
}

// NewRateLimiter creates a limiter and starts its cleanup loop.
func NewRateLimiter(opts ...RateLimiterOption) *RateLimiter {
	r := &RateLimiter{
		limit:       rate.Limit(DefaultRate),
		burst:       DefaultBurst,
		idleTTL:     DefaultIdleTTL,
		now:         time.Now,
		buckets:     make(map[string]*bucket),
		cleanupDone: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	go r.cleanupLoop()
	return r
}

// Enabled reports whether the limiter restricts anything.
func (r *RateLimiter) Enabled() bool {
	return r.limit > 0
}

func (r *RateLimiter) get(key string) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(r.limit, r.burst)}
		r.buckets[key] = b
	}
	b.lastAccess = r.now()
	return b.limiter
}

// Allow consumes a token for key and reports whether one was available.
func (r *RateLimiter) Allow(key string) bool {
	if !r.Enabled() {
		return true
	}
	return r.get(key).AllowN(r.now(), 1)
}

// Remaining returns the whole tokens currently left for key.
func (r *RateLimiter) Remaining(key string) int {
	if !r.Enabled() {
		return r.burst
	}
	tokens := r.get(key).TokensAt(r.now())
	if tokens < 0 {
		return 0
	}
	return int(math.Floor(tokens))
}

// RetryAfter estimates when the next token for key becomes available.
func (r *RateLimiter) RetryAfter(key string) time.Duration {
	if !r.Enabled() {
		return 0
	}
	now := r.now()
	res := r.get(key).ReserveN(now, 1)
	if !res.OK() {
		return time.Second
	}
	delay := res.DelayFrom(now)
	res.CancelAt(now)
	return delay
}

// Reset forgets the bucket for key.
func (r *RateLimiter) Reset(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.buckets, key)
}

// Close stops the cleanup goroutine.
func (r *RateLimiter) Close() {
	r.closeOnce.Do(func() { close(r.cleanupDone) })
}

func (r *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(r.idleTTL)
	defer ticker.Stop()

	for {
		select {
		case <-r.cleanupDone:
			return
		case <-ticker.C:
			r.cleanup()
		}
	}
}

// cleanup removes buckets idle for longer than the TTL.
func (r *RateLimiter) cleanup() {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.now().Add(-r.idleTTL)
	for key, b := range r.buckets {
		if b.lastAccess.Before(cutoff) {
			delete(r.buckets, key)
		}
	}
}

func (r *RateLimiter) size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.buckets)
}

// KeyExtractor derives a rate limit key from a request.
type KeyExtractor func(*http.Request) string

// IPKeyExtractor keys on the remote address without its port. Forwarding
// headers are ignored since the server is meant to bind to loopback.
func IPKeyExtractor(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return strings.Trim(r.RemoteAddr, "[]")
	}
	return host
}

// RateLimit returns middleware that rejects requests over the limit with 429.
func RateLimit(limiter *RateLimiter, keyFn KeyExtractor) func(http.Handler) http.Handler {
	if keyFn == nil {
		keyFn = IPKeyExtractor
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if limiter == nil || !limiter.Enabled() {
				next.ServeHTTP(w, r)
				return
			}

			key := keyFn(r)
			if !limiter.Allow(key) {
				retry := int(math.Ceil(limiter.RetryAfter(key).Seconds()))
				if retry < 1 {
					retry = 1
				}
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("Retry-After", strconv.Itoa(retry))
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = w.Write([]byte(`{"success":false,"error":"rate limit exceeded"}`))
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limiter.burst))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(limiter.Remaining(key)))
			next.ServeHTTP(w, r)
		})
	}
}
