package httpx

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"
)

const rateLimiterSweepInterval = 5 * time.Minute

// RateLimiter counts requests per key in fixed windows.
type RateLimiter interface {
	Allow(key string, limit int, window time.Duration) rateDecision
	Close()
}

type rateDecision struct {
	allowed   bool
	count     int
	windowEnd time.Time
}

// window is one key's counter; it expires at end.
type window struct {
	hits int
	end  time.Time
}

type memoryRateLimiter struct {
	now func() time.Time

	mu      sync.Mutex
	windows map[string]window

	done      chan struct{}
	closeOnce sync.Once
}

// NewMemoryRateLimiter returns a process-local RateLimiter. Expired windows
// are swept in the background until Close.
func NewMemoryRateLimiter() RateLimiter {
	rl := newMemoryRateLimiter(time.Now)
	go rl.sweep(rateLimiterSweepInterval)
	return rl
}

func newMemoryRateLimiter(now func() time.Time) *memoryRateLimiter {
	return &memoryRateLimiter{
		now:     now,
		windows: make(map[string]window),
		done:    make(chan struct{}),
	}
}

func (rl *memoryRateLimiter) Allow(key string, limit int, span time.Duration) rateDecision {
	if limit <= 0 {
		return rateDecision{allowed: true}
	}
	if span <= 0 {
		span = rateWindowDefault
	}
	now := rl.now()

	rl.mu.Lock()
	defer rl.mu.Unlock()
	w := rl.windows[key]
	if !now.Before(w.end) {
		w = window{end: now.Add(span)}
	}
	if w.hits < limit {
		w.hits++
		rl.windows[key] = w
		return rateDecision{allowed: true, count: w.hits, windowEnd: w.end}
	}
	return rateDecision{count: w.hits, windowEnd: w.end}
}

func (rl *memoryRateLimiter) sweep(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-rl.done:
			return
		case <-ticker.C:
			rl.dropExpired()
		}
	}
}

func (rl *memoryRateLimiter) dropExpired() {
	now := rl.now()
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for key, w := range rl.windows {
		if !now.Before(w.end) {
			delete(rl.windows, key)
		}
	}
}

func (rl *memoryRateLimiter) size() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.windows)
}

func (rl *memoryRateLimiter) Close() {
	rl.closeOnce.Do(func() { close(rl.done) })
}

// withRateLimit guards a whole route with a per-IP budget.
func (r *Router) withRateLimit(route string, limit int, span time.Duration, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if r.enforce(w, route, rateLimitKeyIP(req)+":"+route, limit, span) {
			next(w, req)
		}
	}
}

// allow applies the per-user limit inside a handler that already ran
// requireAuth, so read and write methods on one path can carry separate budgets.
func (r *Router) allow(w http.ResponseWriter, req *http.Request, route string, limit int) bool {
	key := rateLimitKeyUser(req)
	if key == "" {
		key = rateLimitKeyIP(req)
	}
	return r.enforce(w, route, key+":"+req.Method+":"+route, limit, rateWindowDefault)
}

// enforce counts one hit against key and writes 429 once the budget is spent.
func (r *Router) enforce(w http.ResponseWriter, route, key string, limit int, span time.Duration) bool {
	if limit <= 0 || r.limiter == nil {
		return true
	}
	decision := r.limiter.Allow(key, limit, span)
	r.applyRateHeaders(w, limit, decision)
	if decision.allowed {
		return true
	}
	r.recordRateLimitHit(route, rateMetricKey(key))
	writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
	return false
}

func rateLimitKeyUser(req *http.Request) string {
	if info, ok := authInfoFromContext(req.Context()); ok && info.UserID != "" {
		return "user:" + info.UserID
	}
	return ""
}

// rateLimitKeyIP keys on the TCP peer. X-Forwarded-For is client supplied
// and is never used for budgeting.
func rateLimitKeyIP(req *http.Request) string {
	host := remoteHost(req)
	if host == "" {
		host = "unknown"
	}
	return "ip:" + host
}

func remoteHost(req *http.Request) string {
	addr := strings.TrimSpace(req.RemoteAddr)
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}

// rateMetricKey reduces a limiter key to its scope label (ip or user).
func rateMetricKey(key string) string {
	if scope, _, ok := strings.Cut(key, ":"); ok && scope != "" {
		return scope
	}
	if key == "" {
		return "unknown"
	}
	return key
}
