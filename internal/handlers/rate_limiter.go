package handlers

import (
	"math"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/time/rate"

	"github.com/souqly/api/internal/platform/auth"
	"github.com/souqly/api/internal/platform/httpx"
)

const defaultLimiterIdle = 10 * time.Minute

// KeyedRateLimiter keeps one token bucket per caller key.
type KeyedRateLimiter struct {
	limit    rate.Limit
	interval time.Duration
	burst    int
	idle     time.Duration
	clock    func() time.Time

	mu      sync.Mutex
	buckets map[string]*limiterEntry
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewKeyedRateLimiter allows perMinute requests per key with the given burst.
// It returns nil when perMinute is not positive, which disables limiting.
func NewKeyedRateLimiter(perMinute, burst int, clock func() time.Time) *KeyedRateLimiter {
	if perMinute <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = 1
	}
	if clock == nil {
		clock = time.Now
	}
	interval := time.Minute / time.Duration(perMinute)
	return &KeyedRateLimiter{
		limit:    rate.Every(interval),
		interval: interval,
		burst:    burst,
		idle:     defaultLimiterIdle,
		clock:    clock,
		buckets:  make(map[string]*limiterEntry),
	}
}

// Allow consumes a token for key. A nil limiter allows everything.
func (l *KeyedRateLimiter) Allow(key string) bool {
	if l == nil {
		return true
	}
	key = strings.TrimSpace(key)
	if key == "" {
		key = "anonymous"
	}
	now := l.clock()

	l.mu.Lock()
	entry, ok := l.buckets[key]
	if !ok {
		l.pruneIdleLocked(now)
		entry = &limiterEntry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.buckets[key] = entry
	}
	entry.lastSeen = now
	l.mu.Unlock()

	return entry.limiter.AllowN(now, 1)
}

func (l *KeyedRateLimiter) pruneIdleLocked(now time.Time) {
	for key, entry := range l.buckets {
		if now.Sub(entry.lastSeen) > l.idle {
			delete(l.buckets, key)
		}
	}
}

// Middleware rejects requests over the limit with 429. Callers are keyed by
// identity when authenticated, otherwise by remote address.
func (l *KeyedRateLimiter) Middleware(next http.Handler) http.Handler {
	if l == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.Allow(rateLimitKey(r)) {
			retry := int(math.Ceil(l.interval.Seconds()))
			w.Header().Set("Retry-After", strconv.Itoa(max(retry, 1)))
			httpx.WriteError(r.Context(), w, httpx.NewError("rate_limited", "too many requests, retry later", http.StatusTooManyRequests))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func rateLimitKey(r *http.Request) string {
	if identity, ok := auth.IdentityFromContext(r.Context()); ok && identity != nil && identity.UID != "" {
		return "uid:" + identity.UID
	}
	host := r.RemoteAddr
	if idx := strings.LastIndex(host, ":"); idx > 0 {
		host = host[:idx]
	}
	if host == "" {
		host = middleware.GetReqID(r.Context())
	}
	return "ip:" + host
}
