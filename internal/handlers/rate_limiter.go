package handlers

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/hanko-field/storefront/internal/platform/auth"
	"github.com/hanko-field/storefront/internal/platform/httpx"
)

const (
	rateLimiterIdleTTL    = 10 * time.Minute
	rateLimiterSweepEvery = 256
)

type rateLimiter interface {
	Allow(key string) bool
}

// keyedRateLimiter keeps one token bucket per client key.
type keyedRateLimiter struct {
	limit rate.Limit
	burst int
	clock func() time.Time

	mu      sync.Mutex
	buckets map[string]*rateBucket
	calls   int
}

type rateBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newKeyedRateLimiter(perMinute int, burst int, clock func() time.Time) rateLimiter {
	if perMinute <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = perMinute
	}
	if clock == nil {
		clock = time.Now
	}
	return &keyedRateLimiter{
		limit:   rate.Limit(float64(perMinute) / 60),
		burst:   burst,
		clock:   clock,
		buckets: make(map[string]*rateBucket),
	}
}

func (l *keyedRateLimiter) Allow(key string) bool {
	if l == nil {
		return true
	}
	key = strings.TrimSpace(key)
	if key == "" {
		key = "anonymous"
	}
	now := l.clock()

	l.mu.Lock()
	defer l.mu.Unlock()

	bucket, ok := l.buckets[key]
	if !ok {
		bucket = &rateBucket{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.buckets[key] = bucket
	}
	bucket.lastSeen = now

	l.calls++
	if l.calls%rateLimiterSweepEvery == 0 {
		l.pruneIdleLocked(now)
	}
	return bucket.limiter.AllowN(now, 1)
}

func (l *keyedRateLimiter) pruneIdleLocked(now time.Time) {
	for key, bucket := range l.buckets {
		if now.Sub(bucket.lastSeen) > rateLimiterIdleTTL {
			delete(l.buckets, key)
		}
	}
}

// ClientRateLimit throttles requests per user when an identity is already on the context and per
// address otherwise. A non-positive perMinute disables it.
func ClientRateLimit(perMinute int) func(http.Handler) http.Handler {
	return rateLimitMiddleware(newKeyedRateLimiter(perMinute, 0, nil), userOrIPKey)
}

// rateLimitMiddleware rejects requests over the limit with 429.
func rateLimitMiddleware(limiter rateLimiter, keyFn func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if limiter == nil {
			return next
		}
		if keyFn == nil {
			keyFn = clientIPKey
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow(keyFn(r)) {
				w.Header().Set("Retry-After", strconv.Itoa(1))
				httpx.WriteError(r.Context(), w, httpx.NewError("rate_limited", "Too many requests, please try again later", http.StatusTooManyRequests))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// userOrIPKey keys authenticated callers by uid and everyone else by address.
func userOrIPKey(r *http.Request) string {
	if identity, ok := auth.IdentityFromContext(r.Context()); ok && identity != nil && identity.UID != "" {
		return "user:" + identity.UID
	}
	return clientIPKey(r)
}

func clientIPKey(r *http.Request) string {
	addr := strings.TrimSpace(r.RemoteAddr)
	if host, _, err := net.SplitHostPort(addr); err == nil {
		addr = host
	}
	return "ip:" + addr
}
