package handlers

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hanko-field/storefront/internal/platform/auth"
)

func TestKeyedRateLimiterRefillsOverTime(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	limiter := newKeyedRateLimiter(60, 2, func() time.Time { return now })

	if !limiter.Allow("a") || !limiter.Allow("a") {
		t.Fatalf("expected burst of 2")
	}
	if limiter.Allow("a") {
		t.Fatalf("expected burst exhausted")
	}
	if !limiter.Allow("b") {
		t.Fatalf("keys must not share buckets")
	}

	now = now.Add(time.Second)
	if !limiter.Allow("a") {
		t.Fatalf("expected one token after a second at 60/min")
	}
	if limiter.Allow("a") {
		t.Fatalf("expected only one token to refill")
	}
}

func TestKeyedRateLimiterDisabled(t *testing.T) {
	if limiter := newKeyedRateLimiter(0, 0, nil); limiter != nil {
		t.Fatalf("expected nil limiter when disabled")
	}
}

func TestKeyedRateLimiterPrunesIdleKeys(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	limiter := newKeyedRateLimiter(60, 1, func() time.Time { return now }).(*keyedRateLimiter)

	limiter.Allow("stale")
	now = now.Add(rateLimiterIdleTTL + time.Minute)
	for i := 0; i < rateLimiterSweepEvery; i++ {
		limiter.Allow("fresh")
	}

	limiter.mu.Lock()
	defer limiter.mu.Unlock()
	if _, ok := limiter.buckets["stale"]; ok {
		t.Fatalf("expected idle bucket to be pruned")
	}
	if _, ok := limiter.buckets["fresh"]; !ok {
		t.Fatalf("expected active bucket to remain")
	}
}

func TestUserOrIPKey(t *testing.T) {
	req := httptest.NewRequest("POST", "/orders", nil)
	req.RemoteAddr = "192.0.2.10:4000"
	if got := userOrIPKey(req); got != "ip:192.0.2.10" {
		t.Fatalf("unexpected anonymous key %q", got)
	}

	req = req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: "user-1"}))
	if got := userOrIPKey(req); got != "user:user-1" {
		t.Fatalf("unexpected user key %q", got)
	}
}
