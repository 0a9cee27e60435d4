package realtime

import (
	"testing"
	"time"
)

func TestRateLimiter_AllowsWithinWindow(t *testing.T) {
	limiter := NewRateLimiter(3, time.Minute)

	for i := 0; i < 3; i++ {
		if !limiter.Allow() {
			t.Fatalf("event %d should be allowed", i)
		}
	}
	if limiter.Allow() {
		t.Fatalf("fourth event should be rejected")
	}
}

func TestRateLimiter_WindowSlides(t *testing.T) {
	limiter := NewRateLimiter(2, 20*time.Millisecond)

	if !limiter.Allow() || !limiter.Allow() {
		t.Fatalf("initial events should be allowed")
	}
	if limiter.Allow() {
		t.Fatalf("expected rejection at the limit")
	}

	time.Sleep(30 * time.Millisecond)

	if !limiter.Allow() {
		t.Fatalf("expected allowance after the window slid")
	}
}

func TestRateLimiter_ZeroLimitDisables(t *testing.T) {
	limiter := NewRateLimiter(0, time.Second)
	for i := 0; i < 100; i++ {
		if !limiter.Allow() {
			t.Fatalf("zero limit should disable rate limiting")
		}
	}
}
