package server

import (
	"testing"
	"time"
)

func TestRateLimiterFixedWindow(t *testing.T) {
	limiter := newRateLimiter(2, time.Minute)

	if !limiter.Allow("1.2.3.4") || !limiter.Allow("1.2.3.4") {
		t.Fatalf("requests inside the limit must pass")
	}
	if limiter.Allow("1.2.3.4") {
		t.Fatalf("request over the limit must be rejected")
	}
	if !limiter.Allow("5.6.7.8") {
		t.Fatalf("limits are tracked per key")
	}
}

func TestRateLimiterEmptyKey(t *testing.T) {
	limiter := newRateLimiter(2, time.Minute)
	if limiter.Allow("") {
		t.Fatalf("empty keys are never admitted")
	}
}

func TestRateLimiterWindowReset(t *testing.T) {
	limiter := newRateLimiter(1, 10*time.Millisecond)

	if !limiter.Allow("1.2.3.4") {
		t.Fatalf("first request must pass")
	}
	if limiter.Allow("1.2.3.4") {
		t.Fatalf("second request inside the window must fail")
	}
	time.Sleep(15 * time.Millisecond)
	if !limiter.Allow("1.2.3.4") {
		t.Fatalf("request after the window lapsed must pass")
	}
}
