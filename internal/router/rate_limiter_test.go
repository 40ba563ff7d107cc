package router

import (
	"testing"
	"time"
)

func TestRateLimiterWindow(t *testing.T) {
	now := time.Unix(1000, 0)
	rl := NewRateLimiter(3, time.Minute)
	rl.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		if !rl.Allow("conn") {
			t.Fatalf("Event %d should be allowed", i)
		}
	}
	if rl.Allow("conn") {
		t.Error("Fourth event in the window should be refused")
	}
	if !rl.Allow("other") {
		t.Error("Limits are per key")
	}

	now = now.Add(time.Minute)
	if !rl.Allow("conn") {
		t.Error("New window should reset the count")
	}
}

func TestRateLimiterCleanupAndForget(t *testing.T) {
	now := time.Unix(1000, 0)
	rl := NewRateLimiter(10, time.Second)
	rl.now = func() time.Time { return now }

	rl.Allow("a")
	rl.Allow("b")
	rl.Forget("b")
	if rl.Size() != 1 {
		t.Fatalf("Expected 1 entry after Forget, got %d", rl.Size())
	}

	now = now.Add(10 * time.Second)
	if removed := rl.Cleanup(); removed != 1 {
		t.Errorf("Expected 1 idle entry removed, got %d", removed)
	}
	if rl.Size() != 0 {
		t.Errorf("Expected empty limiter, got %d", rl.Size())
	}
}
