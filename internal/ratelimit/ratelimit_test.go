package ratelimit

import (
	"errors"
	"testing"
	"time"
)

func TestLimiter_Unlimited(t *testing.T) {
	l := NewLimiter(Config{})
	for i := 0; i < 1000; i++ {
		if err := l.Allow("anyone"); err != nil {
			t.Fatalf("unlimited limiter rejected request %d: %v", i, err)
		}
	}
}

func TestLimiter_ExhaustsBurst(t *testing.T) {
	l := NewLimiter(Config{RequestsPerMinute: 60, BurstSize: 3})

	for i := 0; i < 3; i++ {
		if err := l.Allow("acct-1"); err != nil {
			t.Fatalf("request %d rejected: %v", i, err)
		}
	}
	if err := l.Allow("acct-1"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
}

func TestLimiter_IndependentBuckets(t *testing.T) {
	l := NewLimiter(Config{RequestsPerMinute: 60, BurstSize: 1})

	if err := l.Allow("acct-1"); err != nil {
		t.Fatalf("first principal rejected: %v", err)
	}
	if err := l.Allow("acct-1"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited for drained bucket, got %v", err)
	}
	// A different principal still has a full bucket.
	if err := l.Allow("acct-2"); err != nil {
		t.Fatalf("second principal rejected: %v", err)
	}
}

func TestLimiter_Refills(t *testing.T) {
	l := NewLimiter(Config{RequestsPerMinute: 6000, BurstSize: 1}) // 100 tokens/sec

	if err := l.Allow("acct-1"); err != nil {
		t.Fatalf("first request rejected: %v", err)
	}
	if err := l.Allow("acct-1"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}

	time.Sleep(20 * time.Millisecond)

	if err := l.Allow("acct-1"); err != nil {
		t.Fatalf("expected refill after wait, got %v", err)
	}
}

func TestLimiter_Prune(t *testing.T) {
	l := NewLimiter(Config{RequestsPerMinute: 60})
	_ = l.Allow("stale")

	if removed := l.Prune(0); removed != 1 {
		t.Fatalf("Prune removed %d buckets, want 1", removed)
	}
	// Pruned principal starts fresh with a full bucket.
	if err := l.Allow("stale"); err != nil {
		t.Fatalf("pruned principal rejected: %v", err)
	}
}
