package llm

import (
	"context"
	"strings"
	"testing"
	"time"
)

// TestLimiterAcquireAndRelease verifies token accounting and idempotent
// release.
func TestLimiterAcquireAndRelease(t *testing.T) {
	limiter := NewTokenBucketLimiter("test", LimiterConfig{
		TokensPerMinute: 1000,
		MaxConcurrency:  2,
	}, 1*time.Second)

	// Bucket starts at 90% of the per-minute rate.
	if available, _ := limiter.Stats(); available != 900 {
		t.Fatalf("expected initial capacity 900, got %d", available)
	}

	release, err := limiter.Acquire(context.Background(), 400)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	available, active := limiter.Stats()
	if available != 500 || active != 1 {
		t.Errorf("expected 500 tokens / 1 active, got %d / %d", available, active)
	}

	release()
	release() // second call is a no-op

	available, active = limiter.Stats()
	if available != 500 || active != 0 {
		t.Errorf("tokens are consumed, slots returned: expected 500 / 0, got %d / %d", available, active)
	}
}

// TestLimiterConcurrencySlots verifies the semaphore blocks and release
// unblocks a waiter.
func TestLimiterConcurrencySlots(t *testing.T) {
	limiter := NewTokenBucketLimiter("test", LimiterConfig{
		TokensPerMinute: 100000,
		MaxConcurrency:  1,
	}, 5*time.Second)

	release, err := limiter.Acquire(context.Background(), 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	acquired := make(chan error, 1)
	go func() {
		secondRelease, err := limiter.Acquire(context.Background(), 10)
		if err == nil {
			secondRelease()
		}
		acquired <- err
	}()

	select {
	case <-acquired:
		t.Fatal("second acquire should block while the slot is held")
	case <-time.After(150 * time.Millisecond):
	}

	release()

	select {
	case err := <-acquired:
		if err != nil {
			t.Errorf("second acquire failed after release: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("second acquire never completed after release")
	}
}

// TestLimiterTimeout verifies Acquire gives up after maxWait.
func TestLimiterTimeout(t *testing.T) {
	limiter := NewTokenBucketLimiter("anthropic", LimiterConfig{
		TokensPerMinute: 100,
		MaxConcurrency:  1,
	}, 150*time.Millisecond)

	_, err := limiter.Acquire(context.Background(), 5000)
	if err == nil {
		t.Fatal("expected timeout error for oversized acquisition")
	}
	if !strings.Contains(err.Error(), "anthropic") {
		t.Errorf("timeout error should name the provider, got %q", err.Error())
	}
}

// TestLimiterContextCancel verifies cancellation interrupts the wait.
func TestLimiterContextCancel(t *testing.T) {
	limiter := NewTokenBucketLimiter("test", LimiterConfig{
		TokensPerMinute: 100,
		MaxConcurrency:  1,
	}, 10*time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, err := limiter.Acquire(ctx, 5000)
	if err == nil {
		t.Fatal("expected cancellation error")
	}
	if time.Since(start) > 2*time.Second {
		t.Errorf("cancellation took too long: %v", time.Since(start))
	}
}

// TestLimiterRefillCapped verifies refill restores tokens up to capacity.
func TestLimiterRefillCapped(t *testing.T) {
	limiter := NewTokenBucketLimiter("test", LimiterConfig{
		TokensPerMinute: 1000,
		MaxConcurrency:  4,
	}, 1*time.Second)

	release, err := limiter.Acquire(context.Background(), 900)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	release()

	limiter.refill()
	if available, _ := limiter.Stats(); available != 100 {
		t.Errorf("expected one refill increment of 100, got %d", available)
	}

	for i := 0; i < 20; i++ {
		limiter.refill()
	}
	if available, _ := limiter.Stats(); available != 900 {
		t.Errorf("refill must cap at capacity 900, got %d", available)
	}
}
