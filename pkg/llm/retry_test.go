package llm

import (
	"context"
	"fmt"
	"testing"
	"time"
)

// TestShouldRetryDefaults covers the default classifier.
func TestShouldRetryDefaults(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"context canceled", context.Canceled, false},
		{"deadline exceeded", context.DeadlineExceeded, false},
		{"typed transient", NewError(ErrorTypeTransient, "blip"), true},
		{"typed rate limit", NewError(ErrorTypeRateLimit, "slow down"), true},
		{"typed auth", NewError(ErrorTypeAuth, "bad key"), false},
		{"typed bad prompt", NewError(ErrorTypeBadPrompt, "too long"), false},
		{"typed exhausted", NewServiceUnavailableError(fmt.Errorf("x"), 3), false},
		{"text timeout", fmt.Errorf("i/o timeout"), true},
		{"text 429", fmt.Errorf("server said 429"), true},
		{"text 503", fmt.Errorf("got 503 from upstream"), true},
		{"text unrelated", fmt.Errorf("parse failure"), false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ShouldRetry(tc.err); got != tc.want {
				t.Errorf("ShouldRetry(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}

// TestCalculateDelayExponential verifies the backoff progression without
// jitter.
func TestCalculateDelayExponential(t *testing.T) {
	policy := NewRetryPolicy(RetryConfig{
		MaxAttempts:   5,
		InitialDelay:  100 * time.Millisecond,
		MaxDelay:      1 * time.Second,
		BackoffFactor: 2.0,
		Jitter:        false,
	}, nil)

	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 0},
		{2, 100 * time.Millisecond},
		{3, 200 * time.Millisecond},
		{4, 400 * time.Millisecond},
		{5, 800 * time.Millisecond},
		{6, 1 * time.Second}, // capped
		{7, 1 * time.Second}, // still capped
	}
	for _, tc := range cases {
		if got := policy.CalculateDelay(tc.attempt); got != tc.want {
			t.Errorf("CalculateDelay(%d) = %v, want %v", tc.attempt, got, tc.want)
		}
	}
}

// TestCalculateDelayJitterBounds verifies jitter stays within 10% of the
// base delay.
func TestCalculateDelayJitterBounds(t *testing.T) {
	policy := NewRetryPolicy(RetryConfig{
		MaxAttempts:   3,
		InitialDelay:  100 * time.Millisecond,
		MaxDelay:      10 * time.Second,
		BackoffFactor: 2.0,
		Jitter:        true,
	}, nil)

	base := 200 * time.Millisecond // attempt 3
	for i := 0; i < 20; i++ {
		got := policy.CalculateDelay(3)
		low := base - base/10
		high := base + base/10
		if got < low || got > high {
			t.Fatalf("CalculateDelay(3) = %v, want within [%v, %v]", got, low, high)
		}
	}
}

// TestNewRetryPolicyDefaultClassifier verifies a nil classifier falls back
// to ShouldRetry.
func TestNewRetryPolicyDefaultClassifier(t *testing.T) {
	policy := NewRetryPolicy(DefaultRetryConfig, nil)

	if !policy.ShouldRetry(NewError(ErrorTypeTransient, "blip")) {
		t.Error("default classifier should retry transient errors")
	}
	if policy.ShouldRetry(NewError(ErrorTypeAuth, "bad key")) {
		t.Error("default classifier must not retry auth errors")
	}
}

// TestRetryPolicyCustomClassifier verifies the classifier override.
func TestRetryPolicyCustomClassifier(t *testing.T) {
	never := func(error) bool { return false }
	policy := NewRetryPolicy(DefaultRetryConfig, never)

	if policy.ShouldRetry(NewError(ErrorTypeTransient, "blip")) {
		t.Error("custom classifier should decide retryability")
	}
}
