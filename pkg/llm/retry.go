package llm

import (
	"context"
	"errors"
	"math"
	"strings"
	"time"
)

// RetryConfig defines exponential backoff behavior.
type RetryConfig struct {
	MaxAttempts   int           `json:"max_attempts"`   // Maximum number of attempts (including initial)
	InitialDelay  time.Duration `json:"initial_delay"`  // Initial delay before first retry
	MaxDelay      time.Duration `json:"max_delay"`      // Maximum delay between retries
	BackoffFactor float64       `json:"backoff_factor"` // Multiplier for exponential backoff
	Jitter        bool          `json:"jitter"`         // Add jitter to prevent thundering herd
}

// DefaultRetryConfig provides reasonable defaults for retry behavior.
//
//nolint:gochecknoglobals // Sensible default config pattern
var DefaultRetryConfig = RetryConfig{
	MaxAttempts:   3,
	InitialDelay:  500 * time.Millisecond,
	MaxDelay:      30 * time.Second,
	BackoffFactor: 2.0,
	Jitter:        true,
}

// Classifier determines if an error should be retried.
type Classifier func(error) bool

// ShouldRetry is the default classifier. Classified errors decide via their
// type; unclassified errors fall back to text patterns.
func ShouldRetry(err error) bool {
	if err == nil {
		return false
	}

	// Never retry context cancellation or deadline exceeded.
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr.IsRetryable()
	}

	errStr := err.Error()
	if strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "connection") ||
		strings.Contains(errStr, "network") ||
		strings.Contains(errStr, "temporary") {
		return true
	}
	if strings.Contains(errStr, "rate") || strings.Contains(errStr, "429") {
		return true
	}
	if strings.Contains(errStr, "500") ||
		strings.Contains(errStr, "502") ||
		strings.Contains(errStr, "503") ||
		strings.Contains(errStr, "504") {
		return true
	}

	return false
}

// RetryPolicy encapsulates retry configuration and classification.
type RetryPolicy struct {
	Config     RetryConfig
	Classifier Classifier
}

// NewRetryPolicy creates a retry policy with the given configuration and
// classifier. A nil classifier uses ShouldRetry.
func NewRetryPolicy(config RetryConfig, classifier Classifier) *RetryPolicy {
	if classifier == nil {
		classifier = ShouldRetry
	}
	return &RetryPolicy{Config: config, Classifier: classifier}
}

// CalculateDelay computes the backoff delay for the given attempt number.
func (p *RetryPolicy) CalculateDelay(attempt int) time.Duration {
	if attempt <= 1 {
		return 0
	}

	delay := time.Duration(float64(p.Config.InitialDelay) * math.Pow(p.Config.BackoffFactor, float64(attempt-2)))
	if delay > p.Config.MaxDelay {
		delay = p.Config.MaxDelay
	}

	if p.Config.Jitter && delay > 0 {
		jitterFactor := time.Now().UnixNano()%2*2 - 1 // -1 or 1
		jitter := time.Duration(float64(delay) * 0.1 * float64(jitterFactor))
		delay += jitter
		if delay < 0 {
			delay = p.Config.InitialDelay
		}
	}

	return delay
}

// ShouldRetry determines if an error should be retried per the classifier.
func (p *RetryPolicy) ShouldRetry(err error) bool {
	return p.Classifier(err)
}
