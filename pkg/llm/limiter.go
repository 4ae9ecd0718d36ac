package llm

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// bucketBufferFactor discounts bucket capacity to absorb token estimation error.
const bucketBufferFactor = 0.9

// LimiterConfig defines rate limiting for one provider.
type LimiterConfig struct {
	TokensPerMinute int `json:"tokens_per_minute"` // Rate limit in tokens per minute
	MaxConcurrency  int `json:"max_concurrency"`   // Maximum concurrent requests
}

// TokenBucketLimiter combines a token bucket with a concurrency semaphore.
// Acquire blocks until both tokens and a slot are available.
type TokenBucketLimiter struct {
	mu sync.Mutex

	provider string

	availableTokens int
	tokensPerRefill int
	maxCapacity     int

	activeRequests int
	maxConcurrency int

	maxWait time.Duration
}

// NewTokenBucketLimiter creates a limiter for a provider. maxWait bounds how
// long Acquire blocks before giving up.
func NewTokenBucketLimiter(provider string, cfg LimiterConfig, maxWait time.Duration) *TokenBucketLimiter {
	maxCapacity := int(float64(cfg.TokensPerMinute) * bucketBufferFactor)
	return &TokenBucketLimiter{
		provider:        provider,
		availableTokens: maxCapacity,
		tokensPerRefill: cfg.TokensPerMinute / 10, // refill every 6s
		maxCapacity:     maxCapacity,
		maxConcurrency:  cfg.MaxConcurrency,
		maxWait:         maxWait,
	}
}

// Start launches the background refill timer. It stops when ctx is cancelled.
func (l *TokenBucketLimiter) Start(ctx context.Context) {
	ticker := time.NewTicker(6 * time.Second)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				l.refill()
			}
		}
	}()
}

// Acquire atomically takes tokens and a concurrency slot. The returned
// release function must be called to return the slot; tokens are consumed
// and not refunded.
func (l *TokenBucketLimiter) Acquire(ctx context.Context, tokens int) (func(), error) {
	start := time.Now()
	for {
		l.mu.Lock()
		hasTokens := l.availableTokens >= tokens
		hasSlot := l.activeRequests < l.maxConcurrency

		if hasTokens && hasSlot {
			l.availableTokens -= tokens
			l.activeRequests++
			l.mu.Unlock()

			var once sync.Once
			return func() {
				once.Do(func() {
					l.mu.Lock()
					l.activeRequests--
					l.mu.Unlock()
				})
			}, nil
		}
		l.mu.Unlock()

		if elapsed := time.Since(start); elapsed > l.maxWait {
			return nil, fmt.Errorf("rate limit acquisition timeout after %v (requested %d tokens, capacity %d, provider: %s)",
				elapsed.Round(time.Second), tokens, l.maxCapacity, l.provider)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(100 * time.Millisecond):
		}
	}
}

func (l *TokenBucketLimiter) refill() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.availableTokens += l.tokensPerRefill
	if l.availableTokens > l.maxCapacity {
		l.availableTokens = l.maxCapacity
	}
}

// Stats reports the limiter's current state.
func (l *TokenBucketLimiter) Stats() (availableTokens, activeRequests int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.availableTokens, l.activeRequests
}
