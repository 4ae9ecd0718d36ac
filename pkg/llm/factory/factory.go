// Package factory constructs provider clients wrapped in the standard
// middleware chain.
package factory

import (
	"fmt"
	"time"

	"recast/pkg/config"
	"recast/pkg/llm"
	"recast/pkg/llm/anthropicclient"
	"recast/pkg/llm/google"
	"recast/pkg/llm/ollamaclient"
	"recast/pkg/llm/openaiclient"
	"recast/pkg/logx"
	"recast/pkg/tokens"
)

// Default resilience settings. Providers with stricter quotas can override
// limiter capacity through Options.
const (
	DefaultRequestTimeout  = 2 * time.Minute
	DefaultTokensPerMinute = 400000
	DefaultMaxConcurrency  = 4
)

// Options carries the cross-cutting dependencies wired into the middleware
// chain. Every field is optional; zero values disable the concern.
type Options struct {
	// Recorder receives per-request observations. Nil disables recording.
	Recorder llm.Recorder
	// Labels supplies workflow and phase labels for observations.
	Labels llm.LabelProvider
	// Logger mirrors request outcomes to the structured log.
	Logger *logx.Logger
	// Limiter is a shared token bucket. Nil skips rate limiting, which is
	// the right choice for local Ollama models.
	Limiter *llm.TokenBucketLimiter
	// Timeout bounds each attempt. Zero means DefaultRequestTimeout.
	Timeout time.Duration
}

// DefaultLimiter returns a token bucket sized for hosted-provider quotas.
// Callers own starting its refill loop.
func DefaultLimiter(provider string) *llm.TokenBucketLimiter {
	return llm.NewTokenBucketLimiter(provider, llm.LimiterConfig{
		TokensPerMinute: DefaultTokensPerMinute,
		MaxConcurrency:  DefaultMaxConcurrency,
	}, DefaultRequestTimeout)
}

// New builds the provider client for cfg and wraps it with the standard
// middleware chain. Order outermost to innermost: metrics, retry, rate
// limit, timeout. Retries therefore re-enter the limiter and get a fresh
// per-attempt deadline.
func New(cfg config.Config, secrets *config.Secrets, opts Options) (llm.LLMClient, error) {
	base, err := newBaseClient(cfg, secrets)
	if err != nil {
		return nil, err
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}

	middlewares := []llm.Middleware{
		llm.MetricsMiddleware(opts.Recorder, opts.Labels, opts.Logger),
		llm.RetryMiddleware(llm.NewRetryPolicy(llm.DefaultRetryConfig, nil)),
	}
	if opts.Limiter != nil {
		middlewares = append(middlewares, llm.RateLimitMiddleware(opts.Limiter, promptEstimator(cfg.Model)))
	}
	middlewares = append(middlewares, llm.TimeoutMiddleware(timeout))

	return llm.Chain(base, middlewares...), nil
}

func newBaseClient(cfg config.Config, secrets *config.Secrets) (llm.LLMClient, error) {
	provider := cfg.Provider
	if provider == "" {
		inferred, err := config.GetModelProvider(cfg.Model)
		if err != nil {
			return nil, err
		}
		provider = inferred
	}

	if provider == config.ProviderOllama {
		return ollamaclient.NewClient(cfg.OllamaHost, cfg.Model), nil
	}

	apiKey, err := secrets.APIKey(provider)
	if err != nil {
		return nil, fmt.Errorf("resolving %s API key: %w", provider, err)
	}

	switch provider {
	case config.ProviderGoogle:
		return google.NewClient(apiKey, cfg.Model), nil
	case config.ProviderAnthropic:
		return anthropicclient.NewClient(apiKey, cfg.Model), nil
	case config.ProviderOpenAI:
		return openaiclient.NewClient(apiKey, cfg.Model), nil
	default:
		return nil, fmt.Errorf("unsupported provider %q", provider)
	}
}

// promptEstimator sizes limiter acquisitions from the request messages.
// A nil counter falls back to the character estimate inside Count.
func promptEstimator(model string) llm.TokenEstimator {
	counter, err := tokens.NewCounter(model)
	if err != nil {
		counter = nil
	}
	return func(req llm.CompletionRequest) int {
		total := 0
		for _, msg := range req.Messages {
			total += counter.Count(msg.Content)
		}
		return total
	}
}
