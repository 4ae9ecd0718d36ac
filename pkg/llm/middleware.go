package llm

import (
	"context"
	"fmt"
	"time"

	"recast/pkg/logx"
)

// Recorder receives metrics for completed LLM requests. The prometheus
// implementation lives in pkg/metrics; tests use lightweight fakes.
type Recorder interface {
	// ObserveRequest records one completed request.
	ObserveRequest(
		model, workflowID, phase string,
		promptTokens, completionTokens int,
		success bool,
		errorType string,
		duration time.Duration,
	)
}

// LabelProvider supplies workflow context for metrics labels. The loop
// controller implements it; the zero labels are used when nil.
type LabelProvider interface {
	// WorkflowID returns the workflow being served.
	WorkflowID() string
	// Phase returns the current workflow phase (state name).
	Phase() string
}

// RetryMiddleware wraps a client with retry logic per the policy's
// classifier, with exponential backoff between attempts.
func RetryMiddleware(policy *RetryPolicy) Middleware {
	return func(next LLMClient) LLMClient {
		return WrapClient(
			func(ctx context.Context, req CompletionRequest) (CompletionResponse, error) {
				var lastErr error

				for attempt := 1; attempt <= policy.Config.MaxAttempts; attempt++ {
					if attempt > 1 {
						delay := policy.CalculateDelay(attempt)
						if delay > 0 {
							select {
							case <-ctx.Done():
								return CompletionResponse{}, fmt.Errorf("retry cancelled: %w", ctx.Err())
							case <-time.After(delay):
							}
						}
					}

					resp, err := next.Complete(ctx, req)
					if err == nil {
						return resp, nil
					}
					lastErr = err

					if !policy.ShouldRetry(err) {
						break
					}
					if attempt >= policy.Config.MaxAttempts {
						break
					}
				}

				// Exhausted retries on a retryable error: surface as
				// service-unavailable so the workflow stops retrying.
				if policy.ShouldRetry(lastErr) {
					return CompletionResponse{}, NewServiceUnavailableError(lastErr, policy.Config.MaxAttempts)
				}
				return CompletionResponse{}, lastErr
			},
			next.GetModelName,
		)
	}
}

// TimeoutMiddleware gives each request its own timeout context so a hung
// provider call cannot stall the workflow.
func TimeoutMiddleware(duration time.Duration) Middleware {
	return func(next LLMClient) LLMClient {
		return WrapClient(
			func(ctx context.Context, req CompletionRequest) (CompletionResponse, error) {
				timeoutCtx, cancel := context.WithTimeout(ctx, duration)
				defer cancel()
				return next.Complete(timeoutCtx, req)
			},
			next.GetModelName,
		)
	}
}

// TokenEstimator estimates prompt tokens for rate limit acquisition.
type TokenEstimator func(req CompletionRequest) int

// RateLimitMiddleware acquires limiter tokens before each request. The
// estimator sizes the acquisition; responses release the concurrency slot.
func RateLimitMiddleware(limiter *TokenBucketLimiter, estimate TokenEstimator) Middleware {
	return func(next LLMClient) LLMClient {
		return WrapClient(
			func(ctx context.Context, req CompletionRequest) (CompletionResponse, error) {
				tokens := req.MaxTokens
				if estimate != nil {
					tokens += estimate(req)
				}
				release, err := limiter.Acquire(ctx, tokens)
				if err != nil {
					return CompletionResponse{}, NewErrorWithCause(ErrorTypeRateLimit, err, "rate limit acquisition failed")
				}
				defer release()
				return next.Complete(ctx, req)
			},
			next.GetModelName,
		)
	}
}

// MetricsMiddleware records request metrics and logs token usage. Provider
// usage counts are preferred; the fallback estimates from message lengths.
func MetricsMiddleware(recorder Recorder, labels LabelProvider, logger *logx.Logger) Middleware {
	return func(next LLMClient) LLMClient {
		return WrapClient(
			func(ctx context.Context, req CompletionRequest) (CompletionResponse, error) {
				start := time.Now()
				resp, err := next.Complete(ctx, req)
				duration := time.Since(start)

				promptTokens := resp.Usage.PromptTokens
				completionTokens := resp.Usage.CompletionTokens
				if err == nil && promptTokens == 0 && completionTokens == 0 {
					promptTokens, completionTokens = estimateUsage(req, resp)
				}

				errorType := ""
				if err != nil {
					errorType = TypeOf(err).String()
				}

				workflowID, phase := "", ""
				if labels != nil {
					workflowID = labels.WorkflowID()
					phase = labels.Phase()
				}

				if recorder != nil {
					recorder.ObserveRequest(
						next.GetModelName(), workflowID, phase,
						promptTokens, completionTokens,
						err == nil, errorType, duration,
					)
				}

				if logger != nil {
					status := "success"
					if err != nil {
						status = "error"
					}
					logger.Info("llm request: model=%s workflow=%s phase=%s tokens=%d+%d status=%s duration=%dms",
						next.GetModelName(), workflowID, phase,
						promptTokens, completionTokens, status, duration.Milliseconds())
				}

				return resp, err
			},
			next.GetModelName,
		)
	}
}

// estimateUsage approximates token counts when the provider omits usage.
func estimateUsage(req CompletionRequest, resp CompletionResponse) (promptTokens, completionTokens int) {
	var promptChars int
	for i := range req.Messages {
		promptChars += len(req.Messages[i].Content) + 1
	}
	return promptChars / 4, len(resp.Content) / 4
}
