package llm

import (
	"context"
	"fmt"
	"testing"
)

// mockLLMClient is a configurable test double for the LLMClient interface.
type mockLLMClient struct {
	completeFunc     func(ctx context.Context, req CompletionRequest) (CompletionResponse, error)
	getModelNameFunc func() string
}

func (m *mockLLMClient) Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error) {
	if m.completeFunc != nil {
		return m.completeFunc(ctx, req)
	}
	return CompletionResponse{}, nil
}

func (m *mockLLMClient) GetModelName() string {
	if m.getModelNameFunc != nil {
		return m.getModelNameFunc()
	}
	return "mock-model"
}

// TestWrapClient tests the WrapClient helper function.
func TestWrapClient(t *testing.T) {
	completeCalled := false
	modelNameCalled := false

	client := WrapClient(
		func(_ context.Context, _ CompletionRequest) (CompletionResponse, error) {
			completeCalled = true
			return CompletionResponse{Content: "wrapped"}, nil
		},
		func() string {
			modelNameCalled = true
			return "wrapped-model"
		},
	)

	ctx := context.Background()
	req := NewCompletionRequest([]CompletionMessage{NewUserMessage("test")})

	resp, err := client.Complete(ctx, req)
	if err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if !completeCalled {
		t.Error("Complete function was not called")
	}
	if resp.Content != "wrapped" {
		t.Errorf("expected 'wrapped', got %q", resp.Content)
	}

	modelName := client.GetModelName()
	if !modelNameCalled {
		t.Error("GetModelName function was not called")
	}
	if modelName != "wrapped-model" {
		t.Errorf("expected 'wrapped-model', got %q", modelName)
	}
}

// TestChainOrder verifies middleware composition order: the first middleware
// passed to Chain is the outermost.
func TestChainOrder(t *testing.T) {
	base := &mockLLMClient{
		completeFunc: func(_ context.Context, _ CompletionRequest) (CompletionResponse, error) {
			return CompletionResponse{Content: "base"}, nil
		},
	}

	tag := func(label string) Middleware {
		return func(next LLMClient) LLMClient {
			return WrapClient(
				func(ctx context.Context, req CompletionRequest) (CompletionResponse, error) {
					resp, err := next.Complete(ctx, req)
					if err != nil {
						return resp, err
					}
					resp.Content = label + "(" + resp.Content + ")"
					return resp, nil
				},
				next.GetModelName,
			)
		}
	}

	client := Chain(base, tag("outer"), tag("inner"))

	ctx := context.Background()
	req := NewCompletionRequest([]CompletionMessage{NewUserMessage("test")})
	resp, err := client.Complete(ctx, req)
	if err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	// outer wraps inner wraps base.
	expected := "outer(inner(base))"
	if resp.Content != expected {
		t.Errorf("expected %q, got %q", expected, resp.Content)
	}
}

// TestChainRequestModification tests middleware that modifies requests.
func TestChainRequestModification(t *testing.T) {
	base := &mockLLMClient{
		completeFunc: func(_ context.Context, req CompletionRequest) (CompletionResponse, error) {
			return CompletionResponse{
				Content: fmt.Sprintf("temp=%.1f", req.Temperature),
			}, nil
		},
	}

	tempMiddleware := func(next LLMClient) LLMClient {
		return WrapClient(
			func(ctx context.Context, req CompletionRequest) (CompletionResponse, error) {
				req.Temperature = 0.9
				return next.Complete(ctx, req)
			},
			next.GetModelName,
		)
	}

	client := Chain(base, tempMiddleware)

	ctx := context.Background()
	req := NewCompletionRequest([]CompletionMessage{NewUserMessage("test")})
	req.Temperature = 0.5

	resp, err := client.Complete(ctx, req)
	if err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if resp.Content != "temp=0.9" {
		t.Errorf("expected 'temp=0.9', got %q", resp.Content)
	}
}

// TestChainErrorPropagation tests middleware error wrapping.
func TestChainErrorPropagation(t *testing.T) {
	base := &mockLLMClient{
		completeFunc: func(_ context.Context, _ CompletionRequest) (CompletionResponse, error) {
			return CompletionResponse{}, fmt.Errorf("base error")
		},
	}

	errorMiddleware := func(next LLMClient) LLMClient {
		return WrapClient(
			func(ctx context.Context, req CompletionRequest) (CompletionResponse, error) {
				resp, err := next.Complete(ctx, req)
				if err != nil {
					return resp, fmt.Errorf("middleware wrapper: %w", err)
				}
				return resp, nil
			},
			next.GetModelName,
		)
	}

	client := Chain(base, errorMiddleware)

	ctx := context.Background()
	req := NewCompletionRequest([]CompletionMessage{NewUserMessage("test")})
	_, err := client.Complete(ctx, req)

	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if err.Error() != "middleware wrapper: base error" {
		t.Errorf("expected 'middleware wrapper: base error', got %q", err.Error())
	}
}

// TestChainModelNamePropagation tests GetModelName through the chain.
func TestChainModelNamePropagation(t *testing.T) {
	base := &mockLLMClient{
		getModelNameFunc: func() string {
			return "base-model-v1"
		},
	}

	passthrough := func(next LLMClient) LLMClient {
		return WrapClient(next.Complete, next.GetModelName)
	}

	client := Chain(base, passthrough, passthrough)

	if got := client.GetModelName(); got != "base-model-v1" {
		t.Errorf("expected 'base-model-v1', got %q", got)
	}
}

// TestChainNoMiddlewares tests chain with no middlewares.
func TestChainNoMiddlewares(t *testing.T) {
	base := &mockLLMClient{
		completeFunc: func(_ context.Context, _ CompletionRequest) (CompletionResponse, error) {
			return CompletionResponse{Content: "base"}, nil
		},
	}

	client := Chain(base)

	ctx := context.Background()
	req := NewCompletionRequest([]CompletionMessage{NewUserMessage("test")})
	resp, err := client.Complete(ctx, req)
	if err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if resp.Content != "base" {
		t.Errorf("expected 'base', got %q", resp.Content)
	}
}
