// Package mock provides a scripted LLM client for tests.
package mock

import (
	"context"
	"sync"

	"recast/pkg/llm"
)

// Client replays a fixed script of responses and records every request it
// receives. It is safe for concurrent use.
type Client struct {
	mu     sync.Mutex
	model  string
	script []step
	next   int
	calls  []llm.CompletionRequest
}

type step struct {
	resp llm.CompletionResponse
	err  error
}

// NewClient creates a mock client reporting the given model name.
func NewClient(model string) *Client {
	return &Client{model: model}
}

// Enqueue appends a plain text response to the script.
func (c *Client) Enqueue(content string) *Client {
	return c.EnqueueResponse(llm.CompletionResponse{
		Content:    content,
		StopReason: "end_turn",
		Usage:      llm.Usage{PromptTokens: len(content) / 4, CompletionTokens: len(content) / 4},
	})
}

// EnqueueResponse appends a full response to the script.
func (c *Client) EnqueueResponse(resp llm.CompletionResponse) *Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.script = append(c.script, step{resp: resp})
	return c
}

// EnqueueError appends a failing step to the script.
func (c *Client) EnqueueError(err error) *Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.script = append(c.script, step{err: err})
	return c
}

// Complete implements the llm.LLMClient interface. Once the script is
// exhausted the last step repeats, so loops can run past the scripted length.
func (c *Client) Complete(ctx context.Context, in llm.CompletionRequest) (llm.CompletionResponse, error) {
	if err := ctx.Err(); err != nil {
		return llm.CompletionResponse{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.calls = append(c.calls, in)
	if len(c.script) == 0 {
		return llm.CompletionResponse{}, llm.NewError(llm.ErrorTypeEmptyResponse, "mock client has no scripted responses")
	}

	s := c.script[c.next]
	if c.next < len(c.script)-1 {
		c.next++
	}
	if s.err != nil {
		return llm.CompletionResponse{}, s.err
	}
	return s.resp, nil
}

// GetModelName returns the model name for this client.
func (c *Client) GetModelName() string {
	return c.model
}

// Calls returns a copy of every request received so far.
func (c *Client) Calls() []llm.CompletionRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]llm.CompletionRequest, len(c.calls))
	copy(out, c.calls)
	return out
}

// CallCount returns the number of requests received so far.
func (c *Client) CallCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.calls)
}
