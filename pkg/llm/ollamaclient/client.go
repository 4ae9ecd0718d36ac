// Package ollamaclient provides the Ollama client for locally hosted models.
package ollamaclient

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/ollama/ollama/api"

	"recast/pkg/llm"
)

// DefaultHost is used when no Ollama host is configured.
const DefaultHost = "http://localhost:11434"

// OllamaClient wraps the Ollama API client to implement llm.LLMClient.
type OllamaClient struct {
	client *api.Client
	model  string
}

// NewClient creates a raw Ollama client; middleware is applied at a higher
// level. An empty or unparseable host falls back to DefaultHost.
func NewClient(host, model string) llm.LLMClient {
	if host == "" {
		host = DefaultHost
	}
	parsed, err := url.Parse(host)
	if err != nil || parsed.Scheme == "" {
		parsed, _ = url.Parse(DefaultHost)
	}
	return &OllamaClient{
		client: api.NewClient(parsed, http.DefaultClient),
		model:  model,
	}
}

// Complete implements the llm.LLMClient interface.
func (o *OllamaClient) Complete(ctx context.Context, in llm.CompletionRequest) (llm.CompletionResponse, error) {
	messages, err := convertMessages(in.Messages)
	if err != nil {
		return llm.CompletionResponse{}, llm.NewError(llm.ErrorTypeBadPrompt, fmt.Sprintf("message conversion error: %v", err))
	}

	stream := false
	req := &api.ChatRequest{
		Model:    o.model,
		Messages: messages,
		Stream:   &stream,
		Options: map[string]any{
			"temperature": float64(in.Temperature),
			"num_predict": in.MaxTokens,
		},
	}

	var final api.ChatResponse
	err = o.client.Chat(ctx, req, func(resp api.ChatResponse) error {
		final = resp
		return nil
	})
	if err != nil {
		return llm.CompletionResponse{}, llm.ClassifyProviderError(err)
	}
	if final.Message.Content == "" {
		return llm.CompletionResponse{}, llm.NewError(llm.ErrorTypeEmptyResponse, "empty response from Ollama")
	}

	return llm.CompletionResponse{
		Content:    final.Message.Content,
		StopReason: stopReason(final.DoneReason),
		Usage: llm.Usage{
			PromptTokens:     final.PromptEvalCount,
			CompletionTokens: final.EvalCount,
		},
	}, nil
}

// GetModelName returns the model name for this client.
func (o *OllamaClient) GetModelName() string {
	return o.model
}

func stopReason(doneReason string) string {
	switch strings.ToLower(doneReason) {
	case "stop", "":
		return "end_turn"
	case "length":
		return "max_tokens"
	default:
		return doneReason
	}
}

// convertMessages converts messages to Ollama's chat format.
func convertMessages(messages []llm.CompletionMessage) ([]api.Message, error) {
	if len(messages) == 0 {
		return nil, fmt.Errorf("message list cannot be empty")
	}

	converted := make([]api.Message, 0, len(messages))
	for _, msg := range messages {
		if msg.Content == "" {
			continue
		}
		switch msg.Role {
		case llm.RoleSystem, llm.RoleUser, llm.RoleAssistant:
			converted = append(converted, api.Message{
				Role:    string(msg.Role),
				Content: msg.Content,
			})
		default:
			return nil, fmt.Errorf("unsupported message role: %s", msg.Role)
		}
	}
	if len(converted) == 0 {
		return nil, fmt.Errorf("conversation requires at least one non-empty message")
	}
	return converted, nil
}
