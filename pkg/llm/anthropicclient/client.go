// Package anthropicclient provides the Anthropic Claude client for the LLM
// interface.
package anthropicclient

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"recast/pkg/llm"
)

// ClaudeClient wraps the Anthropic SDK to implement llm.LLMClient.
type ClaudeClient struct {
	client anthropic.Client
	model  string
}

// NewClient creates a raw Claude client; middleware is applied at a higher
// level.
func NewClient(apiKey, model string) llm.LLMClient {
	return &ClaudeClient{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:  model,
	}
}

// Complete implements the llm.LLMClient interface.
func (c *ClaudeClient) Complete(ctx context.Context, in llm.CompletionRequest) (llm.CompletionResponse, error) {
	system, turns, err := splitConversation(in.Messages)
	if err != nil {
		return llm.CompletionResponse{}, llm.NewError(llm.ErrorTypeBadPrompt, fmt.Sprintf("message conversion error: %v", err))
	}

	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(c.model),
		MaxTokens:   int64(in.MaxTokens),
		Temperature: anthropic.Float(float64(in.Temperature)),
		Messages:    turns,
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{
			{Text: system, Type: "text"},
		}
	}

	resp, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return llm.CompletionResponse{}, llm.ClassifyProviderError(err)
	}
	if resp == nil || len(resp.Content) == 0 {
		return llm.CompletionResponse{}, llm.NewError(llm.ErrorTypeEmptyResponse, "empty response from Claude API")
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.AsText().Text)
		}
	}
	if text.Len() == 0 {
		return llm.CompletionResponse{}, llm.NewError(llm.ErrorTypeEmptyResponse, "no text content in Claude response")
	}

	return llm.CompletionResponse{
		Content:    text.String(),
		StopReason: string(resp.StopReason),
		Usage: llm.Usage{
			PromptTokens:     int(resp.Usage.InputTokens),
			CompletionTokens: int(resp.Usage.OutputTokens),
		},
	}, nil
}

// GetModelName returns the model name for this client.
func (c *ClaudeClient) GetModelName() string {
	return c.model
}

// splitConversation extracts system text and converts the remaining turns to
// Anthropic's format. The Messages API requires strict user/assistant
// alternation starting with a user turn, so consecutive same-role messages
// are merged.
func splitConversation(messages []llm.CompletionMessage) (string, []anthropic.MessageParam, error) {
	if len(messages) == 0 {
		return "", nil, fmt.Errorf("message list cannot be empty")
	}

	var system strings.Builder
	type turn struct {
		role    llm.CompletionRole
		content string
	}
	var turns []turn

	for _, msg := range messages {
		switch msg.Role {
		case llm.RoleSystem:
			if system.Len() > 0 {
				system.WriteString("\n\n")
			}
			system.WriteString(msg.Content)
		case llm.RoleUser, llm.RoleAssistant:
			if msg.Content == "" {
				continue
			}
			if len(turns) > 0 && turns[len(turns)-1].role == msg.Role {
				turns[len(turns)-1].content += "\n\n" + msg.Content
				continue
			}
			turns = append(turns, turn{role: msg.Role, content: msg.Content})
		default:
			return "", nil, fmt.Errorf("unsupported message role: %s", msg.Role)
		}
	}

	if len(turns) == 0 {
		return "", nil, fmt.Errorf("conversation requires at least one user message")
	}
	if turns[0].role != llm.RoleUser {
		return "", nil, fmt.Errorf("conversation must start with a user message")
	}
	if turns[len(turns)-1].role != llm.RoleUser {
		return "", nil, fmt.Errorf("conversation must end with a user message")
	}

	converted := make([]anthropic.MessageParam, 0, len(turns))
	for _, t := range turns {
		role := anthropic.MessageParamRoleUser
		if t.role == llm.RoleAssistant {
			role = anthropic.MessageParamRoleAssistant
		}
		converted = append(converted, anthropic.MessageParam{
			Role:    role,
			Content: []anthropic.ContentBlockParamUnion{anthropic.NewTextBlock(t.content)},
		})
	}
	return system.String(), converted, nil
}
