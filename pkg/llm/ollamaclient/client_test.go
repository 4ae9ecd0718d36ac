package ollamaclient

import (
	"testing"

	"recast/pkg/llm"
)

func TestConvertMessages(t *testing.T) {
	converted, err := convertMessages([]llm.CompletionMessage{
		llm.NewSystemMessage("be terse"),
		llm.NewUserMessage("fix this"),
		llm.NewAssistantMessage("draft"),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(converted) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(converted))
	}
	if converted[0].Role != "system" || converted[1].Role != "user" || converted[2].Role != "assistant" {
		t.Errorf("unexpected roles: %s, %s, %s", converted[0].Role, converted[1].Role, converted[2].Role)
	}
}

func TestConvertMessagesRejectsEmpty(t *testing.T) {
	if _, err := convertMessages(nil); err == nil {
		t.Error("expected error for empty message list")
	}
}

func TestStopReason(t *testing.T) {
	cases := map[string]string{
		"stop":   "end_turn",
		"STOP":   "end_turn",
		"":       "end_turn",
		"length": "max_tokens",
		"load":   "load",
	}
	for in, want := range cases {
		if got := stopReason(in); got != want {
			t.Errorf("stopReason(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNewClientHostFallback(t *testing.T) {
	// Bad host strings must not panic; the default host takes over.
	client := NewClient("not a url", "llama3.2")
	if got := client.GetModelName(); got != "llama3.2" {
		t.Errorf("GetModelName() = %q", got)
	}
	client = NewClient("", "qwen2.5-coder")
	if got := client.GetModelName(); got != "qwen2.5-coder" {
		t.Errorf("GetModelName() = %q", got)
	}
}
