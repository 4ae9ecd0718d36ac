package google

import (
	"testing"

	"google.golang.org/genai"

	"recast/pkg/llm"
)

func TestConvertMessages(t *testing.T) {
	contents, system, err := convertMessages([]llm.CompletionMessage{
		llm.NewSystemMessage("be terse"),
		llm.NewSystemMessage("stay safe"),
		llm.NewUserMessage("fix this code"),
		llm.NewAssistantMessage("done"),
		llm.NewUserMessage("now this one"),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if system != "be terse\n\nstay safe" {
		t.Errorf("system instructions should merge, got %q", system)
	}
	if len(contents) != 3 {
		t.Fatalf("expected 3 contents, got %d", len(contents))
	}
	if contents[0].Role != "user" || contents[1].Role != "model" || contents[2].Role != "user" {
		t.Errorf("unexpected roles: %s, %s, %s", contents[0].Role, contents[1].Role, contents[2].Role)
	}
	if contents[1].Parts[0].Text != "done" {
		t.Errorf("expected assistant text preserved, got %q", contents[1].Parts[0].Text)
	}
}

func TestConvertMessagesEmpty(t *testing.T) {
	if _, _, err := convertMessages(nil); err == nil {
		t.Error("expected error for empty message list")
	}
}

func TestConvertMessagesSkipsBlanks(t *testing.T) {
	contents, _, err := convertMessages([]llm.CompletionMessage{
		llm.NewUserMessage("real"),
		llm.NewAssistantMessage(""),
		llm.NewUserMessage("also real"),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(contents) != 2 {
		t.Errorf("blank messages should be dropped, got %d contents", len(contents))
	}
}

func TestStopReason(t *testing.T) {
	if got := stopReason(nil); got != "unknown" {
		t.Errorf("nil response: got %q", got)
	}

	stop := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{FinishReason: genai.FinishReasonStop}},
	}
	if got := stopReason(stop); got != "end_turn" {
		t.Errorf("STOP should map to end_turn, got %q", got)
	}

	truncated := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{FinishReason: genai.FinishReasonMaxTokens}},
	}
	if got := stopReason(truncated); got != "max_tokens" {
		t.Errorf("MAX_TOKENS should map to max_tokens, got %q", got)
	}
}

func TestGetModelName(t *testing.T) {
	client := NewClient("key", "gemini-2.0-flash")
	if got := client.GetModelName(); got != "gemini-2.0-flash" {
		t.Errorf("GetModelName() = %q", got)
	}
}
