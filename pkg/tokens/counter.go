// Package tokens provides tiktoken-based token counting for prompt budgeting.
package tokens

import (
	"fmt"

	"github.com/tiktoken-go/tokenizer"
)

// Counter provides token counting for a model's encoding.
type Counter struct {
	codec tokenizer.Codec
}

// NewCounter creates a token counter for the given model. Gemini and Claude
// tokenize similarly enough to GPT-4 that one encoding serves as the budget
// estimate for all providers.
func NewCounter(model string) (*Counter, error) {
	codec, err := tokenizer.ForModel(tokenizer.GPT4)
	if err != nil {
		return nil, fmt.Errorf("failed to create tokenizer codec for model %s: %w", model, err)
	}
	return &Counter{codec: codec}, nil
}

// Count returns the number of tokens in the given text.
func (c *Counter) Count(text string) int {
	if c == nil || c.codec == nil {
		return estimate(text)
	}
	count, err := c.codec.Count(text)
	if err != nil {
		return estimate(text)
	}
	return count
}

// WithinLimit reports whether text fits inside the given token limit.
func (c *Counter) WithinLimit(text string, limit int) bool {
	return c.Count(text) <= limit
}

// Truncate trims text to roughly fit within the token limit. Truncation is
// by characters, not exact token boundaries.
func (c *Counter) Truncate(text string, limit int) string {
	current := c.Count(text)
	if current <= limit {
		return text
	}

	ratio := float64(limit) / float64(current)
	charLimit := int(float64(len(text)) * ratio * 0.9)
	if charLimit >= len(text) {
		return text
	}
	return text[:charLimit] + "..."
}

// estimate is the fallback when no codec is available: 4 chars per token.
func estimate(text string) int {
	return len(text) / 4
}
