// Package tokencount provides token counting and truncation for LLM prompts.
//
// It uses tiktoken-go, a Go port of OpenAI's tiktoken library, so prompt
// budgets are measured in the same units the inference endpoint bills and
// limits by. Unknown models fall back to the cl100k_base encoding; when no
// encoding can be initialized at all, a rune-based approximation keeps the
// caller functional.
package tokencount

import (
	"sync"

	"log/slog"

	tiktoken "github.com/pkoukk/tiktoken-go"
)

// Counter provides thread-safe token counting with per-model encoding cache.
type Counter struct {
	mu            sync.RWMutex
	encodingCache map[string]*tiktoken.Tiktoken
}

// NewCounter creates a new token counter instance.
func NewCounter() *Counter {
	return &Counter{encodingCache: make(map[string]*tiktoken.Tiktoken)}
}

// approxCharsPerToken drives the fallback when no encoding is available.
const approxCharsPerToken = 4

func (c *Counter) encodingFor(model string) *tiktoken.Tiktoken {
	c.mu.RLock()
	if enc, ok := c.encodingCache[model]; ok {
		c.mu.RUnlock()
		return enc
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if enc, ok := c.encodingCache[model]; ok {
		return enc
	}
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		slog.Debug("falling back to cl100k_base encoding",
			slog.String("model", model),
			slog.Any("error", err))
		enc, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			slog.Warn("no tiktoken encoding available; using rune approximation",
				slog.Any("error", err))
			enc = nil
		}
	}
	c.encodingCache[model] = enc
	return enc
}

// Count returns the token count of text for the given model.
func (c *Counter) Count(text, model string) int {
	if enc := c.encodingFor(model); enc != nil {
		return len(enc.Encode(text, nil, nil))
	}
	return approxCount(text)
}

// Truncate cuts text to at most maxTokens tokens for the given model. The
// cut is token-aligned when an encoding is available and rune-aligned
// otherwise, so the result is always valid UTF-8.
func (c *Counter) Truncate(text, model string, maxTokens int) string {
	if maxTokens <= 0 {
		return ""
	}
	if enc := c.encodingFor(model); enc != nil {
		ids := enc.Encode(text, nil, nil)
		if len(ids) <= maxTokens {
			return text
		}
		return enc.Decode(ids[:maxTokens])
	}
	return approxTruncate(text, maxTokens)
}

func approxCount(text string) int {
	runes := len([]rune(text))
	return (runes + approxCharsPerToken - 1) / approxCharsPerToken
}

func approxTruncate(text string, maxTokens int) string {
	runes := []rune(text)
	limit := maxTokens * approxCharsPerToken
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit])
}
