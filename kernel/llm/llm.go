// Package llm is the engine's boundary to language-model providers. The
// engine issues single-shot prompt completions only; conversational context
// belongs to the external CLIs.
package llm

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Client generates one completion for one prompt.
type Client interface {
	Name() string
	Generate(ctx context.Context, prompt string) (string, error)
}

// Config describes one provider client.
type Config struct {
	// API selects the client implementation: anthropic or openai_compat.
	API     string
	Model   string
	BaseURL string
	APIKey  string
	Timeout time.Duration
	// MaxOutputTokens bounds one completion; defaults to 1024.
	MaxOutputTokens int
}

const (
	APIAnthropic    = "anthropic"
	APIOpenAICompat = "openai_compat"
)

// New builds one provider client from config.
func New(cfg Config) (Client, error) {
	api := strings.ToLower(strings.TrimSpace(cfg.API))
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, fmt.Errorf("llm: model is required")
	}
	if cfg.MaxOutputTokens <= 0 {
		cfg.MaxOutputTokens = 1024
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	switch api {
	case APIAnthropic, "":
		return newAnthropic(cfg), nil
	case APIOpenAICompat:
		return newOpenAICompat(cfg), nil
	default:
		return nil, fmt.Errorf("llm: unsupported api type %q", cfg.API)
	}
}
