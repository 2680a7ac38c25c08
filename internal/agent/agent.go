package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/neo/rapport_backend/internal/types"
)

// Backend kinds
const (
	KindOpenAI    = "openai"
	KindLangChain = "langchain"
)

// Message is one prior turn sent to the backend
type Message struct {
	Role    types.Role
	Content string
}

// Backend produces a persona reply from an instruction and recent turns
type Backend interface {
	Name() string
	Complete(ctx context.Context, instruction string, turns []Message) (string, error)
}

// Config holds configuration for a backend
type Config struct {
	Kind        string
	APIKey      string
	Model       string
	BaseURL     string
	Temperature float32
	MaxTokens   int
	Retry       RetryPolicy
}

// DefaultConfig returns the settings used for persona replies
func DefaultConfig() Config {
	return Config{
		Kind:        KindOpenAI,
		Model:       "gpt-4o-mini",
		Temperature: 0.8,
		MaxTokens:   300,
		Retry: RetryPolicy{
			MaxRetries: 3,
			Base:       500 * time.Millisecond,
		},
	}
}

// New creates the backend selected by cfg.Kind
func New(cfg Config) (Backend, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required")
	}
	switch strings.ToLower(cfg.Kind) {
	case "", KindOpenAI:
		return NewOpenAI(cfg)
	case KindLangChain:
		return NewLangChain(cfg)
	default:
		return nil, fmt.Errorf("unknown backend: %s", cfg.Kind)
	}
}

// cleanReply trims a completion and rejects empty output
func cleanReply(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", fmt.Errorf("%w: empty completion", ErrMalformedOutput)
	}
	return s, nil
}
