package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/neo/rapport_backend/internal/logging"
	"github.com/neo/rapport_backend/internal/types"
)

// OpenAIBackend calls the chat completions API directly
type OpenAIBackend struct {
	client      *openai.Client
	model       string
	temperature float32
	maxTokens   int
	retry       RetryPolicy
}

var _ Backend = (*OpenAIBackend)(nil)

// NewOpenAI creates a chat completion backend
func NewOpenAI(cfg Config) (*OpenAIBackend, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required")
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	model := cfg.Model
	if model == "" {
		model = DefaultConfig().Model
	}

	return &OpenAIBackend{
		client:      openai.NewClientWithConfig(clientCfg),
		model:       model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		retry:       cfg.Retry,
	}, nil
}

// Name returns the backend name
func (b *OpenAIBackend) Name() string {
	return KindOpenAI
}

// Complete sends the instruction as the system message followed by turns
func (b *OpenAIBackend) Complete(ctx context.Context, instruction string, turns []Message) (string, error) {
	messages := make([]openai.ChatCompletionMessage, 0, len(turns)+1)
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: instruction,
	})
	for _, t := range turns {
		role := openai.ChatMessageRoleUser
		if t.Role == types.RolePersona {
			role = openai.ChatMessageRoleAssistant
		}
		messages = append(messages, openai.ChatCompletionMessage{Role: role, Content: t.Content})
	}

	start := time.Now()
	reply, err := b.retry.do(ctx, func(ctx context.Context) (string, error) {
		resp, err := b.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model:       b.model,
			Messages:    messages,
			Temperature: b.temperature,
			MaxTokens:   b.maxTokens,
		})
		if err != nil {
			return "", err
		}
		if len(resp.Choices) == 0 {
			return "", fmt.Errorf("%w: no choices returned", ErrMalformedOutput)
		}
		return cleanReply(resp.Choices[0].Message.Content)
	})
	if err != nil {
		logging.LogGenerationEvent("failed", b.Name(), map[string]interface{}{
			"model": b.model,
			"error": err,
		})
		return "", err
	}

	logging.LogGenerationEvent("completed", b.Name(), map[string]interface{}{
		"model":       b.model,
		"turns":       len(turns),
		"duration_ms": time.Since(start).Milliseconds(),
	})
	return reply, nil
}
