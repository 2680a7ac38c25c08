package agent

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	lcopenai "github.com/tmc/langchaingo/llms/openai"
	"github.com/tmc/langchaingo/schema"

	"github.com/neo/rapport_backend/internal/logging"
	"github.com/neo/rapport_backend/internal/types"
)

// LangChainBackend generates replies through a langchaingo model
type LangChainBackend struct {
	llm         llms.Model
	temperature float64
	maxTokens   int
	retry       RetryPolicy
}

var _ Backend = (*LangChainBackend)(nil)

// NewLangChain creates a backend on langchaingo's OpenAI model
func NewLangChain(cfg Config) (*LangChainBackend, error) {
	model := cfg.Model
	if model == "" {
		model = DefaultConfig().Model
	}

	opts := []lcopenai.Option{
		lcopenai.WithToken(cfg.APIKey),
		lcopenai.WithModel(model),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, lcopenai.WithBaseURL(cfg.BaseURL))
	}

	llm, err := lcopenai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create LLM: %v", err)
	}
	return NewLangChainWithModel(llm, cfg), nil
}

// NewLangChainWithModel wraps any langchaingo model
func NewLangChainWithModel(llm llms.Model, cfg Config) *LangChainBackend {
	return &LangChainBackend{
		llm:         llm,
		temperature: float64(cfg.Temperature),
		maxTokens:   cfg.MaxTokens,
		retry:       cfg.Retry,
	}
}

// Name returns the backend name
func (b *LangChainBackend) Name() string {
	return KindLangChain
}

// Complete generates a reply with the instruction as the system part
func (b *LangChainBackend) Complete(ctx context.Context, instruction string, turns []Message) (string, error) {
	content := make([]llms.MessageContent, 0, len(turns)+1)
	content = append(content, llms.TextParts(schema.ChatMessageTypeSystem, instruction))
	for _, t := range turns {
		role := schema.ChatMessageTypeHuman
		if t.Role == types.RolePersona {
			role = schema.ChatMessageTypeAI
		}
		content = append(content, llms.TextParts(role, t.Content))
	}

	opts := []llms.CallOption{llms.WithTemperature(b.temperature)}
	if b.maxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(b.maxTokens))
	}

	reply, err := b.retry.do(ctx, func(ctx context.Context) (string, error) {
		resp, err := b.llm.GenerateContent(ctx, content, opts...)
		if err != nil {
			return "", err
		}
		if resp == nil || len(resp.Choices) == 0 {
			return "", fmt.Errorf("%w: no choices returned", ErrMalformedOutput)
		}
		return cleanReply(resp.Choices[0].Content)
	})
	if err != nil {
		logging.LogGenerationEvent("failed", b.Name(), map[string]interface{}{"error": err})
		return "", err
	}

	logging.LogGenerationEvent("completed", b.Name(), map[string]interface{}{"turns": len(turns)})
	return reply, nil
}
