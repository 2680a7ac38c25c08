package agent

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/schema"

	"github.com/neo/rapport_backend/internal/types"
)

// stubModel is a scripted llms.Model
type stubModel struct {
	responses []*llms.ContentResponse
	errs      []error
	calls     int
	last      []llms.MessageContent
}

func (m *stubModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	i := m.calls
	m.calls++
	m.last = messages
	if i < len(m.errs) && m.errs[i] != nil {
		return nil, m.errs[i]
	}
	if i < len(m.responses) {
		return m.responses[i], nil
	}
	return m.responses[len(m.responses)-1], nil
}

func (m *stubModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, options...)
}

func textResponse(s string) *llms.ContentResponse {
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: s}}}
}

func lcConfig() Config {
	cfg := DefaultConfig()
	cfg.Retry = RetryPolicy{MaxRetries: 2, Base: time.Millisecond}
	return cfg
}

func TestLangChainComplete(t *testing.T) {
	m := &stubModel{responses: []*llms.ContentResponse{textResponse("I guess.")}}
	b := NewLangChainWithModel(m, lcConfig())

	reply, err := b.Complete(context.Background(), "You are Lily.", []Message{
		{Role: types.RolePersona, Content: "Hi."},
		{Role: types.RoleTrainee, Content: "Thanks for coming in."},
	})
	require.NoError(t, err)
	assert.Equal(t, "I guess.", reply)

	require.Len(t, m.last, 3)
	assert.Equal(t, schema.ChatMessageTypeSystem, m.last[0].Role)
	assert.Equal(t, schema.ChatMessageTypeAI, m.last[1].Role)
	assert.Equal(t, schema.ChatMessageTypeHuman, m.last[2].Role)
}

func TestLangChainRetriesTransientErrors(t *testing.T) {
	m := &stubModel{
		errs:      []error{errors.New("connection reset"), nil},
		responses: []*llms.ContentResponse{nil, textResponse("back")},
	}
	b := NewLangChainWithModel(m, lcConfig())

	reply, err := b.Complete(context.Background(), "sys", nil)
	require.NoError(t, err)
	assert.Equal(t, "back", reply)
	assert.Equal(t, 2, m.calls)
}

func TestLangChainMalformed(t *testing.T) {
	m := &stubModel{responses: []*llms.ContentResponse{{}}}
	b := NewLangChainWithModel(m, lcConfig())

	_, err := b.Complete(context.Background(), "sys", nil)
	assert.ErrorIs(t, err, ErrMalformedOutput)
	assert.Equal(t, 1, m.calls)
}

func TestLangChainGivesUpAfterRetries(t *testing.T) {
	fail := errors.New("upstream unavailable")
	m := &stubModel{errs: []error{fail, fail, fail, fail}}
	b := NewLangChainWithModel(m, lcConfig())

	_, err := b.Complete(context.Background(), "sys", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, fail)
	assert.Equal(t, 3, m.calls)
}
