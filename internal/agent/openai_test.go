package agent

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neo/rapport_backend/internal/types"
)

type chatRequest struct {
	Model    string `json:"model"`
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
	MaxTokens int `json:"max_tokens"`
}

func completionBody(content string) string {
	body, _ := json.Marshal(map[string]interface{}{
		"id":      "chatcmpl-1",
		"object":  "chat.completion",
		"created": 1,
		"model":   "gpt-4o-mini",
		"choices": []map[string]interface{}{
			{"index": 0, "message": map[string]string{"role": "assistant", "content": content}, "finish_reason": "stop"},
		},
	})
	return string(body)
}

func errorBody(typ, code string) string {
	body, _ := json.Marshal(map[string]interface{}{
		"error": map[string]interface{}{"message": "upstream said no", "type": typ, "code": code},
	})
	return string(body)
}

func testConfig(url string) Config {
	cfg := DefaultConfig()
	cfg.APIKey = "test-key"
	cfg.BaseURL = url + "/v1"
	cfg.Retry = RetryPolicy{MaxRetries: 2, Base: time.Millisecond}
	return cfg
}

func TestOpenAIComplete(t *testing.T) {
	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(completionBody("  Whatever. Fine.  ")))
	}))
	defer srv.Close()

	b, err := NewOpenAI(testConfig(srv.URL))
	require.NoError(t, err)

	reply, err := b.Complete(context.Background(), "You are Ethan.", []Message{
		{Role: types.RolePersona, Content: "Hey."},
		{Role: types.RoleTrainee, Content: "How are you?"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Whatever. Fine.", reply)

	require.Len(t, got.Messages, 3)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Equal(t, "You are Ethan.", got.Messages[0].Content)
	assert.Equal(t, "assistant", got.Messages[1].Role)
	assert.Equal(t, "user", got.Messages[2].Role)
	assert.Equal(t, "gpt-4o-mini", got.Model)
	assert.Equal(t, 300, got.MaxTokens)
}

func TestOpenAIRetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(errorBody("server_error", "")))
			return
		}
		_, _ = w.Write([]byte(completionBody("ok then")))
	}))
	defer srv.Close()

	b, err := NewOpenAI(testConfig(srv.URL))
	require.NoError(t, err)

	reply, err := b.Complete(context.Background(), "sys", nil)
	require.NoError(t, err)
	assert.Equal(t, "ok then", reply)
	assert.EqualValues(t, 3, atomic.LoadInt32(&calls))
}

func TestOpenAIDoesNotRetryQuota(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(errorBody("insufficient_quota", "insufficient_quota")))
	}))
	defer srv.Close()

	b, err := NewOpenAI(testConfig(srv.URL))
	require.NoError(t, err)

	_, err = b.Complete(context.Background(), "sys", nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrQuotaExceeded))
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestOpenAIMalformedOutput(t *testing.T) {
	tests := map[string]string{
		"no choices":    `{"id":"x","object":"chat.completion","choices":[]}`,
		"empty content": completionBody("   "),
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			var calls int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				atomic.AddInt32(&calls, 1)
				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write([]byte(body))
			}))
			defer srv.Close()

			b, err := NewOpenAI(testConfig(srv.URL))
			require.NoError(t, err)

			_, err = b.Complete(context.Background(), "sys", nil)
			assert.ErrorIs(t, err, ErrMalformedOutput)
			assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
		})
	}
}

func TestOpenAIHonorsDeadline(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	b, err := NewOpenAI(testConfig(srv.URL))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err = b.Complete(ctx, "sys", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestNewSelectsBackend(t *testing.T) {
	cfg := DefaultConfig()
	_, err := New(cfg)
	assert.Error(t, err, "missing key")

	cfg.APIKey = "k"
	b, err := New(cfg)
	require.NoError(t, err)
	assert.Equal(t, KindOpenAI, b.Name())

	cfg.Kind = KindLangChain
	b, err = New(cfg)
	require.NoError(t, err)
	assert.Equal(t, KindLangChain, b.Name())

	cfg.Kind = "carrier-pigeon"
	_, err = New(cfg)
	assert.Error(t, err)
}
