package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neo/rapport_backend/internal/agent"
	"github.com/neo/rapport_backend/internal/logging"
)

var keys = []string{
	"PORT", "APP_ENV", "LOG_LEVEL", "LOG_FILE", "LLM_BACKEND", "OPENAI_API_KEY", "OPENAI_MODEL",
	"OPENAI_BASE_URL", "LLM_TEMPERATURE", "LLM_MAX_TOKENS", "LLM_MAX_RETRIES", "GENERATION_TIMEOUT",
	"RECENT_TURNS", "MAX_MESSAGE_LENGTH", "RETENTION_WINDOW", "CLEANUP_INTERVAL", "STORE_BACKEND",
	"REDIS_URL", "LOCK_TTL", "DATA_DIR", "ARCHIVE_ENABLED", "PERSONA_DIR", "RAPPORT_TUNING_FILE",
	"FEATURE_FLAGS_FILE", "JWT_SECRET", "TOKEN_DURATION", "OBSERVER_USERNAME", "OBSERVER_PASSWORD_HASH",
	"OBSERVER_ROLE", "CORS_ORIGINS",
}

// clearEnv unsets every config key for the duration of the test
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range keys {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
}

func TestDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, logging.INFO, cfg.LogLevel)
	assert.Equal(t, agent.KindOpenAI, cfg.LLM.Kind)
	assert.Equal(t, "gpt-4o-mini", cfg.LLM.Model)
	assert.Equal(t, 15, cfg.RecentTurns)
	assert.Equal(t, 500, cfg.MaxMessageLength)
	assert.Equal(t, 30*time.Second, cfg.GenerationTimeout)
	assert.Equal(t, time.Hour, cfg.Retention)
	assert.Equal(t, StoreMemory, cfg.StoreBackend)
	assert.True(t, cfg.ArchiveEnabled)
	assert.Equal(t, filepath.Join("data", "features.json"), cfg.FeatureFlagsFile)
	assert.False(t, cfg.Development())

	// No API key yet
	assert.Error(t, cfg.Validate())
}

func TestLoadEnvFile(t *testing.T) {
	clearEnv(t)

	envFile := filepath.Join(t.TempDir(), ".env")
	content := `OPENAI_API_KEY=sk-test
APP_ENV=development
LOG_LEVEL=debug
LLM_BACKEND=langchain
LLM_TEMPERATURE=0.5
RECENT_TURNS=8
RETENTION_WINDOW=30m
STORE_BACKEND=redis
DATA_DIR=/var/lib/rapport
JWT_SECRET=secret
CORS_ORIGINS=https://training.example.org, http://localhost:3000
OBSERVER_PASSWORD_HASH='$2a$12$abcdefghijklmnopqrstuv'
`
	require.NoError(t, os.WriteFile(envFile, []byte(content), 0644))

	// The environment wins over the file
	t.Setenv("RECENT_TURNS", "4")

	cfg, err := Load(envFile, filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, "sk-test", cfg.LLM.APIKey)
	assert.Equal(t, agent.KindLangChain, cfg.LLM.Kind)
	assert.InDelta(t, 0.5, cfg.LLM.Temperature, 0.0001)
	assert.Equal(t, logging.DEBUG, cfg.LogLevel)
	assert.Equal(t, 4, cfg.RecentTurns)
	assert.Equal(t, 30*time.Minute, cfg.Retention)
	assert.Equal(t, StoreRedis, cfg.StoreBackend)
	assert.Equal(t, filepath.Join("/var/lib/rapport", "features.json"), cfg.FeatureFlagsFile)
	assert.True(t, cfg.Development())
	assert.Equal(t, "$2a$12$abcdefghijklmnopqrstuv", cfg.ObserverPasswordHash)
	assert.NoError(t, cfg.Validate())

	conv := cfg.ConversationConfig()
	assert.Equal(t, 4, conv.RecentTurns)
	assert.Equal(t, 30*time.Minute, conv.Retention)

	authCfg := cfg.AuthConfig()
	assert.Equal(t, "secret", authCfg.JWTSecret)
	assert.Equal(t, "observer", authCfg.Username)
	assert.Equal(t, "observer", authCfg.Role)
	assert.Equal(t, []string{"https://training.example.org", "http://localhost:3000"}, cfg.AllowedOrigins)

	logCfg := cfg.LoggingConfig()
	assert.True(t, logCfg.Development)
	assert.False(t, logCfg.LogToFile)
}

func TestInvalidValues(t *testing.T) {
	clearEnv(t)
	t.Setenv("RECENT_TURNS", "many")
	t.Setenv("RETENTION_WINDOW", "an hour")
	t.Setenv("LOG_LEVEL", "loud")

	_, err := FromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "RECENT_TURNS")
	assert.Contains(t, err.Error(), "RETENTION_WINDOW")
	assert.Contains(t, err.Error(), "LOG_LEVEL")
}

func TestValidate(t *testing.T) {
	clearEnv(t)
	t.Setenv("OPENAI_API_KEY", "sk-test")

	cfg, err := FromEnv()
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	bad := *cfg
	bad.StoreBackend = "etcd"
	bad.LLM.Kind = "other"
	bad.ObserverPasswordHash = "hash"
	err = bad.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "STORE_BACKEND")
	assert.Contains(t, err.Error(), "LLM_BACKEND")
	assert.Contains(t, err.Error(), "JWT_SECRET")
}

func TestValidateRedisLockOutlivesGeneration(t *testing.T) {
	clearEnv(t)
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("STORE_BACKEND", "redis")

	cfg, err := FromEnv()
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	short := *cfg
	short.LockTTL = short.GenerationTimeout
	err = short.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "LOCK_TTL")

	unbounded := *cfg
	unbounded.GenerationTimeout = 0
	err = unbounded.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "GENERATION_TIMEOUT")

	// The in-process locker never expires
	memory := unbounded
	memory.StoreBackend = StoreMemory
	assert.NoError(t, memory.Validate())
}
