package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/neo/rapport_backend/internal/agent"
	"github.com/neo/rapport_backend/internal/auth"
	"github.com/neo/rapport_backend/internal/conversation"
	"github.com/neo/rapport_backend/internal/logging"
)

// Store backends
const (
	StoreMemory = "memory"
	StoreRedis  = "redis"
)

// Config holds application configuration read from the environment
type Config struct {
	Port     string
	AppEnv   string
	LogLevel logging.LogLevel
	LogFile  string

	LLM               agent.Config
	GenerationTimeout time.Duration
	RecentTurns       int
	MaxMessageLength  int

	Retention       time.Duration
	CleanupInterval time.Duration

	StoreBackend string
	RedisURL     string
	// LockTTL bounds how long a crashed process can hold a Redis conversation lock
	LockTTL time.Duration

	DataDir          string
	ArchiveEnabled   bool
	PersonaDir       string
	TuningFile       string
	FeatureFlagsFile string

	JWTSecret            string
	TokenDuration        time.Duration
	ObserverUsername     string
	ObserverPasswordHash string
	ObserverRole         string
	AllowedOrigins       []string
}

// Load reads .env files (missing files are ignored) and then the
// environment. Variables already set in the environment win.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", f, err)
		}
	}
	return FromEnv()
}

// FromEnv builds a Config from environment variables
func FromEnv() (*Config, error) {
	r := &reader{}
	llm := agent.DefaultConfig()
	conv := conversation.DefaultConfig()

	cfg := &Config{
		Port:    r.str("PORT", "8080"),
		AppEnv:  r.str("APP_ENV", "production"),
		LogFile: r.str("LOG_FILE", ""),

		GenerationTimeout: r.duration("GENERATION_TIMEOUT", conv.GenerationTimeout),
		RecentTurns:       r.int("RECENT_TURNS", conv.RecentTurns),
		MaxMessageLength:  r.int("MAX_MESSAGE_LENGTH", conv.MaxMessageLength),

		Retention:       r.duration("RETENTION_WINDOW", conv.Retention),
		CleanupInterval: r.duration("CLEANUP_INTERVAL", 5*time.Minute),

		StoreBackend: strings.ToLower(r.str("STORE_BACKEND", StoreMemory)),
		RedisURL:     r.str("REDIS_URL", "redis://localhost:6379/0"),
		LockTTL:      r.duration("LOCK_TTL", 2*time.Minute),

		DataDir:        r.str("DATA_DIR", "data"),
		ArchiveEnabled: r.bool("ARCHIVE_ENABLED", true),
		PersonaDir:     r.str("PERSONA_DIR", ""),
		TuningFile:     r.str("RAPPORT_TUNING_FILE", ""),

		JWTSecret:            r.str("JWT_SECRET", ""),
		TokenDuration:        r.duration("TOKEN_DURATION", 12*time.Hour),
		ObserverUsername:     r.str("OBSERVER_USERNAME", auth.RoleObserver),
		ObserverPasswordHash: r.str("OBSERVER_PASSWORD_HASH", ""),
		ObserverRole:         strings.ToLower(r.str("OBSERVER_ROLE", auth.RoleObserver)),
		AllowedOrigins:       r.list("CORS_ORIGINS"),
	}
	cfg.FeatureFlagsFile = r.str("FEATURE_FLAGS_FILE", filepath.Join(cfg.DataDir, "features.json"))

	level, err := logging.ParseLevel(r.str("LOG_LEVEL", "info"))
	if err != nil {
		r.fail("LOG_LEVEL", err)
	}
	cfg.LogLevel = level

	llm.Kind = strings.ToLower(r.str("LLM_BACKEND", llm.Kind))
	llm.APIKey = r.str("OPENAI_API_KEY", "")
	llm.Model = r.str("OPENAI_MODEL", llm.Model)
	llm.BaseURL = r.str("OPENAI_BASE_URL", "")
	llm.Temperature = float32(r.float("LLM_TEMPERATURE", float64(llm.Temperature)))
	llm.MaxTokens = r.int("LLM_MAX_TOKENS", llm.MaxTokens)
	llm.Retry.MaxRetries = r.int("LLM_MAX_RETRIES", llm.Retry.MaxRetries)
	cfg.LLM = llm

	if err := r.err(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the settings needed to serve
func (c *Config) Validate() error {
	var errs []error
	if c.LLM.APIKey == "" {
		errs = append(errs, errors.New("OPENAI_API_KEY is required"))
	}
	if c.LLM.Kind != agent.KindOpenAI && c.LLM.Kind != agent.KindLangChain {
		errs = append(errs, fmt.Errorf("LLM_BACKEND must be %q or %q, got %q", agent.KindOpenAI, agent.KindLangChain, c.LLM.Kind))
	}
	if c.StoreBackend != StoreMemory && c.StoreBackend != StoreRedis {
		errs = append(errs, fmt.Errorf("STORE_BACKEND must be %q or %q, got %q", StoreMemory, StoreRedis, c.StoreBackend))
	}
	if c.StoreBackend == StoreRedis {
		if c.GenerationTimeout <= 0 {
			errs = append(errs, errors.New("GENERATION_TIMEOUT must be positive with the redis store"))
		} else if c.LockTTL <= c.GenerationTimeout {
			errs = append(errs, fmt.Errorf("LOCK_TTL (%s) must be longer than GENERATION_TIMEOUT (%s)", c.LockTTL, c.GenerationTimeout))
		}
	}
	if c.RecentTurns < 1 {
		errs = append(errs, errors.New("RECENT_TURNS must be at least 1"))
	}
	if c.MaxMessageLength < 1 {
		errs = append(errs, errors.New("MAX_MESSAGE_LENGTH must be at least 1"))
	}
	if c.CleanupInterval <= 0 {
		errs = append(errs, errors.New("CLEANUP_INTERVAL must be positive"))
	}
	if c.ObserverRole != auth.RoleObserver && c.ObserverRole != auth.RoleAdmin {
		errs = append(errs, fmt.Errorf("OBSERVER_ROLE must be %q or %q, got %q", auth.RoleObserver, auth.RoleAdmin, c.ObserverRole))
	}
	if c.ObserverPasswordHash != "" && c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required when OBSERVER_PASSWORD_HASH is set"))
	}
	return errors.Join(errs...)
}

// Development reports whether APP_ENV is development
func (c *Config) Development() bool {
	return c.AppEnv == "development"
}

// ConversationConfig returns the orchestrator limits
func (c *Config) ConversationConfig() conversation.Config {
	return conversation.Config{
		RecentTurns:       c.RecentTurns,
		MaxMessageLength:  c.MaxMessageLength,
		GenerationTimeout: c.GenerationTimeout,
		Retention:         c.Retention,
	}
}

// AuthConfig returns the observer authentication settings
func (c *Config) AuthConfig() auth.Config {
	return auth.Config{
		JWTSecret:     c.JWTSecret,
		TokenDuration: c.TokenDuration,
		Username:      c.ObserverUsername,
		PasswordHash:  c.ObserverPasswordHash,
		Role:          c.ObserverRole,
	}
}

// LoggingConfig returns the logger settings
func (c *Config) LoggingConfig() logging.Config {
	return logging.Config{
		Level:       c.LogLevel,
		Development: c.Development(),
		LogToFile:   c.LogFile != "",
		LogFilePath: c.LogFile,
	}
}

// reader collects parse errors so every bad variable is reported at once
type reader struct {
	errs []error
}

func (r *reader) fail(key string, err error) {
	r.errs = append(r.errs, fmt.Errorf("invalid %s: %w", key, err))
}

func (r *reader) err() error {
	return errors.Join(r.errs...)
}

func (r *reader) str(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return def
}

func (r *reader) list(key string) []string {
	var out []string
	for _, part := range strings.Split(r.str(key, ""), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func (r *reader) int(key string, def int) int {
	v := r.str(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		r.fail(key, err)
		return def
	}
	return n
}

func (r *reader) float(key string, def float64) float64 {
	v := r.str(key, "")
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		r.fail(key, err)
		return def
	}
	return f
}

func (r *reader) bool(key string, def bool) bool {
	v := r.str(key, "")
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		r.fail(key, err)
		return def
	}
	return b
}

func (r *reader) duration(key string, def time.Duration) time.Duration {
	v := r.str(key, "")
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		r.fail(key, err)
		return def
	}
	return d
}
