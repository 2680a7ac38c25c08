package server

import "time"

// Config holds server configuration
type Config struct {
	// Development adds error details to responses
	Development bool
	// AllowedOrigins lists CORS and WebSocket origins; empty allows any
	AllowedOrigins  []string
	ShutdownTimeout time.Duration
	// PingInterval is how often idle WebSocket connections are pinged
	PingInterval time.Duration
}

// DefaultConfig returns the server defaults
func DefaultConfig() Config {
	return Config{
		ShutdownTimeout: 15 * time.Second,
		PingInterval:    30 * time.Second,
	}
}

func (c Config) originAllowed(origin string) bool {
	if len(c.AllowedOrigins) == 0 || origin == "" {
		return true
	}
	for _, o := range c.AllowedOrigins {
		if o == "*" || o == origin {
			return true
		}
	}
	return false
}
