// Package config loads server configuration from the environment.
package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/joeshaw/envdecode"
)

// Config is the environment-derived configuration for linear-mcp.
type Config struct {
	// LinearAPIKey authenticates the outbound Linear GraphQL client.
	LinearAPIKey string `env:"LINEAR_API_KEY,required"`
	// LinearAPIURL overrides the Linear GraphQL endpoint (tests, proxies).
	LinearAPIURL string `env:"LINEAR_API_URL,default=https://api.linear.app/graphql"`

	// Port is the HTTP listen port.
	Port int `env:"PORT,default=3000"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `env:"LOG_LEVEL,default=info"`

	// AuthSecret, when set, requires callers to present an HS256 bearer JWT
	// signed with this secret on the /mcp endpoint.
	AuthSecret string `env:"MCP_AUTH_SECRET"`

	// SessionIdleTimeout enables eviction of sessions idle for at least this
	// long. Zero disables the sweep.
	SessionIdleTimeout time.Duration `env:"SESSION_IDLE_TIMEOUT,default=0"`
}

// Load decodes configuration from the process environment.
func Load() (*Config, error) {
	var cfg Config
	if err := envdecode.StrictDecode(&cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if _, err := cfg.Level(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Level maps LogLevel onto a slog.Level.
func (c *Config) Level() (slog.Level, error) {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("config: unknown LOG_LEVEL %q", c.LogLevel)
	}
}
