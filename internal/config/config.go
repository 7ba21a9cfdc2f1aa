// Botboard - Telegram Bot Analytics Dashboard API
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/botboard/botboard

// Package config loads and validates Botboard configuration using koanf.
// Configuration is layered: struct defaults, then an optional YAML file,
// then BOTBOARD_* environment variables.
package config

import (
	"fmt"
	"time"
)

// Config is the root configuration for the Botboard server.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Supabase  SupabaseConfig  `koanf:"supabase"`
	Telegram  TelegramConfig  `koanf:"telegram"`
	RateLimit RateLimitConfig `koanf:"rate_limit"`
	Cache     CacheConfig     `koanf:"cache"`
	Pool      PoolConfig      `koanf:"pool"`
	Logging   LoggingConfig   `koanf:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Addr is the listen address, e.g. ":8000".
	Addr string `koanf:"addr"`

	// Environment is "production" or "development". In development the
	// error envelope may include the underlying error detail.
	Environment string `koanf:"environment"`

	// CORSOrigins lists allowed browser origins for the dashboard frontend.
	CORSOrigins []string `koanf:"cors_origins"`

	// RequestTimeout bounds end-to-end request handling.
	RequestTimeout time.Duration `koanf:"request_timeout"`

	// MaxBodyBytes rejects requests whose declared Content-Length exceeds it.
	MaxBodyBytes int64 `koanf:"max_body_bytes"`

	// ETagEnabled turns on the conditional-request (ETag/304) stage.
	ETagEnabled bool `koanf:"etag_enabled"`
}

// SupabaseConfig holds datastore connection settings.
type SupabaseConfig struct {
	URL string `koanf:"url"`
	Key string `koanf:"key"`
}

// TelegramConfig holds Login Widget verification settings.
type TelegramConfig struct {
	// BotToken is the token of the bot backing the Login Widget; its
	// SHA-256 digest keys the signature check.
	BotToken string `koanf:"bot_token"`

	// AuthMaxAge is how old a login assertion may be before it is
	// rejected as stale.
	AuthMaxAge time.Duration `koanf:"auth_max_age"`
}

// RateLimitConfig holds fixed-window rate limiter settings.
type RateLimitConfig struct {
	PerMinute     int `koanf:"per_minute"`
	PerHour       int `koanf:"per_hour"`
	MaxTrackedIPs int `koanf:"max_tracked_ips"`
}

// CacheConfig holds response cache settings.
type CacheConfig struct {
	Enabled    bool          `koanf:"enabled"`
	DefaultTTL time.Duration `koanf:"default_ttl"`
}

// PoolConfig holds datastore connection pool settings.
type PoolConfig struct {
	MaxClients int `koanf:"max_clients"`
}

// LoggingConfig holds log output settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// Default returns a Config with all default values applied.
// Defaults are overridden by the config file and then by environment.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:           ":8000",
			Environment:    "production",
			CORSOrigins:    []string{},
			RequestTimeout: 30 * time.Second,
			MaxBodyBytes:   1 << 20, // 1MB
			ETagEnabled:    false,
		},
		Telegram: TelegramConfig{
			AuthMaxAge: time.Hour,
		},
		RateLimit: RateLimitConfig{
			PerMinute:     60,
			PerHour:       1000,
			MaxTrackedIPs: 10000,
		},
		Cache: CacheConfig{
			Enabled:    true,
			DefaultTTL: 30 * time.Second,
		},
		Pool: PoolConfig{
			MaxClients: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Validate rejects configurations that must fail at startup rather than at
// request time: missing datastore credentials, non-positive limits and
// timeouts. The rate limiter itself never fails; this is its only guard.
func (c *Config) Validate() error {
	if c.Supabase.URL == "" {
		return fmt.Errorf("config: supabase.url is required")
	}
	if c.Supabase.Key == "" {
		return fmt.Errorf("config: supabase.key is required")
	}
	if c.Telegram.BotToken == "" {
		return fmt.Errorf("config: telegram.bot_token is required")
	}
	if c.RateLimit.PerMinute <= 0 {
		return fmt.Errorf("config: rate_limit.per_minute must be positive, got %d", c.RateLimit.PerMinute)
	}
	if c.RateLimit.PerHour <= 0 {
		return fmt.Errorf("config: rate_limit.per_hour must be positive, got %d", c.RateLimit.PerHour)
	}
	if c.RateLimit.MaxTrackedIPs <= 0 {
		return fmt.Errorf("config: rate_limit.max_tracked_ips must be positive, got %d", c.RateLimit.MaxTrackedIPs)
	}
	if c.Server.RequestTimeout <= 0 {
		return fmt.Errorf("config: server.request_timeout must be positive")
	}
	if c.Server.MaxBodyBytes <= 0 {
		return fmt.Errorf("config: server.max_body_bytes must be positive")
	}
	if c.Cache.DefaultTTL <= 0 {
		return fmt.Errorf("config: cache.default_ttl must be positive")
	}
	if c.Pool.MaxClients <= 0 {
		return fmt.Errorf("config: pool.max_clients must be positive")
	}
	if c.Telegram.AuthMaxAge <= 0 {
		return fmt.Errorf("config: telegram.auth_max_age must be positive")
	}
	return nil
}

// IsDevelopment reports whether the server runs in development posture.
func (c *Config) IsDevelopment() bool {
	return c.Server.Environment == "development"
}
