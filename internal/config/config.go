// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Dazno Contributors

// Package config loads dashboard configuration from defaults, an optional
// YAML file, the environment and command-line flags, in that order of
// increasing precedence.
//
// The result is a plain value built once at startup and passed to the
// components that need it.
package config

import (
	"log/slog"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/samber/oops"

	"github.com/dazno/dazno-umbrel/internal/auth"
	"github.com/dazno/dazno-umbrel/internal/ratelimit"
	"github.com/dazno/dazno-umbrel/internal/token"
)

// Config is the complete dashboard configuration.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Metrics   MetricsConfig   `koanf:"metrics"`
	Log       LogConfig       `koanf:"log"`
	Database  DatabaseConfig  `koanf:"database"`
	Auth      AuthConfig      `koanf:"auth"`
	Session   SessionConfig   `koanf:"session"`
	RateLimit RateLimitConfig `koanf:"ratelimit"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Addr              string        `koanf:"addr"`
	TrustProxyHeaders bool          `koanf:"trust_proxy_headers"`
	ShutdownTimeout   time.Duration `koanf:"shutdown_timeout"`
}

// MetricsConfig configures the observability listener. An empty Addr
// disables it.
type MetricsConfig struct {
	Addr string `koanf:"addr"`
}

// LogConfig configures the default logger.
type LogConfig struct {
	Format string `koanf:"format"`
	Level  string `koanf:"level"`
}

// DatabaseConfig holds the PostgreSQL connection string.
type DatabaseConfig struct {
	URL string `koanf:"url"`
}

// AuthConfig configures credentials and bearer tokens.
type AuthConfig struct {
	// Secret is the bearer token HMAC key. SecretFile, when set and
	// non-empty, takes priority.
	Secret     string `koanf:"secret"`
	SecretFile string `koanf:"secret_file"`

	TokenTTL time.Duration `koanf:"token_ttl"`

	// ShowDefaultPassword logs the bootstrap admin password.
	ShowDefaultPassword bool `koanf:"show_default_password"`

	// EqualizeLoginTiming runs a dummy hash verification for unknown
	// usernames so both failure paths cost the same.
	EqualizeLoginTiming bool `koanf:"equalize_login_timing"`
}

// SessionConfig selects the cookie profile and the expired-session sweep.
type SessionConfig struct {
	Profile       string        `koanf:"profile"`
	SweepInterval time.Duration `koanf:"sweep_interval"`
}

// RateLimitConfig holds per-group request budgets.
type RateLimitConfig struct {
	General         ratelimit.Limit `koanf:"general"`
	Actions         ratelimit.Limit `koanf:"actions"`
	Login           ratelimit.Limit `koanf:"login"`
	CleanupInterval time.Duration   `koanf:"cleanup_interval"`
}

// Default values.
const (
	DefaultAddr            = ":3000"
	DefaultMetricsAddr     = "127.0.0.1:9100"
	DefaultLogFormat       = "json"
	DefaultLogLevel        = "info"
	DefaultShutdownTimeout = 10 * time.Second
	DefaultSweepInterval   = 10 * time.Minute
)

var (
	logFormats = []string{"json", "text"}
	logLevels  = []string{"debug", "info", "warn", "error"}
)

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:            DefaultAddr,
			ShutdownTimeout: DefaultShutdownTimeout,
		},
		Metrics: MetricsConfig{Addr: DefaultMetricsAddr},
		Log:     LogConfig{Format: DefaultLogFormat, Level: DefaultLogLevel},
		Auth: AuthConfig{
			TokenTTL:            token.DefaultTTL,
			EqualizeLoginTiming: true,
		},
		Session: SessionConfig{
			Profile:       auth.DevelopmentProfile.Name,
			SweepInterval: DefaultSweepInterval,
		},
		RateLimit: RateLimitConfig{
			General:         ratelimit.DefaultGeneralLimit,
			Actions:         ratelimit.DefaultActionsLimit,
			Login:           ratelimit.DefaultLoginLimit,
			CleanupInterval: ratelimit.DefaultCleanupInterval,
		},
	}
}

// Validate checks every section.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return invalid("server.addr", c.Server.Addr, "listen address is required")
	}
	if c.Server.ShutdownTimeout <= 0 {
		return invalid("server.shutdown_timeout", c.Server.ShutdownTimeout.String(), "must be positive")
	}
	if !slices.Contains(logFormats, c.Log.Format) {
		return invalid("log.format", c.Log.Format, "must be 'json' or 'text'")
	}
	if !slices.Contains(logLevels, strings.ToLower(c.Log.Level)) {
		return invalid("log.level", c.Log.Level, "must be one of debug, info, warn, error")
	}
	if c.Auth.TokenTTL < time.Second {
		return invalid("auth.token_ttl", c.Auth.TokenTTL.String(), "must be at least one second")
	}
	if _, err := auth.ProfileByName(c.Session.Profile); err != nil {
		return err
	}
	if c.Session.SweepInterval < 0 {
		return invalid("session.sweep_interval", c.Session.SweepInterval.String(), "must not be negative")
	}
	for name, lim := range map[string]ratelimit.Limit{
		ratelimit.GeneralLimiter: c.RateLimit.General,
		ratelimit.ActionsLimiter: c.RateLimit.Actions,
		ratelimit.LoginLimiter:   c.RateLimit.Login,
	} {
		lc := ratelimit.Config{Name: name, MaxRequests: lim.MaxRequests, Window: lim.Window}
		if err := lc.Validate(); err != nil {
			return oops.Code("CONFIG_INVALID").With("key", "ratelimit."+name).Wrap(err)
		}
	}
	return nil
}

// RequireDatabase reports a missing database URL.
func (c *Config) RequireDatabase() error {
	if c.Database.URL == "" {
		return oops.Code("CONFIG_MISSING_DATABASE").
			Errorf("database url is required (set DATABASE_URL or database.url)")
	}
	return nil
}

// SessionProfile returns the cookie profile named by session.profile.
func (c *Config) SessionProfile() (auth.SessionProfile, error) {
	return auth.ProfileByName(c.Session.Profile)
}

// IsProduction reports whether the production session profile is selected.
func (c *Config) IsProduction() bool {
	return c.Session.Profile == auth.ProductionProfile.Name
}

// LogLevel parses log.level.
func (c *Config) LogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return slog.LevelInfo
	}
	return level
}

// RateLimits returns the limiter set configuration.
func (c *Config) RateLimits() ratelimit.SetConfig {
	return ratelimit.SetConfig{
		General:         c.RateLimit.General,
		Actions:         c.RateLimit.Actions,
		Login:           c.RateLimit.Login,
		CleanupInterval: c.RateLimit.CleanupInterval,
	}
}

// Redacted returns a copy safe to print: the secret is masked and the
// database password removed.
func (c Config) Redacted() Config {
	if c.Auth.Secret != "" {
		c.Auth.Secret = redactedValue
	}
	if c.Database.URL != "" {
		if u, err := url.Parse(c.Database.URL); err == nil {
			c.Database.URL = u.Redacted()
		} else {
			c.Database.URL = redactedValue
		}
	}
	return c
}

const redactedValue = "xxxxx"

func invalid(key, value, msg string) error {
	return oops.Code("CONFIG_INVALID").
		With("key", key).
		With("value", value).
		Errorf("%s: %s", key, msg)
}
