// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Dazno Contributors

package config

import (
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/v2"
)

// Map flattens c into koanf keys. Durations are rendered as strings so the
// result round-trips through YAML.
func (c Config) Map() map[string]any {
	return map[string]any{
		"server.addr":                    c.Server.Addr,
		"server.trust_proxy_headers":     c.Server.TrustProxyHeaders,
		"server.shutdown_timeout":        c.Server.ShutdownTimeout.String(),
		"metrics.addr":                   c.Metrics.Addr,
		"log.format":                     c.Log.Format,
		"log.level":                      c.Log.Level,
		"database.url":                   c.Database.URL,
		"auth.secret":                    c.Auth.Secret,
		"auth.secret_file":               c.Auth.SecretFile,
		"auth.token_ttl":                 c.Auth.TokenTTL.String(),
		"auth.show_default_password":     c.Auth.ShowDefaultPassword,
		"auth.equalize_login_timing":     c.Auth.EqualizeLoginTiming,
		"session.profile":                c.Session.Profile,
		"session.sweep_interval":         c.Session.SweepInterval.String(),
		"ratelimit.general.max_requests": c.RateLimit.General.MaxRequests,
		"ratelimit.general.window":       c.RateLimit.General.Window.String(),
		"ratelimit.actions.max_requests": c.RateLimit.Actions.MaxRequests,
		"ratelimit.actions.window":       c.RateLimit.Actions.Window.String(),
		"ratelimit.login.max_requests":   c.RateLimit.Login.MaxRequests,
		"ratelimit.login.window":         c.RateLimit.Login.Window.String(),
		"ratelimit.cleanup_interval":     c.RateLimit.CleanupInterval.String(),
	}
}

// MarshalYAML renders c as nested sections, the same shape Load reads.
func (c Config) MarshalYAML() (any, error) {
	k := koanf.New(delim)
	if err := k.Load(confmap.Provider(c.Map(), delim), nil); err != nil {
		return nil, err
	}
	return k.Raw(), nil
}
