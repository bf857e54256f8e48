// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Dazno Contributors

package config

import (
	"errors"
	"io/fs"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/dazno/dazno-umbrel/internal/auth"
	"github.com/dazno/dazno-umbrel/internal/xdg"
)

const delim = "."

// LoadOptions controls where configuration is read from.
type LoadOptions struct {
	// File is an explicit config path. It must exist. When empty, the XDG
	// config file is read if present.
	File string

	// Flags are applied last. Only flags listed in FlagKeys and changed on
	// the command line override earlier layers.
	Flags *pflag.FlagSet

	// Environ defaults to os.Environ().
	Environ []string
}

// FlagKeys maps command-line flag names to config keys.
var FlagKeys = map[string]string{
	"addr":                "server.addr",
	"trust-proxy-headers": "server.trust_proxy_headers",
	"metrics-addr":        "metrics.addr",
	"log-format":          "log.format",
	"log-level":           "log.level",
	"database-url":        "database.url",
	"session-profile":     "session.profile",
}

// envKeys maps environment variables to config keys. AUTH_TOKEN_TTL_SECONDS,
// APP_ENV, SERVER_PORT and SHOW_DEFAULT_PASSWORD need conversion and are
// handled in envMap.
var envKeys = map[string]string{
	"DAZNO_ADDR":                "server.addr",
	"DAZNO_TRUST_PROXY_HEADERS": "server.trust_proxy_headers",
	"DAZNO_METRICS_ADDR":        "metrics.addr",
	"DAZNO_LOG_FORMAT":          "log.format",
	"DAZNO_LOG_LEVEL":           "log.level",
	"DATABASE_URL":              "database.url",
	"AUTH_SECRET_KEY":           "auth.secret",
	"AUTH_SECRET_KEY_FILE":      "auth.secret_file",
}

// Load builds a Config from every layer and validates it.
func Load(opts LoadOptions) (*Config, error) {
	k := koanf.New(delim)

	if err := k.Load(confmap.Provider(Default().Map(), delim), nil); err != nil {
		return nil, oops.Code("CONFIG_LOAD_FAILED").With("layer", "defaults").Wrap(err)
	}

	path, err := configPath(opts.File)
	if err != nil {
		return nil, err
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").
				With("layer", "file").
				With("path", path).
				Wrap(err)
		}
	}

	environ := opts.Environ
	if environ == nil {
		environ = os.Environ()
	}
	env, err := envMap(environ)
	if err != nil {
		return nil, err
	}
	if err := k.Load(confmap.Provider(env, delim), nil); err != nil {
		return nil, oops.Code("CONFIG_LOAD_FAILED").With("layer", "env").Wrap(err)
	}

	if opts.Flags != nil {
		provider := posflag.ProviderWithFlag(opts.Flags, delim, k, func(f *pflag.Flag) (string, any) {
			key, ok := FlagKeys[f.Name]
			if !ok {
				return "", nil
			}
			return key, posflag.FlagVal(opts.Flags, f)
		})
		if err := k.Load(provider, nil); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("layer", "flags").Wrap(err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, oops.Code("CONFIG_LOAD_FAILED").With("layer", "unmarshal").Wrap(err)
	}
	cfg.Log.Level = strings.ToLower(cfg.Log.Level)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func configPath(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", oops.Code("CONFIG_FILE_NOT_FOUND").With("path", explicit).Wrap(err)
		}
		return explicit, nil
	}
	path := xdg.ConfigFile()
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", nil
		}
		return "", oops.Code("CONFIG_FILE_UNREADABLE").With("path", path).Wrap(err)
	}
	return path, nil
}

func envMap(environ []string) (map[string]any, error) {
	vars := make(map[string]string, len(environ))
	for _, kv := range environ {
		name, value, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		if value = strings.TrimSpace(value); value != "" {
			vars[name] = value
		}
	}

	out := make(map[string]any)

	if port, ok := vars["SERVER_PORT"]; ok {
		if _, err := strconv.ParseUint(port, 10, 16); err != nil {
			return nil, oops.Code("CONFIG_INVALID").
				With("env", "SERVER_PORT").
				With("value", port).
				Errorf("SERVER_PORT must be a port number")
		}
		out["server.addr"] = ":" + port
	}

	for name, key := range envKeys {
		if v, ok := vars[name]; ok {
			out[key] = v
		}
	}

	if v, ok := vars["AUTH_TOKEN_TTL_SECONDS"]; ok {
		secs, err := strconv.ParseInt(v, 10, 64)
		if err != nil || secs <= 0 || secs > math.MaxInt64/int64(time.Second) {
			return nil, oops.Code("CONFIG_INVALID").
				With("env", "AUTH_TOKEN_TTL_SECONDS").
				With("value", v).
				Errorf("AUTH_TOKEN_TTL_SECONDS must be a positive number of seconds")
		}
		out["auth.token_ttl"] = (time.Duration(secs) * time.Second).String()
	}

	// Any value other than an explicit false enables it.
	if v, ok := vars["SHOW_DEFAULT_PASSWORD"]; ok {
		b, err := strconv.ParseBool(v)
		out["auth.show_default_password"] = err != nil || b
	}

	if v, ok := vars["APP_ENV"]; ok {
		if strings.EqualFold(v, auth.ProductionProfile.Name) {
			out["session.profile"] = auth.ProductionProfile.Name
		} else {
			out["session.profile"] = auth.DevelopmentProfile.Name
		}
	}

	return out, nil
}
