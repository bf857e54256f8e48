// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Dazno Contributors

package config

import (
	"os"
	"strings"

	"github.com/samber/oops"
)

// DevelopmentSecret signs bearer tokens when no secret is configured. It is
// public and must never be used in production.
const DevelopmentSecret = "dazno-secret-key-should-be-in-env"

// SecretSource records where the token secret came from.
type SecretSource string

// Secret sources, in priority order.
const (
	SecretFromFile     SecretSource = "file"
	SecretFromValue    SecretSource = "value"
	SecretFromFallback SecretSource = "fallback"
)

// Secret is the resolved bearer token key.
type Secret struct {
	Key    []byte
	Source SecretSource
}

// IsFallback reports whether the development constant is in use.
func (s Secret) IsFallback() bool { return s.Source == SecretFromFallback }

// ResolveSecret picks the token secret: the trimmed contents of SecretFile,
// then the trimmed Secret value, then DevelopmentSecret. An empty file falls
// through to the next source; an unreadable one is an error.
func (a AuthConfig) ResolveSecret() (Secret, error) {
	return a.resolveSecret(os.ReadFile)
}

func (a AuthConfig) resolveSecret(readFile func(string) ([]byte, error)) (Secret, error) {
	if a.SecretFile != "" {
		data, err := readFile(a.SecretFile)
		if err != nil {
			return Secret{}, oops.Code("CONFIG_SECRET_UNREADABLE").
				With("path", a.SecretFile).
				Wrap(err)
		}
		if key := strings.TrimSpace(string(data)); key != "" {
			return Secret{Key: []byte(key), Source: SecretFromFile}, nil
		}
	}
	if key := strings.TrimSpace(a.Secret); key != "" {
		return Secret{Key: []byte(key), Source: SecretFromValue}, nil
	}
	return Secret{Key: []byte(DevelopmentSecret), Source: SecretFromFallback}, nil
}
