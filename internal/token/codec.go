// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Dazno Contributors

// Package token issues and verifies stateless bearer tokens for service
// callers.
//
// A token is base64(unix_seconds ":" hex(HMAC-SHA256(secret, unix_seconds))).
// It proves possession of the shared secret within the TTL; it names no
// user and cannot be revoked except by rotating the secret.
package token

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/samber/oops"
)

// DefaultTTL is the token lifetime when none is configured.
const DefaultTTL = time.Hour

// Verification failures.
var (
	ErrMalformed        = errors.New("malformed token")
	ErrInvalidSignature = errors.New("invalid token signature")
	ErrExpired          = errors.New("token expired")
)

// Codec signs and verifies tokens with one secret.
type Codec struct {
	secret []byte
	ttl    uint64
	now    func() time.Time
}

// Option configures a Codec.
type Option func(*Codec)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Codec) {
		if now != nil {
			c.now = now
		}
	}
}

// NewCodec creates a Codec. The secret is copied.
func NewCodec(secret []byte, ttl time.Duration, opts ...Option) (*Codec, error) {
	if len(secret) == 0 {
		return nil, oops.Code("TOKEN_INVALID_CONFIG").Errorf("secret cannot be empty")
	}
	if ttl < time.Second {
		return nil, oops.Code("TOKEN_INVALID_CONFIG").
			With("ttl", ttl.String()).
			Errorf("ttl must be at least one second")
	}
	c := &Codec{
		secret: append([]byte(nil), secret...),
		ttl:    uint64(ttl / time.Second),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// TTL returns the accepted token age.
func (c *Codec) TTL() time.Duration {
	return time.Duration(c.ttl) * time.Second //nolint:gosec // ttl came from a Duration
}

// Issue returns a token stamped with the current time.
func (c *Codec) Issue() string {
	return c.IssueAt(c.now())
}

// IssueAt returns a token stamped with t. Times before the epoch are clamped
// to zero.
func (c *Codec) IssueAt(t time.Time) string {
	secs := t.Unix()
	if secs < 0 {
		secs = 0
	}
	stamp := strconv.FormatInt(secs, 10)
	payload := stamp + ":" + hex.EncodeToString(c.sign(stamp))
	return base64.StdEncoding.EncodeToString([]byte(payload))
}

// Verify checks a token. The signature is checked before the age so that
// only authentic tokens are ever reported as expired.
func (c *Codec) Verify(token string) error {
	raw, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return malformed("base64 decode")
	}

	parts := strings.Split(string(raw), ":")
	if len(parts) != 2 {
		return malformed("separator count")
	}
	stamp, sigHex := parts[0], parts[1]

	issued, err := strconv.ParseUint(stamp, 10, 64)
	if err != nil {
		return malformed("timestamp")
	}
	sig, err := hex.DecodeString(sigHex)
	if err != nil {
		return malformed("signature encoding")
	}

	if len(sig) != sha256.Size || !hmac.Equal(sig, c.sign(stamp)) {
		return oops.Code("TOKEN_INVALID_SIGNATURE").Wrap(ErrInvalidSignature)
	}

	if age := saturatingSub(c.nowUnix(), issued); age > c.ttl {
		return oops.Code("TOKEN_EXPIRED").
			With("age_seconds", age).
			With("ttl_seconds", c.ttl).
			Wrap(ErrExpired)
	}
	return nil
}

func (c *Codec) sign(stamp string) []byte {
	mac := hmac.New(sha256.New, c.secret)
	mac.Write([]byte(stamp))
	return mac.Sum(nil)
}

func (c *Codec) nowUnix() uint64 {
	secs := c.now().Unix()
	if secs < 0 {
		return 0
	}
	return uint64(secs)
}

// saturatingSub returns a-b, or 0 when b > a. A token stamped in the future
// therefore has age 0.
func saturatingSub(a, b uint64) uint64 {
	if b > a {
		return 0
	}
	return a - b
}

func malformed(stage string) error {
	return oops.Code("TOKEN_MALFORMED").With("stage", stage).Wrap(ErrMalformed)
}
