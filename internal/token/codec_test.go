// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Dazno Contributors

package token_test

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dazno/dazno-umbrel/internal/token"
	"github.com/dazno/dazno-umbrel/pkg/errutil"
)

var testSecret = []byte("test-secret-key")

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func newCodec(t *testing.T, c *clock) *token.Codec {
	t.Helper()
	codec, err := token.NewCodec(testSecret, time.Hour, token.WithClock(c.now))
	require.NoError(t, err)
	return codec
}

func encode(payload string) string {
	return base64.StdEncoding.EncodeToString([]byte(payload))
}

func sign(secret []byte, stamp string) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(stamp))
	return hex.EncodeToString(mac.Sum(nil))
}

func TestNewCodec_Validation(t *testing.T) {
	_, err := token.NewCodec(nil, time.Hour)
	errutil.AssertErrorCode(t, err, "TOKEN_INVALID_CONFIG")

	_, err = token.NewCodec(testSecret, 0)
	errutil.AssertErrorCode(t, err, "TOKEN_INVALID_CONFIG")

	_, err = token.NewCodec(testSecret, 500*time.Millisecond)
	errutil.AssertErrorCode(t, err, "TOKEN_INVALID_CONFIG")
}

func TestCodec_IssueWireFormat(t *testing.T) {
	c := &clock{t: time.Unix(1700000000, 0)}
	codec := newCodec(t, c)

	raw, err := base64.StdEncoding.DecodeString(codec.Issue())
	require.NoError(t, err)

	stamp, sig, ok := strings.Cut(string(raw), ":")
	require.True(t, ok)
	assert.Equal(t, "1700000000", stamp)
	assert.Equal(t, sign(testSecret, stamp), sig)
	assert.Equal(t, strings.ToLower(sig), sig)
}

func TestCodec_VerifyRoundTrip(t *testing.T) {
	c := &clock{t: time.Unix(1700000000, 0)}
	codec := newCodec(t, c)
	assert.NoError(t, codec.Verify(codec.Issue()))
}

func TestCodec_TTLBoundary(t *testing.T) {
	issued := time.Unix(1700000000, 0)
	c := &clock{t: issued}
	codec := newCodec(t, c)
	tok := codec.Issue()

	tests := []struct {
		name    string
		offset  time.Duration
		wantErr bool
	}{
		{"one second before ttl", time.Hour - time.Second, false},
		{"exactly ttl", time.Hour, false},
		{"one second after ttl", time.Hour + time.Second, true},
		{"long expired", 48 * time.Hour, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c.t = issued.Add(tt.offset)
			err := codec.Verify(tok)
			if tt.wantErr {
				errutil.AssertCategory(t, err, token.ErrExpired, "TOKEN_EXPIRED")
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestCodec_FutureTimestampDoesNotUnderflow(t *testing.T) {
	now := time.Unix(1700000000, 0)
	codec := newCodec(t, &clock{t: now})

	assert.NoError(t, codec.Verify(codec.IssueAt(now.Add(10*time.Minute))))
}

func TestCodec_TamperedSignatureRejected(t *testing.T) {
	c := &clock{t: time.Unix(1700000000, 0)}
	codec := newCodec(t, c)

	raw, err := base64.StdEncoding.DecodeString(codec.Issue())
	require.NoError(t, err)
	stamp, sig, _ := strings.Cut(string(raw), ":")

	for i := range len(sig) {
		b := []byte(sig)
		if b[i] == '0' {
			b[i] = '1'
		} else {
			b[i] = '0'
		}
		err := codec.Verify(encode(stamp + ":" + string(b)))
		require.ErrorIs(t, err, token.ErrInvalidSignature, "position %d", i)
	}
}

func TestCodec_InvalidSignatureCases(t *testing.T) {
	c := &clock{t: time.Unix(1700000000, 0)}
	codec := newCodec(t, c)
	stamp := "1700000000"
	good := sign(testSecret, stamp)

	tests := []struct {
		name  string
		token string
	}{
		{"wrong secret", encode(stamp + ":" + sign([]byte("other"), stamp))},
		{"truncated signature", encode(stamp + ":" + good[:62])},
		{"empty signature", encode(stamp + ":")},
		{"timestamp changed", encode("1700000001:" + good)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, codec.Verify(tt.token), token.ErrInvalidSignature)
		})
	}
}

func TestCodec_UppercaseHexSignatureAccepted(t *testing.T) {
	c := &clock{t: time.Unix(1700000000, 0)}
	codec := newCodec(t, c)
	stamp := "1700000000"

	// Hex decoding is case-insensitive, so the signature bytes still match.
	assert.NoError(t, codec.Verify(encode(stamp+":"+strings.ToUpper(sign(testSecret, stamp)))))
}

func TestCodec_MalformedTokens(t *testing.T) {
	c := &clock{t: time.Unix(1700000000, 0)}
	codec := newCodec(t, c)
	stamp := "1700000000"
	good := sign(testSecret, stamp)

	tests := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"not base64", "%%%not-base64%%%"},
		{"no separator", encode(stamp + good)},
		{"three parts", encode(stamp + ":" + good + ":extra")},
		{"negative timestamp", encode("-5:" + good)},
		{"non-numeric timestamp", encode("yesterday:" + good)},
		{"non-hex signature", encode(stamp + ":" + strings.Repeat("zz", 32))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := codec.Verify(tt.token)
			errutil.AssertCategory(t, err, token.ErrMalformed, "TOKEN_MALFORMED")
		})
	}
}

func TestCodec_SecretRotationInvalidatesTokens(t *testing.T) {
	c := &clock{t: time.Unix(1700000000, 0)}
	oldCodec := newCodec(t, c)
	tok := oldCodec.Issue()

	rotated, err := token.NewCodec([]byte("rotated-secret"), time.Hour, token.WithClock(c.now))
	require.NoError(t, err)
	assert.ErrorIs(t, rotated.Verify(tok), token.ErrInvalidSignature)
}

func TestCodec_SecretIsCopied(t *testing.T) {
	secret := []byte("mutable-secret")
	c := &clock{t: time.Unix(1700000000, 0)}
	codec, err := token.NewCodec(secret, time.Hour, token.WithClock(c.now))
	require.NoError(t, err)
	tok := codec.Issue()

	secret[0] = 'X'
	assert.NoError(t, codec.Verify(tok))
}

func TestCodec_TTL(t *testing.T) {
	codec, err := token.NewCodec(testSecret, 90*time.Second)
	require.NoError(t, err)
	assert.Equal(t, 90*time.Second, codec.TTL())
}
