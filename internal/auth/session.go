// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Dazno Contributors

package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// SessionTokenBytes is the entropy of a session cookie value (64 hex chars).
const SessionTokenBytes = 32

// SessionClaims are the identity facts captured at login. They describe the
// user as of login time and are never used for authorization; the user row
// is re-read on every request.
type SessionClaims struct {
	UserID             string `json:"user_id"`
	Username           string `json:"username"`
	IsAdmin            bool   `json:"is_admin"`
	MustChangePassword bool   `json:"must_change_password"`
}

// ClaimsFor captures the claims of u.
func ClaimsFor(u *User) SessionClaims {
	return SessionClaims{
		UserID:             u.ID.String(),
		Username:           u.Username,
		IsAdmin:            u.IsAdmin,
		MustChangePassword: u.MustChangePassword,
	}
}

// ClientMetadata describes the client that created a session.
type ClientMetadata struct {
	UserAgent string
	IPAddress string
}

// Session is a server-side browser session. It is immutable once stored.
type Session struct {
	ID        ulid.ULID
	UserID    ulid.ULID
	TokenHash string
	Claims    SessionClaims
	UserAgent string
	IPAddress string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// NewSession creates a validated Session. UserAgent and IPAddress may be empty.
func NewSession(user *User, tokenHash string, meta ClientMetadata, createdAt, expiresAt time.Time) (*Session, error) {
	if user == nil || user.ID.Compare(ulid.ULID{}) == 0 {
		return nil, oops.Code("SESSION_INVALID_USER").Errorf("user ID cannot be zero")
	}
	if tokenHash == "" {
		return nil, oops.Code("SESSION_INVALID_HASH").Errorf("token hash cannot be empty")
	}
	if !expiresAt.After(createdAt) {
		return nil, oops.Code("SESSION_INVALID_EXPIRY").
			With("created_at", createdAt).
			With("expires_at", expiresAt).
			Errorf("expiry must be after creation")
	}
	return &Session{
		ID:        ulid.Make(),
		UserID:    user.ID,
		TokenHash: tokenHash,
		Claims:    ClaimsFor(user),
		UserAgent: meta.UserAgent,
		IPAddress: meta.IPAddress,
		CreatedAt: createdAt,
		ExpiresAt: expiresAt,
	}, nil
}

// IsExpiredAt returns true if the session is expired at t.
func (s *Session) IsExpiredAt(t time.Time) bool {
	return !t.Before(s.ExpiresAt)
}

// GenerateSessionToken creates a random token and its hash.
// The plaintext goes to the client; only the hash is stored.
func GenerateSessionToken() (token, hash string, err error) {
	b := make([]byte, SessionTokenBytes)
	if _, err = rand.Read(b); err != nil {
		return "", "", oops.Code("SESSION_TOKEN_GENERATE_FAILED").
			With("operation", "crypto/rand.Read").
			With("requested_bytes", SessionTokenBytes).
			Wrap(err)
	}
	token = hex.EncodeToString(b)
	return token, HashSessionToken(token), nil
}

// HashSessionToken computes the SHA-256 hash of a session token.
func HashSessionToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}

// SessionRepository manages session persistence.
type SessionRepository interface {
	// Create stores a new session.
	Create(ctx context.Context, session *Session) error

	// GetByTokenHash retrieves a session by its token hash.
	// Returns ErrNotFound if absent.
	GetByTokenHash(ctx context.Context, tokenHash string) (*Session, error)

	// Delete removes a session by ID. Deleting a missing session is not an error.
	Delete(ctx context.Context, id ulid.ULID) error

	// DeleteByUser removes every session of a user except keep and returns
	// the count. A zero keep removes them all.
	DeleteByUser(ctx context.Context, userID, keep ulid.ULID) (int64, error)

	// DeleteExpired removes sessions expired at now and returns the count.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
