// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Dazno Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// SessionManager issues and resolves browser sessions. A session only points
// at a user; the user row is re-read on every lookup so privilege changes
// apply immediately.
type SessionManager struct {
	users    UserRepository
	sessions SessionRepository
	profile  SessionProfile
	logger   *slog.Logger
	now      func() time.Time
}

// SessionManagerOption configures a SessionManager.
type SessionManagerOption func(*SessionManager)

// WithSessionLogger sets the manager logger.
func WithSessionLogger(logger *slog.Logger) SessionManagerOption {
	return func(m *SessionManager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithSessionClock overrides time.Now.
func WithSessionClock(now func() time.Time) SessionManagerOption {
	return func(m *SessionManager) {
		if now != nil {
			m.now = now
		}
	}
}

// NewSessionManager creates a SessionManager for the given profile.
func NewSessionManager(users UserRepository, sessions SessionRepository, profile SessionProfile, opts ...SessionManagerOption) (*SessionManager, error) {
	if users == nil {
		return nil, oops.Code("SESSION_INVALID_CONFIG").Errorf("users repository is required")
	}
	if sessions == nil {
		return nil, oops.Code("SESSION_INVALID_CONFIG").Errorf("sessions repository is required")
	}
	if profile.MaxAge <= 0 {
		return nil, oops.Code("SESSION_INVALID_CONFIG").
			With("max_age", profile.MaxAge).
			Errorf("session max age must be positive")
	}
	m := &SessionManager{
		users:    users,
		sessions: sessions,
		profile:  profile,
		logger:   slog.Default().With("component", "sessions"),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Profile returns the deployment profile the manager was built with.
func (m *SessionManager) Profile() SessionProfile {
	return m.profile
}

// Login stores a new session for user and returns it with the plaintext
// cookie token.
func (m *SessionManager) Login(ctx context.Context, user *User, meta ClientMetadata) (*Session, string, error) {
	token, hash, err := GenerateSessionToken()
	if err != nil {
		return nil, "", err
	}

	now := m.now().UTC()
	session, err := NewSession(user, hash, meta, now, now.Add(m.profile.MaxAge))
	if err != nil {
		return nil, "", err
	}
	if err := m.sessions.Create(ctx, session); err != nil {
		return nil, "", oops.Code("SESSION_STORE_FAILED").
			With("operation", "create session").
			With("user_id", user.ID.String()).
			Wrap(err)
	}

	m.logger.InfoContext(ctx, "session created",
		"session_id", session.ID.String(),
		"user_id", user.ID.String(),
		"profile", m.profile.Name)
	return session, token, nil
}

// CurrentUser resolves a cookie token to its session and a freshly loaded
// user. It returns ErrMissingCredential, ErrSessionNotFound or
// ErrExpiredCredential for rejected tokens; any other error is a storage
// failure.
func (m *SessionManager) CurrentUser(ctx context.Context, token string) (*User, *Session, error) {
	if token == "" {
		return nil, nil, oops.Code("AUTH_MISSING_CREDENTIAL").Wrap(ErrMissingCredential)
	}

	session, err := m.sessions.GetByTokenHash(ctx, HashSessionToken(token))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil, oops.Code("SESSION_INVALID").Wrap(ErrSessionNotFound)
		}
		return nil, nil, oops.Code("SESSION_STORE_FAILED").
			With("operation", "get session by token hash").
			Wrap(err)
	}

	if session.IsExpiredAt(m.now()) {
		if delErr := m.sessions.Delete(ctx, session.ID); delErr != nil {
			m.logger.WarnContext(ctx, "failed to delete expired session",
				"session_id", session.ID.String(), "error", delErr)
		}
		return nil, nil, oops.Code("SESSION_EXPIRED").
			With("session_id", session.ID.String()).
			With("expired_at", session.ExpiresAt).
			Wrap(ErrExpiredCredential)
	}

	user, err := m.users.GetByID(ctx, session.UserID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil, oops.Code("SESSION_INVALID").
				With("session_id", session.ID.String()).
				Wrap(ErrSessionNotFound)
		}
		return nil, nil, oops.Code("SESSION_STORE_FAILED").
			With("operation", "get session user").
			With("session_id", session.ID.String()).
			Wrap(err)
	}

	return user, session, nil
}

// Logout deletes the session behind token. Unknown tokens are ignored.
func (m *SessionManager) Logout(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	session, err := m.sessions.GetByTokenHash(ctx, HashSessionToken(token))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return oops.Code("SESSION_STORE_FAILED").
			With("operation", "get session by token hash").
			Wrap(err)
	}
	if err := m.sessions.Delete(ctx, session.ID); err != nil && !errors.Is(err, ErrNotFound) {
		return oops.Code("SESSION_STORE_FAILED").
			With("operation", "delete session").
			With("session_id", session.ID.String()).
			Wrap(err)
	}
	m.logger.InfoContext(ctx, "session ended",
		"session_id", session.ID.String(), "user_id", session.UserID.String())
	return nil
}

// RevokeUser ends every session of userID except keep, so a password change
// locks out sessions opened with the old password. A zero keep ends them all.
func (m *SessionManager) RevokeUser(ctx context.Context, userID, keep ulid.ULID) (int64, error) {
	n, err := m.sessions.DeleteByUser(ctx, userID, keep)
	if err != nil {
		return 0, oops.Code("SESSION_STORE_FAILED").
			With("operation", "revoke user sessions").
			With("user_id", userID.String()).
			Wrap(err)
	}
	if n > 0 {
		m.logger.InfoContext(ctx, "sessions revoked", "user_id", userID.String(), "count", n)
	}
	return n, nil
}

// SweepExpired deletes all expired sessions.
func (m *SessionManager) SweepExpired(ctx context.Context) (int64, error) {
	n, err := m.sessions.DeleteExpired(ctx, m.now().UTC())
	if err != nil {
		return 0, oops.Code("SESSION_STORE_FAILED").
			With("operation", "delete expired sessions").
			Wrap(err)
	}
	return n, nil
}

// RunSweeper calls SweepExpired every interval until ctx is done.
func (m *SessionManager) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := m.SweepExpired(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				m.logger.WarnContext(ctx, "session sweep failed", "error", err)
				continue
			}
			if n > 0 {
				m.logger.DebugContext(ctx, "expired sessions removed", "count", n)
			}
		}
	}
}
