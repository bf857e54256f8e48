// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Dazno Contributors

package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/dazno/dazno-umbrel/internal/auth"
)

// SessionRepository implements auth.SessionRepository using PostgreSQL.
type SessionRepository struct {
	db DBTX
}

// NewSessionRepository creates a new SessionRepository.
func NewSessionRepository(db DBTX) *SessionRepository {
	return &SessionRepository{db: db}
}

// Create stores a new session.
func (r *SessionRepository) Create(ctx context.Context, session *auth.Session) error {
	claims, err := json.Marshal(session.Claims)
	if err != nil {
		return oops.Code("SESSION_CREATE_FAILED").
			With("operation", "encode claims").
			Wrap(err)
	}

	_, err = r.db.Exec(ctx, `
		INSERT INTO user_sessions (id, user_id, token_hash, claims, user_agent, ip_address, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`,
		session.ID.String(),
		session.UserID.String(),
		session.TokenHash,
		claims,
		session.UserAgent,
		session.IPAddress,
		session.CreatedAt,
		session.ExpiresAt,
	)
	if err != nil {
		return oops.Code("SESSION_CREATE_FAILED").
			With("operation", "insert user_session").
			With("user_id", session.UserID.String()).
			Wrap(err)
	}
	return nil
}

// GetByTokenHash retrieves a session by its token hash.
func (r *SessionRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*auth.Session, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, user_id, token_hash, claims, user_agent, ip_address, created_at, expires_at
		FROM user_sessions
		WHERE token_hash = $1
	`, tokenHash)

	var (
		idStr, userIDStr string
		claims           []byte
		s                auth.Session
	)
	err := row.Scan(&idStr, &userIDStr, &s.TokenHash, &claims, &s.UserAgent, &s.IPAddress, &s.CreatedAt, &s.ExpiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("SESSION_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("SESSION_GET_BY_TOKEN_FAILED").
			With("operation", "get session by token hash").
			Wrap(err)
	}

	if s.ID, err = ulid.Parse(idStr); err != nil {
		return nil, oops.Code("SESSION_INVALID_ID").With("id", idStr).Wrap(err)
	}
	if s.UserID, err = ulid.Parse(userIDStr); err != nil {
		return nil, oops.Code("SESSION_INVALID_ID").With("user_id", userIDStr).Wrap(err)
	}
	if len(claims) > 0 {
		if err := json.Unmarshal(claims, &s.Claims); err != nil {
			return nil, oops.Code("SESSION_SCAN_FAILED").
				With("operation", "decode claims").
				With("id", idStr).
				Wrap(err)
		}
	}
	return &s, nil
}

// Delete removes a session by ID. A missing row is not an error.
func (r *SessionRepository) Delete(ctx context.Context, id ulid.ULID) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM user_sessions WHERE id = $1`, id.String()); err != nil {
		return oops.Code("SESSION_DELETE_FAILED").
			With("operation", "delete user_session").
			With("id", id.String()).
			Wrap(err)
	}
	return nil
}

// DeleteByUser removes every session of a user except keep. The zero ULID
// matches no stored id, so a zero keep removes them all.
func (r *SessionRepository) DeleteByUser(ctx context.Context, userID, keep ulid.ULID) (int64, error) {
	result, err := r.db.Exec(ctx,
		`DELETE FROM user_sessions WHERE user_id = $1 AND id <> $2`,
		userID.String(), keep.String())
	if err != nil {
		return 0, oops.Code("SESSION_DELETE_BY_USER_FAILED").
			With("operation", "delete user_sessions by user").
			With("user_id", userID.String()).
			Wrap(err)
	}
	return result.RowsAffected(), nil
}

// DeleteExpired removes sessions whose expiry is at or before now.
func (r *SessionRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.db.Exec(ctx, `DELETE FROM user_sessions WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, oops.Code("SESSION_DELETE_EXPIRED_FAILED").
			With("operation", "delete expired user_sessions").
			Wrap(err)
	}
	return result.RowsAffected(), nil
}

var _ auth.SessionRepository = (*SessionRepository)(nil)
