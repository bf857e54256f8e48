// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Dazno Contributors

package postgres_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/oklog/ulid/v2"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dazno/dazno-umbrel/internal/auth"
	"github.com/dazno/dazno-umbrel/internal/auth/postgres"
	"github.com/dazno/dazno-umbrel/pkg/errutil"
)

var userCols = []string{"id", "username", "password_hash", "created_at", "last_login", "is_admin", "must_change_password"}

func newMockPool(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err, "failed to create mock")
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		mock.Close()
	})
	return mock
}

func TestUserRepository_Create(t *testing.T) {
	ctx := context.Background()
	user, err := auth.NewUser("admin", "$argon2id$hash", true, true)
	require.NoError(t, err)

	t.Run("inserts user", func(t *testing.T) {
		mock := newMockPool(t)
		mock.ExpectExec(`INSERT INTO users`).
			WithArgs(user.ID.String(), "admin", "$argon2id$hash", user.CreatedAt, user.LastLogin, true, true).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))

		require.NoError(t, postgres.NewUserRepository(mock).Create(ctx, user))
	})

	t.Run("unique violation maps to ErrUserExists", func(t *testing.T) {
		mock := newMockPool(t)
		mock.ExpectExec(`INSERT INTO users`).
			WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
				pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
			WillReturnError(&pgconn.PgError{Code: pgerrcode.UniqueViolation})

		err := postgres.NewUserRepository(mock).Create(ctx, user)
		assert.ErrorIs(t, err, auth.ErrUserExists)
		errutil.AssertErrorCode(t, err, "USER_EXISTS")
	})

	t.Run("other errors are wrapped", func(t *testing.T) {
		mock := newMockPool(t)
		mock.ExpectExec(`INSERT INTO users`).
			WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
				pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
			WillReturnError(errors.New("connection refused"))

		err := postgres.NewUserRepository(mock).Create(ctx, user)
		require.Error(t, err)
		assert.NotErrorIs(t, err, auth.ErrUserExists)
		assert.Contains(t, err.Error(), "connection refused")
	})
}

func TestUserRepository_GetByUsername(t *testing.T) {
	ctx := context.Background()
	id := ulid.Make()
	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	lastLogin := created.Add(time.Hour)

	t.Run("found", func(t *testing.T) {
		mock := newMockPool(t)
		mock.ExpectQuery(`SELECT id, username, password_hash`).
			WithArgs("admin").
			WillReturnRows(pgxmock.NewRows(userCols).
				AddRow(id.String(), "admin", "hash", created, &lastLogin, true, false))

		u, err := postgres.NewUserRepository(mock).GetByUsername(ctx, "admin")
		require.NoError(t, err)
		assert.Equal(t, id, u.ID)
		assert.Equal(t, "admin", u.Username)
		assert.Equal(t, created, u.CreatedAt)
		require.NotNil(t, u.LastLogin)
		assert.Equal(t, lastLogin, *u.LastLogin)
		assert.True(t, u.IsAdmin)
		assert.False(t, u.MustChangePassword)
	})

	t.Run("not found", func(t *testing.T) {
		mock := newMockPool(t)
		mock.ExpectQuery(`SELECT id, username, password_hash`).
			WithArgs("ghost").
			WillReturnRows(pgxmock.NewRows(userCols))

		_, err := postgres.NewUserRepository(mock).GetByUsername(ctx, "ghost")
		assert.ErrorIs(t, err, auth.ErrNotFound)
		assert.NotContains(t, err.Error(), "ghost")
	})

	t.Run("corrupt id", func(t *testing.T) {
		mock := newMockPool(t)
		mock.ExpectQuery(`SELECT id, username, password_hash`).
			WithArgs("admin").
			WillReturnRows(pgxmock.NewRows(userCols).
				AddRow("not-a-ulid", "admin", "hash", created, (*time.Time)(nil), true, false))

		_, err := postgres.NewUserRepository(mock).GetByUsername(ctx, "admin")
		errutil.AssertErrorCode(t, err, "USER_INVALID_ID")
	})
}

func TestUserRepository_GetByID(t *testing.T) {
	ctx := context.Background()
	id := ulid.Make()

	mock := newMockPool(t)
	mock.ExpectQuery(`SELECT id, username, password_hash`).
		WithArgs(id.String()).
		WillReturnRows(pgxmock.NewRows(userCols).
			AddRow(id.String(), "alice", "hash", time.Now().UTC(), (*time.Time)(nil), false, true))

	u, err := postgres.NewUserRepository(mock).GetByID(ctx, id)
	require.NoError(t, err)
	assert.Nil(t, u.LastLogin)
	assert.True(t, u.MustChangePassword)
}

func TestUserRepository_Count(t *testing.T) {
	mock := newMockPool(t)
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM users`).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(2)))

	n, err := postgres.NewUserRepository(mock).Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestUserRepository_Updates(t *testing.T) {
	ctx := context.Background()
	id := ulid.Make()
	at := time.Now().UTC()

	t.Run("last login", func(t *testing.T) {
		mock := newMockPool(t)
		mock.ExpectExec(`UPDATE users SET last_login`).
			WithArgs(id.String(), at).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		assert.NoError(t, postgres.NewUserRepository(mock).UpdateLastLogin(ctx, id, at))
	})

	t.Run("password on missing user", func(t *testing.T) {
		mock := newMockPool(t)
		mock.ExpectExec(`UPDATE users SET password_hash`).
			WithArgs(id.String(), "newhash", false).
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))

		err := postgres.NewUserRepository(mock).UpdatePassword(ctx, id, "newhash", false)
		assert.ErrorIs(t, err, auth.ErrNotFound)
	})
}
