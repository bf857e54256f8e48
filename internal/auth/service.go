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

// dummyPasswordHash is verified against when a username does not exist so
// that the response time matches a real wrong-password attempt. It never
// matches any password.
//
//nolint:gosec // G101: intentionally fake hash, not a credential.
const dummyPasswordHash = "$argon2id$v=19$m=65536,t=1,p=4$AAAAAAAAAAAAAAAAAAAAAA$AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"

// Service manages operator credentials.
type Service struct {
	users               UserRepository
	hasher              PasswordHasher
	logger              *slog.Logger
	now                 func() time.Time
	equalizeTiming      bool
	showDefaultPassword bool
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithLogger sets the service logger.
func WithLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithTimingEqualization controls whether Authenticate verifies against a
// dummy hash for unknown usernames. Enabled by default.
func WithTimingEqualization(enabled bool) ServiceOption {
	return func(s *Service) { s.equalizeTiming = enabled }
}

// WithShowDefaultPassword makes InitializeDefaultUser log the generated
// password. Off by default.
func WithShowDefaultPassword(enabled bool) ServiceOption {
	return func(s *Service) { s.showDefaultPassword = enabled }
}

// NewService creates a Service.
func NewService(users UserRepository, hasher PasswordHasher, opts ...ServiceOption) (*Service, error) {
	if users == nil {
		return nil, oops.Code("AUTH_INVALID_CONFIG").Errorf("users repository is required")
	}
	if hasher == nil {
		return nil, oops.Code("AUTH_INVALID_CONFIG").Errorf("password hasher is required")
	}
	s := &Service{
		users:          users,
		hasher:         hasher,
		logger:         slog.Default().With("component", "auth"),
		now:            time.Now,
		equalizeTiming: true,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// InitializeDefaultUser creates the admin account when no users exist and
// returns its generated password. The password is not stored anywhere and
// cannot be recovered later. When a user already exists it returns
// ErrAlreadyInitialized.
func (s *Service) InitializeDefaultUser(ctx context.Context) (string, error) {
	count, err := s.users.Count(ctx)
	if err != nil {
		return "", oops.Code("AUTH_STORE_FAILED").
			With("operation", "count users").
			Wrap(err)
	}
	if count > 0 {
		return "", oops.Code("AUTH_ALREADY_INITIALIZED").
			With("users", count).
			Wrap(ErrAlreadyInitialized)
	}

	password, err := GenerateDefaultPassword()
	if err != nil {
		return "", err
	}
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return "", oops.Code("AUTH_HASH_FAILED").Wrap(err)
	}
	user, err := NewUser(DefaultAdminUsername, hash, true, true)
	if err != nil {
		return "", err
	}
	user.CreatedAt = s.now().UTC()

	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, ErrUserExists) {
			// Lost a bootstrap race with another process.
			return "", oops.Code("AUTH_ALREADY_INITIALIZED").Wrap(ErrAlreadyInitialized)
		}
		return "", oops.Code("AUTH_STORE_FAILED").
			With("operation", "create default user").
			Wrap(err)
	}

	s.logger.InfoContext(ctx, "default admin user created",
		"username", user.Username, "user_id", user.ID.String())
	if s.showDefaultPassword {
		s.logger.WarnContext(ctx, "default admin password; change it after first login",
			"username", user.Username, "password", password)
	}
	return password, nil
}

// Authenticate verifies a username and password. Unknown usernames and wrong
// passwords both return ErrInvalidCredentials.
func (s *Service) Authenticate(ctx context.Context, username, password string) (*User, error) {
	var user *User
	if ValidateUsername(username) == nil {
		var err error
		user, err = s.users.GetByUsername(ctx, username)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return nil, oops.Code("AUTH_STORE_FAILED").
				With("operation", "get user by username").
				Wrap(err)
		}
	}

	if user == nil {
		if s.equalizeTiming {
			_, _ = s.hasher.Verify(password, dummyPasswordHash) //nolint:errcheck // timing only
		}
		return nil, invalidCredentials()
	}

	valid, err := s.hasher.Verify(password, user.PasswordHash)
	if err != nil {
		return nil, oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "verify password").
			With("user_id", user.ID.String()).
			Wrap(err)
	}
	if !valid {
		return nil, invalidCredentials()
	}

	now := s.now().UTC()
	if err := s.users.UpdateLastLogin(ctx, user.ID, now); err != nil {
		s.logger.WarnContext(ctx, "failed to record last login",
			"user_id", user.ID.String(), "error", err)
	} else {
		user.LastLogin = &now
	}

	if s.hasher.NeedsRehash(user.PasswordHash) {
		s.upgradeHash(ctx, user, password)
	}

	return user, nil
}

// upgradeHash re-hashes with current parameters. Failures are logged only.
func (s *Service) upgradeHash(ctx context.Context, user *User, password string) {
	hash, err := s.hasher.Hash(password)
	if err != nil {
		s.logger.WarnContext(ctx, "failed to rehash password", "user_id", user.ID.String(), "error", err)
		return
	}
	if err := s.users.UpdatePassword(ctx, user.ID, hash, user.MustChangePassword); err != nil {
		s.logger.WarnContext(ctx, "failed to store rehashed password", "user_id", user.ID.String(), "error", err)
		return
	}
	user.PasswordHash = hash
}

// ChangePassword replaces a user's password after checking the current one.
// It returns (false, nil) when the user is unknown or current is wrong, and
// an ErrWeakPassword error when next fails the strength policy. On success
// the must-change flag is cleared.
func (s *Service) ChangePassword(ctx context.Context, userID ulid.ULID, current, next string) (bool, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, oops.Code("AUTH_STORE_FAILED").
			With("operation", "get user by id").
			With("user_id", userID.String()).
			Wrap(err)
	}

	valid, err := s.hasher.Verify(current, user.PasswordHash)
	if err != nil {
		return false, oops.Code("AUTH_PASSWORD_CHANGE_FAILED").
			With("operation", "verify password").
			With("user_id", userID.String()).
			Wrap(err)
	}
	if !valid {
		return false, nil
	}

	if err := ValidatePasswordStrength(next); err != nil {
		return false, err
	}

	hash, err := s.hasher.Hash(next)
	if err != nil {
		return false, oops.Code("AUTH_HASH_FAILED").Wrap(err)
	}
	if err := s.users.UpdatePassword(ctx, userID, hash, false); err != nil {
		return false, oops.Code("AUTH_STORE_FAILED").
			With("operation", "update password").
			With("user_id", userID.String()).
			Wrap(err)
	}

	s.logger.InfoContext(ctx, "password changed", "user_id", userID.String())
	return true, nil
}

func invalidCredentials() error {
	return oops.Code("AUTH_INVALID_CREDENTIALS").Wrap(ErrInvalidCredentials)
}
