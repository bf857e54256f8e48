// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Dazno Contributors

package auth

import (
	"context"
	"regexp"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// DefaultAdminUsername is the account created by InitializeDefaultUser.
const DefaultAdminUsername = "admin"

// Username validation constraints.
const (
	MinUsernameLength = 3
	MaxUsernameLength = 30
)

var usernameRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// User is an operator account.
type User struct {
	ID                 ulid.ULID
	Username           string
	PasswordHash       string
	CreatedAt          time.Time
	LastLogin          *time.Time
	IsAdmin            bool
	MustChangePassword bool
}

// NewUser creates a validated User. The hash must already be computed.
func NewUser(username, passwordHash string, isAdmin, mustChangePassword bool) (*User, error) {
	if err := ValidateUsername(username); err != nil {
		return nil, err
	}
	if passwordHash == "" {
		return nil, oops.Code("AUTH_INVALID_HASH").Errorf("password hash cannot be empty")
	}
	return &User{
		ID:                 ulid.Make(),
		Username:           username,
		PasswordHash:       passwordHash,
		CreatedAt:          time.Now().UTC(),
		IsAdmin:            isAdmin,
		MustChangePassword: mustChangePassword,
	}, nil
}

// ValidateUsername checks length and character set.
func ValidateUsername(username string) error {
	if len(username) < MinUsernameLength {
		return oops.Code("AUTH_INVALID_USERNAME").
			With("min", MinUsernameLength).
			Errorf("username must be at least %d characters", MinUsernameLength)
	}
	if len(username) > MaxUsernameLength {
		return oops.Code("AUTH_INVALID_USERNAME").
			With("max", MaxUsernameLength).
			Errorf("username must be at most %d characters", MaxUsernameLength)
	}
	if !usernameRegex.MatchString(username) {
		return oops.Code("AUTH_INVALID_USERNAME").
			Errorf("username may contain only letters, numbers, underscores and hyphens")
	}
	return nil
}

// UserRepository manages operator persistence.
type UserRepository interface {
	// Create stores a new user. Returns ErrUserExists if the username is taken.
	Create(ctx context.Context, user *User) error

	// GetByID retrieves a user by ID. Returns ErrNotFound if absent.
	GetByID(ctx context.Context, id ulid.ULID) (*User, error)

	// GetByUsername retrieves a user by exact username. Returns ErrNotFound if absent.
	GetByUsername(ctx context.Context, username string) (*User, error)

	// Count returns the number of stored users.
	Count(ctx context.Context) (int64, error)

	// UpdateLastLogin records a successful login time.
	UpdateLastLogin(ctx context.Context, id ulid.ULID, at time.Time) error

	// UpdatePassword replaces the hash and sets the must-change flag.
	UpdatePassword(ctx context.Context, id ulid.ULID, passwordHash string, mustChange bool) error
}
