// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Dazno Contributors

package auth

import "errors"

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrUserExists is returned by repositories when a username is already taken.
var ErrUserExists = errors.New("user already exists")

// Rejection categories. Each is wrapped with an oops code at the point it is
// returned, so callers match with errors.Is and logs carry the code.
var (
	// ErrMissingCredential means the request carried no session or token.
	ErrMissingCredential = errors.New("missing credential")

	// ErrExpiredCredential means the session is past its expiry.
	ErrExpiredCredential = errors.New("credential expired")

	// ErrSessionNotFound means the session token does not resolve to a live
	// session and user.
	ErrSessionNotFound = errors.New("session not found")

	// ErrInvalidCredentials covers both unknown usernames and wrong passwords.
	ErrInvalidCredentials = errors.New("invalid username or password")

	// ErrWeakPassword means a new password failed the strength policy.
	ErrWeakPassword = errors.New("password does not meet strength requirements")

	// ErrAlreadyInitialized is returned by InitializeDefaultUser when at least
	// one user exists.
	ErrAlreadyInitialized = errors.New("a user already exists")
)

// IsRejection reports whether err is an authentication outcome rather than an
// infrastructure failure.
func IsRejection(err error) bool {
	return errors.Is(err, ErrMissingCredential) ||
		errors.Is(err, ErrExpiredCredential) ||
		errors.Is(err, ErrSessionNotFound) ||
		errors.Is(err, ErrInvalidCredentials)
}
