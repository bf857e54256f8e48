// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Dazno Contributors

// Package auth holds the operator credential store and browser sessions.
//
// # Domain Types
//
// User and Session are created through their constructors:
//   - NewUser validates the username and requires a password hash
//   - NewSession validates the owning user, token hash and expiry
//
// Repository implementations receive pre-validated values from these
// constructors and never see plaintext passwords or session tokens.
//
// # Services
//
//   - Service bootstraps the default admin, authenticates operators and
//     changes passwords
//   - SessionManager issues, resolves and revokes browser sessions
//
// Unknown usernames and wrong passwords both surface as
// ErrInvalidCredentials so callers cannot tell them apart.
package auth
