// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Dazno Contributors

package gate

import (
	"context"

	"github.com/dazno/dazno-umbrel/internal/auth"
)

// TrustLevel distinguishes a named operator from an anonymous service caller.
type TrustLevel int

// Trust levels.
const (
	// TrustService proves possession of the shared token secret only.
	TrustService TrustLevel = iota + 1
	// TrustUser identifies a specific user through a live session.
	TrustUser
)

func (t TrustLevel) String() string {
	switch t {
	case TrustService:
		return "service"
	case TrustUser:
		return "user"
	default:
		return "unknown"
	}
}

// Credential is the outcome of a successful credential check. It is either a
// UserCredential or a ServiceCredential; handlers switch on the concrete type
// or on TrustLevel.
type Credential interface {
	TrustLevel() TrustLevel
	credential()
}

// UserCredential is a resolved browser session and its freshly loaded user.
type UserCredential struct {
	User    *auth.User
	Session *auth.Session
}

// TrustLevel implements Credential.
func (UserCredential) TrustLevel() TrustLevel { return TrustUser }
func (UserCredential) credential() {}

// ServiceCredential is a valid bearer token. It names no user.
type ServiceCredential struct{}

// TrustLevel implements Credential.
func (ServiceCredential) TrustLevel() TrustLevel { return TrustService }
func (ServiceCredential) credential() {}

type credentialKey struct{}

// WithCredential returns ctx carrying c.
func WithCredential(ctx context.Context, c Credential) context.Context {
	return context.WithValue(ctx, credentialKey{}, c)
}

// FromContext returns the credential attached by the gate.
func FromContext(ctx context.Context) (Credential, bool) {
	c, ok := ctx.Value(credentialKey{}).(Credential)
	return c, ok && c != nil
}

// UserFromContext returns the session user. It returns false for service
// callers, so handlers acting on behalf of a user must use it rather than
// FromContext.
func UserFromContext(ctx context.Context) (*auth.User, bool) {
	c, ok := FromContext(ctx)
	if !ok {
		return nil, false
	}
	uc, ok := c.(UserCredential)
	if !ok || uc.User == nil {
		return nil, false
	}
	return uc.User, true
}

// SessionFromContext returns the browser session behind the caller.
func SessionFromContext(ctx context.Context) (*auth.Session, bool) {
	c, ok := FromContext(ctx)
	if !ok {
		return nil, false
	}
	uc, ok := c.(UserCredential)
	if !ok || uc.Session == nil {
		return nil, false
	}
	return uc.Session, true
}
