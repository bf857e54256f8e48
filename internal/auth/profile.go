// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Dazno Contributors

package auth

import (
	"net/http"
	"time"

	"github.com/samber/oops"
)

// SessionCookieName is the name of the browser session cookie.
const SessionCookieName = "dazno_session"

// Profile names.
const (
	ProfileDevelopment = "development"
	ProfileProduction  = "production"
)

// SessionProfile holds the session lifetime and cookie attributes for a
// deployment.
type SessionProfile struct {
	Name     string
	MaxAge   time.Duration
	Secure   bool
	HTTPOnly bool
	SameSite http.SameSite
}

// DevelopmentProfile allows plain-HTTP local access.
var DevelopmentProfile = SessionProfile{
	Name:     ProfileDevelopment,
	MaxAge:   24 * time.Hour,
	Secure:   false,
	HTTPOnly: true,
	SameSite: http.SameSiteLaxMode,
}

// ProductionProfile is short-lived and HTTPS-only.
var ProductionProfile = SessionProfile{
	Name:     ProfileProduction,
	MaxAge:   2 * time.Hour,
	Secure:   true,
	HTTPOnly: true,
	SameSite: http.SameSiteStrictMode,
}

// ProfileByName resolves a profile name.
func ProfileByName(name string) (SessionProfile, error) {
	switch name {
	case ProfileDevelopment, "":
		return DevelopmentProfile, nil
	case ProfileProduction:
		return ProductionProfile, nil
	default:
		return SessionProfile{}, oops.Code("CONFIG_INVALID_PROFILE").
			With("profile", name).
			Errorf("unknown session profile %q", name)
	}
}

// Cookie builds the session cookie carrying token.
func (p SessionProfile) Cookie(token string) *http.Cookie {
	return &http.Cookie{
		Name:     SessionCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(p.MaxAge / time.Second),
		Secure:   p.Secure,
		HttpOnly: p.HTTPOnly,
		SameSite: p.SameSite,
	}
}

// ClearCookie builds a cookie that makes the browser drop the session.
func (p SessionProfile) ClearCookie() *http.Cookie {
	return &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Secure:   p.Secure,
		HttpOnly: p.HTTPOnly,
		SameSite: p.SameSite,
	}
}
