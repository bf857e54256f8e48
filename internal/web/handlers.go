// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Dazno Contributors

package web

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/dazno/dazno-umbrel/internal/auth"
	"github.com/dazno/dazno-umbrel/internal/gate"
	"github.com/dazno/dazno-umbrel/internal/httpx"
	"github.com/dazno/dazno-umbrel/internal/observability"
	"github.com/dazno/dazno-umbrel/pkg/errutil"
)

const maxFormBytes = 64 << 10

// Messages shown on the auth pages. The login failure text never says which
// of username or password was wrong.
const (
	msgInvalidLogin      = "Invalid username or password"
	msgLoginUnavailable  = "Sign in is temporarily unavailable, try again later"
	msgPasswordsMismatch = "New passwords do not match"
	msgWrongPassword     = "Current password is incorrect"
	msgChangeFailed      = "Password could not be changed, try again later"
)

var msgWeakPassword = fmt.Sprintf(
	"Password must have at least %d characters with upper and lower case letters, a digit and a symbol",
	auth.MinPasswordLength)

type healthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version"`
}

func (h *handler) health(w http.ResponseWriter, _ *http.Request) {
	httpx.WriteJSON(w, http.StatusOK, healthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC(),
		Version:   h.version,
	})
}

type authStatusResponse struct {
	Authenticated      bool   `json:"authenticated"`
	Username           string `json:"username,omitempty"`
	MustChangePassword bool   `json:"must_change_password"`
	IsAdmin            bool   `json:"is_admin"`
	Service            bool   `json:"service"`
}

func (h *handler) authStatus(w http.ResponseWriter, r *http.Request) {
	cred, _ := gate.FromContext(r.Context())
	resp := authStatusResponse{Authenticated: cred != nil}
	switch c := cred.(type) {
	case gate.UserCredential:
		resp.Username = c.User.Username
		resp.MustChangePassword = c.User.MustChangePassword
		resp.IsAdmin = c.User.IsAdmin
	case gate.ServiceCredential:
		resp.Service = true
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}

func (h *handler) loginPage(w http.ResponseWriter, r *http.Request) {
	if cred, err := h.gate.Authenticate(r); err == nil {
		if uc, ok := cred.(gate.UserCredential); ok {
			http.Redirect(w, r, landingPath(uc.User), http.StatusSeeOther)
			return
		}
	}
	h.render(w, r, http.StatusOK, "login", loginView{})
}

func (h *handler) login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	r.Body = http.MaxBytesReader(w, r.Body, maxFormBytes)
	if err := r.ParseForm(); err != nil {
		h.render(w, r, http.StatusBadRequest, "login", loginView{Error: msgInvalidLogin})
		return
	}
	username := r.PostForm.Get("username")
	password := r.PostForm.Get("password")
	view := loginView{Username: username}

	user, err := h.auth.Authenticate(ctx, username, password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			h.metrics.RecordLogin(observability.LoginRejected)
			h.logger.InfoContext(ctx, "login rejected", "client", gate.ClientKey(r))
			view.Error = msgInvalidLogin
			h.render(w, r, http.StatusUnauthorized, "login", view)
			return
		}
		h.metrics.RecordLogin(observability.LoginError)
		errutil.LogErrorContext(ctx, h.logger, "login failed", err)
		view.Error = msgLoginUnavailable
		h.render(w, r, http.StatusInternalServerError, "login", view)
		return
	}

	// A fresh session per login; any session the browser already held ends.
	if old, err := r.Cookie(auth.SessionCookieName); err == nil && old.Value != "" {
		if err := h.sessions.Logout(ctx, old.Value); err != nil {
			h.logger.WarnContext(ctx, "failed to end previous session", "error", err)
		}
	}

	_, token, err := h.sessions.Login(ctx, user, auth.ClientMetadata{
		UserAgent: r.UserAgent(),
		IPAddress: gate.ClientKey(r),
	})
	if err != nil {
		h.metrics.RecordLogin(observability.LoginError)
		errutil.LogErrorContext(ctx, h.logger, "session creation failed", err)
		view.Error = msgLoginUnavailable
		h.render(w, r, http.StatusInternalServerError, "login", view)
		return
	}

	h.metrics.RecordLogin(observability.LoginSucceeded)
	http.SetCookie(w, h.sessions.Profile().Cookie(token))
	http.Redirect(w, r, landingPath(user), http.StatusSeeOther)
}

func (h *handler) logout(w http.ResponseWriter, r *http.Request) {
	profile := h.sessions.Profile()
	if c, err := r.Cookie(auth.SessionCookieName); err == nil && c.Value != "" {
		if err := h.sessions.Logout(r.Context(), c.Value); err != nil {
			errutil.LogErrorContext(r.Context(), h.logger, "logout failed", err)
		}
	}
	http.SetCookie(w, profile.ClearCookie())
	http.Redirect(w, r, gate.DefaultLoginPath, http.StatusSeeOther)
}

func (h *handler) changePasswordPage(w http.ResponseWriter, r *http.Request) {
	user, _ := gate.UserFromContext(r.Context())
	h.render(w, r, http.StatusOK, "change_password", passwordView(user, ""))
}

func (h *handler) changePassword(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user, _ := gate.UserFromContext(ctx)

	r.Body = http.MaxBytesReader(w, r.Body, maxFormBytes)
	if err := r.ParseForm(); err != nil {
		h.render(w, r, http.StatusBadRequest, "change_password", passwordView(user, msgChangeFailed))
		return
	}
	current := r.PostForm.Get("current_password")
	next := r.PostForm.Get("new_password")
	if next != r.PostForm.Get("confirm_password") {
		h.render(w, r, http.StatusBadRequest, "change_password", passwordView(user, msgPasswordsMismatch))
		return
	}

	changed, err := h.auth.ChangePassword(ctx, user.ID, current, next)
	switch {
	case errors.Is(err, auth.ErrWeakPassword):
		h.render(w, r, http.StatusBadRequest, "change_password", passwordView(user, msgWeakPassword))
	case err != nil:
		errutil.LogErrorContext(ctx, h.logger, "password change failed", err)
		h.render(w, r, http.StatusInternalServerError, "change_password", passwordView(user, msgChangeFailed))
	case !changed:
		h.render(w, r, http.StatusBadRequest, "change_password", passwordView(user, msgWrongPassword))
	default:
		var keep ulid.ULID
		if s, ok := gate.SessionFromContext(ctx); ok {
			keep = s.ID
		}
		if _, err := h.sessions.RevokeUser(ctx, user.ID, keep); err != nil {
			errutil.LogErrorContext(ctx, h.logger, "revoking other sessions failed", err)
		}
		http.Redirect(w, r, "/?password_changed=true", http.StatusSeeOther)
	}
}

func (h *handler) render(w http.ResponseWriter, r *http.Request, status int, name string, data any) {
	if err := render(w, status, name, data); err != nil {
		errutil.LogErrorContext(r.Context(), h.logger, "page render failed", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

func passwordView(user *auth.User, msg string) changePasswordView {
	return changePasswordView{
		Username:   user.Username,
		MustChange: user.MustChangePassword,
		Error:      msg,
		MinLength:  auth.MinPasswordLength,
	}
}

func landingPath(user *auth.User) string {
	if user.MustChangePassword {
		return "/change-password"
	}
	return "/"
}
