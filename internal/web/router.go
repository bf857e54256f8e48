// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Dazno Contributors

// Package web is the dashboard's HTTP surface: the login and password pages,
// the public health endpoint and the protected dashboard routes behind the
// access gate.
package web

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/dazno/dazno-umbrel/internal/auth"
	"github.com/dazno/dazno-umbrel/internal/gate"
	"github.com/dazno/dazno-umbrel/internal/httpx"
	"github.com/dazno/dazno-umbrel/internal/observability"
	"github.com/dazno/dazno-umbrel/internal/ratelimit"
)

// Authenticator checks passwords. *auth.Service implements it.
type Authenticator interface {
	Authenticate(ctx context.Context, username, password string) (*auth.User, error)
	ChangePassword(ctx context.Context, userID ulid.ULID, current, next string) (bool, error)
}

// SessionStore creates and ends browser sessions. *auth.SessionManager
// implements it.
type SessionStore interface {
	Login(ctx context.Context, user *auth.User, meta auth.ClientMetadata) (*auth.Session, string, error)
	Logout(ctx context.Context, token string) error
	RevokeUser(ctx context.Context, userID, keep ulid.ULID) (int64, error)
	Profile() auth.SessionProfile
}

// Deps are the collaborators of the router.
type Deps struct {
	Auth     Authenticator
	Sessions SessionStore
	Gate     *gate.Gate
	Limiters *ratelimit.Set

	// Dashboard serves every protected dashboard route. Nil answers 501.
	Dashboard http.Handler
	// Metrics may be nil.
	Metrics *observability.Metrics
	Logger  *slog.Logger

	Version string
	// TrustProxyHeaders enables chi's RealIP so rate limits key on the
	// forwarded client address.
	TrustProxyHeaders bool
}

func (d Deps) validate() error {
	switch {
	case d.Auth == nil:
		return oops.Code("WEB_INVALID_CONFIG").Errorf("authenticator is required")
	case d.Sessions == nil:
		return oops.Code("WEB_INVALID_CONFIG").Errorf("session store is required")
	case d.Gate == nil:
		return oops.Code("WEB_INVALID_CONFIG").Errorf("gate is required")
	case d.Limiters == nil || d.Limiters.General == nil || d.Limiters.Actions == nil || d.Limiters.Login == nil:
		return oops.Code("WEB_INVALID_CONFIG").Errorf("general, actions and login limiters are required")
	}
	return nil
}

type handler struct {
	auth      Authenticator
	sessions  SessionStore
	gate      *gate.Gate
	metrics   *observability.Metrics
	logger    *slog.Logger
	version   string
	dashboard http.Handler
}

// NewRouter builds the dashboard router.
func NewRouter(deps Deps) (http.Handler, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default().With("component", "web")
	}
	dashboard := deps.Dashboard
	if dashboard == nil {
		dashboard = http.HandlerFunc(notImplemented)
	}
	h := &handler{
		auth:      deps.Auth,
		sessions:  deps.Sessions,
		gate:      deps.Gate,
		metrics:   deps.Metrics,
		logger:    logger,
		version:   deps.Version,
		dashboard: dashboard,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	if deps.TrustProxyHeaders {
		r.Use(middleware.RealIP)
	}
	r.Use(requestLogger(logger, deps.Metrics))
	r.Use(middleware.Recoverer)
	r.Use(securityHeaders)

	r.Get("/api/health", h.health)
	r.Get("/login", h.loginPage)
	r.With(deps.Gate.RateLimit(deps.Limiters.Login)).Post("/login", h.login)
	r.Get("/logout", h.logout)

	r.Group(func(r chi.Router) {
		r.Use(deps.Gate.Protect(deps.Limiters.General))

		r.With(deps.Gate.RequireUser).Get("/change-password", h.changePasswordPage)
		r.With(deps.Gate.RequireUser).Post("/change-password", h.changePassword)
		r.Get("/api/auth/status", h.authStatus)

		for _, page := range []string{"/", "/superior", "/recommendations", "/history", "/settings"} {
			r.Get(page, h.dashboard.ServeHTTP)
		}
		for _, api := range []string{
			"/api/recommendations",
			"/api/metrics",
			"/api/status",
			"/api/automation/settings",
			"/api/node/info",
			"/api/node/channels",
			"/api/analytics/node",
			"/api/competitive-analysis",
			"/ws/realtime",
		} {
			r.Get(api, h.dashboard.ServeHTTP)
		}
		r.With(validateIDParam("id")).Get("/api/recommendations/{id}/optimal-time", h.dashboard.ServeHTTP)
	})

	r.Group(func(r chi.Router) {
		r.Use(deps.Gate.Protect(deps.Limiters.Actions))

		for _, action := range []string{
			"/api/actions",
			"/api/recommendations/auto-execute",
			"/api/recommendations/simulate",
			"/api/recommendations/schedule",
			"/api/automation/mode",
			"/api/automation/max-actions",
			"/api/automation/auto-execution",
			"/api/analysis/force-deep",
		} {
			r.Post(action, h.dashboard.ServeHTTP)
		}
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		if httpx.IsAPIPath(r.URL.Path) {
			httpx.WriteError(w, http.StatusNotFound, "NOT_FOUND", "not found")
			return
		}
		http.NotFound(w, r)
	})

	return r, nil
}

func notImplemented(w http.ResponseWriter, _ *http.Request) {
	httpx.WriteError(w, http.StatusNotImplemented, httpx.CodeNotImplemented, "dashboard backend not configured")
}
