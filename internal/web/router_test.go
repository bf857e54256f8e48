// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Dazno Contributors

package web_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dazno/dazno-umbrel/internal/auth"
	"github.com/dazno/dazno-umbrel/internal/gate"
	"github.com/dazno/dazno-umbrel/internal/httpx"
	"github.com/dazno/dazno-umbrel/internal/observability"
	"github.com/dazno/dazno-umbrel/internal/ratelimit"
	"github.com/dazno/dazno-umbrel/internal/token"
	"github.com/dazno/dazno-umbrel/internal/web"
)

const (
	clientIP    = "198.51.100.7"
	liveCookie  = "live-session-token"
	adminCookie = "must-change-token"
)

type mockAuthenticator struct{ mock.Mock }

func (m *mockAuthenticator) Authenticate(ctx context.Context, username, password string) (*auth.User, error) {
	args := m.Called(ctx, username, password)
	u, _ := args.Get(0).(*auth.User)
	return u, args.Error(1)
}

func (m *mockAuthenticator) ChangePassword(ctx context.Context, id ulid.ULID, current, next string) (bool, error) {
	args := m.Called(ctx, id, current, next)
	return args.Bool(0), args.Error(1)
}

type mockSessions struct{ mock.Mock }

func (m *mockSessions) Login(ctx context.Context, u *auth.User, meta auth.ClientMetadata) (*auth.Session, string, error) {
	args := m.Called(ctx, u, meta)
	s, _ := args.Get(0).(*auth.Session)
	return s, args.String(1), args.Error(2)
}

func (m *mockSessions) Logout(ctx context.Context, tok string) error {
	return m.Called(ctx, tok).Error(0)
}

func (m *mockSessions) RevokeUser(ctx context.Context, userID, keep ulid.ULID) (int64, error) {
	args := m.Called(ctx, userID, keep)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockSessions) Profile() auth.SessionProfile {
	return auth.DevelopmentProfile
}

// sessionIDs are the session ids behind the fixture cookies.
var sessionIDs = map[string]ulid.ULID{
	liveCookie:  ulid.Make(),
	adminCookie: ulid.Make(),
}

// resolver maps cookie tokens to users for the gate.
type resolver map[string]*auth.User

func (r resolver) CurrentUser(_ context.Context, tok string) (*auth.User, *auth.Session, error) {
	u, ok := r[tok]
	if !ok {
		return nil, nil, auth.ErrSessionNotFound
	}
	return u, &auth.Session{ID: sessionIDs[tok], UserID: u.ID}, nil
}

type fixture struct {
	auth      *mockAuthenticator
	sessions  *mockSessions
	codec     *token.Codec
	metrics   *observability.Metrics
	user      *auth.User
	fresh     *auth.User
	router    http.Handler
	dashboard int
}

type fixtureOption func(*ratelimit.SetConfig, *web.Deps)

func newFixture(t *testing.T, opts ...fixtureOption) *fixture {
	t.Helper()
	var err error
	f := &fixture{
		auth:     &mockAuthenticator{},
		sessions: &mockSessions{},
		metrics:  observability.NewMetrics(prometheus.NewRegistry()),
	}
	f.user, err = auth.NewUser("alice", "$argon2id$placeholder", true, false)
	require.NoError(t, err)
	f.fresh, err = auth.NewUser("admin", "$argon2id$placeholder", true, true)
	require.NoError(t, err)

	f.codec, err = token.NewCodec([]byte("web-secret"), time.Hour)
	require.NoError(t, err)
	g, err := gate.New(resolver{liveCookie: f.user, adminCookie: f.fresh}, f.codec)
	require.NoError(t, err)

	cfg := ratelimit.DefaultSetConfig()
	deps := web.Deps{
		Auth:     f.auth,
		Sessions: f.sessions,
		Gate:     g,
		Metrics:  f.metrics,
		Version:  "1.2.3",
		Dashboard: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			f.dashboard++
			w.WriteHeader(http.StatusNoContent)
		}),
	}
	for _, opt := range opts {
		opt(&cfg, &deps)
	}
	limiters, err := ratelimit.NewSet(cfg, nil)
	require.NoError(t, err)
	t.Cleanup(limiters.Close)
	deps.Limiters = limiters

	f.router, err = web.NewRouter(deps)
	require.NoError(t, err)
	t.Cleanup(func() {
		f.auth.AssertExpectations(t)
		f.sessions.AssertExpectations(t)
	})
	return f
}

func (f *fixture) do(r *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, r)
	return rec
}

func get(path string) *http.Request {
	r := httptest.NewRequest(http.MethodGet, path, nil)
	r.RemoteAddr = clientIP + ":40000"
	return r
}

func postForm(path string, form url.Values) *http.Request {
	r := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	r.RemoteAddr = clientIP + ":40000"
	return r
}

func withCookie(r *http.Request, value string) *http.Request {
	r.AddCookie(&http.Cookie{Name: auth.SessionCookieName, Value: value})
	return r
}

func sessionCookie(rec *httptest.ResponseRecorder) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == auth.SessionCookieName {
			return c
		}
	}
	return nil
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) httpx.ErrorBody {
	t.Helper()
	var body httpx.APIError
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body.Error
}

func TestNewRouter_RequiresDependencies(t *testing.T) {
	_, err := web.NewRouter(web.Deps{})
	assert.ErrorContains(t, err, "authenticator is required")

	_, err = web.NewRouter(web.Deps{Auth: &mockAuthenticator{}, Sessions: &mockSessions{}})
	assert.ErrorContains(t, err, "gate is required")
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	rec := f.do(get("/api/health"))

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "1.2.3", body["version"])
	assert.NotEmpty(t, body["timestamp"])
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
}

func TestLoginPage(t *testing.T) {
	t.Run("renders form", func(t *testing.T) {
		f := newFixture(t)
		rec := f.do(get("/login"))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
		assert.Contains(t, rec.Body.String(), `action="/login"`)
	})

	t.Run("signed in user is sent to the dashboard", func(t *testing.T) {
		f := newFixture(t)
		rec := f.do(withCookie(get("/login"), liveCookie))
		assert.Equal(t, http.StatusSeeOther, rec.Code)
		assert.Equal(t, "/", rec.Header().Get("Location"))
	})
}

func TestLogin_Success(t *testing.T) {
	f := newFixture(t)
	f.auth.On("Authenticate", mock.Anything, "alice", "Passw0rd!").Return(f.user, nil)
	f.sessions.On("Login", mock.Anything, f.user, mock.MatchedBy(func(m auth.ClientMetadata) bool {
		return m.IPAddress == clientIP
	})).Return(&auth.Session{}, "new-token", nil)

	rec := f.do(postForm("/login", url.Values{"username": {"alice"}, "password": {"Passw0rd!"}}))

	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Location"))
	c := sessionCookie(rec)
	require.NotNil(t, c)
	assert.Equal(t, "new-token", c.Value)
	assert.True(t, c.HttpOnly)
	assert.InDelta(t, 1, testutil.ToFloat64(f.metrics.LoginAttempts.WithLabelValues(observability.LoginSucceeded)), 0)
}

func TestLogin_MustChangePasswordRedirect(t *testing.T) {
	f := newFixture(t)
	f.auth.On("Authenticate", mock.Anything, "admin", "generated").Return(f.fresh, nil)
	f.sessions.On("Login", mock.Anything, f.fresh, mock.Anything).Return(&auth.Session{}, "tok", nil)

	rec := f.do(postForm("/login", url.Values{"username": {"admin"}, "password": {"generated"}}))

	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/change-password", rec.Header().Get("Location"))
}

func TestLogin_RotatesExistingSession(t *testing.T) {
	f := newFixture(t)
	f.auth.On("Authenticate", mock.Anything, "alice", "Passw0rd!").Return(f.user, nil)
	f.sessions.On("Logout", mock.Anything, "old-token").Return(nil).Once()
	f.sessions.On("Login", mock.Anything, f.user, mock.Anything).Return(&auth.Session{}, "new-token", nil)

	r := withCookie(postForm("/login", url.Values{"username": {"alice"}, "password": {"Passw0rd!"}}), "old-token")
	rec := f.do(r)

	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "new-token", sessionCookie(rec).Value)
}

func TestLogin_Rejected(t *testing.T) {
	f := newFixture(t)
	f.auth.On("Authenticate", mock.Anything, "alice", "wrong").
		Return(nil, auth.ErrInvalidCredentials)

	rec := f.do(postForm("/login", url.Values{"username": {"alice"}, "password": {"wrong"}}))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "Invalid username or password")
	assert.Nil(t, sessionCookie(rec))
	f.sessions.AssertNotCalled(t, "Login", mock.Anything, mock.Anything, mock.Anything)
	assert.InDelta(t, 1, testutil.ToFloat64(f.metrics.LoginAttempts.WithLabelValues(observability.LoginRejected)), 0)
}

func TestLogin_StoreFailure(t *testing.T) {
	f := newFixture(t)
	f.auth.On("Authenticate", mock.Anything, "alice", "pw").Return(nil, errors.New("db down"))

	rec := f.do(postForm("/login", url.Values{"username": {"alice"}, "password": {"pw"}}))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "db down")
}

func TestLogin_RateLimited(t *testing.T) {
	f := newFixture(t, func(cfg *ratelimit.SetConfig, _ *web.Deps) {
		cfg.Login = ratelimit.Limit{MaxRequests: 2, Window: time.Minute}
	})
	f.auth.On("Authenticate", mock.Anything, "alice", "wrong").
		Return(nil, auth.ErrInvalidCredentials).Twice()

	form := url.Values{"username": {"alice"}, "password": {"wrong"}}
	assert.Equal(t, http.StatusUnauthorized, f.do(postForm("/login", form)).Code)
	assert.Equal(t, http.StatusUnauthorized, f.do(postForm("/login", form)).Code)

	rec := f.do(postForm("/login", form))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
}

func TestLogout(t *testing.T) {
	f := newFixture(t)
	f.sessions.On("Logout", mock.Anything, liveCookie).Return(nil)

	rec := f.do(withCookie(get("/logout"), liveCookie))

	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/login", rec.Header().Get("Location"))
	c := sessionCookie(rec)
	require.NotNil(t, c)
	assert.Empty(t, c.Value)
	assert.Negative(t, c.MaxAge)
}

func TestLogout_WithoutCookie(t *testing.T) {
	f := newFixture(t)
	rec := f.do(get("/logout"))
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	f.sessions.AssertNotCalled(t, "Logout", mock.Anything, mock.Anything)
}

func TestChangePassword(t *testing.T) {
	form := func(current, next, confirm string) url.Values {
		return url.Values{
			"current_password": {current},
			"new_password":     {next},
			"confirm_password": {confirm},
		}
	}

	t.Run("page requires a session", func(t *testing.T) {
		f := newFixture(t)
		rec := f.do(get("/change-password"))
		assert.Equal(t, http.StatusSeeOther, rec.Code)
		assert.Equal(t, "/login", rec.Header().Get("Location"))
	})

	t.Run("service token is not enough", func(t *testing.T) {
		f := newFixture(t)
		r := get("/change-password")
		r.Header.Set("Authorization", "Bearer "+f.codec.Issue())
		rec := f.do(r)
		assert.Equal(t, http.StatusSeeOther, rec.Code)
		assert.Equal(t, "/login", rec.Header().Get("Location"))
	})

	t.Run("page shows must change notice", func(t *testing.T) {
		f := newFixture(t)
		rec := f.do(withCookie(get("/change-password"), adminCookie))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "must choose a new password")
	})

	t.Run("mismatch", func(t *testing.T) {
		f := newFixture(t)
		rec := f.do(withCookie(postForm("/change-password", form("Old1!pass", "New1!pass", "Other1!pass")), liveCookie))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "New passwords do not match")
		f.auth.AssertNotCalled(t, "ChangePassword", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("weak password", func(t *testing.T) {
		f := newFixture(t)
		f.auth.On("ChangePassword", mock.Anything, f.user.ID, "Old1!pass", "short").
			Return(false, auth.ValidatePasswordStrength("short"))
		rec := f.do(withCookie(postForm("/change-password", form("Old1!pass", "short", "short")), liveCookie))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "at least 8 characters")
	})

	t.Run("wrong current password", func(t *testing.T) {
		f := newFixture(t)
		f.auth.On("ChangePassword", mock.Anything, f.user.ID, "nope", "New1!pass").Return(false, nil)
		rec := f.do(withCookie(postForm("/change-password", form("nope", "New1!pass", "New1!pass")), liveCookie))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "Current password is incorrect")
	})

	t.Run("store failure", func(t *testing.T) {
		f := newFixture(t)
		f.auth.On("ChangePassword", mock.Anything, f.user.ID, "Old1!pass", "New1!pass").
			Return(false, errors.New("db down"))
		rec := f.do(withCookie(postForm("/change-password", form("Old1!pass", "New1!pass", "New1!pass")), liveCookie))
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})

	t.Run("success", func(t *testing.T) {
		f := newFixture(t)
		f.auth.On("ChangePassword", mock.Anything, f.user.ID, "Old1!pass", "New1!pass").Return(true, nil)
		f.sessions.On("RevokeUser", mock.Anything, f.user.ID, sessionIDs[liveCookie]).Return(int64(2), nil).Once()
		rec := f.do(withCookie(postForm("/change-password", form("Old1!pass", "New1!pass", "New1!pass")), liveCookie))
		assert.Equal(t, http.StatusSeeOther, rec.Code)
		assert.Equal(t, "/?password_changed=true", rec.Header().Get("Location"))
		f.sessions.AssertExpectations(t)
	})

	t.Run("revocation failure still completes the change", func(t *testing.T) {
		f := newFixture(t)
		f.auth.On("ChangePassword", mock.Anything, f.user.ID, "Old1!pass", "New1!pass").Return(true, nil)
		f.sessions.On("RevokeUser", mock.Anything, f.user.ID, sessionIDs[liveCookie]).Return(int64(0), errors.New("db down"))
		rec := f.do(withCookie(postForm("/change-password", form("Old1!pass", "New1!pass", "New1!pass")), liveCookie))
		assert.Equal(t, http.StatusSeeOther, rec.Code)
		assert.Equal(t, "/?password_changed=true", rec.Header().Get("Location"))
	})
}

func TestAuthStatus(t *testing.T) {
	decode := func(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
		t.Helper()
		require.Equal(t, http.StatusOK, rec.Code)
		var body map[string]any
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
		return body
	}

	t.Run("user", func(t *testing.T) {
		f := newFixture(t)
		body := decode(t, f.do(withCookie(get("/api/auth/status"), adminCookie)))
		assert.Equal(t, true, body["authenticated"])
		assert.Equal(t, "admin", body["username"])
		assert.Equal(t, true, body["must_change_password"])
		assert.Equal(t, true, body["is_admin"])
		assert.Equal(t, false, body["service"])
	})

	t.Run("service", func(t *testing.T) {
		f := newFixture(t)
		r := get("/api/auth/status")
		r.Header.Set("Authorization", "Bearer "+f.codec.Issue())
		body := decode(t, f.do(r))
		assert.Equal(t, true, body["authenticated"])
		assert.Equal(t, true, body["service"])
		assert.NotContains(t, body, "username")
	})

	t.Run("anonymous", func(t *testing.T) {
		f := newFixture(t)
		rec := f.do(get("/api/auth/status"))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, httpx.CodeUnauthorized, decodeError(t, rec).Code)
	})
}

func TestDashboardRoutes(t *testing.T) {
	tests := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/"},
		{http.MethodGet, "/settings"},
		{http.MethodGet, "/api/metrics"},
		{http.MethodGet, "/api/node/channels"},
		{http.MethodGet, "/api/recommendations/rec_01-a/optimal-time"},
		{http.MethodGet, "/ws/realtime"},
		{http.MethodPost, "/api/actions"},
		{http.MethodPost, "/api/automation/mode"},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			f := newFixture(t)
			r := withCookie(httptest.NewRequest(tt.method, tt.path, nil), liveCookie)
			r.RemoteAddr = clientIP + ":40000"
			rec := f.do(r)
			assert.Equal(t, http.StatusNoContent, rec.Code)
			assert.Equal(t, 1, f.dashboard)
		})
	}
}

func TestDashboardRoutes_Unauthenticated(t *testing.T) {
	f := newFixture(t)

	rec := f.do(get("/api/metrics"))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(get("/history"))
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/login", rec.Header().Get("Location"))
	assert.Zero(t, f.dashboard)
}

func TestActionsLimiter(t *testing.T) {
	f := newFixture(t, func(cfg *ratelimit.SetConfig, _ *web.Deps) {
		cfg.Actions = ratelimit.Limit{MaxRequests: 1, Window: 5 * time.Minute}
	})
	post := func() *httptest.ResponseRecorder {
		r := httptest.NewRequest(http.MethodPost, "/api/actions", nil)
		r.RemoteAddr = clientIP + ":40000"
		r.Header.Set("Authorization", "Bearer "+f.codec.Issue())
		return f.do(r)
	}

	assert.Equal(t, http.StatusNoContent, post().Code)
	rec := post()
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "300", rec.Header().Get("Retry-After"))

	// Reads draw from the general limiter and are unaffected.
	assert.Equal(t, http.StatusNoContent, f.do(withCookie(get("/api/status"), liveCookie)).Code)
}

func TestRecommendationIDValidation(t *testing.T) {
	for _, id := range []string{"has.dot", "sp%20ace", strings.Repeat("a", 101)} {
		t.Run(id[:min(len(id), 10)], func(t *testing.T) {
			f := newFixture(t)
			rec := f.do(withCookie(get("/api/recommendations/"+id+"/optimal-time"), liveCookie))
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, httpx.CodeInvalidInput, decodeError(t, rec).Code)
			assert.Zero(t, f.dashboard)
		})
	}
}

func TestValidID(t *testing.T) {
	assert.True(t, web.ValidID("abc_DEF-123"))
	assert.True(t, web.ValidID(strings.Repeat("x", 100)))
	assert.False(t, web.ValidID(""))
	assert.False(t, web.ValidID("a/b"))
	assert.False(t, web.ValidID(strings.Repeat("x", 101)))
}

func TestDashboardNotConfigured(t *testing.T) {
	f := newFixture(t, func(_ *ratelimit.SetConfig, d *web.Deps) { d.Dashboard = nil })
	rec := f.do(withCookie(get("/api/recommendations"), liveCookie))
	assert.Equal(t, http.StatusNotImplemented, rec.Code)
	assert.Equal(t, httpx.CodeNotImplemented, decodeError(t, rec).Code)
}

func TestUnknownAPIPath(t *testing.T) {
	f := newFixture(t)
	rec := f.do(get("/api/nope"))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NOT_FOUND", decodeError(t, rec).Code)
}

func TestRequestMetrics(t *testing.T) {
	f := newFixture(t)
	f.do(get("/api/health"))
	f.do(withCookie(get("/api/recommendations/abc/optimal-time"), liveCookie))

	assert.InDelta(t, 1, testutil.ToFloat64(f.metrics.HTTPRequests.WithLabelValues("/api/health", "GET", "200")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(
		f.metrics.HTTPRequests.WithLabelValues("/api/recommendations/{id}/optimal-time", "GET", "204")), 0)
}
