// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Dazno Contributors

package gate

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/samber/oops"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/dazno/dazno-umbrel/internal/auth"
	"github.com/dazno/dazno-umbrel/internal/httpx"
	"github.com/dazno/dazno-umbrel/pkg/errutil"
)

var tracer = otel.Tracer("dazno/gate")

// DefaultLoginPath is where page requests without a credential are sent.
const DefaultLoginPath = "/login"

// SessionResolver resolves a session cookie token to its user.
type SessionResolver interface {
	CurrentUser(ctx context.Context, token string) (*auth.User, *auth.Session, error)
}

// TokenVerifier checks a bearer token.
type TokenVerifier interface {
	Verify(token string) error
}

// Limiter admits or denies a request for a client key.
type Limiter interface {
	Name() string
	Allow(key string) (allowed bool, retryAfter time.Duration)
}

// Gate authenticates requests and applies rate limits in front of protected
// handlers.
type Gate struct {
	sessions   SessionResolver
	tokens     TokenVerifier
	cookieName string
	profile    auth.SessionProfile
	loginPath  string
	logger     *slog.Logger
}

// Option configures a Gate.
type Option func(*Gate)

// WithLogger sets the gate logger.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Gate) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// WithCookieName overrides auth.SessionCookieName.
func WithCookieName(name string) Option {
	return func(g *Gate) {
		if name != "" {
			g.cookieName = name
		}
	}
}

// WithSessionProfile sets the cookie attributes used when a rejected session
// cookie is cleared. It defaults to auth.DevelopmentProfile.
func WithSessionProfile(profile auth.SessionProfile) Option {
	return func(g *Gate) {
		g.profile = profile
	}
}

// WithLoginPath overrides DefaultLoginPath.
func WithLoginPath(path string) Option {
	return func(g *Gate) {
		if path != "" {
			g.loginPath = path
		}
	}
}

// New creates a Gate.
func New(sessions SessionResolver, tokens TokenVerifier, opts ...Option) (*Gate, error) {
	if sessions == nil {
		return nil, oops.Code("GATE_INVALID_CONFIG").Errorf("session resolver is required")
	}
	if tokens == nil {
		return nil, oops.Code("GATE_INVALID_CONFIG").Errorf("token verifier is required")
	}
	g := &Gate{
		sessions:   sessions,
		tokens:     tokens,
		cookieName: auth.SessionCookieName,
		profile:    auth.DevelopmentProfile,
		loginPath:  DefaultLoginPath,
		logger:     slog.Default().With("component", "gate"),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Authenticate finds the request's credential. The session cookie is tried
// first; if it is absent or rejected, the bearer token is tried. A storage
// failure while resolving the cookie is returned as is and the token is not
// consulted.
func (g *Gate) Authenticate(r *http.Request) (Credential, error) {
	ctx := r.Context()

	var sessionErr error
	if c, err := r.Cookie(g.cookieName); err == nil && c.Value != "" {
		user, session, err := g.sessions.CurrentUser(ctx, c.Value)
		if err == nil {
			return UserCredential{User: user, Session: session}, nil
		}
		if !auth.IsRejection(err) {
			return nil, err
		}
		sessionErr = err
	}

	if tok, ok := BearerToken(r); ok {
		if err := g.tokens.Verify(tok); err != nil {
			return nil, err
		}
		return ServiceCredential{}, nil
	}

	if sessionErr != nil {
		return nil, sessionErr
	}
	return nil, oops.Code("AUTH_MISSING_CREDENTIAL").Wrap(auth.ErrMissingCredential)
}

// Protect returns middleware that requires a credential and then consumes a
// slot from limiter keyed by client IP. The credential is attached to the
// request context.
func (g *Gate) Protect(limiter Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, span := tracer.Start(r.Context(), "gate.check",
				trace.WithAttributes(attribute.String("gate.limiter", limiter.Name())))
			r = r.WithContext(ctx)
			class := routeClass(r)

			cred, err := g.Authenticate(r)
			if err != nil {
				g.reject(w, r, span, class, err)
				span.End()
				return
			}
			span.SetAttributes(attribute.String("gate.trust", cred.TrustLevel().String()))

			if !g.admit(w, r, span, class, limiter) {
				span.End()
				return
			}

			finish(span, class, OutcomeForwarded)
			span.End()
			next.ServeHTTP(w, r.WithContext(WithCredential(r.Context(), cred)))
		})
	}
}

// RateLimit returns middleware that only applies limiter, for public routes.
func (g *Gate) RateLimit(limiter Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, span := tracer.Start(r.Context(), "gate.rate_limit",
				trace.WithAttributes(attribute.String("gate.limiter", limiter.Name())))
			r = r.WithContext(ctx)
			class := routeClass(r)

			if !g.admit(w, r, span, class, limiter) {
				span.End()
				return
			}
			finish(span, class, OutcomeForwarded)
			span.End()
			next.ServeHTTP(w, r)
		})
	}
}

// RequireUser rejects callers that are not a session user. It must run after
// Protect. API paths answer 403; pages redirect to the login page.
func (g *Gate) RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := UserFromContext(r.Context()); ok {
			next.ServeHTTP(w, r)
			return
		}
		class := routeClass(r)
		if class == ClassAPI {
			recordDecision(class, OutcomeForbidden)
			httpx.WriteError(w, http.StatusForbidden, httpx.CodeForbidden, "user session required")
			return
		}
		recordDecision(class, OutcomeRedirected)
		http.Redirect(w, r, g.loginPath, http.StatusSeeOther)
	})
}

func (g *Gate) admit(w http.ResponseWriter, r *http.Request, span trace.Span, class string, limiter Limiter) bool {
	key := ClientKey(r)
	allowed, retryAfter := limiter.Allow(key)
	if allowed {
		return true
	}

	span.SetAttributes(attribute.Int64("gate.retry_after_ms", retryAfter.Milliseconds()))
	finish(span, class, OutcomeRateLimited)
	g.logger.WarnContext(r.Context(), "request rate limited",
		"limiter", limiter.Name(),
		"client", key,
		"path", r.URL.Path,
		"retry_after", retryAfter.String())

	httpx.SetRetryAfter(w, retryAfter)
	httpx.WriteError(w, http.StatusTooManyRequests, httpx.CodeRateLimited, "too many requests")
	return false
}

func (g *Gate) reject(w http.ResponseWriter, r *http.Request, span trace.Span, class string, err error) {
	status, code := Classify(err)
	if status == http.StatusInternalServerError {
		span.RecordError(err)
		span.SetStatus(codes.Error, "credential check failed")
		finish(span, class, OutcomeError)
		errutil.LogErrorContext(r.Context(), g.logger, "credential check failed", err)
		httpx.WriteError(w, status, code, "internal error")
		return
	}

	g.logger.DebugContext(r.Context(), "request rejected",
		"path", r.URL.Path, "reason", errutil.Code(err))

	// Any cookie that reaches this point failed to resolve.
	if c, cookieErr := r.Cookie(g.cookieName); cookieErr == nil && c.Value != "" {
		dropped := g.profile.ClearCookie()
		dropped.Name = g.cookieName
		http.SetCookie(w, dropped)
	}

	if class == ClassAPI {
		finish(span, class, OutcomeUnauthenticated)
		httpx.WriteError(w, status, code, "authentication required")
		return
	}
	finish(span, class, OutcomeRedirected)
	http.Redirect(w, r, g.loginPath, http.StatusSeeOther)
}

func finish(span trace.Span, class, outcome string) {
	span.SetAttributes(
		attribute.String("gate.route_class", class),
		attribute.String("gate.outcome", outcome),
	)
	recordDecision(class, outcome)
}

func routeClass(r *http.Request) string {
	if httpx.IsAPIPath(r.URL.Path) {
		return ClassAPI
	}
	return ClassPage
}

// BearerToken extracts the token from an "Authorization: Bearer" header.
func BearerToken(r *http.Request) (string, bool) {
	scheme, tok, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	tok = strings.TrimSpace(tok)
	return tok, tok != ""
}

// ClientKey returns the caller IP from RemoteAddr. When proxy headers are
// trusted, chi's RealIP middleware has already rewritten RemoteAddr.
func ClientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
