// Copyright 2026 Canonical Ltd.
// SPDX-License-Identifier: AGPL-3.0

package authentication

import (
	"context"
	"net/http"
	"strings"

	"github.com/crewos/crew-service/internal/logging"
	"github.com/crewos/crew-service/internal/monitoring"
	"github.com/crewos/crew-service/internal/tracing"
)

// SessionCookieName is the cookie the browser flow stores the session
// token in. API clients use the Authorization header instead.
const SessionCookieName = "crew_session"

// RotatedTokenHeader carries a replacement token back to the client when
// revalidation refreshed the capability snapshot.
const RotatedTokenHeader = "X-Session-Token"

var resolutionErrorContextKey = struct{ name string }{"authentication resolution error"}

// WithResolutionError records why session resolution failed for this
// request.
func WithResolutionError(ctx context.Context, err error) context.Context {
	return context.WithValue(ctx, resolutionErrorContextKey, err)
}

// ResolutionError returns the session failure recorded by the
// middleware, if any. The gate uses it to distinguish an expired session
// from a request that carried no credential at all.
func ResolutionError(ctx context.Context) error {
	err, _ := ctx.Value(resolutionErrorContextKey).(error)
	return err
}

type Middleware struct {
	resolver ResolverInterface

	tracer  tracing.TracingInterface
	monitor monitoring.MonitorInterface
	logger  logging.LoggerInterface
}

func NewMiddleware(resolver ResolverInterface, tracer tracing.TracingInterface, monitor monitoring.MonitorInterface, logger logging.LoggerInterface) *Middleware {
	return &Middleware{
		resolver: resolver,
		tracer:   tracer,
		monitor:  monitor,
		logger:   logger,
	}
}

// Authenticate resolves the session credential when one is present and
// injects the principal into the request context. It never rejects on
// its own: enforcement is the gate's job, which also needs to run its
// earlier pipeline steps first.
func (m *Middleware) Authenticate() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, span := m.tracer.Start(r.Context(), "authentication.Middleware.Authenticate")
			defer span.End()

			token, found := m.getToken(r)
			if !found {
				ctx = WithResolutionError(ctx, ErrNoSession)
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}

			principal, rotated, err := m.resolver.Resolve(ctx, token)
			if err != nil {
				m.logger.Debugf("session resolution failed: %v", err)
				ctx = WithResolutionError(ctx, err)
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}

			if rotated != "" {
				m.setRotatedToken(w, r, rotated)
			}

			ctx = WithPrincipal(ctx, principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// getToken prefers the Authorization header (RFC 6750 bearer format)
// and falls back to the session cookie.
func (m *Middleware) getToken(r *http.Request) (string, bool) {
	bearer := r.Header.Get("Authorization")
	if bearer != "" {
		if !strings.HasPrefix(bearer, "Bearer ") {
			return "", false
		}
		return strings.TrimPrefix(bearer, "Bearer "), true
	}

	cookie, err := r.Cookie(SessionCookieName)
	if err != nil || cookie.Value == "" {
		return "", false
	}

	return cookie.Value, true
}

// setRotatedToken hands the refreshed token back on the channel the
// credential arrived on.
func (m *Middleware) setRotatedToken(w http.ResponseWriter, r *http.Request, token string) {
	if r.Header.Get("Authorization") != "" {
		w.Header().Set(RotatedTokenHeader, token)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
	})
}
