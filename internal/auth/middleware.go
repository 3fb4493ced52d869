// Gatehouse - HTTP Request Authorization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gatehouse

package auth

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/tomtom215/gatehouse/internal/logging"
	"github.com/tomtom215/gatehouse/internal/metrics"
)

// authErrorContextKey stores the authentication failure (if any) alongside
// the anonymous identity in lazy mode, so the authorization boundary can
// distinguish "no credentials" from "bad credentials" when mapping a denial
// to a status code.
const authErrorContextKey contextKey = "auth_error"

// MiddlewareConfig holds configuration for the identity resolution middleware.
type MiddlewareConfig struct {
	// Mode is the authentication mode. ModeNone resolves every request to
	// the anonymous identity.
	Mode Mode

	// Authenticator produces identities. Required unless Mode is ModeNone.
	Authenticator Authenticator

	// Proactive, when true, rejects any request bearing invalid credentials
	// immediately, even on paths that would permit anonymous access. When
	// false, invalid credentials demote the request to anonymous and the
	// authorization decision determines the outcome.
	Proactive bool

	// Limiter throttles repeated authentication failures per client IP.
	// Optional.
	Limiter *AttemptLimiter

	// WWWAuthenticate is the challenge header value sent with 401 responses.
	// Optional.
	WWWAuthenticate string

	// TrustedProxies lists proxy IPs whose X-Forwarded-For is honored.
	TrustedProxies []string
}

// Middleware resolves an Identity for every request and stores it in the
// request context. It always runs before authorization, so the engine never
// observes a partially-resolved identity.
type Middleware struct {
	mode            Mode
	authenticator   Authenticator
	proactive       bool
	limiter         *AttemptLimiter
	wwwAuthenticate string
	trustedProxies  map[string]bool
}

// NewMiddleware creates the identity resolution middleware.
func NewMiddleware(cfg *MiddlewareConfig) (*Middleware, error) {
	if cfg.Mode != ModeNone && cfg.Authenticator == nil {
		return nil, errors.New("authenticator required for auth mode " + cfg.Mode.String())
	}

	trusted := make(map[string]bool, len(cfg.TrustedProxies))
	for _, p := range cfg.TrustedProxies {
		trusted[p] = true
	}

	return &Middleware{
		mode:            cfg.Mode,
		authenticator:   cfg.Authenticator,
		proactive:       cfg.Proactive,
		limiter:         cfg.Limiter,
		wwwAuthenticate: cfg.WWWAuthenticate,
		trustedProxies:  trusted,
	}, nil
}

// ResolveIdentity is middleware that authenticates the request and places the
// resulting Identity (or the anonymous identity) in the context.
func (m *Middleware) ResolveIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.mode == ModeNone {
			next.ServeHTTP(w, r.WithContext(ContextWithIdentity(r.Context(), AnonymousIdentity())))
			return
		}

		clientIP := m.clientIP(r)
		if m.limiter != nil && m.limiter.Blocked(clientIP) {
			logging.Ctx(r.Context()).Warn().Str("ip", clientIP).Msg("Authentication throttled")
			http.Error(w, "Too many failed attempts", http.StatusTooManyRequests)
			return
		}

		id, err := m.authenticator.Authenticate(r.Context(), r)
		switch {
		case err == nil:
			if m.limiter != nil {
				m.limiter.Reset(clientIP)
			}
			next.ServeHTTP(w, r.WithContext(ContextWithIdentity(r.Context(), id)))

		case errors.Is(err, ErrNoCredentials):
			next.ServeHTTP(w, r.WithContext(ContextWithIdentity(r.Context(), AnonymousIdentity())))

		default:
			if m.limiter != nil {
				m.limiter.RecordFailure(clientIP)
			}
			metrics.RecordAuthFailure(m.authenticator.Name())
			logging.Ctx(r.Context()).Warn().
				Err(err).
				Str("ip", clientIP).
				Str("mechanism", m.authenticator.Name()).
				Msg("Authentication failed")

			if m.proactive {
				m.challenge(w, err)
				return
			}

			// Lazy mode: the request proceeds anonymously and the
			// authorization decision determines the outcome. The failure is
			// kept in the context so a denial maps to 401 invalid-credentials
			// rather than a bare challenge.
			ctx := ContextWithIdentity(r.Context(), AnonymousIdentity())
			ctx = ContextWithAuthError(ctx, err)
			next.ServeHTTP(w, r.WithContext(ctx))
		}
	})
}

// ContextWithAuthError records an authentication failure alongside the
// anonymous identity it was demoted to.
func ContextWithAuthError(ctx context.Context, err error) context.Context {
	return context.WithValue(ctx, authErrorContextKey, err)
}

// AuthErrorFromContext returns the authentication failure recorded for this
// request, or nil if authentication succeeded or no credentials were sent.
func AuthErrorFromContext(ctx context.Context) error {
	err, _ := ctx.Value(authErrorContextKey).(error)
	return err
}

// Challenge writes the 401 response for an unauthenticated denial, including
// the WWW-Authenticate header when one is configured.
func (m *Middleware) Challenge(w http.ResponseWriter) {
	m.challenge(w, ErrNoCredentials)
}

func (m *Middleware) challenge(w http.ResponseWriter, err error) {
	if m.wwwAuthenticate != "" {
		w.Header().Set("WWW-Authenticate", m.wwwAuthenticate)
	}
	switch {
	case errors.Is(err, ErrExpiredCredentials):
		http.Error(w, "Unauthorized: credentials expired", http.StatusUnauthorized)
	case errors.Is(err, ErrInvalidCredentials):
		http.Error(w, "Unauthorized: invalid credentials", http.StatusUnauthorized)
	default:
		http.Error(w, "Unauthorized: authentication required", http.StatusUnauthorized)
	}
}

// StartLimiterCleanup prunes idle limiter entries until ctx is cancelled.
func (m *Middleware) StartLimiterCleanup(ctx context.Context, interval time.Duration) {
	if m.limiter == nil {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.limiter.Cleanup(10 * interval)
			}
		}
	}()
}

// clientIP extracts the client IP, honoring X-Forwarded-For only for
// trusted proxies.
func (m *Middleware) clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}

	if len(m.trustedProxies) > 0 && m.trustedProxies[host] {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			for i := 0; i < len(xff); i++ {
				if xff[i] == ',' {
					return xff[:i]
				}
			}
			return xff
		}
		if xri := r.Header.Get("X-Real-IP"); xri != "" {
			return xri
		}
	}

	return host
}
