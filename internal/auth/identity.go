// Gatehouse - HTTP Request Authorization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gatehouse

// Package auth provides pluggable authentication mechanisms that resolve an
// HTTP request into an Identity. The authorization engine consumes only the
// Identity and the Authenticator interface, never concrete mechanisms.
package auth

import (
	"context"
	"errors"
	"net/http"
	"time"
)

// Mode represents the authentication strategy.
type Mode string

const (
	// ModeNone disables authentication; every request is anonymous.
	ModeNone Mode = "none"

	// ModeBasic uses HTTP Basic Authentication.
	ModeBasic Mode = "basic"

	// ModeToken uses JWT Bearer tokens.
	ModeToken Mode = "token"

	// ModeMulti tries multiple auth methods in priority order.
	ModeMulti Mode = "multi"
)

// ParseMode converts a string to a Mode.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "none", "":
		return ModeNone, nil
	case "basic":
		return ModeBasic, nil
	case "token", "jwt":
		return ModeToken, nil
	case "multi":
		return ModeMulti, nil
	default:
		return "", errors.New("invalid auth mode: " + s)
	}
}

// String returns the string representation of Mode.
func (m Mode) String() string {
	return string(m)
}

// Standard authentication errors
var (
	// ErrNoCredentials indicates no credentials were provided.
	ErrNoCredentials = errors.New("no credentials provided")

	// ErrInvalidCredentials indicates credentials were invalid.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrExpiredCredentials indicates credentials have expired.
	ErrExpiredCredentials = errors.New("credentials expired")

	// ErrTooManyAttempts indicates the caller is throttled after repeated failures.
	ErrTooManyAttempts = errors.New("too many failed attempts")
)

// Authenticator defines the interface for authentication providers.
type Authenticator interface {
	// Authenticate extracts and validates credentials from the request.
	// Returns an Identity on success. Returns ErrNoCredentials when the
	// request carries no credentials for this mechanism, which lets a
	// chained authenticator try the next mechanism.
	Authenticate(ctx context.Context, r *http.Request) (*Identity, error)

	// Name returns the authenticator's name for logging.
	Name() string

	// Priority returns the authenticator's priority for multi-mode.
	// Lower values are tried first.
	Priority() int
}

// Identity is the resolved principal consumed by the authorization engine.
// It is read-only after authentication completes; the engine never mutates it.
type Identity struct {
	// Principal is the unique identifier of the authenticated subject.
	// Empty for anonymous identities.
	Principal string `json:"principal"`

	// Roles contains the subject's assigned role names.
	Roles []string `json:"roles,omitempty"`

	// Anonymous reports whether no authentication took place.
	Anonymous bool `json:"anonymous"`

	// Method indicates how the identity was established.
	Method Mode `json:"method,omitempty"`

	// Issuer identifies the credential source ("local" for basic auth,
	// the token issuer for JWT).
	Issuer string `json:"issuer,omitempty"`

	// ExpiresAt is the Unix time the credentials expire, or zero.
	ExpiresAt int64 `json:"expires_at,omitempty"`
}

// Anonymous is the identity used when a request carries no credentials.
// It is a fresh value per call so callers cannot mutate shared state.
func AnonymousIdentity() *Identity {
	return &Identity{Anonymous: true}
}

// HasRole checks if the identity has a specific role.
func (id *Identity) HasRole(role string) bool {
	if role == "" {
		return false
	}
	for _, r := range id.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// HasAnyRole checks if the identity has any of the specified roles.
func (id *Identity) HasAnyRole(roles ...string) bool {
	for _, role := range roles {
		if id.HasRole(role) {
			return true
		}
	}
	return false
}

// IsExpired checks if the identity's credentials have expired.
func (id *Identity) IsExpired() bool {
	if id.ExpiresAt == 0 {
		return false
	}
	return time.Now().Unix() > id.ExpiresAt
}

type contextKey string

// identityContextKey is the context key under which the middleware stores
// the resolved Identity.
const identityContextKey contextKey = "identity"

// ContextWithIdentity returns a new context carrying the identity.
func ContextWithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityContextKey, id)
}

// IdentityFromContext retrieves the identity placed in the context by the
// authentication middleware. Returns nil when authentication has not run,
// which downstream authorization treats as an internal fault and denies.
func IdentityFromContext(ctx context.Context) *Identity {
	id, ok := ctx.Value(identityContextKey).(*Identity)
	if !ok {
		return nil
	}
	return id
}
