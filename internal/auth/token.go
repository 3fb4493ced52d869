// Gatehouse - HTTP Request Authorization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gatehouse

package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// Claims are the JWT claims Gatehouse issues and accepts.
type Claims struct {
	Roles []string `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

// TokenAuthenticator implements the Authenticator interface for JWT Bearer
// tokens signed with an HMAC secret.
type TokenAuthenticator struct {
	secret      []byte
	issuer      string
	tokenCookie string
}

// minSecretLength guards against trivially brute-forceable HMAC secrets.
const minSecretLength = 32

// NewTokenAuthenticator creates a JWT authenticator.
// The secret must be at least 32 bytes.
func NewTokenAuthenticator(secret, issuer string) (*TokenAuthenticator, error) {
	if len(secret) < minSecretLength {
		return nil, fmt.Errorf("jwt secret must be at least %d characters, got %d", minSecretLength, len(secret))
	}
	if issuer == "" {
		issuer = "gatehouse"
	}
	return &TokenAuthenticator{
		secret:      []byte(secret),
		issuer:      issuer,
		tokenCookie: "token",
	}, nil
}

// Authenticate extracts and validates the JWT from the request.
func (a *TokenAuthenticator) Authenticate(ctx context.Context, r *http.Request) (*Identity, error) {
	tokenStr := a.extractToken(r)
	if tokenStr == "" {
		return nil, ErrNoCredentials
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return a.secret, nil
	}, jwt.WithIssuer(a.issuer))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredCredentials
		}
		return nil, ErrInvalidCredentials
	}
	if !token.Valid || claims.Subject == "" {
		return nil, ErrInvalidCredentials
	}

	id := &Identity{
		Principal: claims.Subject,
		Roles:     append([]string(nil), claims.Roles...),
		Method:    ModeToken,
		Issuer:    claims.Issuer,
	}
	if claims.ExpiresAt != nil {
		id.ExpiresAt = claims.ExpiresAt.Unix()
	}
	return id, nil
}

// Name returns the authenticator name.
func (a *TokenAuthenticator) Name() string {
	return string(ModeToken)
}

// Priority returns the authenticator priority (lower = higher priority).
// Token auth runs before basic auth in multi mode.
func (a *TokenAuthenticator) Priority() int {
	return 10
}

// extractToken extracts the bearer token from the Authorization header or
// falls back to the token cookie.
func (a *TokenAuthenticator) extractToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader != "" {
		scheme, token, ok := strings.Cut(authHeader, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			if token = strings.TrimSpace(token); token != "" {
				return token
			}
		}
	}

	cookie, err := r.Cookie(a.tokenCookie)
	if err == nil && cookie.Value != "" {
		return cookie.Value
	}

	return ""
}
