// Gatehouse - HTTP Request Authorization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gatehouse

package auth

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

// bcryptCost balances brute-force resistance against per-request latency.
const bcryptCost = 12

// BasicUser is a single entry in the basic-auth credential table.
type BasicUser struct {
	// PasswordHash is the bcrypt hash of the user's password.
	PasswordHash []byte

	// Roles assigned to the user on successful authentication.
	Roles []string
}

// BasicAuthenticator implements the Authenticator interface for HTTP Basic
// Authentication against an in-process credential table.
type BasicAuthenticator struct {
	mu    sync.RWMutex
	realm string
	users map[string]BasicUser
}

// NewBasicAuthenticator creates a Basic authenticator with the given realm.
func NewBasicAuthenticator(realm string) *BasicAuthenticator {
	if realm == "" {
		realm = "gatehouse"
	}
	return &BasicAuthenticator{
		realm: realm,
		users: make(map[string]BasicUser),
	}
}

// AddUser registers a user with a plaintext password, hashing it with bcrypt.
func (a *BasicAuthenticator) AddUser(username, password string, roles ...string) error {
	if username == "" {
		return fmt.Errorf("username must not be empty")
	}
	if password == "" {
		return fmt.Errorf("password must not be empty")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.users[username] = BasicUser{PasswordHash: hash, Roles: roles}
	return nil
}

// AddUserHash registers a user with an already-hashed password, as loaded
// from a credential file.
func (a *BasicAuthenticator) AddUserHash(username string, hash []byte, roles ...string) error {
	if username == "" {
		return fmt.Errorf("username must not be empty")
	}
	if _, err := bcrypt.Cost(hash); err != nil {
		return fmt.Errorf("invalid bcrypt hash for %q: %w", username, err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.users[username] = BasicUser{PasswordHash: hash, Roles: roles}
	return nil
}

// Authenticate validates Basic credentials from the Authorization header.
func (a *BasicAuthenticator) Authenticate(ctx context.Context, r *http.Request) (*Identity, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" || !strings.HasPrefix(authHeader, "Basic ") {
		return nil, ErrNoCredentials
	}

	payload, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(authHeader, "Basic "))
	if err != nil {
		return nil, ErrInvalidCredentials
	}

	username, password, ok := strings.Cut(string(payload), ":")
	if !ok {
		return nil, ErrInvalidCredentials
	}

	a.mu.RLock()
	user, found := a.users[username]
	a.mu.RUnlock()

	// Compare against a dummy hash for unknown users so response timing
	// does not reveal which usernames exist.
	if !found {
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
		return nil, ErrInvalidCredentials
	}

	if bcrypt.CompareHashAndPassword(user.PasswordHash, []byte(password)) != nil {
		return nil, ErrInvalidCredentials
	}

	return &Identity{
		Principal: username,
		Roles:     append([]string(nil), user.Roles...),
		Method:    ModeBasic,
		Issuer:    "local",
	}, nil
}

// Name returns the authenticator name.
func (a *BasicAuthenticator) Name() string {
	return string(ModeBasic)
}

// Priority returns the authenticator priority (lower = higher priority).
// Basic auth runs last in multi mode, after token auth.
func (a *BasicAuthenticator) Priority() int {
	return 20
}

// WWWAuthenticate returns the WWW-Authenticate header value for 401 responses.
func (a *BasicAuthenticator) WWWAuthenticate() string {
	return fmt.Sprintf("Basic realm=%q, charset=\"UTF-8\"", a.realm)
}

// dummyHash is compared for unknown usernames to keep timing uniform.
var dummyHash = func() []byte {
	h, err := bcrypt.GenerateFromPassword([]byte("gatehouse-nonexistent-user"), bcrypt.MinCost)
	if err != nil {
		panic(err)
	}
	return h
}()
