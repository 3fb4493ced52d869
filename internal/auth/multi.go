// Gatehouse - HTTP Request Authorization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gatehouse

package auth

import (
	"context"
	"errors"
	"net/http"
	"sort"
)

// MultiAuthenticator tries multiple authenticators in priority order.
//
// Error handling:
//   - ErrNoCredentials: try next authenticator (no credentials for this method)
//   - ErrInvalidCredentials: stop and return error (credentials were provided but invalid)
//   - ErrExpiredCredentials: stop and return error
//   - other errors: stop and return error
type MultiAuthenticator struct {
	authenticators []Authenticator
}

// NewMultiAuthenticator creates a multi-authenticator. Authenticators are
// sorted by priority (lower number = tried first) and the set is fixed at
// construction; request handling never mutates it.
func NewMultiAuthenticator(authenticators ...Authenticator) *MultiAuthenticator {
	sorted := append([]Authenticator(nil), authenticators...)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Priority() < sorted[j].Priority()
	})
	return &MultiAuthenticator{authenticators: sorted}
}

// Authenticators returns the chain in priority order.
func (m *MultiAuthenticator) Authenticators() []Authenticator {
	return append([]Authenticator(nil), m.authenticators...)
}

// Authenticate tries each authenticator in priority order.
func (m *MultiAuthenticator) Authenticate(ctx context.Context, r *http.Request) (*Identity, error) {
	if len(m.authenticators) == 0 {
		return nil, ErrNoCredentials
	}

	lastErr := ErrNoCredentials
	for _, a := range m.authenticators {
		id, err := a.Authenticate(ctx, r)
		if err == nil {
			return id, nil
		}

		lastErr = err
		if errors.Is(err, ErrNoCredentials) {
			continue
		}

		// Credentials were presented for this mechanism and rejected.
		return nil, err
	}

	return nil, lastErr
}

// Name returns the authenticator name.
func (m *MultiAuthenticator) Name() string {
	return string(ModeMulti)
}

// Priority returns the authenticator priority. Multi-auth always has the
// highest priority since it wraps other authenticators.
func (m *MultiAuthenticator) Priority() int {
	return 0
}
