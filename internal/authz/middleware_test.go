// Gatehouse - HTTP Request Authorization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gatehouse

package authz

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/tomtom215/gatehouse/internal/auth"
)

type staticChallenger struct{}

func (staticChallenger) Challenge(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", `Basic realm="test"`)
	http.Error(w, "Unauthorized", http.StatusUnauthorized)
}

type capturingRecorder struct {
	mu     sync.Mutex
	events []*DecisionEvent
}

func (r *capturingRecorder) RecordDecision(_ context.Context, ev *DecisionEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *capturingRecorder) last() *DecisionEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.events) == 0 {
		return nil
	}
	return r.events[len(r.events)-1]
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func doGuarded(t *testing.T, mw *Middleware, req *Requirement, id *auth.Identity, method, path string) *httptest.ResponseRecorder {
	t.Helper()

	r := httptest.NewRequest(method, path, nil)
	if id != nil {
		r = r.WithContext(auth.ContextWithIdentity(r.Context(), id))
	}
	w := httptest.NewRecorder()
	mw.Guard(req)(okHandler()).ServeHTTP(w, r)
	return w
}

func TestGuardAllows(t *testing.T) {
	e := newTestEngine(t, nil, nil, map[string]RuleDefinition{
		"open": {Paths: []string{"/public/*"}, Policy: "permit"},
	})
	mw := NewMiddleware(e, nil, nil)

	w := doGuarded(t, mw, nil, anonymous(), "GET", "/public/x")
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
}

func TestGuardAnonymousDenialIs401WithChallenge(t *testing.T) {
	e := newTestEngine(t, nil, nil, map[string]RuleDefinition{
		"secured": {Paths: []string{"/secure/*"}, Policy: "authenticated"},
	})
	mw := NewMiddleware(e, staticChallenger{}, nil)

	w := doGuarded(t, mw, nil, anonymous(), "GET", "/secure/x")
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
	if got := w.Header().Get("WWW-Authenticate"); got == "" {
		t.Error("missing WWW-Authenticate challenge on anonymous denial")
	}
}

func TestGuardAuthenticatedDenialIs403(t *testing.T) {
	e := newTestEngine(t, nil, map[string]PolicyDefinition{
		"admins": {RolesAllowed: []string{"admin"}},
	}, map[string]RuleDefinition{
		"secured": {Paths: []string{"/admin/*"}, Policy: "admins"},
	})
	mw := NewMiddleware(e, staticChallenger{}, nil)

	w := doGuarded(t, mw, nil, user("alice", "viewer"), "GET", "/admin/x")
	if w.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", w.Code)
	}
}

// Dot segments are collapsed before rule evaluation, so a traversal
// sequence under a permitted prefix cannot reach into a denied one.
func TestGuardNormalizesDotSegments(t *testing.T) {
	e := newTestEngine(t, nil, nil, map[string]RuleDefinition{
		"open":   {Paths: []string{"/public/*"}, Policy: "permit"},
		"closed": {Paths: []string{"/admin/*"}, Policy: "deny"},
	})
	mw := NewMiddleware(e, nil, nil)

	w := doGuarded(t, mw, nil, user("alice"), "GET", "/public/../admin/x")
	if w.Code != http.StatusForbidden {
		t.Errorf("traversal into denied prefix: status = %d, want 403", w.Code)
	}

	w = doGuarded(t, mw, nil, user("alice"), "GET", "/public/./x")
	if w.Code != http.StatusOK {
		t.Errorf("dot segment within permitted prefix: status = %d, want 200", w.Code)
	}
}

func TestGuardMissingIdentityIs500(t *testing.T) {
	e := newTestEngine(t, nil, nil, nil)
	mw := NewMiddleware(e, nil, nil)

	// No identity in context: authorization before authentication.
	w := doGuarded(t, mw, nil, nil, "GET", "/x")
	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
}

func TestGuardDenialNeverLeaksRuleNames(t *testing.T) {
	e := newTestEngine(t, nil, nil, map[string]RuleDefinition{
		"super-secret-rule-name": {Paths: []string{"/x"}, Policy: "deny"},
	})
	mw := NewMiddleware(e, nil, nil)

	w := doGuarded(t, mw, nil, user("alice"), "GET", "/x")
	if w.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", w.Code)
	}
	if strings.Contains(w.Body.String(), "super-secret-rule-name") {
		t.Error("response body leaked the denying rule's name")
	}
}

func TestGuardLazyAuthFailureMapsTo401(t *testing.T) {
	e := newTestEngine(t, nil, nil, map[string]RuleDefinition{
		"secured": {Paths: []string{"/secure/*"}, Policy: "authenticated"},
	})
	mw := NewMiddleware(e, staticChallenger{}, nil)

	// Lazy mode demoted the request to anonymous and parked the auth error
	// in the context; denial should read as invalid credentials.
	r := httptest.NewRequest("GET", "/secure/x", nil)
	ctx := auth.ContextWithIdentity(r.Context(), anonymous())
	ctx = auth.ContextWithAuthError(ctx, auth.ErrInvalidCredentials)
	w := httptest.NewRecorder()
	mw.Guard(nil)(okHandler()).ServeHTTP(w, r.WithContext(ctx))

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
	if !strings.Contains(w.Body.String(), "invalid credentials") {
		t.Errorf("body = %q, want invalid-credentials wording", w.Body.String())
	}
}

func TestGuardRecordsDecisions(t *testing.T) {
	e := newTestEngine(t, nil, nil, map[string]RuleDefinition{
		"closed": {Paths: []string{"/x"}, Policy: "deny"},
	})
	rec := &capturingRecorder{}
	mw := NewMiddleware(e, nil, rec)

	doGuarded(t, mw, nil, user("alice", "viewer"), "GET", "/x")

	ev := rec.last()
	if ev == nil {
		t.Fatal("no decision recorded")
	}
	if ev.Allowed || ev.Principal != "alice" || ev.Path != "/x" || ev.Method != "GET" {
		t.Errorf("event = %+v", ev)
	}
	if len(ev.MatchedRules) != 1 || ev.MatchedRules[0] != "closed" {
		t.Errorf("matched rules = %v, want [closed]", ev.MatchedRules)
	}
}

func TestProtectAppliesEndpointFlag(t *testing.T) {
	e := newTestEngine(t, &Config{DenyUnannotatedEndpoints: true}, nil, nil)
	mw := NewMiddleware(e, nil, nil)

	r := httptest.NewRequest("GET", "/anything", nil)
	r = r.WithContext(auth.ContextWithIdentity(r.Context(), user("root", "admin")))
	w := httptest.NewRecorder()
	mw.Protect(okHandler()).ServeHTTP(w, r)

	if w.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403 for unannotated endpoint", w.Code)
	}
}
