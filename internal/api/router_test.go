// Gatehouse - HTTP Request Authorization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gatehouse

package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	json "github.com/goccy/go-json"

	"github.com/tomtom215/gatehouse/internal/auth"
	"github.com/tomtom215/gatehouse/internal/authz"
)

// newTestStack builds the full middleware stack: basic auth with an admin
// and a viewer account, the rule engine, and the admin surface.
func newTestStack(t *testing.T, rules map[string]authz.RuleDefinition, reload ReloadFunc) http.Handler {
	t.Helper()

	snap, err := authz.BuildSnapshot(nil, rules)
	if err != nil {
		t.Fatalf("BuildSnapshot failed: %v", err)
	}
	engine := authz.NewEngine(snap, nil)
	t.Cleanup(engine.Close)

	basic := auth.NewBasicAuthenticator("test")
	if err := basic.AddUser("root", "rootpw", "admin"); err != nil {
		t.Fatal(err)
	}
	if err := basic.AddUser("bob", "bobpw", "viewer"); err != nil {
		t.Fatal(err)
	}

	authMW, err := auth.NewMiddleware(&auth.MiddlewareConfig{
		Mode:            auth.ModeBasic,
		Authenticator:   basic,
		WWWAuthenticate: basic.WWWAuthenticate(),
	})
	if err != nil {
		t.Fatal(err)
	}

	guard := authz.NewMiddleware(engine, authMW, nil)
	handlers := NewHandlers(engine, reload, nil, "test")
	router := NewRouter(handlers, NewMiddleware(&MiddlewareConfig{
		CORSOrigins:     []string{"*"},
		RateLimitReqs:   1000,
		RateLimitWindow: time.Minute,
	}), authMW, guard)

	return router.Setup(func(r chi.Router) {
		r.Get("/app/resource", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
	})
}

func do(t *testing.T, h http.Handler, method, path, user, pass string) *httptest.ResponseRecorder {
	t.Helper()
	r := httptest.NewRequest(method, path, nil)
	if user != "" {
		r.SetBasicAuth(user, pass)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

func TestHealthzIsPublic(t *testing.T) {
	h := newTestStack(t, nil, nil)

	w := do(t, h, "GET", "/healthz", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"status":"ok"`) {
		t.Errorf("body = %s", w.Body.String())
	}
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("missing X-Request-ID response header")
	}
}

func TestMetricsEndpointServes(t *testing.T) {
	h := newTestStack(t, nil, nil)

	w := do(t, h, "GET", "/metrics", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if !strings.Contains(w.Body.String(), "gatehouse_") {
		t.Error("metrics output missing gatehouse series")
	}
}

func TestAdminSurfaceRequiresAdminRole(t *testing.T) {
	h := newTestStack(t, nil, nil)

	if w := do(t, h, "GET", "/api/v1/authz/rules", "", ""); w.Code != http.StatusUnauthorized {
		t.Errorf("anonymous: status = %d, want 401", w.Code)
	}
	if w := do(t, h, "GET", "/api/v1/authz/rules", "bob", "bobpw"); w.Code != http.StatusForbidden {
		t.Errorf("viewer: status = %d, want 403", w.Code)
	}

	w := do(t, h, "GET", "/api/v1/authz/rules", "root", "rootpw")
	if w.Code != http.StatusOK {
		t.Fatalf("admin: status = %d, want 200", w.Code)
	}
	var payload struct {
		Rules    []authz.RuleInfo   `json:"rules"`
		Policies []authz.PolicyInfo `json:"policies"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &payload); err != nil {
		t.Fatalf("unmarshal rules response: %v", err)
	}
	if len(payload.Policies) < 3 {
		t.Errorf("policies = %+v, want at least the built-ins", payload.Policies)
	}
}

func TestCheckEndpoint(t *testing.T) {
	h := newTestStack(t, map[string]authz.RuleDefinition{
		"closed": {Paths: []string{"/private/*"}, Policy: "authenticated"},
	}, nil)

	t.Run("missing parameters rejected", func(t *testing.T) {
		w := do(t, h, "GET", "/api/v1/authz/check", "root", "rootpw")
		if w.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", w.Code)
		}
	})

	t.Run("anonymous simulation denied on protected path", func(t *testing.T) {
		w := do(t, h, "GET", "/api/v1/authz/check?path=/private/x&method=GET", "root", "rootpw")
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", w.Code)
		}
		var d authz.Decision
		if err := json.Unmarshal(w.Body.Bytes(), &d); err != nil {
			t.Fatal(err)
		}
		if d.Allowed || !d.WasAnonymous {
			t.Errorf("decision = %+v, want anonymous denial", d)
		}
	})

	t.Run("simulated principal allowed", func(t *testing.T) {
		w := do(t, h, "GET", "/api/v1/authz/check?path=/private/x&method=GET&principal=alice&roles=user", "root", "rootpw")
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", w.Code)
		}
		var d authz.Decision
		if err := json.Unmarshal(w.Body.Bytes(), &d); err != nil {
			t.Fatal(err)
		}
		if !d.Allowed {
			t.Errorf("decision = %+v, want allowed", d)
		}
	})
}

func TestGuardedMountFollowsRules(t *testing.T) {
	h := newTestStack(t, map[string]authz.RuleDefinition{
		"app": {Paths: []string{"/app/*"}, Policy: "authenticated"},
	}, nil)

	if w := do(t, h, "GET", "/app/resource", "", ""); w.Code != http.StatusUnauthorized {
		t.Errorf("anonymous: status = %d, want 401", w.Code)
	}
	if w := do(t, h, "GET", "/app/resource", "bob", "bobpw"); w.Code != http.StatusOK {
		t.Errorf("authenticated: status = %d, want 200", w.Code)
	}
}

func TestReloadEndpoint(t *testing.T) {
	t.Run("not configured", func(t *testing.T) {
		h := newTestStack(t, nil, nil)
		if w := do(t, h, "POST", "/api/v1/authz/reload", "root", "rootpw"); w.Code != http.StatusNotImplemented {
			t.Errorf("status = %d, want 501", w.Code)
		}
	})

	t.Run("invalid configuration maps to 422", func(t *testing.T) {
		h := newTestStack(t, nil, func() (*authz.Snapshot, error) {
			_, err := authz.BuildSnapshot(nil, map[string]authz.RuleDefinition{
				"bad": {Paths: []string{"/x"}, Policy: "ghost"},
			})
			return nil, err
		})
		if w := do(t, h, "POST", "/api/v1/authz/reload", "root", "rootpw"); w.Code != http.StatusUnprocessableEntity {
			t.Errorf("status = %d, want 422", w.Code)
		}
	})

	t.Run("successful reload", func(t *testing.T) {
		h := newTestStack(t, nil, func() (*authz.Snapshot, error) {
			return authz.BuildSnapshot(nil, map[string]authz.RuleDefinition{
				"fresh": {Paths: []string{"/x"}, Policy: "permit"},
			})
		})
		w := do(t, h, "POST", "/api/v1/authz/reload", "root", "rootpw")
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", w.Code)
		}
		if !strings.Contains(w.Body.String(), `"rules":1`) {
			t.Errorf("body = %s", w.Body.String())
		}
	})
}

func TestAuditQueryWithoutStore(t *testing.T) {
	h := newTestStack(t, nil, nil)
	if w := do(t, h, "GET", "/api/v1/authz/audit", "root", "rootpw"); w.Code != http.StatusNotImplemented {
		t.Errorf("status = %d, want 501", w.Code)
	}
}
