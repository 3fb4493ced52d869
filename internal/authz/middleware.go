// Gatehouse - HTTP Request Authorization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gatehouse

package authz

import (
	"context"
	"net"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/tomtom215/gatehouse/internal/auth"
	"github.com/tomtom215/gatehouse/internal/logging"
)

// Challenger writes the 401 response for an unauthenticated denial,
// including any authentication challenge header. Implemented by
// auth.Middleware.
type Challenger interface {
	Challenge(w http.ResponseWriter)
}

// DecisionEvent is the audit view of one authorization decision.
type DecisionEvent struct {
	Timestamp    time.Time     `json:"timestamp"`
	RequestID    string        `json:"request_id,omitempty"`
	Principal    string        `json:"principal,omitempty"`
	Anonymous    bool          `json:"anonymous"`
	Roles        []string      `json:"roles,omitempty"`
	Path         string        `json:"path"`
	Method       string        `json:"method"`
	Allowed      bool          `json:"allowed"`
	Reason       string        `json:"reason"`
	MatchedRules []string      `json:"matched_rules,omitempty"`
	IPAddress    string        `json:"ip_address,omitempty"`
	UserAgent    string        `json:"user_agent,omitempty"`
	Duration     time.Duration `json:"duration_ns"`
}

// DecisionRecorder receives decision events for auditing. Implementations
// must not block request handling.
type DecisionRecorder interface {
	RecordDecision(ctx context.Context, ev *DecisionEvent)
}

// Middleware enforces authorization on HTTP routes. It assumes the identity
// resolution middleware has already run for the request.
type Middleware struct {
	engine     *Engine
	challenger Challenger
	recorder   DecisionRecorder
}

// NewMiddleware creates the authorization middleware. challenger and
// recorder are optional.
func NewMiddleware(engine *Engine, challenger Challenger, recorder DecisionRecorder) *Middleware {
	return &Middleware{
		engine:     engine,
		challenger: challenger,
		recorder:   recorder,
	}
}

// Guard returns route middleware enforcing both the configured rules and
// the given handler requirement. The requirement is fixed at registration
// time; nothing is re-resolved per request.
func (m *Middleware) Guard(req *Requirement) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			m.authorize(w, r, req, next)
		})
	}
}

// Protect enforces the configured rules plus the unannotated-endpoint
// default on routes registered without an explicit requirement.
func (m *Middleware) Protect(next http.Handler) http.Handler {
	return m.Guard(NoRequirement(true, false))(next)
}

func (m *Middleware) authorize(w http.ResponseWriter, r *http.Request, req *Requirement, next http.Handler) {
	ctx := r.Context()
	id := auth.IdentityFromContext(ctx)

	start := time.Now()
	d := m.engine.Authorize(normalizePath(r.URL.Path), r.Method, id, req)
	m.record(ctx, r, id, d, time.Since(start))

	if d.Reason == ReasonIdentityUnavailable {
		// Authorization ran before authentication: an integration bug, not a
		// client problem. Fail closed without hinting at the cause.
		logging.Ctx(ctx).Error().
			Str("path", r.URL.Path).
			Str("method", r.Method).
			Msg("Authorization invoked without a resolved identity")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	if d.Allowed {
		next.ServeHTTP(w, r)
		return
	}

	// Rule names are server-side diagnostics only; the client response
	// carries no hint of which rule denied.
	logging.Ctx(ctx).Info().
		Str("path", r.URL.Path).
		Str("method", r.Method).
		Str("principal", id.Principal).
		Bool("anonymous", d.WasAnonymous).
		Strs("matched_rules", d.MatchedRules).
		Str("reason", string(d.Reason)).
		Msg("Request denied")

	if d.WasAnonymous {
		if authErr := auth.AuthErrorFromContext(ctx); authErr != nil {
			http.Error(w, "Unauthorized: invalid credentials", http.StatusUnauthorized)
			return
		}
		if m.challenger != nil {
			m.challenger.Challenge(w)
			return
		}
		http.Error(w, "Unauthorized: authentication required", http.StatusUnauthorized)
		return
	}

	http.Error(w, "Forbidden: insufficient permissions", http.StatusForbidden)
}

func (m *Middleware) record(ctx context.Context, r *http.Request, id *auth.Identity, d Decision, duration time.Duration) {
	if m.recorder == nil {
		return
	}

	ev := &DecisionEvent{
		Timestamp:    time.Now(),
		RequestID:    logging.RequestIDFromContext(ctx),
		Anonymous:    d.WasAnonymous,
		Path:         r.URL.Path,
		Method:       r.Method,
		Allowed:      d.Allowed,
		Reason:       string(d.Reason),
		MatchedRules: d.MatchedRules,
		IPAddress:    remoteHost(r),
		UserAgent:    r.UserAgent(),
		Duration:     duration,
	}
	if id != nil && !id.Anonymous {
		ev.Principal = id.Principal
		ev.Roles = id.Roles
	}

	m.recorder.RecordDecision(ctx, ev)
}

// normalizePath collapses dot segments before rule evaluation so a path
// like "/public/../admin/x", forwarded unnormalized by a proxy, is matched
// as "/admin/x" and cannot sidestep a prefix rule.
func normalizePath(p string) string {
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return path.Clean(p)
}

func remoteHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
