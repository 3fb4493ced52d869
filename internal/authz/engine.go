// Gatehouse - HTTP Request Authorization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gatehouse

package authz

import (
	"sync/atomic"
	"time"

	"github.com/tomtom215/gatehouse/internal/auth"
)

// DefaultAllow is the engine's behavior when no configured rule matches a
// request's path and method: the absence of any declared restriction is
// allowance. This is a deliberate, documented constant rather than a silent
// fallthrough; deployments that want a closed-by-default perimeter declare
// a catch-all deny rule for "/*".
const DefaultAllow = true

// Reason classifies a decision for logs, metrics, and audit. Reasons never
// reach clients.
type Reason string

const (
	// ReasonAllowed marks an allowed request.
	ReasonAllowed Reason = "allowed"

	// ReasonNoMatchingRule marks the documented default-allow for paths no
	// rule covers.
	ReasonNoMatchingRule Reason = "no-matching-rule"

	// ReasonPolicyDenied marks a denial by a winning rule's policy.
	ReasonPolicyDenied Reason = "policy-denied"

	// ReasonMethodRejected marks a denial because method-specific rules
	// claimed the path but none covered the request method.
	ReasonMethodRejected Reason = "method-rejected"

	// ReasonRequirementDenied marks a denial by the handler's declared
	// access requirement.
	ReasonRequirementDenied Reason = "requirement-denied"

	// ReasonUnannotatedDenied marks a denial of an unannotated handler under
	// a deny-unannotated flag.
	ReasonUnannotatedDenied Reason = "unannotated-denied"

	// ReasonIdentityUnavailable marks the fail-closed denial when
	// authorization ran before identity resolution. This is an integration
	// bug, not a client outcome.
	ReasonIdentityUnavailable Reason = "identity-unavailable"
)

// Decision is the outcome of an authorization check. Denial is an ordinary
// value, never an error: the deny branch is a first-class expected path.
type Decision struct {
	// Allowed reports whether the request may proceed.
	Allowed bool `json:"allowed"`

	// WasAnonymous reports whether the identity was anonymous at decision
	// time. The HTTP boundary uses it to choose between an unauthenticated
	// (401) and a forbidden (403) response.
	WasAnonymous bool `json:"was_anonymous"`

	// MatchedRules names the rules that decided the request, for
	// server-side diagnostics only. Never sent to the denied client.
	MatchedRules []string `json:"matched_rules,omitempty"`

	// Reason classifies the outcome.
	Reason Reason `json:"reason"`
}

// Config holds engine configuration.
type Config struct {
	// DenyUnannotatedEndpoints escalates unannotated externally-reachable
	// endpoints from allow to deny.
	DenyUnannotatedEndpoints bool

	// DenyUnannotatedMembers escalates unannotated handlers whose route
	// group contains secured handlers from allow to deny.
	DenyUnannotatedMembers bool

	// CacheEnabled enables the rule-decision cache.
	CacheEnabled bool

	// CacheTTL is how long cached decisions live.
	CacheTTL time.Duration
}

// Engine evaluates authorization decisions against an immutable rule
// snapshot. The snapshot is swapped atomically on reload; request handling
// never observes a partially-updated table and takes no locks.
type Engine struct {
	snapshot    atomic.Pointer[Snapshot]
	cache       *decisionCache
	generations atomic.Uint64

	denyUnannotatedEndpoints bool
	denyUnannotatedMembers   bool
}

// NewEngine creates an engine serving the given snapshot.
func NewEngine(snapshot *Snapshot, cfg *Config) *Engine {
	if cfg == nil {
		cfg = &Config{}
	}
	e := &Engine{
		denyUnannotatedEndpoints: cfg.DenyUnannotatedEndpoints,
		denyUnannotatedMembers:   cfg.DenyUnannotatedMembers,
	}
	snapshot.generation = e.generations.Add(1)
	e.snapshot.Store(snapshot)
	snapshotRules.Set(float64(snapshot.RuleCount()))

	if cfg.CacheEnabled {
		e.cache = newDecisionCache(cfg.CacheTTL)
	}
	return e
}

// Snapshot returns the active rule table.
func (e *Engine) Snapshot() *Snapshot {
	return e.snapshot.Load()
}

// Install atomically replaces the active snapshot and clears the decision
// cache. Requests already evaluating finish against the old table; every
// subsequent request sees the new one. Decisions those in-flight requests
// cache afterward carry the old snapshot's generation and are never served
// again, so a write racing the clear cannot resurrect a stale decision.
func (e *Engine) Install(s *Snapshot) {
	s.generation = e.generations.Add(1)
	e.snapshot.Store(s)
	if e.cache != nil {
		e.cache.clear()
	}
	snapshotRules.Set(float64(s.RuleCount()))
	snapshotReloads.WithLabelValues("success").Inc()
}

// Close releases engine resources.
func (e *Engine) Close() {
	if e.cache != nil {
		e.cache.stop()
	}
}

// Authorize computes the decision for a request. It evaluates the
// rule-based check first and, only if that allows, the handler's declared
// requirement (pass nil for handlers outside requirement-managed routing).
//
// A nil identity means authorization ran before authentication completed.
// That is an integration fault and fails closed: the request is denied, and
// it is never silently defaulted to anonymous.
func (e *Engine) Authorize(path, method string, id *auth.Identity, req *Requirement) Decision {
	start := time.Now()

	if id == nil {
		d := Decision{Allowed: false, WasAnonymous: true, Reason: ReasonIdentityUnavailable}
		recordDecision(d, "rules", time.Since(start), false)
		return d
	}

	d, cacheHit := e.ruleDecision(id, path, method)

	source := "rules"
	if d.Reason == ReasonNoMatchingRule {
		source = "default"
	}

	if d.Allowed && req != nil {
		if allowed, reason := e.checkRequirement(req, id); !allowed {
			d.Allowed = false
			d.Reason = reason
			source = "requirement"
		}
	}

	recordDecision(d, source, time.Since(start), cacheHit)
	return d
}

// ruleDecision runs the configuration-based check, consulting the cache.
// Requirement outcomes are never cached; only the pure rule decision is.
// The snapshot is loaded exactly once so the cached entry's generation and
// the evaluated rule table always belong together.
func (e *Engine) ruleDecision(id *auth.Identity, path, method string) (Decision, bool) {
	s := e.snapshot.Load()

	if e.cache != nil {
		if d, ok := e.cache.get(s.generation, id, path, method); ok {
			cacheHits.Inc()
			return d, true
		}
		cacheMisses.Inc()
	}

	d := e.evaluateRules(s, id, path, method)

	if e.cache != nil {
		e.cache.set(s.generation, id, path, method, d)
	}
	return d, false
}

// evaluateRules is the uncached rule check: path matching, method
// resolution, then conjunctive policy evaluation over the winning rules.
func (e *Engine) evaluateRules(s *Snapshot, id *auth.Identity, path, method string) Decision {
	candidates := s.matchPath(path)
	if len(candidates) == 0 {
		return Decision{
			Allowed:      DefaultAllow,
			WasAnonymous: id.Anonymous,
			Reason:       ReasonNoMatchingRule,
		}
	}

	winners, methodRejected := resolveMethod(candidates, method)
	if methodRejected {
		return Decision{
			Allowed:      false,
			WasAnonymous: id.Anonymous,
			MatchedRules: ruleNames(candidates),
			Reason:       ReasonMethodRejected,
		}
	}
	// Every winning rule's policy must allow ("all win" conjunction).
	d := Decision{
		Allowed:      true,
		WasAnonymous: id.Anonymous,
		MatchedRules: ruleNames(winners),
		Reason:       ReasonAllowed,
	}
	for _, rule := range winners {
		if !rule.Policy.Allows(id) {
			d.Allowed = false
			d.Reason = ReasonPolicyDenied
			break
		}
	}
	return d
}

func ruleNames(rules []*Rule) []string {
	names := make([]string, len(rules))
	for i, r := range rules {
		names[i] = r.Name
	}
	return names
}
