// Gatehouse - HTTP Request Authorization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gatehouse

// Package authz decides, for every request, whether it may proceed, based
// on a declarative set of path/method/role permission rules combined with
// per-handler access requirements declared at route registration.
//
// # Rule evaluation
//
// A request is checked in two stages. The first is configuration-based:
//
//  1. Path matching: every rule with a pattern matching the request path is
//     collected, ranked by specificity (the length of the matched literal
//     path or wildcard prefix). Only rules in the highest specificity tier
//     survive; ties are all retained.
//  2. Method resolution: rules naming the request method dominate
//     method-agnostic rules outright. If rules at this tier name methods
//     but none covers the request method, the request is denied rather
//     than falling back to method-agnostic rules.
//  3. Aggregation: every surviving rule's policy must allow (conjunction).
//     When no rule matches at all, the documented DefaultAllow constant
//     applies.
//
// The second stage runs only when the first allows: the handler's declared
// Requirement (roles-required, authenticated, permit-all, deny-all, or
// unannotated under the deny-unannotated flags) is checked against the
// identity.
//
// # Concurrency
//
// Rules and policies live in an immutable Snapshot swapped atomically on
// reload. Decision evaluation takes no locks and has no side effects;
// evaluating the same request against the same snapshot is idempotent.
//
// # Outcomes
//
// Denial is a value (Decision), never an error. The Decision carries enough
// context for the HTTP boundary to distinguish an unauthenticated denial
// (401) from an authenticated-but-forbidden one (403), and the names of the
// deciding rules for server-side diagnostics. Clients are never told which
// rule denied them.
package authz
