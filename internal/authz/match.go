// Gatehouse - HTTP Request Authorization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gatehouse

package authz

// matchPath returns the rules with at least one pattern matching path,
// reduced to the highest specificity tier: the maximum specificity over all
// matches is computed, and every rule scoring strictly less is discarded.
// Ties at the maximum are all retained on purpose, so co-located rules at
// the same path depth are evaluated together.
func (s *Snapshot) matchPath(path string) []*Rule {
	best := -1
	var winners []*Rule

	for _, rule := range s.rules {
		spec, ok := rule.specificity(path)
		if !ok {
			continue
		}
		switch {
		case spec > best:
			best = spec
			winners = append(winners[:0], rule)
		case spec == best:
			winners = append(winners, rule)
		}
	}

	return winners
}

// resolveMethod narrows the path winners to the rules that decide the
// request method:
//
//  1. Method-specific rules covering the method win outright; method-agnostic
//     rules at the same specificity are ignored entirely.
//  2. When method-specific rules exist but none covers the method, the
//     request is rejected. It does not fall back to method-agnostic rules:
//     a rule that names methods claims the path for exactly those methods.
//  3. Only when no rule at this specificity names any method do the
//     method-agnostic rules apply.
//
// methodRejected is true in case 2; winners is nil then.
func resolveMethod(candidates []*Rule, method string) (winners []*Rule, methodRejected bool) {
	var withMethod, withoutMethod, matching []*Rule

	for _, rule := range candidates {
		if !rule.methodSpecific() {
			withoutMethod = append(withoutMethod, rule)
			continue
		}
		withMethod = append(withMethod, rule)
		if rule.appliesToMethod(method) {
			matching = append(matching, rule)
		}
	}

	switch {
	case len(matching) > 0:
		return matching, false
	case len(withMethod) > 0:
		return nil, true
	default:
		return withoutMethod, false
	}
}
