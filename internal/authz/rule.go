// Gatehouse - HTTP Request Authorization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gatehouse

package authz

import (
	"strings"
)

// Rule binds a set of path patterns, and optionally HTTP methods, to a
// policy. Rules are built once from validated configuration and immutable
// afterwards; request handling only reads them.
type Rule struct {
	// Name identifies the rule for server-side diagnostics. Never exposed
	// to clients.
	Name string

	// Patterns are the path patterns. A pattern ending in '*' matches every
	// path under its prefix; any other pattern matches only the identical
	// path.
	Patterns []string

	// Methods are the uppercase HTTP method tokens the rule applies to.
	// Empty means the rule applies to any method, at lower precedence than
	// method-specific rules on the same path.
	Methods map[string]struct{}

	// Policy is the resolved policy evaluated when the rule wins.
	Policy *Policy
}

// methodSpecific reports whether the rule declares specific methods.
func (r *Rule) methodSpecific() bool {
	return len(r.Methods) > 0
}

// appliesToMethod reports whether a method-specific rule covers the request
// method. Comparison is case-insensitive; methods are stored uppercase.
func (r *Rule) appliesToMethod(method string) bool {
	_, ok := r.Methods[strings.ToUpper(method)]
	return ok
}

// specificity returns the precision of the rule's best matching pattern for
// path, and whether any pattern matched at all.
//
// An exact pattern matches only the identical path and scores its full
// length. A wildcard pattern matches every path under its prefix and scores
// the prefix length (the '*' excluded), so a longer literal prefix always
// wins over a shorter one.
func (r *Rule) specificity(path string) (int, bool) {
	best := -1
	for _, pattern := range r.Patterns {
		if prefix, wildcard := strings.CutSuffix(pattern, "*"); wildcard {
			if strings.HasPrefix(path, prefix) && len(prefix) > best {
				best = len(prefix)
			}
		} else if pattern == path && len(pattern) > best {
			best = len(pattern)
		}
	}
	if best < 0 {
		return 0, false
	}
	return best, true
}
