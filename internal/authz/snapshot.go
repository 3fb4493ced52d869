// Gatehouse - HTTP Request Authorization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gatehouse

package authz

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// ErrInvalidConfig is wrapped by every configuration validation failure.
// Validation happens at snapshot build time, before the snapshot is
// installed; a process must refuse to start rather than serve with
// ambiguous rules.
var ErrInvalidConfig = errors.New("invalid authorization configuration")

// PolicyDefinition is the raw form of a role-based policy, as parsed from
// the `policy.<name>.roles-allowed` configuration keys.
type PolicyDefinition struct {
	RolesAllowed []string
}

// RuleDefinition is the raw form of a permission rule, as parsed from the
// `permission.<name>.*` configuration keys.
type RuleDefinition struct {
	Paths   []string
	Policy  string
	Methods []string
}

// Snapshot is an immutable rule and policy table. A snapshot is built once
// from validated configuration and shared read-only by every request;
// reload installs a new snapshot atomically instead of mutating this one.
type Snapshot struct {
	rules    []*Rule
	policies map[string]*Policy
	builtAt  time.Time

	// generation is assigned by the engine when the snapshot is installed.
	// It distinguishes cached decisions made against different snapshots.
	generation uint64
}

// BuildSnapshot validates the definitions and constructs the immutable
// table. Any validation failure aborts the build; a snapshot is never
// half-valid.
func BuildSnapshot(policyDefs map[string]PolicyDefinition, ruleDefs map[string]RuleDefinition) (*Snapshot, error) {
	policies := builtinPolicies()

	for name, def := range policyDefs {
		if name == "" {
			return nil, fmt.Errorf("%w: policy with empty name", ErrInvalidConfig)
		}
		if _, reserved := policies[name]; reserved {
			return nil, fmt.Errorf("%w: policy %q shadows a built-in policy", ErrInvalidConfig, name)
		}
		roles := cleanTokens(def.RolesAllowed, false)
		if len(roles) == 0 {
			return nil, fmt.Errorf("%w: policy %q has an empty roles-allowed list", ErrInvalidConfig, name)
		}
		policies[name] = &Policy{Name: name, Kind: PolicyRoles, RolesAllowed: roles}
	}

	rules := make([]*Rule, 0, len(ruleDefs))
	for name, def := range ruleDefs {
		rule, err := buildRule(name, def, policies)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}

	// Deterministic order for diagnostics; evaluation order is irrelevant.
	sort.Slice(rules, func(i, j int) bool { return rules[i].Name < rules[j].Name })

	return &Snapshot{
		rules:    rules,
		policies: policies,
		builtAt:  time.Now(),
	}, nil
}

func buildRule(name string, def RuleDefinition, policies map[string]*Policy) (*Rule, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: permission set with empty name", ErrInvalidConfig)
	}

	patterns := cleanTokens(def.Paths, false)
	if len(patterns) == 0 {
		return nil, fmt.Errorf("%w: permission set %q has no path patterns", ErrInvalidConfig, name)
	}
	for _, p := range patterns {
		if p == "*" || p == "" {
			return nil, fmt.Errorf("%w: permission set %q has malformed pattern %q", ErrInvalidConfig, name, p)
		}
		if !strings.HasPrefix(p, "/") {
			return nil, fmt.Errorf("%w: permission set %q pattern %q must start with '/'", ErrInvalidConfig, name, p)
		}
		if i := strings.Index(p, "*"); i >= 0 && i != len(p)-1 {
			return nil, fmt.Errorf("%w: permission set %q pattern %q may only use a trailing wildcard", ErrInvalidConfig, name, p)
		}
	}

	policy, ok := policies[def.Policy]
	if !ok {
		return nil, fmt.Errorf("%w: permission set %q references undefined policy %q", ErrInvalidConfig, name, def.Policy)
	}

	var methods map[string]struct{}
	if tokens := cleanTokens(def.Methods, true); len(tokens) > 0 {
		methods = make(map[string]struct{}, len(tokens))
		for _, m := range tokens {
			methods[m] = struct{}{}
		}
	}

	return &Rule{
		Name:     name,
		Patterns: patterns,
		Methods:  methods,
		Policy:   policy,
	}, nil
}

// cleanTokens trims whitespace, drops empties, and optionally uppercases.
func cleanTokens(tokens []string, upper bool) []string {
	out := make([]string, 0, len(tokens))
	for _, t := range tokens {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if upper {
			t = strings.ToUpper(t)
		}
		out = append(out, t)
	}
	return out
}

// BuiltAt returns when the snapshot was constructed.
func (s *Snapshot) BuiltAt() time.Time {
	return s.builtAt
}

// RuleCount returns the number of permission rules in the snapshot.
func (s *Snapshot) RuleCount() int {
	return len(s.rules)
}

// RuleInfo is the diagnostics view of a rule.
type RuleInfo struct {
	Name     string   `json:"name"`
	Patterns []string `json:"patterns"`
	Methods  []string `json:"methods,omitempty"`
	Policy   string   `json:"policy"`
}

// PolicyInfo is the diagnostics view of a policy.
type PolicyInfo struct {
	Name         string   `json:"name"`
	Kind         string   `json:"kind"`
	RolesAllowed []string `json:"roles_allowed,omitempty"`
}

// Rules returns the diagnostics view of every rule, in name order.
func (s *Snapshot) Rules() []RuleInfo {
	out := make([]RuleInfo, 0, len(s.rules))
	for _, r := range s.rules {
		info := RuleInfo{
			Name:     r.Name,
			Patterns: append([]string(nil), r.Patterns...),
			Policy:   r.Policy.Name,
		}
		for m := range r.Methods {
			info.Methods = append(info.Methods, m)
		}
		sort.Strings(info.Methods)
		out = append(out, info)
	}
	return out
}

// Policies returns the diagnostics view of every policy, built-ins included,
// in name order.
func (s *Snapshot) Policies() []PolicyInfo {
	out := make([]PolicyInfo, 0, len(s.policies))
	for _, p := range s.policies {
		out = append(out, PolicyInfo{
			Name:         p.Name,
			Kind:         p.Kind.String(),
			RolesAllowed: append([]string(nil), p.RolesAllowed...),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
