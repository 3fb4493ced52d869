// Gatehouse - HTTP Request Authorization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gatehouse

package authz

import (
	"github.com/tomtom215/gatehouse/internal/auth"
)

// PolicyKind identifies how a policy evaluates an identity.
type PolicyKind int

const (
	// PolicyPermit always allows.
	PolicyPermit PolicyKind = iota

	// PolicyDeny always denies.
	PolicyDeny

	// PolicyAuthenticated allows any non-anonymous identity.
	PolicyAuthenticated

	// PolicyRoles allows identities holding at least one of the policy's roles.
	PolicyRoles
)

// String returns the kind's configuration name.
func (k PolicyKind) String() string {
	switch k {
	case PolicyPermit:
		return "permit"
	case PolicyDeny:
		return "deny"
	case PolicyAuthenticated:
		return "authenticated"
	case PolicyRoles:
		return "roles-allowed"
	default:
		return "unknown"
	}
}

// Names of the built-in policies. Configuration may reference these directly
// without defining them; the names are reserved and cannot be redefined.
const (
	BuiltinPermit        = "permit"
	BuiltinDeny          = "deny"
	BuiltinAuthenticated = "authenticated"
)

// Policy is a named access evaluator, built once from validated configuration
// and immutable afterwards.
type Policy struct {
	// Name is the policy's configuration name.
	Name string

	// Kind selects the evaluation behavior.
	Kind PolicyKind

	// RolesAllowed is populated only for PolicyRoles.
	RolesAllowed []string
}

// Allows evaluates the policy against an identity.
// Role-based policies require a non-anonymous identity holding at least one
// allowed role.
func (p *Policy) Allows(id *auth.Identity) bool {
	switch p.Kind {
	case PolicyPermit:
		return true
	case PolicyDeny:
		return false
	case PolicyAuthenticated:
		return !id.Anonymous
	case PolicyRoles:
		return !id.Anonymous && id.HasAnyRole(p.RolesAllowed...)
	default:
		return false
	}
}

// builtinPolicies returns fresh copies of the three built-in policies.
func builtinPolicies() map[string]*Policy {
	return map[string]*Policy{
		BuiltinPermit:        {Name: BuiltinPermit, Kind: PolicyPermit},
		BuiltinDeny:          {Name: BuiltinDeny, Kind: PolicyDeny},
		BuiltinAuthenticated: {Name: BuiltinAuthenticated, Kind: PolicyAuthenticated},
	}
}
