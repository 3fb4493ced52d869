// Gatehouse - HTTP Request Authorization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gatehouse

package authz

import (
	"github.com/tomtom215/gatehouse/internal/auth"
)

// RequirementKind is the closed set of per-handler access requirements.
type RequirementKind int

const (
	// Unannotated marks a handler with no declared requirement. It allows by
	// default, unless a deny-unannotated flag escalates it to deny.
	Unannotated RequirementKind = iota

	// PermitAll always allows.
	PermitAll

	// DenyAll always denies.
	DenyAll

	// AuthenticatedOnly allows any non-anonymous identity.
	AuthenticatedOnly

	// RolesRequired allows identities holding at least one declared role.
	RolesRequired
)

// String returns the kind name for logs.
func (k RequirementKind) String() string {
	switch k {
	case Unannotated:
		return "unannotated"
	case PermitAll:
		return "permit-all"
	case DenyAll:
		return "deny-all"
	case AuthenticatedOnly:
		return "authenticated"
	case RolesRequired:
		return "roles-required"
	default:
		return "unknown"
	}
}

// Requirement is a handler's declared access requirement plus the placement
// facts the deny-unannotated escalation needs. Requirements are resolved
// once at route registration and reused for every dispatch, never rebuilt
// per request.
type Requirement struct {
	// Kind selects the check behavior.
	Kind RequirementKind

	// Roles is populated only for RolesRequired.
	Roles []string

	// External marks an externally reachable endpoint. Relevant only for
	// Unannotated, where the deny-unannotated-endpoints flag applies.
	External bool

	// GroupSecured marks a handler whose route group contains at least one
	// other handler with a declared requirement. Relevant only for
	// Unannotated, where the deny-unannotated-members flag applies.
	GroupSecured bool
}

// Requirement constructors used at route registration.

// RequireRoles declares that the handler needs one of the given roles.
func RequireRoles(roles ...string) *Requirement {
	return &Requirement{Kind: RolesRequired, Roles: roles}
}

// RequireAuthenticated declares that any authenticated identity may call
// the handler.
func RequireAuthenticated() *Requirement {
	return &Requirement{Kind: AuthenticatedOnly}
}

// RequirePermitAll declares the handler open to everyone.
func RequirePermitAll() *Requirement {
	return &Requirement{Kind: PermitAll}
}

// RequireDenyAll declares the handler closed to everyone.
func RequireDenyAll() *Requirement {
	return &Requirement{Kind: DenyAll}
}

// NoRequirement declares a handler without an access requirement.
// external and groupSecured feed the deny-unannotated escalation.
func NoRequirement(external, groupSecured bool) *Requirement {
	return &Requirement{Kind: Unannotated, External: external, GroupSecured: groupSecured}
}

// checkRequirement evaluates a handler requirement against the identity.
// It runs only after the rule-based check has allowed the request.
//
// For Unannotated, the escalation order is fixed: the members flag is
// consulted first for handlers in a secured group, then the endpoints flag
// for externally reachable handlers, and only then does the default allow
// apply.
func (e *Engine) checkRequirement(req *Requirement, id *auth.Identity) (bool, Reason) {
	switch req.Kind {
	case PermitAll:
		return true, ReasonAllowed
	case DenyAll:
		return false, ReasonRequirementDenied
	case AuthenticatedOnly:
		if id.Anonymous {
			return false, ReasonRequirementDenied
		}
		return true, ReasonAllowed
	case RolesRequired:
		if id.Anonymous || !id.HasAnyRole(req.Roles...) {
			return false, ReasonRequirementDenied
		}
		return true, ReasonAllowed
	case Unannotated:
		if req.GroupSecured && e.denyUnannotatedMembers {
			return false, ReasonUnannotatedDenied
		}
		if req.External && e.denyUnannotatedEndpoints {
			return false, ReasonUnannotatedDenied
		}
		return true, ReasonAllowed
	default:
		// Unknown kinds fail closed.
		return false, ReasonRequirementDenied
	}
}
