package models

import (
	dErrors "authrelay/pkg/domain-errors"
)

// Permission is a capability token over one of the managed resource
// categories. The enumeration is fixed; credentials and roles both grant
// subsets of it.
type Permission string

const (
	PermRequirementsRead  Permission = "requirements:read"
	PermRequirementsWrite Permission = "requirements:write"
	PermAssessmentsRead   Permission = "assessments:read"
	PermAssessmentsWrite  Permission = "assessments:write"
	PermAssetsRead        Permission = "assets:read"
	PermAssetsWrite       Permission = "assets:write"
	PermStandardsRead     Permission = "standards:read"
	PermReleasesRead      Permission = "releases:read"
)

// allPermissions fixes the canonical ordering used when permission sets are
// rendered. Keep in sync with the constants above.
var allPermissions = []Permission{
	PermRequirementsRead,
	PermRequirementsWrite,
	PermAssessmentsRead,
	PermAssessmentsWrite,
	PermAssetsRead,
	PermAssetsWrite,
	PermStandardsRead,
	PermReleasesRead,
}

// IsValid checks if the permission is one of the supported enum values.
func (p Permission) IsValid() bool {
	for _, known := range allPermissions {
		if p == known {
			return true
		}
	}
	return false
}

// String returns the string representation.
func (p Permission) String() string {
	return string(p)
}

// ParsePermission creates a Permission from a string, validating it.
func ParsePermission(s string) (Permission, error) {
	p := Permission(s)
	if !p.IsValid() {
		return "", dErrors.Newf(dErrors.CodeInvalidInput, "unknown permission: %s", s)
	}
	return p, nil
}

// Role is a user role token from the external user store.
type Role string

const (
	RoleUser    Role = "USER"
	RoleAdmin   Role = "ADMIN"
	RoleAuditor Role = "AUDITOR"
)

// IsValid checks if the role is one of the supported enum values.
func (r Role) IsValid() bool {
	switch r {
	case RoleUser, RoleAdmin, RoleAuditor:
		return true
	}
	return false
}

// String returns the string representation.
func (r Role) String() string {
	return string(r)
}

// rolePermissions is the static role-to-permission mapping. Many-to-many: a
// role implies several permissions and a permission may be implied by
// several roles. Immutable after init; swap the table, not the composer.
var rolePermissions = map[Role][]Permission{
	RoleUser: {
		PermRequirementsRead,
		PermAssessmentsRead,
		PermAssessmentsWrite,
		PermAssetsRead,
		PermStandardsRead,
		PermReleasesRead,
	},
	RoleAuditor: {
		PermRequirementsRead,
		PermAssessmentsRead,
		PermAssetsRead,
		PermStandardsRead,
		PermReleasesRead,
	},
	RoleAdmin: {
		PermRequirementsRead,
		PermRequirementsWrite,
		PermAssessmentsRead,
		PermAssessmentsWrite,
		PermAssetsRead,
		PermAssetsWrite,
		PermStandardsRead,
		PermReleasesRead,
	},
}

// ImpliedPermissions returns the union of permissions implied by the given
// roles, in canonical order. Unknown roles imply nothing. Zero roles yield
// an empty set; that is not an error, downstream checks reject
// operation-by-operation.
func ImpliedPermissions(roles []Role) []Permission {
	implied := make(map[Permission]struct{})
	for _, role := range roles {
		for _, p := range rolePermissions[role] {
			implied[p] = struct{}{}
		}
	}
	return ordered(implied)
}

// IntersectPermissions returns the set-intersection of two permission sets
// in canonical order. Both sides must independently grant a permission for
// it to appear: neither the credential alone nor the user alone can unlock
// an action the other disallows.
func IntersectPermissions(a, b []Permission) []Permission {
	inA := make(map[Permission]struct{}, len(a))
	for _, p := range a {
		inA[p] = struct{}{}
	}
	both := make(map[Permission]struct{})
	for _, p := range b {
		if _, ok := inA[p]; ok {
			both[p] = struct{}{}
		}
	}
	return ordered(both)
}

// EffectivePermissions composes the effective set for a delegated request:
// the intersection of what the user's roles imply and what the credential
// itself holds.
func EffectivePermissions(roles []Role, credentialPerms []Permission) []Permission {
	return IntersectPermissions(ImpliedPermissions(roles), credentialPerms)
}

// HasPermission reports whether the set contains p.
func HasPermission(set []Permission, p Permission) bool {
	for _, have := range set {
		if have == p {
			return true
		}
	}
	return false
}

func ordered(set map[Permission]struct{}) []Permission {
	out := make([]Permission, 0, len(set))
	for _, p := range allPermissions {
		if _, ok := set[p]; ok {
			out = append(out, p)
		}
	}
	return out
}
