package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePermission(t *testing.T) {
	p, err := ParsePermission("requirements:read")
	require.NoError(t, err)
	assert.Equal(t, PermRequirementsRead, p)

	_, err = ParsePermission("requirements:delete")
	require.Error(t, err)
}

func TestImpliedPermissionsUnionsAcrossRoles(t *testing.T) {
	// USER lacks requirements:write, ADMIN has it; together the union covers
	// both role's sets.
	implied := ImpliedPermissions([]Role{RoleUser, RoleAdmin})
	assert.Contains(t, implied, PermRequirementsWrite)
	assert.Contains(t, implied, PermAssessmentsWrite)
	assert.Contains(t, implied, PermStandardsRead)
}

func TestImpliedPermissionsZeroRoles(t *testing.T) {
	assert.Empty(t, ImpliedPermissions(nil))
	assert.Empty(t, ImpliedPermissions([]Role{}))
}

func TestImpliedPermissionsUnknownRole(t *testing.T) {
	assert.Empty(t, ImpliedPermissions([]Role{Role("INTERN")}))
}

func TestIntersectPermissions(t *testing.T) {
	a := []Permission{PermRequirementsRead, PermRequirementsWrite}
	b := []Permission{PermRequirementsWrite, PermAssetsRead}

	got := IntersectPermissions(a, b)
	assert.Equal(t, []Permission{PermRequirementsWrite}, got)
}

func TestIntersectPermissionsDisjoint(t *testing.T) {
	got := IntersectPermissions(
		[]Permission{PermRequirementsRead},
		[]Permission{PermAssetsRead},
	)
	assert.Empty(t, got)
}

func TestEffectivePermissionsIsIntersectionNeverUnion(t *testing.T) {
	// Credential holds {requirements:read, requirements:write}; AUDITOR
	// implies requirements:read plus others. Only the overlap survives.
	credPerms := []Permission{PermRequirementsRead, PermRequirementsWrite}
	got := EffectivePermissions([]Role{RoleAuditor}, credPerms)

	assert.Equal(t, []Permission{PermRequirementsRead}, got)
	assert.NotContains(t, got, PermRequirementsWrite)
	assert.NotContains(t, got, PermStandardsRead)
}

func TestEffectivePermissionsCanonicalOrder(t *testing.T) {
	credPerms := []Permission{PermReleasesRead, PermAssetsRead, PermRequirementsRead}
	got := EffectivePermissions([]Role{RoleAdmin}, credPerms)
	assert.Equal(t, []Permission{PermRequirementsRead, PermAssetsRead, PermReleasesRead}, got)
}

func TestHasPermission(t *testing.T) {
	set := []Permission{PermRequirementsRead, PermAssetsRead}
	assert.True(t, HasPermission(set, PermAssetsRead))
	assert.False(t, HasPermission(set, PermAssetsWrite))
	assert.False(t, HasPermission(nil, PermAssetsRead))
}
