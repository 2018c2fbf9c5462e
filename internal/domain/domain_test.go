package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidRoles_ContainsAll(t *testing.T) {
	assert.ElementsMatch(t, []string{RoleStudent, RoleParent, RoleAdmin}, ValidRoles())
}

func TestIsValidRole(t *testing.T) {
	for _, r := range ValidRoles() {
		assert.True(t, IsValidRole(r), "expected %q to be valid", r)
	}
	assert.False(t, IsValidRole(""))
	assert.False(t, IsValidRole("ADMIN"))
	assert.False(t, IsValidRole("customer"))
}

func TestIsSelfAssignableRole(t *testing.T) {
	assert.True(t, IsSelfAssignableRole(RoleStudent))
	assert.True(t, IsSelfAssignableRole(RoleParent))
	assert.False(t, IsSelfAssignableRole(RoleAdmin))
	assert.False(t, IsSelfAssignableRole(""))
}

func TestNormalizeEmail(t *testing.T) {
	assert.Equal(t, "jane@x.com", NormalizeEmail("  JANE@X.com "))
	assert.Equal(t, NormalizeEmail("Jane@X.COM"), NormalizeEmail("jane@x.com"))
}

func TestUser_JSONOmitsPasswordHash(t *testing.T) {
	u := User{ID: "u-1", Email: "jane@x.com", Name: "Jane", PasswordHash: "$2a$10$secret", Role: RoleStudent}

	raw, err := json.Marshal(u)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "secret")
	assert.NotContains(t, string(raw), "password")
	assert.Contains(t, string(raw), `"createdAt"`)
}

func TestSession_Active(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	s := Session{ExpiresAt: now.Add(time.Hour)}
	assert.True(t, s.Active(now))
	assert.False(t, s.Active(now.Add(time.Hour)))

	revoked := now
	s.RevokedAt = &revoked
	assert.False(t, s.Active(now))
}

func TestHashToken(t *testing.T) {
	h := HashToken("token")
	assert.Len(t, h, 64)
	assert.Equal(t, h, HashToken("token"))
	assert.NotEqual(t, h, HashToken("token2"))
}
