package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	SetJWTSecret("test-secret-key-for-testing")
}

func TestGenerateAndParseToken(t *testing.T) {
	token, err := GenerateToken("user-42", "dev@example.com", nil, 24)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := ParseToken(token)
	require.NoError(t, err)

	assert.Equal(t, "user-42", claims.UserID())
	assert.Equal(t, "dev@example.com", claims.Email)
	assert.False(t, claims.IsAdminClaim())
}

func TestGenerateToken_DifferentUsers(t *testing.T) {
	token1, _ := GenerateToken("u1", "a@example.com", nil, 24)
	token2, _ := GenerateToken("u2", "b@example.com", nil, 24)

	assert.NotEqual(t, token1, token2)
}

func TestParseToken_CustomClaims(t *testing.T) {
	token, err := GenerateToken("admin-1", "ops@example.com", map[string]interface{}{"admin": true, "team": "billing"}, 1)
	require.NoError(t, err)

	claims, err := ParseToken(token)
	require.NoError(t, err)

	assert.True(t, claims.IsAdminClaim())
	assert.Equal(t, "billing", claims.Custom["team"])
}

func TestParseToken_AdminClaimMustBeBoolean(t *testing.T) {
	token, _ := GenerateToken("u1", "a@example.com", map[string]interface{}{"admin": "true"}, 1)

	claims, err := ParseToken(token)
	require.NoError(t, err)
	assert.False(t, claims.IsAdminClaim())
}

func TestParseToken_InvalidToken(t *testing.T) {
	invalidTokens := []string{
		"",
		"invalid",
		"not.a.token",
		"eyJhbGciOiJIUzI1NiIsInR5cCI6IkpXVCJ9.invalid.signature",
	}

	for _, token := range invalidTokens {
		_, err := ParseToken(token)
		assert.Error(t, err, "ParseToken(%q) should fail", token)
	}
}

func TestParseToken_WrongSecret(t *testing.T) {
	SetJWTSecret("original-secret")
	token, _ := GenerateToken("u1", "a@example.com", nil, 24)

	SetJWTSecret("different-secret")
	_, err := ParseToken(token)

	SetJWTSecret("test-secret-key-for-testing")

	assert.Error(t, err)
}

func TestParseToken_Expired(t *testing.T) {
	token, err := GenerateToken("u1", "a@example.com", nil, -1)
	require.NoError(t, err)

	_, err = ParseToken(token)
	assert.Error(t, err)
}

func TestGenerateToken_Expiration(t *testing.T) {
	token, _ := GenerateToken("u1", "a@example.com", nil, 1)
	claims, err := ParseToken(token)
	require.NoError(t, err)

	expected := time.Now().Add(time.Hour)
	assert.WithinDuration(t, expected, claims.ExpiresAt.Time, time.Minute)
}
