package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashPassword(t *testing.T) {
	hash, err := HashPassword("testpassword123")
	require.NoError(t, err)

	assert.NotEmpty(t, hash)
	assert.NotEqual(t, "testpassword123", hash)

	other, _ := HashPassword("testpassword123")
	assert.NotEqual(t, hash, other, "bcrypt salts every hash")
}

func TestCheckPassword(t *testing.T) {
	hash, _ := HashPassword("correctpassword")

	tests := []struct {
		name     string
		password string
		hash     string
		expected bool
	}{
		{"correct password", "correctpassword", hash, true},
		{"wrong password", "wrongpassword", hash, false},
		{"empty password", "", hash, false},
		{"case sensitive", "CorrectPassword", hash, false},
		{"invalid hash", "correctpassword", "invalid_hash", false},
		{"empty hash", "correctpassword", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, CheckPassword(tt.password, tt.hash))
		})
	}
}

func TestRandomToken(t *testing.T) {
	a, err := RandomToken(32)
	require.NoError(t, err)
	b, _ := RandomToken(32)

	assert.Len(t, a, 64)
	assert.NotEqual(t, a, b)
}
