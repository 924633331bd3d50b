package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashPassword_NotPlaintext(t *testing.T) {
	hash, err := HashPassword("Secret123!")
	require.NoError(t, err)
	assert.NotEqual(t, "Secret123!", hash)
	assert.NotEmpty(t, hash)
}

func TestHashPassword_SameInputDifferentHashes(t *testing.T) {
	hash1, err := HashPassword("Secret123!")
	require.NoError(t, err)
	hash2, err := HashPassword("Secret123!")
	require.NoError(t, err)

	// bcrypt salts each hash, so identical inputs must not collide
	assert.NotEqual(t, hash1, hash2)
	assert.True(t, VerifyPassword("Secret123!", hash1))
	assert.True(t, VerifyPassword("Secret123!", hash2))
}

func TestHashPassword_Empty(t *testing.T) {
	_, err := HashPassword("")
	assert.Error(t, err)
}

func TestVerifyPassword_WrongPassword(t *testing.T) {
	hash, err := HashPassword("Secret123!")
	require.NoError(t, err)
	assert.False(t, VerifyPassword("NotTheSecret1!", hash))
}

func TestVerifyPassword_MalformedHash(t *testing.T) {
	// Must yield false for garbage stored hashes, never panic or error
	assert.False(t, VerifyPassword("Secret123!", ""))
	assert.False(t, VerifyPassword("Secret123!", "not-a-bcrypt-hash"))
	assert.False(t, VerifyPassword("Secret123!", "$2a$garbage"))
}

func TestValidatePassword(t *testing.T) {
	tests := []struct {
		name     string
		password string
		wantErr  bool
	}{
		{"valid", "Secret123!", false},
		{"too short", "Ab1", true},
		{"no upper", "secret123", true},
		{"no lower", "SECRET123", true},
		{"no digit", "SecretWord", true},
		{"common", "password123!", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePassword(tt.password)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
