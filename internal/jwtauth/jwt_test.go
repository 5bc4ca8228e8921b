package jwtauth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTrip(t *testing.T) {
	svc := New("test-signing-key", "marquee")

	token, err := svc.GenerateToken("ops@example.com", "admin", time.Hour)
	require.NoError(t, err)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "ops@example.com", claims.Subject)
	assert.Equal(t, "admin", claims.Role)
}

func TestValidateToken_Expired(t *testing.T) {
	svc := New("test-signing-key", "marquee")

	token, err := svc.GenerateToken("ops@example.com", "admin", -time.Minute)
	require.NoError(t, err)

	_, err = svc.ValidateToken(token)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "expired")
}

func TestValidateToken_WrongKey(t *testing.T) {
	token, err := New("key-a", "marquee").GenerateToken("ops@example.com", "admin", time.Hour)
	require.NoError(t, err)

	_, err = New("key-b", "marquee").ValidateToken(token)
	assert.Error(t, err)
}
