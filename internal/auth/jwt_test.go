package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAndVerify(t *testing.T) {
	m := NewJWTManager("test-secret", 5*time.Minute, "chat-sync")

	token, expiresAt, err := m.GenerateToken("User.Case@Example.COM", "User Case")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(5*time.Minute), expiresAt, 2*time.Second)

	claims, err := m.VerifyToken(token)
	require.NoError(t, err)
	assert.Equal(t, "user.case@example.com", claims.Email)
	assert.Equal(t, "User Case", claims.Identity().Name)
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	token, _, err := NewJWTManager("one", time.Minute, "chat-sync").GenerateToken("a@x.com", "A")
	require.NoError(t, err)

	_, err = NewJWTManager("two", time.Minute, "chat-sync").VerifyToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyRejectsExpired(t *testing.T) {
	m := NewJWTManager("secret", -time.Minute, "chat-sync")
	token, _, err := m.GenerateToken("a@x.com", "A")
	require.NoError(t, err)

	_, err = m.VerifyToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)
}

func TestVerifyRejectsOtherIssuer(t *testing.T) {
	token, _, err := NewJWTManager("secret", time.Minute, "elsewhere").GenerateToken("a@x.com", "A")
	require.NoError(t, err)

	_, err = NewJWTManager("secret", time.Minute, "chat-sync").VerifyToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestGenerateRequiresEmail(t *testing.T) {
	_, _, err := NewJWTManager("secret", time.Minute, "chat-sync").GenerateToken(" ", "A")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestBearerToken(t *testing.T) {
	token, ok := BearerToken("Bearer abc")
	assert.True(t, ok)
	assert.Equal(t, "abc", token)

	token, ok = BearerToken("bearer  xyz ")
	assert.True(t, ok)
	assert.Equal(t, "xyz", token)

	_, ok = BearerToken("Basic abc")
	assert.False(t, ok)
	_, ok = BearerToken("Bearer")
	assert.False(t, ok)
}
