package core_test

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sessiond/core"
)

func signedToken(t *testing.T, expiresAt time.Time) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "aaaaaaaa-aaaa-aaaa-aaaa-aaaaaaaaaaaa",
		ExpiresAt: jwt.NewNumericDate(expiresAt),
		IssuedAt:  jwt.NewNumericDate(time.Now()),
	})
	signed, err := token.SignedString([]byte("provider-owned-secret"))
	require.NoError(t, err)
	return signed
}

func TestAccessTokenExpiry(t *testing.T) {
	expiresAt := time.Now().Add(time.Hour).Truncate(time.Second)

	got, err := core.AccessTokenExpiry(signedToken(t, expiresAt))
	require.NoError(t, err)
	assert.True(t, got.Equal(expiresAt))
}

func TestAccessTokenExpiry_Malformed(t *testing.T) {
	_, err := core.AccessTokenExpiry("not-a-jwt")
	assert.ErrorIs(t, err, core.ErrInvalidToken)
}

func TestAccessTokenExpiry_NoExpiryClaim(t *testing.T) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject: "someone",
	})
	signed, err := token.SignedString([]byte("provider-owned-secret"))
	require.NoError(t, err)

	_, err = core.AccessTokenExpiry(signed)
	assert.ErrorIs(t, err, core.ErrInvalidToken)
}
