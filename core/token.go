package core

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("invalid token")

type accessClaims struct {
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// AccessTokenExpiry reads the expiry claim out of a provider access
// token. The signature is not verified; token cryptography belongs to
// the provider, the claim is only used to schedule refreshes.
func AccessTokenExpiry(raw string) (time.Time, error) {
	var claims accessClaims
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(raw, &claims); err != nil {
		return time.Time{}, ErrInvalidToken
	}

	if claims.ExpiresAt == nil {
		return time.Time{}, ErrInvalidToken
	}

	return claims.ExpiresAt.Time, nil
}
