package identity

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims are the ID token fields the app reads.
type Claims struct {
	Email   string `json:"email"`
	Name    string `json:"name"`
	Picture string `json:"picture"`
	UserID  string `json:"user_id"`
	jwt.RegisteredClaims
}

// ParseClaims decodes an ID token without verifying its signature. Tokens
// reach this process only from the provider's token endpoints over TLS, and
// the donation API verifies them on every call.
func ParseClaims(idToken string) (Claims, error) {
	var claims Claims
	if idToken == "" {
		return claims, errors.New("identity: empty id token")
	}
	if _, _, err := jwt.NewParser().ParseUnverified(idToken, &claims); err != nil {
		return claims, err
	}
	return claims, nil
}

// expiryOf returns the token expiry, or fallback when the token carries none.
func expiryOf(idToken string, fallback time.Time) time.Time {
	claims, err := ParseClaims(idToken)
	if err != nil || claims.ExpiresAt == nil {
		return fallback
	}
	return claims.ExpiresAt.Time
}
