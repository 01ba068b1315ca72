package transport

import (
	"fmt"

	"github.com/golang-jwt/jwt"
)

const userIdClaim = "user-id"

// UserIdFromToken extracts the user id claim from a session token without
// verifying the signature. The client never holds the signing key; the
// server is the authority on the token, this is only used locally to
// recognize the session's own user (typing echo discard).
func UserIdFromToken(tokenString string) (string, error) {
	claims := jwt.MapClaims{}
	if _, _, err := new(jwt.Parser).ParseUnverified(tokenString, claims); err != nil {
		return "", fmt.Errorf("parse token: %w", err)
	}

	if sub, ok := claims["sub"].(string); ok && sub != "" {
		return sub, nil
	}
	if id, ok := claims[userIdClaim].(string); ok && id != "" {
		return id, nil
	}

	return "", fmt.Errorf("no user id claim in token")
}
