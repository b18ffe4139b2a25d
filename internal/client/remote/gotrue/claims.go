package gotrue

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims are the access-token claims the client looks at. The signature is
// not checked: the token is only ever presented back to the service that
// issued it, which verifies it.
type Claims struct {
	jwt.RegisteredClaims
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
}

func ParseClaims(token string) (*Claims, error) {
	var c Claims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &c); err != nil {
		return nil, fmt.Errorf("parse access token: %w", err)
	}
	return &c, nil
}

// tokenExpiry returns the exp claim of token.
func tokenExpiry(token string) (time.Time, bool) {
	c, err := ParseClaims(token)
	if err != nil || c.ExpiresAt == nil {
		return time.Time{}, false
	}
	return c.ExpiresAt.Time, true
}
