package jwt

import (
	"github.com/golang-jwt/jwt/v5"
)

// Claims is the token payload for platform principals. Purpose distinguishes
// access tokens from refresh tokens.
type Claims struct {
	UserID    string `json:"user_id"`
	Role      string `json:"role,omitempty"`
	StationID string `json:"station_id,omitempty"`
	Purpose   string `json:"purpose"` // access or refresh
	jwt.RegisteredClaims
}

// HasRole checks whether the token carries the given role.
func (c *Claims) HasRole(role string) bool {
	return c.Role == role
}

// HasAnyRole checks whether the token carries one of the given roles.
func (c *Claims) HasAnyRole(roles ...string) bool {
	for _, r := range roles {
		if c.Role == r {
			return true
		}
	}
	return false
}

// VerifyAudience checks if the expected audience is listed in the claims.
func (c *Claims) VerifyAudience(audience string, required bool) bool {
	if len(c.Audience) == 0 {
		return !required
	}
	for _, aud := range c.Audience {
		if aud == audience {
			return true
		}
	}
	return false
}
