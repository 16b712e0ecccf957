// internal/pkg/jwt/claims.go
package jwt

import (
	"github.com/golang-jwt/jwt/v5"
)

// Claims represents the JWT claims minted by the identity service. This
// engine only ever verifies them.
type Claims struct {
	IdentityID   int64    `json:"identity_id"`
	Roles        []string `json:"roles,omitempty"`
	Capabilities []string `json:"capabilities,omitempty"`
	jwt.RegisteredClaims
}

// HasRole checks if the claims contain a specific role
func (c *Claims) HasRole(role string) bool {
	for _, r := range c.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// HasCapability checks if the claims carry a specific capability flag
func (c *Claims) HasCapability(capability string) bool {
	for _, p := range c.Capabilities {
		if p == capability {
			return true
		}
	}
	return false
}

// IsAdmin checks if user is an admin (including super admin)
func (c *Claims) IsAdmin() bool {
	return c.HasRole("admin") || c.HasRole("super_admin")
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
