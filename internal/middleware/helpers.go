// internal/middleware/helpers.go
package middleware

import "github.com/gin-gonic/gin"

// GetIdentityID gets the authenticated identity ID from context.
func GetIdentityID(c *gin.Context) (int64, bool) {
	v, exists := c.Get("identity_id")
	if !exists {
		return 0, false
	}

	id, ok := v.(int64)
	return id, ok
}

// MustGetIdentityID gets identity ID from context or panics
func MustGetIdentityID(c *gin.Context) int64 {
	id, exists := GetIdentityID(c)
	if !exists {
		panic("identity_id not found in context")
	}
	return id
}

// GetRoles gets user roles from context
func GetRoles(c *gin.Context) []string {
	roles, exists := c.Get("roles")
	if !exists {
		return []string{}
	}

	rolesList, ok := roles.([]string)
	if !ok {
		return []string{}
	}

	return rolesList
}

// HasRole checks if the authenticated user carries a role.
func HasRole(c *gin.Context, role string) bool {
	for _, r := range GetRoles(c) {
		if r == role {
			return true
		}
	}
	return false
}

// IsAdmin checks if user is an admin
func IsAdmin(c *gin.Context) bool {
	return HasRole(c, "admin") || HasRole(c, "super_admin")
}

// HasCapability checks if the authenticated user carries a capability flag.
func HasCapability(c *gin.Context, capability string) bool {
	v, exists := c.Get("capabilities")
	if !exists {
		return false
	}

	caps, ok := v.([]string)
	if !ok {
		return false
	}

	for _, cap := range caps {
		if cap == capability {
			return true
		}
	}
	return false
}
