package mw

import (
	"context"
	"log"
	"net/http"
	"slices"
	"strings"

	"github.com/gin-gonic/gin"

	"gpu-booking-backend/internal/model"
)

// UserEmailHeader is set by the upstream auth proxy.
const UserEmailHeader = "X-User-Email"

const (
	emailKey = "user_email"
	roleKey  = "user_role"
)

// RoleLookup resolves the stored role of a user.
type RoleLookup interface {
	Role(ctx context.Context, email string) (model.Role, error)
}

// RequireUser takes the caller's identity from X-User-Email and rejects
// requests without one.
func RequireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		email := strings.ToLower(strings.TrimSpace(c.GetHeader(UserEmailHeader)))
		if email == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":      "user email required",
				"error_type": "unauthorized",
			})
			return
		}
		c.Set(emailKey, email)
		c.Next()
	}
}

// RequireRole admits only callers whose stored role is one of roles. It must
// run after RequireUser.
func RequireRole(lookup RoleLookup, roles ...model.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		email := UserEmail(c)
		role, err := lookup.Role(c.Request.Context(), email)
		if err != nil {
			log.Printf("Role lookup for %s failed: %v", email, err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error", "error_type": "internal_error"})
			return
		}
		if !slices.Contains(roles, role) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":      "permission denied",
				"error_type": "permission_denied",
			})
			return
		}
		c.Set(roleKey, role)
		c.Next()
	}
}

// UserEmail returns the caller's normalized email.
func UserEmail(c *gin.Context) string {
	return c.GetString(emailKey)
}

// UserRole returns the caller's role as resolved by RequireRole.
func UserRole(c *gin.Context) model.Role {
	if v, ok := c.Get(roleKey); ok {
		if role, ok := v.(model.Role); ok {
			return role
		}
	}
	return model.RoleUser
}
