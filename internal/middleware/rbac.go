package middleware

import (
	"net/http"
	"slices"

	"github.com/gin-gonic/gin"
	"github.com/testhub/testhub-backend/internal/model"
	"github.com/testhub/testhub-backend/internal/response"
)

// RequireRole lets the request through when the token carries one of roles.
func RequireRole(roles ...model.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := GetClaims(c)
		if claims == nil {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenRequired)
			return
		}

		if !slices.Contains(roles, claims.Role) {
			response.AbortFail(c, http.StatusForbidden, response.ErrForbidden)
			return
		}
		c.Next()
	}
}

// OwnerScope returns the owner filter for the caller: administrators see
// everything (0), lecturers only their own resources.
func OwnerScope(c *gin.Context) int {
	claims := GetClaims(c)
	if claims == nil || claims.Role == model.RoleAdmin {
		return 0
	}
	return claims.UserID
}
