package middleware

import (
	"net/http"

	"washflow/models"
	"washflow/utils"

	"github.com/gin-gonic/gin"
)

// RequireRole rejects callers whose role is not listed. Must run after AuthMiddleware.
func RequireRole(roles ...models.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		caller, ok := CallerFrom(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, utils.ErrorResponse{Message: "Not authenticated"})
			return
		}
		for _, r := range roles {
			if caller.Role == r {
				c.Next()
				return
			}
		}
		c.AbortWithStatusJSON(http.StatusForbidden, utils.ErrorResponse{
			Message: "Role not allowed for this endpoint",
			Code:    "role_not_allowed",
			Kind:    string(utils.KindForbidden),
		})
	}
}
