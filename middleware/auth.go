package middleware

import (
	"net/http"
	"strings"

	"washflow/models"
	"washflow/utils"

	"github.com/gin-gonic/gin"
)

const callerKey = "caller"

// AuthMiddleware resolves the bearer token into a models.Caller. Tokens carry
// the subject and one of the driver, provider or operator roles.
func AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" || !strings.HasPrefix(authHeader, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, utils.ErrorResponse{Message: "Missing or invalid Authorization header"})
			return
		}
		tokenString := strings.TrimPrefix(authHeader, "Bearer ")

		subject, role, err := utils.ExtractIdentity(tokenString)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, utils.ErrorResponse{Message: "Invalid token"})
			return
		}
		switch models.Role(role) {
		case models.RoleDriver, models.RoleProvider, models.RoleOperator:
		default:
			c.AbortWithStatusJSON(http.StatusUnauthorized, utils.ErrorResponse{Message: "Token role is not accepted"})
			return
		}

		c.Set(callerKey, models.Caller{ID: subject, Role: models.Role(role)})
		c.Next()
	}
}

// CallerFrom returns the caller set by AuthMiddleware.
func CallerFrom(c *gin.Context) (models.Caller, bool) {
	v, ok := c.Get(callerKey)
	if !ok {
		return models.Caller{}, false
	}
	caller, ok := v.(models.Caller)
	return caller, ok
}
