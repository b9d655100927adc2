package handlers

import (
	"net/http"

	"washflow/middleware"
	"washflow/models"
	"washflow/utils"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// HandlerBundle groups the endpoint handlers the router mounts.
type HandlerBundle struct {
	Lanes    *LaneHandler
	Orders   *OrderHandler
	Disputes *DisputeHandler
	Escrow   *EscrowHandler
}

// mustCaller returns the authenticated caller or writes a 401.
func mustCaller(c *gin.Context) (models.Caller, bool) {
	caller, ok := middleware.CallerFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, utils.ErrorResponse{Message: "Not authenticated"})
		return models.Caller{}, false
	}
	return caller, true
}

// bindJSON binds the request body, writing a 400 on failure.
func bindJSON(c *gin.Context, dst interface{}) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		reqLogger(c).Debug("invalid request payload")
		c.JSON(http.StatusBadRequest, utils.ErrorResponse{
			Message: "Invalid request payload",
			Code:    "invalid_payload",
			Kind:    string(utils.KindValidation),
			Details: err.Error(),
		})
		return false
	}
	return true
}

// reqLogger is the request-scoped logger installed by RequestLogger, tagged
// with the caller when one is authenticated.
func reqLogger(c *gin.Context) *zap.Logger {
	logger := zap.L()
	if l, ok := c.Get("logger"); ok {
		if zl, ok := l.(*zap.Logger); ok {
			logger = zl
		}
	}
	if caller, ok := middleware.CallerFrom(c); ok {
		logger = logger.With(zap.String("callerId", caller.ID))
	}
	return logger
}
