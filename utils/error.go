package utils

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ErrorResponse defines the structure of error responses
type ErrorResponse struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
	Kind    string `json:"kind,omitempty"`
	Details string `json:"details,omitempty"`
}

// ErrorHandler is a middleware to catch panics and return structured errors
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				Logger := GetLogger()
				Logger.Error("Unhandled panic", zap.Any("error", err))

				c.JSON(http.StatusInternalServerError, ErrorResponse{
					Message: "Internal Server Error",
					Details: "An unexpected error occurred. Please try again later.",
				})
				c.Abort()
			}
		}()
		c.Next()
	}
}

// StatusFor maps an error kind to its HTTP status.
func StatusFor(kind ErrorKind) int {
	switch kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindPrecondition, KindConflict:
		return http.StatusConflict
	case KindResourceExhausted:
		return http.StatusUnprocessableEntity
	case KindDependency:
		return http.StatusServiceUnavailable
	case KindNotFound:
		return http.StatusNotFound
	case KindForbidden:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// RespondError writes err using the AppError taxonomy. Untyped errors become 500s.
func RespondError(c *gin.Context, err error) {
	appErr, ok := AsAppError(err)
	if !ok {
		GetLogger().Error("unclassified error", zap.Error(err), zap.String("path", c.FullPath()))
		c.JSON(http.StatusInternalServerError, ErrorResponse{Message: "Internal Server Error"})
		return
	}
	status := StatusFor(appErr.Kind)
	if status >= http.StatusInternalServerError {
		GetLogger().Error(appErr.Message, zap.String("code", appErr.Code), zap.Error(appErr.Err))
	}
	resp := ErrorResponse{Message: appErr.Message, Code: appErr.Code, Kind: string(appErr.Kind)}
	if appErr.Err != nil && status != http.StatusInternalServerError {
		resp.Details = appErr.Err.Error()
	}
	c.JSON(status, resp)
}
