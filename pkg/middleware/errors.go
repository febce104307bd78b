package middleware

import (
	"net/http"
	"runtime/debug"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ErrorResponse is the JSON body of every HTTP error
type ErrorResponse struct {
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// AbortWithError writes an ErrorResponse and aborts the chain
func AbortWithError(c *gin.Context, status int, message string, details map[string]any) {
	c.AbortWithStatusJSON(status, ErrorResponse{Message: message, Details: details})
}

func requestDetails(c *gin.Context) map[string]any {
	return map[string]any{
		"method":    c.Request.Method,
		"url":       c.Request.URL.RequestURI(),
		"timestamp": time.Now().UTC().Format("2006-01-02T15:04:05.000Z"),
	}
}

// NotFound answers unmatched routes with a JSON 404
func NotFound() gin.HandlerFunc {
	return func(c *gin.Context) {
		AbortWithError(c, http.StatusNotFound, "Not Found", requestDetails(c))
	}
}

// Recovery turns panics into a JSON 500. Stack details are only exposed when
// verbose is set (development).
func Recovery(logger *zap.Logger, verbose bool) gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered any) {
		logger.Error("Request panicked",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Any("panic", recovered),
		)

		message := "Internal Server Error"
		if err, ok := recovered.(error); ok {
			message = err.Error()
		} else if s, ok := recovered.(string); ok {
			message = s
		}

		details := requestDetails(c)
		if verbose {
			details["stack"] = string(debug.Stack())
		}
		AbortWithError(c, http.StatusInternalServerError, message, details)
	})
}
