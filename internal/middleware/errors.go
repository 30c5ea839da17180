package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/guttosm/rental-manager/internal/domain/dto"
	"github.com/guttosm/rental-manager/internal/logger"
)

// Recovery returns a middleware that recovers from panics and returns a 500 error.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				log := logger.Component("http")
				log.Error().
					Str("request_id", GetRequestID(c)).
					Interface("panic", err).
					Str("path", c.Request.URL.Path).
					Msg("PANIC recovered")

				Abort(c, http.StatusInternalServerError, "An unexpected error occurred")
			}
		}()
		c.Next()
	}
}

// ErrorHandler logs errors handlers attached to the gin context and answers
// with a 500 when the handler wrote nothing.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}
		err := c.Errors.Last()
		log := RequestLog(c)
		log.Error().
			Str("request_id", GetRequestID(c)).
			Err(err.Err).
			Str("path", c.Request.URL.Path).
			Str("method", c.Request.Method).
			Msg("Request error")

		if !c.Writer.Written() {
			Abort(c, http.StatusInternalServerError, "Internal server error")
		}
	}
}

// Abort stops the chain with a dto.ErrorResponse for status.
func Abort(c *gin.Context, status int, message string) {
	resp := dto.NewError(dto.ErrCodeFromStatus(status), message).WithRequestID(GetRequestID(c))
	c.AbortWithStatusJSON(status, resp)
}
