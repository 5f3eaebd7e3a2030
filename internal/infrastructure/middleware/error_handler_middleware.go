package middleware

import (
	"net/http"

	"whipcast/pkg/errors"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ErrorHandlerMiddleware turns errors attached to the gin context into a
// JSON body with a stable error code. Anything that is not an AppError is
// wrapped as ErrCodeInternal so the response shape stays uniform.
func ErrorHandlerMiddleware(logger *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}
		err := c.Errors.Last().Err

		appErr := errors.GetAppError(err)
		if appErr == nil {
			appErr = errors.WrapError(err, errors.ErrCodeInternal, "internal server error", http.StatusInternalServerError)
		}
		writeAppError(c, logger, appErr)
	}
}

// RecoveryMiddleware converts a handler panic into an ErrCodeInternal
// response instead of dropping the connection.
func RecoveryMiddleware(logger *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				logger.Errorw("panic in handler",
					"panic", r,
					"path", c.Request.URL.Path,
					"method", c.Request.Method,
				)
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"error":   string(errors.ErrCodeInternal),
					"message": "internal server error",
				})
			}
		}()
		c.Next()
	}
}

func writeAppError(c *gin.Context, logger *zap.SugaredLogger, appErr *errors.AppError) {
	fields := []interface{}{
		"code", appErr.Code,
		"status", appErr.HTTPStatus,
		"path", c.Request.URL.Path,
		"method", c.Request.Method,
	}
	if appErr.Cause != nil {
		fields = append(fields, "cause", appErr.Cause.Error())
	}
	logger.Errorw("request failed", fields...)

	c.JSON(appErr.HTTPStatus, gin.H{
		"error":   string(appErr.Code),
		"message": appErr.Message,
	})
}
