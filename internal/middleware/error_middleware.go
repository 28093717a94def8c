package middleware

import (
	"fmt"
	"net/http"

	"duochat/internal/transport/httpdto"
	duochat_errors "duochat/pkg/errors"
	"duochat/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ErrorHandler answers requests that finished with c.Error and nothing
// written. Internal error text never reaches the client.
func ErrorHandler(l *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}

		err := c.Errors.Last().Err
		if l != nil {
			l.WithContext(c.Request.Context()).Error("request error", zap.Error(err))
		}
		status := c.Writer.Status()
		if status < http.StatusBadRequest {
			status = http.StatusInternalServerError
		}
		c.JSON(status, httpdto.NewErrorResponse("internal server error", duochat_errors.CodeInternal))
	}
}

// Recovery turns a panic into a 500 envelope and logs the value.
func Recovery(l *logger.Logger) gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered any) {
		if l != nil {
			l.WithContext(c.Request.Context()).Error("panic recovered",
				zap.String("panic", fmt.Sprint(recovered)),
				zap.String("path", c.Request.URL.Path),
			)
		}
		c.AbortWithStatusJSON(http.StatusInternalServerError, httpdto.NewErrorResponse("internal server error", duochat_errors.CodeInternal))
	})
}
