// Package handler provides HTTP handlers for API endpoints.
package handler

import (
	"errors"
	"io"
	"net/http"

	"duochat/internal/middleware"
	"duochat/internal/transport/httpdto"
	duochat_errors "duochat/pkg/errors"
	"duochat/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// respondError writes a domain failure as HTTP 200 with the failure envelope.
// Errors outside the taxonomy are logged and reported generically.
func respondError(c *gin.Context, l *logger.Logger, err error) {
	code := duochat_errors.Code(err)
	msg := err.Error()
	if code == duochat_errors.CodeInternal {
		l.WithContext(c.Request.Context()).Error("request failed",
			zap.String("path", c.FullPath()),
			zap.Error(err),
		)
		msg = "internal server error"
	}
	c.JSON(http.StatusOK, httpdto.NewErrorResponse(msg, code))
}

func badRequest(c *gin.Context) {
	c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid request body", duochat_errors.CodeValidation))
}

func currentUser(c *gin.Context) (uuid.UUID, bool) {
	id, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, httpdto.NewErrorResponse("unauthorized", duochat_errors.CodeUnauthorized))
	}
	return id, ok
}

// pathID parses the :id route parameter. A malformed id is a validation
// failure reported in the envelope.
func pathID(c *gin.Context, l *logger.Logger) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, l, duochat_errors.ErrValidation)
		return uuid.Nil, false
	}
	return id, true
}

// bindOptionalJSON binds the body when there is one. An empty body leaves dst
// untouched, including a chunked one whose length is unknown up front.
func bindOptionalJSON(c *gin.Context, dst interface{}) bool {
	if c.Request.ContentLength == 0 || c.Request.Body == nil || c.Request.Body == http.NoBody {
		return true
	}
	if err := c.ShouldBindJSON(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return true
		}
		badRequest(c)
		return false
	}
	return true
}

func orNop(l *logger.Logger) *logger.Logger {
	if l == nil {
		return logger.NewNop()
	}
	return l
}
