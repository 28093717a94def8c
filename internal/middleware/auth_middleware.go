package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	"duochat/internal/domain/user"
	"duochat/internal/services"
	"duochat/internal/transport/httpdto"
	duochat_errors "duochat/pkg/errors"
	"duochat/pkg/logger"

	"github.com/c-pro/geche"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// ContextUserIDKey is the gin context key holding the authenticated user id.
const ContextUserIDKey = "userID"

type Authenticator interface {
	AuthenticateToken(token string) (uuid.UUID, error)
	Check(ctx context.Context, userID uuid.UUID) (user.User, error)
}

// AuthGuard verifies access tokens and remembers for a while which users are
// known to exist, so most requests skip the store lookup.
type AuthGuard struct {
	auth  Authenticator
	known geche.Geche[uuid.UUID, struct{}]
}

func NewAuthGuard(ctx context.Context, auth Authenticator, ttl time.Duration) *AuthGuard {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &AuthGuard{
		auth:  auth,
		known: geche.NewMapTTLCache[uuid.UUID, struct{}](ctx, ttl, ttl),
	}
}

func (g *AuthGuard) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, err := g.auth.AuthenticateToken(extractToken(c))
		if err != nil {
			unauthorized(c)
			return
		}

		if _, err := g.known.Get(userID); err != nil {
			if _, err := g.auth.Check(c.Request.Context(), userID); err != nil {
				unauthorized(c)
				return
			}
			g.known.Set(userID, struct{}{})
		}

		c.Set(ContextUserIDKey, userID)
		ctx := services.WithUserContext(c.Request.Context(), userID)
		ctx = context.WithValue(ctx, logger.UserIdKey, userID.String())
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// Forget drops a cached user, for example after the account is removed.
func (g *AuthGuard) Forget(userID uuid.UUID) {
	_ = g.known.Del(userID)
}

// UserID returns the authenticated user set by the guard.
func UserID(c *gin.Context) (uuid.UUID, bool) {
	value, ok := c.Get(ContextUserIDKey)
	if !ok {
		return uuid.Nil, false
	}
	id, ok := value.(uuid.UUID)
	return id, ok
}

func unauthorized(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, httpdto.NewErrorResponse("unauthorized", duochat_errors.CodeUnauthorized))
}

// extractToken accepts "Authorization: Bearer <jwt>" and the bare "token"
// header older clients send.
func extractToken(c *gin.Context) string {
	if token := extractBearer(c); token != "" {
		return token
	}
	return strings.TrimSpace(c.GetHeader("token"))
}

func extractBearer(c *gin.Context) string {
	value := c.GetHeader("Authorization")
	parts := strings.SplitN(value, " ", 2)
	if len(parts) != 2 {
		return ""
	}
	if !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
