package websocket

import (
	"context"
	"net/http"
	"strings"
	"time"

	"duochat/internal/transport/httpdto"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// TokenAuthenticator resolves an access token to its user.
type TokenAuthenticator interface {
	AuthenticateToken(token string) (uuid.UUID, error)
}

// ConnectionLimiter is an optional shared limit on connection attempts.
type ConnectionLimiter interface {
	AllowWebSocket(ctx context.Context, userID string) (bool, error)
}

type HandlerConfig struct {
	// TrustHandshake accepts a bare userId query parameter when no token is
	// presented.
	TrustHandshake bool
	AllowedOrigins []string
	Limiter        ConnectionLimiter
}

type Handler struct {
	auth     TokenAuthenticator
	hub      *Hub
	cfg      HandlerConfig
	local    *WebSocketRateLimiter
	upgrader websocket.Upgrader
}

func NewHandler(auth TokenAuthenticator, hub *Hub, local *WebSocketRateLimiter, cfg HandlerConfig) *Handler {
	h := &Handler{auth: auth, hub: hub, cfg: cfg, local: local}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(h.cfg.AllowedOrigins) == 0 {
		return true
	}
	for _, allowed := range h.cfg.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	return false
}

func (h *Handler) identify(c *gin.Context) (uuid.UUID, bool) {
	token := c.Query("token")
	if token == "" {
		if header := c.GetHeader("Authorization"); strings.HasPrefix(header, "Bearer ") {
			token = strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
		}
	}
	if token != "" {
		userID, err := h.auth.AuthenticateToken(token)
		return userID, err == nil
	}
	if h.cfg.TrustHandshake {
		userID, err := uuid.Parse(strings.TrimSpace(c.Query("userId")))
		return userID, err == nil && userID != uuid.Nil
	}
	return uuid.Nil, false
}

func (h *Handler) Connect(c *gin.Context) {
	userID, ok := h.identify(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, httpdto.NewErrorResponse("unauthorized", "UNAUTHORIZED"))
		return
	}

	if h.local != nil && !h.local.AllowConnection(userID) {
		c.JSON(http.StatusTooManyRequests, httpdto.NewErrorResponse("too many connections", "RATE_LIMITED"))
		return
	}
	if h.cfg.Limiter != nil {
		allowed, err := h.cfg.Limiter.AllowWebSocket(c.Request.Context(), userID.String())
		if err != nil {
			h.hub.logger.Warn("connection limiter unavailable", userID, "", zap.Error(err))
		} else if !allowed {
			c.JSON(http.StatusTooManyRequests, httpdto.NewErrorResponse("too many connections", "RATE_LIMITED"))
			return
		}
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.hub.logger.Error("upgrade failed", userID, "", err)
		return
	}

	client := NewClient(h.hub, conn, userID, uuid.NewString())
	if !h.hub.Register(client) {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(writeWait))
		conn.Close()
		return
	}

	go client.writePump()
	client.readPump()
}
