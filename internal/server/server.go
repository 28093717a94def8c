package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"time"

	"duochat/config"
	"duochat/internal/handler"
	"duochat/internal/middleware"
	"duochat/internal/redis"
	"duochat/internal/transport/httpdto"
	"duochat/internal/websocket"
	"duochat/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type Server struct {
	httpServer *http.Server
	engine     *gin.Engine
	config     *config.Config
	logger     *logger.Logger
}

var (
	ReleaseMode = "release"
	DebugMode   = "debug"
	TestMode    = "test"
)

type Handlers struct {
	Auth     *handler.AuthHandler
	Messages *handler.MessageHandler
	// WebSocket is nil when the realtime mode is null; /ws is then not mounted.
	WebSocket *websocket.Handler
}

// PresenceReader lists the user ids the presence mirror holds as online.
type PresenceReader interface {
	OnlineUsers(ctx context.Context) ([]string, error)
}

// Deps are the collaborators the routes need beyond the handlers.
type Deps struct {
	Guard   *middleware.AuthGuard
	Gateway websocket.Gateway
	// Limiter is optional.
	Limiter *redis.RateLimiter
	// Presence is the redis presence mirror, when enabled.
	Presence PresenceReader
	Health  func(ctx context.Context) error
}

func New(cfg *config.Config, l *logger.Logger) *Server {
	if cfg.AppMode == ReleaseMode {
		gin.SetMode(gin.ReleaseMode)
	} else if cfg.AppMode == TestMode {
		gin.SetMode(gin.TestMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}
	if l == nil {
		l = logger.NewNop()
	}

	engine := gin.New()
	engine.Use(middleware.Recovery(l))

	return &Server{
		httpServer: &http.Server{
			Addr:              fmt.Sprintf(":%s", cfg.AppPort),
			Handler:           engine,
			ReadHeaderTimeout: 10 * time.Second,
		},
		engine: engine,
		config: cfg,
		logger: l,
	}
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) SetupRoutes(handlers *Handlers, deps Deps) {
	s.engine.Use(middleware.RequestIDMiddleware())
	s.engine.Use(middleware.CORSMiddleware(s.config.CORSOrigins))
	s.engine.Use(middleware.LoggingMiddleware(s.logger))
	s.engine.Use(middleware.ErrorHandler(s.logger))
	s.engine.Use(maxBody(s.config.MaxBodyBytes))

	var (
		authLimiter    middleware.AuthLimiter
		messageLimiter middleware.MessageLimiter
	)
	if deps.Limiter != nil {
		authLimiter, messageLimiter = deps.Limiter, deps.Limiter
	}
	gateway := deps.Gateway
	if gateway == nil {
		gateway = websocket.NullGateway{}
	}

	s.engine.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, httpdto.Envelope{Success: true, Message: "pong"})
	})

	s.engine.GET("/health", func(c *gin.Context) {
		if deps.Health != nil {
			if err := deps.Health(c.Request.Context()); err != nil {
				c.JSON(http.StatusServiceUnavailable, httpdto.NewErrorResponse(err.Error(), "UNHEALTHY"))
				return
			}
		}
		c.JSON(http.StatusOK, httpdto.Envelope{Success: true, Message: "healthy"})
	})

	if s.config.BlobDriver == config.BlobLocal && s.config.UploadsPath != "" {
		s.engine.Static(s.config.UploadsPublicBase, s.config.UploadsPath)
	}

	requireAuth := deps.Guard.Middleware()

	auth := s.engine.Group("/api/auth")
	{
		auth.POST("/signup", middleware.AuthRateLimitMiddleware(authLimiter), handlers.Auth.Signup)
		auth.POST("/login", middleware.AuthRateLimitMiddleware(authLimiter), handlers.Auth.Login)
		auth.PUT("/update-profile", requireAuth, handlers.Auth.UpdateProfile)
		auth.GET("/check", requireAuth, handlers.Auth.Check)
	}

	handlers.Messages.Register(
		s.engine.Group("/api/messages", requireAuth),
		middleware.MessageRateLimitMiddleware(messageLimiter),
	)

	s.engine.GET("/api/status", requireAuth, func(c *gin.Context) {
		online := gateway.OnlineUsers()
		if online == nil {
			online = []uuid.UUID{}
		}
		body := gin.H{
			"success":     true,
			"realtime":    s.config.RealtimeMode,
			"onlineUsers": online,
		}
		if deps.Presence != nil {
			mirrored, err := deps.Presence.OnlineUsers(c.Request.Context())
			if err != nil {
				s.logger.WithContext(c.Request.Context()).Warn("presence mirror unavailable", zap.Error(err))
			} else {
				sort.Strings(mirrored)
				body["mirroredUsers"] = mirrored
			}
		}
		c.JSON(http.StatusOK, body)
	})

	if handlers.WebSocket != nil {
		s.engine.GET("/ws", handlers.WebSocket.Connect)
	}
}

// Run serves until ctx is cancelled and then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Infof("Starting the server on port %s...", s.config.AppPort)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Infof("Shutdown signal received, draining connections")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Errorf("Error in the graceful shutdown of the server: %s", err)
		return err
	}

	s.logger.Infof("Server stopped gracefully")
	return nil
}

func maxBody(limit int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limit > 0 && c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
		}
		c.Next()
	}
}
