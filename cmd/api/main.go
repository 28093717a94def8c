package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"duochat/config"
	"duochat/internal/handler"
	"duochat/internal/middleware"
	"duochat/internal/redis"
	"duochat/internal/server"
	"duochat/internal/services"
	"duochat/internal/storage"
	"duochat/internal/websocket"
	"duochat/pkg/database"
	"duochat/pkg/logger"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg := config.LoadConfig()

	l := logger.New(cfg.LogMode)
	logger.SetGlobalLogger(l)
	defer l.Sync()

	if err := run(cfg, l); err != nil {
		l.Logger.Error("server exited", zap.Error(err))
		os.Exit(1)
	}
}

func run(cfg *config.Config, l *logger.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stores, err := database.OpenStores(cfg, l)
	if err != nil {
		return err
	}
	defer stores.Close()
	if err := stores.Migrate(); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	blobs, err := openBlobStore(ctx, cfg)
	if err != nil {
		return err
	}

	var (
		redisClient *goredis.Client
		limiter     *redis.RateLimiter
		presence    *redis.PresenceStore
	)
	if cfg.RedisEnabled {
		redisClient, err = redis.Connect(ctx, redis.Config{
			Host:     cfg.RedisHost,
			Port:     cfg.RedisPort,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			return err
		}
		defer redisClient.Close()

		limits := redis.DefaultRateLimitConfig()
		if cfg.MessageRateLimit > 0 {
			limits.MessageLimit = cfg.MessageRateLimit
		}
		limiter = redis.NewRateLimiter(redisClient, limits)
		presence = redis.NewPresenceStore(redisClient, 0)

		// A previous process may have died without marking its users offline.
		if err := presence.Clear(ctx); err != nil {
			l.Warnf("failed to clear stale presence: %v", err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	var (
		gateway   websocket.Gateway = websocket.NullGateway{}
		wsHandler *websocket.Handler
	)
	authService := services.NewAuthService(stores.Users, blobs, cfg)

	if cfg.RealtimeMode == config.RealtimeLive {
		hubCfg := websocket.HubConfig{
			TypingWindow: cfg.TypingTimeout,
			LastSeen:     stores.Users,
			Logger:       websocket.NewWebSocketLogger(l),
		}
		handlerCfg := websocket.HandlerConfig{
			TrustHandshake: cfg.WSTrustHandshake,
			AllowedOrigins: cfg.CORSOrigins,
		}
		if presence != nil {
			hubCfg.Mirror = presence
		}
		if limiter != nil {
			handlerCfg.Limiter = limiter
		}

		hub := websocket.NewHub(hubCfg)
		connLimiter := websocket.NewWebSocketRateLimiter(10, time.Minute)
		wsHandler = websocket.NewHandler(authService, hub, connLimiter, handlerCfg)
		gateway = hub

		g.Go(func() error {
			hub.Run(gctx)
			hub.Wait()
			return nil
		})
		g.Go(func() error {
			connLimiter.RunCleanup(gctx, 5*time.Minute)
			return nil
		})
	}

	conversations := services.NewConversationService(stores.Users, stores.Messages, blobs, gateway, l.Logger)

	deps := server.Deps{
		Guard:   middleware.NewAuthGuard(gctx, authService, time.Minute),
		Gateway: gateway,
		Limiter: limiter,
		Health:  stores.HealthCheck,
	}
	if presence != nil {
		deps.Presence = presence
	}

	srv := server.New(cfg, l)
	srv.SetupRoutes(&server.Handlers{
		Auth:      handler.NewAuthHandler(authService, l),
		Messages:  handler.NewMessageHandler(conversations, l),
		WebSocket: wsHandler,
	}, deps)

	g.Go(func() error {
		return srv.Run(gctx)
	})

	l.Infof("duochat started: store=%s blobs=%s realtime=%s redis=%t",
		cfg.StoreDriver, cfg.BlobDriver, cfg.RealtimeMode, cfg.RedisEnabled)
	return g.Wait()
}

func openBlobStore(ctx context.Context, cfg *config.Config) (storage.BlobStore, error) {
	switch cfg.BlobDriver {
	case config.BlobS3:
		return storage.NewS3Store(ctx, storage.S3Config{
			Region:     cfg.S3Region,
			Bucket:     cfg.S3Bucket,
			AccessKey:  cfg.S3AccessKey,
			SecretKey:  cfg.S3SecretKey,
			Endpoint:   cfg.S3Endpoint,
			PublicBase: cfg.S3PublicBase,
			ACL:        cfg.S3ACL,
		})
	case config.BlobLocal:
		return storage.NewLocalStore(cfg.UploadsPath, cfg.UploadsPublicBase)
	default:
		return nil, fmt.Errorf("unknown blob driver %q", cfg.BlobDriver)
	}
}
