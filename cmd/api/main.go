package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/nexus-chat/moderation-service/internal/api/http"
	"github.com/nexus-chat/moderation-service/internal/api/http/handlers"
	"github.com/nexus-chat/moderation-service/internal/audit"
	"github.com/nexus-chat/moderation-service/internal/auth"
	"github.com/nexus-chat/moderation-service/internal/classifier"
	"github.com/nexus-chat/moderation-service/internal/config"
	"github.com/nexus-chat/moderation-service/internal/events"
	"github.com/nexus-chat/moderation-service/internal/moderation"
	"github.com/nexus-chat/moderation-service/internal/observability"
	"github.com/nexus-chat/moderation-service/internal/persistence"
	"github.com/nexus-chat/moderation-service/internal/repository"
	"github.com/nexus-chat/moderation-service/internal/service"
	"github.com/nexus-chat/moderation-service/internal/session"
	"github.com/nexus-chat/moderation-service/internal/worker"
	"github.com/nexus-chat/moderation-service/pkg/util/httpclient"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if cfg.Postgres.RunMigrations && pg.Enabled() {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(ctx, cfg.Redis, logger)
	defer redis.Close()

	var (
		userRepo    repository.UserRepository
		eventRepo   repository.SanctionEventRepository
		messageRepo repository.MessageRepository
	)
	if pg.Enabled() {
		pool := pg.PoolHandle()
		userRepo = repository.NewUserRepository(pool)
		eventRepo = repository.NewSanctionEventRepository(pool)
		messageRepo = repository.NewMessageRepository(pool)
	} else {
		userRepo = repository.NewMemoryUserRepository()
		eventRepo = repository.NewMemorySanctionEventRepository()
		messageRepo = repository.NewMemoryMessageRepository(0)
	}

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL())
	var (
		sessions session.Registry
		feed     *audit.StreamFeed
	)
	if redis.Available {
		sessions = session.NewRedisRegistry(redis.Client, tokens.TTL())
		feed = audit.NewStreamFeed(redis.Client, cfg.Redis.AuditStream, cfg.Redis.AuditStreamMaxLen)
	} else {
		sessions = session.NewMemoryRegistry(tokens.TTL())
	}

	metrics := observability.NewMetrics()
	dispatcher := events.NewInMemoryDispatcher(logger)
	auditLog := audit.NewLog(eventRepo, dispatcher, feed, metrics, logger)

	notifier := service.NewNotificationService(dispatcher, httpclient.New(logger.Named("webhook"), httpclient.DefaultOptions()), logger, cfg.Notification)
	notifierDone := worker.StartNotificationWorker(ctx, notifier)

	imageClassifier, err := classifier.NewImageClassifier(ctx, cfg.Classifier, logger)
	if err != nil {
		logger.Fatal("failed to init image classifier", zap.Error(err))
	}
	contentClassifier := classifier.New(classifier.NewTextClassifier(classifier.DefaultLists()), imageClassifier, metrics)

	limiter, err := moderation.NewRateLimiter(cfg.Moderation.SpamBurstSize, cfg.Moderation.SpamWindow, cfg.Moderation.RateWindowCapacity)
	if err != nil {
		logger.Fatal("failed to init rate limiter", zap.Error(err))
	}
	ledger := moderation.NewLedger(userRepo, logger)
	multiplier := moderation.NewMultiplier(cfg.Moderation.CoinMultiplier)
	escalator := moderation.NewEscalator(ledger, auditLog, sessions, moderation.PolicyFromConfig(cfg.Moderation), logger)
	admin := moderation.NewAdministrator(ledger, auditLog, sessions, limiter, multiplier, logger)
	pipeline := moderation.NewPipeline(moderation.PipelineConfig{
		ClassifierTimeout: cfg.Classifier.Timeout,
		FailurePolicy:     cfg.Classifier.FailurePolicy,
		BaseReward:        cfg.Moderation.CoinBaseReward,
	}, moderation.PipelineDeps{
		Classifier: contentClassifier,
		Ledger:     ledger,
		Limiter:    limiter,
		Escalator:  escalator,
		Admin:      admin,
		Sessions:   sessions,
		Messages:   messageRepo,
		Multiplier: multiplier,
		Metrics:    metrics,
		Logger:     logger,
	})

	authService := service.NewAuthService(cfg.Auth, service.AuthDependencies{
		Ledger:   ledger,
		Names:    contentClassifier,
		Sessions: sessions,
		Tokens:   tokens,
		Logger:   logger,
	})
	chatService := service.NewChatService(service.ChatDependencies{
		Pipeline:   pipeline,
		Ledger:     ledger,
		Messages:   messageRepo,
		Sessions:   sessions,
		Dispatcher: dispatcher,
		Logger:     logger,
	})

	app := fiber.New(fiber.Config{
		AppName:               cfg.App.Name,
		DisableStartupMessage: true,
	})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pg, redis, contentClassifier.ImageProvider()),
		Auth:           handlers.NewAuthHandler(authService),
		Chat:           handlers.NewChatHandler(chatService),
		Moderation:     handlers.NewModerationHandler(chatService, auditLog),
		AuthMiddleware: auth.NewAuthMiddleware(tokens, sessions),
	})

	go func() {
		logger.Info("listening", zap.String("addr", cfg.App.Addr()), zap.String("env", cfg.App.Env))
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	cancel()
	<-notifierDone
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
