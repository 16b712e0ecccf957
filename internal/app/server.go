// internal/app/server.go
package app

import (
	"context"
	"fmt"
	"log"

	"sokoni-service/internal/config"
	"sokoni-service/internal/db"
	listingHandler "sokoni-service/internal/handlers/listing"
	notifyHandler "sokoni-service/internal/handlers/notification"
	subscriptionHandler "sokoni-service/internal/handlers/subscription"
	sweepHandler "sokoni-service/internal/handlers/sweep"
	wsHandler "sokoni-service/internal/handlers/websocket"
	natsPub "sokoni-service/internal/messaging/nats"
	"sokoni-service/internal/middleware"
	"sokoni-service/internal/migrations"
	"sokoni-service/internal/pkg/clock"
	"sokoni-service/internal/pkg/jwt"
	"sokoni-service/internal/repository/cache"
	"sokoni-service/internal/repository/postgres"
	listingUsecase "sokoni-service/internal/service/listing"
	notifyUsecase "sokoni-service/internal/service/notification"
	quotaUsecase "sokoni-service/internal/service/quota"
	subscriptionUsecase "sokoni-service/internal/service/subscription"
	sweepUsecase "sokoni-service/internal/service/sweep"
	"sokoni-service/internal/websocket"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type Server struct {
	cfg    config.AppConfig
	engine *gin.Engine
	logger *zap.Logger
	cancel context.CancelFunc
}

func NewServer() *Server {
	cfg := config.Load()
	engine := gin.Default()
	return &Server{cfg: cfg, engine: engine}
}

func (s *Server) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	// ----- Logger -----
	logger, _ := zap.NewProduction()
	defer logger.Sync()
	s.logger = logger

	// ----- PostgreSQL -----
	pool, err := db.ConnectDB(s.cfg.PostgresDSN)
	if err != nil {
		return fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}

	if err := migrations.Run(ctx, pool); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	// ----- Redis -----
	redisClient, err := db.NewRedisClient(db.RedisConfig{
		Addr:     s.cfg.RedisAddr,
		Password: s.cfg.RedisPass,
		DB:       0,
		PoolSize: 10,
	})
	if err != nil {
		log.Fatalf("[REDIS] ❌ Failed to connect to Redis: %v", err)
	}
	log.Println("[REDIS] ✅ Connected successfully")

	// ----- NATS -----
	publisher, err := natsPub.NewPublisher(s.cfg.NATSURL)
	if err != nil {
		logger.Warn("failed to connect to NATS, events will not be published", zap.Error(err))
		publisher = nil
	}

	// ----- JWT Verifier -----
	verifier, err := jwt.NewVerifier(s.cfg.JWT)
	if err != nil {
		return fmt.Errorf("failed to load JWT verifier: %w", err)
	}

	// ----- Clock -----
	clk := clock.NewSystem()

	// ----- Repositories -----
	dbWrapper := postgres.NewDB(pool)
	listingRepo := postgres.NewListingRepository(pool)
	subscriptionRepo := postgres.NewSubscriptionRepository(pool)
	tierRepo := postgres.NewTierRepository(pool)
	promotionRepo := postgres.NewPromotionRepository(pool)
	transactionRepo := postgres.NewTransactionRepository(pool)
	notifyRepo := postgres.NewNotificationRepository(pool)
	listingCache := cache.NewListingCache(redisClient)

	// ----- WebSocket Hub -----
	hub := websocket.NewHub(logger)
	go hub.Run(ctx)

	// ----- Services (Usecases) -----
	notifyService := notifyUsecase.NewService(notifyRepo, hub, publisher, logger)
	quotaService := quotaUsecase.NewService(subscriptionRepo, listingRepo, promotionRepo, clk, logger)
	listingService := listingUsecase.NewService(
		listingRepo,
		subscriptionRepo,
		tierRepo,
		promotionRepo,
		transactionRepo,
		quotaService,
		listingCache,
		dbWrapper,
		clk,
		logger,
	)
	subscriptionService := subscriptionUsecase.NewService(subscriptionRepo, listingRepo, clk, logger)
	sweepService := sweepUsecase.NewService(
		listingRepo,
		subscriptionRepo,
		promotionRepo,
		dbWrapper,
		notifyService,
		clk,
		s.cfg.SweepBatchSize,
		logger,
	)

	// ----- Expiry Sweep Scheduler -----
	scheduler := sweepUsecase.NewScheduler(sweepService, s.cfg.SweepInterval, logger)
	go scheduler.Run(ctx)

	// ----- Handlers -----
	handlers := &Handlers{
		ListingHandler:      listingHandler.NewListingHandler(listingService),
		SubscriptionHandler: subscriptionHandler.NewSubscriptionHandler(subscriptionService),
		NotifHandler:        notifyHandler.NewNotificationHandler(notifyService),
		SweepHandler:        sweepHandler.NewSweepHandler(sweepService, logger),
		WSHandler:           wsHandler.NewWebSocketHandler(hub, verifier, logger),
		AuthMiddleware:      middleware.NewAuthMiddleware(verifier),
	}

	s.engine.Use(middleware.RecoveryMiddleware(logger))
	SetupRouter(s.engine, logger, handlers)

	logger.Info("server starting", zap.String("addr", s.cfg.HTTPAddr))
	return s.engine.Run(s.cfg.HTTPAddr)
}

// Shutdown stops the hub and scheduler goroutines.
func (s *Server) Shutdown() {
	if s.cancel != nil {
		s.cancel()
	}
}
