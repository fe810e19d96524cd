package app

import (
	"context"
	"fmt"
	"time"

	"fuelpoints-service/internal/config"
	"fuelpoints-service/internal/db"
	authHandler "fuelpoints-service/internal/handlers/auth"
	campaignHandler "fuelpoints-service/internal/handlers/campaign"
	couponHandler "fuelpoints-service/internal/handlers/coupon"
	raffleHandler "fuelpoints-service/internal/handlers/raffle"
	redemptionHandler "fuelpoints-service/internal/handlers/redemption"
	stationHandler "fuelpoints-service/internal/handlers/station"
	ticketHandler "fuelpoints-service/internal/handlers/ticket"
	wsHandler "fuelpoints-service/internal/handlers/websocket"
	"fuelpoints-service/internal/events"
	"fuelpoints-service/internal/middleware"
	"fuelpoints-service/internal/pkg/couponcode"
	"fuelpoints-service/internal/pkg/jwt"
	"fuelpoints-service/internal/pkg/ratelimit"
	"fuelpoints-service/internal/repository/postgres"
	authService "fuelpoints-service/internal/service/auth"
	campaignService "fuelpoints-service/internal/service/campaign"
	couponService "fuelpoints-service/internal/service/coupon"
	raffleService "fuelpoints-service/internal/service/raffle"
	redemptionService "fuelpoints-service/internal/service/redemption"
	stationService "fuelpoints-service/internal/service/station"
	ticketService "fuelpoints-service/internal/service/ticket"
	"fuelpoints-service/internal/websocket"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type Server struct {
	cfg    config.AppConfig
	engine *gin.Engine
	logger *zap.Logger
}

func NewServer() *Server {
	return &Server{
		cfg:    config.Load(),
		engine: gin.New(),
	}
}

func (s *Server) Start(ctx context.Context) error {
	logger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer logger.Sync()
	s.logger = logger

	// ----- PostgreSQL -----
	pool, err := db.ConnectDB(ctx, s.cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}
	defer pool.Close()
	logger.Info("connected to PostgreSQL")

	// ----- Redis -----
	redisClient, err := db.NewRedisClient(db.RedisConfig{
		Addr:     s.cfg.RedisAddr,
		Password: s.cfg.RedisPass,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}
	defer redisClient.Close()
	logger.Info("connected to redis")

	// ----- JWT Manager -----
	jwtManager, err := jwt.LoadAndBuild(s.cfg.JWT)
	if err != nil {
		return fmt.Errorf("failed to load JWT manager: %w", err)
	}

	// ----- Event stream & rate limiter -----
	publisher := events.NewStreamPublisher(redisClient, s.cfg.EventStreamPrefix, 100000)
	limiter := ratelimit.NewLimiter(redisClient)

	// ----- Repositories -----
	campaignRepo := postgres.NewCampaignRepository(pool)
	couponRepo := postgres.NewCouponRepository(pool)
	redemptionRepo := postgres.NewRedemptionRepository(pool)
	ticketRepo := postgres.NewTicketRepository(pool)
	raffleRepo := postgres.NewRaffleRepository(pool)
	stationRepo := postgres.NewStationRepository(pool)
	userRepo := postgres.NewUserRepository(pool)

	// ----- WebSocket hub -----
	hub := websocket.NewHub(jwtManager.Verifier, logger)
	go hub.Run(ctx)

	// ----- Services -----
	campaignSvc := campaignService.NewService(campaignRepo, publisher, logger)
	couponSvc := couponService.NewService(campaignRepo, couponRepo, publisher,
		couponcode.NewRandomGenerator(s.cfg.CouponCodePrefix, s.cfg.CouponCodeGroups), logger)
	redemptionSvc := redemptionService.NewService(couponRepo, campaignRepo, stationRepo, redemptionRepo,
		publisher, redemptionService.Policy{
			MaxAdMultiplier:    s.cfg.MaxAdMultiplier,
			MaxTicketTransfers: s.cfg.MaxTicketTransfers,
			TicketValidityDays: s.cfg.TicketValidityDays,
		}, logger)
	ticketSvc := ticketService.NewService(ticketRepo, publisher, s.cfg.MaxTicketTransfers, logger)
	raffleSvc := raffleService.NewService(raffleRepo, ticketRepo, publisher, hub,
		time.Duration(s.cfg.ClaimTTLDays)*24*time.Hour, logger)
	stationSvc := stationService.NewService(stationRepo, logger)
	authSvc := authService.NewService(userRepo, jwtManager, logger)

	// ----- Background sweeps -----
	sweeper := newSweeper(campaignSvc, couponSvc, ticketSvc, raffleSvc, logger)
	go sweeper.Run(ctx)

	// ----- Handlers & middleware -----
	authMW := middleware.NewAuthMiddleware(jwtManager.Verifier)
	s.engine.Use(
		middleware.RecoveryMiddleware(logger),
		middleware.LoggingMiddleware(logger),
		middleware.CORSMiddleware(),
	)

	handlers := &Handlers{
		AuthHandler:       authHandler.NewAuthHandler(authSvc, limiter, logger),
		CampaignHandler:   campaignHandler.NewCampaignHandler(campaignSvc),
		CouponHandler:     couponHandler.NewCouponHandler(couponSvc),
		RedemptionHandler: redemptionHandler.NewRedemptionHandler(redemptionSvc),
		TicketHandler:     ticketHandler.NewTicketHandler(ticketSvc),
		RaffleHandler:     raffleHandler.NewRaffleHandler(raffleSvc),
		StationHandler:    stationHandler.NewStationHandler(stationSvc),
		WSHandler:         wsHandler.NewWebSocketHandler(hub, logger),
		AuthMiddleware:    authMW,
		Limiter:           limiter,
	}
	SetupRouter(s.engine, handlers)

	logger.Info("server starting", zap.String("addr", s.cfg.HTTPAddr))
	return s.engine.Run(s.cfg.HTTPAddr)
}
