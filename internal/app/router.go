package app

import (
	"fuelpoints-service/internal/domain/auth"
	authHandler "fuelpoints-service/internal/handlers/auth"
	campaignHandler "fuelpoints-service/internal/handlers/campaign"
	couponHandler "fuelpoints-service/internal/handlers/coupon"
	raffleHandler "fuelpoints-service/internal/handlers/raffle"
	redemptionHandler "fuelpoints-service/internal/handlers/redemption"
	stationHandler "fuelpoints-service/internal/handlers/station"
	ticketHandler "fuelpoints-service/internal/handlers/ticket"
	wsHandler "fuelpoints-service/internal/handlers/websocket"
	"fuelpoints-service/internal/middleware"
	"fuelpoints-service/internal/pkg/ratelimit"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Handlers struct {
	AuthHandler       *authHandler.AuthHandler
	CampaignHandler   *campaignHandler.CampaignHandler
	CouponHandler     *couponHandler.CouponHandler
	RedemptionHandler *redemptionHandler.RedemptionHandler
	TicketHandler     *ticketHandler.TicketHandler
	RaffleHandler     *raffleHandler.RaffleHandler
	StationHandler    *stationHandler.StationHandler
	WSHandler         *wsHandler.WebSocketHandler
	AuthMiddleware    *middleware.AuthMiddleware
	Limiter           *ratelimit.Limiter
}

func SetupRouter(r *gin.Engine, h *Handlers) {
	api := r.Group("/api/v1")

	// ==================== Operational ====================
	api.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// ==================== WebSocket ====================
	r.GET("/ws", h.WSHandler.HandleConnection)

	// ==================== Public Auth ====================
	authPublic := api.Group("/auth")
	{
		authPublic.POST("/register", h.AuthHandler.Register)
		authPublic.POST("/login", h.AuthHandler.Login)
	}

	// ==================== Authenticated Auth ====================
	authProtected := api.Group("/auth")
	authProtected.Use(h.AuthMiddleware.Auth())
	{
		authProtected.GET("/me", h.AuthHandler.GetMe)
	}

	// ==================== Campaigns ====================
	campaigns := api.Group("/campaigns")
	campaigns.Use(h.AuthMiddleware.Auth())
	{
		campaigns.GET("", h.CampaignHandler.ListCampaigns)
		campaigns.GET("/:id", h.CampaignHandler.GetCampaign)
		campaigns.GET("/:id/metrics", h.CampaignHandler.GetMetrics)
		campaigns.GET("/:id/coupons", h.CouponHandler.ListByCampaign)

		adminOnly := campaigns.Group("")
		adminOnly.Use(h.AuthMiddleware.RequireCampaignAdmin())
		{
			adminOnly.POST("", h.CampaignHandler.CreateCampaign)
			adminOnly.PUT("/:id/status", h.CampaignHandler.ChangeStatus)
			adminOnly.POST("/:id/coupons", h.CouponHandler.GenerateBatch)
		}
	}

	// ==================== Coupons ====================
	coupons := api.Group("/coupons")
	coupons.Use(h.AuthMiddleware.Auth())
	{
		coupons.POST("/validate", h.CouponHandler.Validate)
		coupons.GET("/:code", h.CouponHandler.GetByCode)

		adminOnly := coupons.Group("")
		adminOnly.Use(h.AuthMiddleware.RequireCampaignAdmin())
		{
			adminOnly.PUT("/:code/void", h.CouponHandler.Void)
		}
	}

	// ==================== Redemptions ====================
	redemptions := api.Group("/redemptions")
	redemptions.Use(h.AuthMiddleware.Auth())
	{
		// The till endpoint: station staff consume coupons here.
		redemptions.POST("",
			h.AuthMiddleware.RequireRedeemer(),
			middleware.RedemptionRateLimit(h.Limiter),
			h.RedemptionHandler.Redeem)

		redemptions.GET("/mine", h.RedemptionHandler.ListMine)
		redemptions.GET("/:id", h.RedemptionHandler.GetRedemption)
		redemptions.POST("/:id/multiplier", h.RedemptionHandler.ApplyMultiplier)

		adminOnly := redemptions.Group("")
		adminOnly.Use(h.AuthMiddleware.RequireCampaignAdmin())
		{
			adminOnly.PUT("/:id/void", h.RedemptionHandler.Void)
			adminOnly.GET("/reconcile", h.RedemptionHandler.Reconcile)
		}
	}

	// ==================== Tickets ====================
	tickets := api.Group("/tickets")
	tickets.Use(h.AuthMiddleware.Auth())
	{
		tickets.GET("/mine", h.TicketHandler.ListMine)
		tickets.GET("/mine/count", h.TicketHandler.CountMine)
		tickets.GET("/:id", h.TicketHandler.GetTicket)
		tickets.POST("/:id/transfer", h.TicketHandler.Transfer)
	}

	// ==================== Raffles ====================
	raffles := api.Group("/raffles")
	raffles.Use(h.AuthMiddleware.Auth())
	{
		raffles.GET("", h.RaffleHandler.ListRaffles)
		raffles.GET("/:id", h.RaffleHandler.GetRaffle)
		raffles.GET("/:id/winners", h.RaffleHandler.ListWinners)
		raffles.POST("/winners/:winner_id/claim", h.RaffleHandler.ClaimPrize)

		adminOnly := raffles.Group("")
		adminOnly.Use(h.AuthMiddleware.RequireCampaignAdmin())
		{
			adminOnly.POST("", h.RaffleHandler.CreateRaffle)
			adminOnly.PUT("/:id/open", h.RaffleHandler.Open)
			adminOnly.POST("/:id/draw", h.RaffleHandler.Draw)
			adminOnly.PUT("/:id/settle", h.RaffleHandler.Settle)
			adminOnly.PUT("/:id/cancel", h.RaffleHandler.Cancel)
		}
	}

	// ==================== Stations ====================
	stations := api.Group("/stations")
	stations.Use(h.AuthMiddleware.Auth())
	{
		stations.GET("", h.StationHandler.ListStations)
		stations.GET("/:id", h.StationHandler.GetStation)

		superOnly := stations.Group("")
		superOnly.Use(h.AuthMiddleware.RequireRole(auth.RoleSuperAdmin))
		{
			superOnly.POST("", h.StationHandler.CreateStation)
			superOnly.PUT("/:id/active", h.StationHandler.SetActive)
		}
	}

	// ==================== Admin ====================
	admin := api.Group("/admin")
	admin.Use(h.AuthMiddleware.Auth(), h.AuthMiddleware.RequireRole(auth.RoleSuperAdmin))
	{
		admin.POST("/staff", h.AuthHandler.CreateStaff)
		admin.GET("/ws/stats", h.WSHandler.GetStats)
	}
}
