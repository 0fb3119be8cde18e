package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"casino-engine/internal/middleware"
	"casino-engine/internal/seeds"
	"casino-engine/internal/services"
)

type RouterConfig struct {
	Engine  *services.GameEngine
	Vault   *seeds.Vault
	JWT     *services.JWTService
	Hub     *WebSocketHub
	Limiter middleware.RateLimiter

	// Bets per user per minute; zero disables the limit.
	BetRateLimit int
	// Operator endpoints are mounted only when set.
	AdminAPIKey string
	Production  bool
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	if cfg.Production {
		gin.SetMode(gin.ReleaseMode)
	}

	gameHandler := NewGameHandler(cfg.Engine)
	seedHandler := NewSeedHandler(cfg.Vault)
	userHandler := NewUserHandler(cfg.Engine)
	wsHandler := NewWebSocketHandler(cfg.Engine, cfg.Hub)

	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestLogger(), middleware.CORS())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api")
	api.POST("/verify", gameHandler.Verify)

	limits := map[string]middleware.Limit{
		"POST /api/bets":             {Action: "bet", Limit: cfg.BetRateLimit, Window: time.Minute},
		"POST /api/bets/:id/cashout": {Action: "cashout", Limit: 2 * cfg.BetRateLimit, Window: time.Minute},
		"POST /api/seeds/rotate":     {Action: "rotate", Limit: 10, Window: time.Minute},
	}

	protected := api.Group("")
	protected.Use(middleware.AuthMiddleware(cfg.JWT))
	if cfg.Limiter != nil {
		protected.Use(middleware.RateLimitMiddleware(cfg.Limiter, limits))
	}
	{
		protected.GET("/me", userHandler.GetCurrentUser)
		protected.GET("/ws", wsHandler.HandleWebSocket)
		protected.GET("/balance", gameHandler.GetBalance)
		protected.GET("/ledger", gameHandler.GetLedger)

		bets := protected.Group("/bets")
		{
			bets.POST("", gameHandler.PlaceBet)
			bets.GET("", gameHandler.GetBetHistory)
			bets.GET("/:id", gameHandler.GetBet)
			bets.POST("/:id/complete", gameHandler.CompleteBet)
			bets.POST("/:id/cashout", gameHandler.CashOut)
			bets.GET("/:id/ledger", gameHandler.GetBetLedger)
			bets.GET("/:id/verify", gameHandler.VerifyBet)
		}

		seedRoutes := protected.Group("/seeds")
		{
			seedRoutes.GET("/current", seedHandler.GetCurrent)
			seedRoutes.POST("/rotate", seedHandler.Rotate)
			seedRoutes.GET("/reveal", seedHandler.Reveal)
		}
	}

	if cfg.AdminAPIKey != "" {
		admin := router.Group("/admin")
		admin.Use(middleware.APIKeyMiddleware(cfg.AdminAPIKey))
		admin.POST("/bets/:id/void", gameHandler.VoidBet)
	}

	return router
}
