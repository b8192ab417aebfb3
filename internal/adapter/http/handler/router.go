package handler

import (
	"ev-marketplace/internal/adapter/http/middleware"
	"ev-marketplace/internal/core/ports"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// RouterDeps holds all dependencies needed to set up routes.
type RouterDeps struct {
	LedgerSvc      ports.LedgerService
	OrderSvc       ports.OrderService
	ReconcilerSvc  ports.ReconcilerService
	SigSvc         ports.SignatureService
	TokenSvc       ports.TokenService
	CallbackSecret string
	HealthCheckers []ports.HealthChecker
	Logger         zerolog.Logger
}

// SetupRouter initialises the Gin engine with all routes and middleware.
func SetupRouter(deps RouterDeps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(middleware.Metrics())
	r.Use(middleware.MaxBodySize(1 << 20)) // 1 MB request body limit

	// Health check (deep — verifies PostgreSQL + Redis)
	r.GET("/health", HealthCheck(deps.HealthCheckers...))
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API v1 routes
	v1 := r.Group("/api/v1")

	// --- Gateway callback (HMAC-signed, no JWT) ---
	webhookHandler := NewWebhookHandler(deps.LedgerSvc, deps.SigSvc, deps.CallbackSecret, deps.Logger)
	v1.POST("/webhooks/payment", webhookHandler.PaymentCallback)

	// --- JWT-authenticated routes ---
	jwtAuth := middleware.JWTAuth(deps.TokenSvc, deps.Logger)

	walletHandler := NewWalletHandler(deps.LedgerSvc)
	wallets := v1.Group("/wallets", jwtAuth)
	{
		wallets.GET("/balance", walletHandler.GetBalance)
		wallets.GET("/transactions", walletHandler.ListTransactions)
		wallets.POST("/withdraw", walletHandler.Withdraw)
	}

	orderHandler := NewOrderHandler(deps.OrderSvc)
	orders := v1.Group("/orders", jwtAuth)
	{
		orders.POST("", orderHandler.PlaceOrder)
		orders.GET("/:number", orderHandler.GetOrder)
		orders.POST("/:number/transition", orderHandler.Transition)
		orders.POST("/:number/ship", orderHandler.Ship)
		orders.POST("/:number/cancel", orderHandler.Cancel)
	}

	// --- Admin routes ---
	syncHandler := NewSyncHandler(deps.ReconcilerSvc)
	admin := v1.Group("/admin", jwtAuth, middleware.RequireRole(middleware.RoleAdmin))
	{
		admin.POST("/sync/orders", syncHandler.SyncAll)
		admin.POST("/sync/orders/:number", syncHandler.SyncOrder)
	}

	return r
}
