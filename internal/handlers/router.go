// Package handlers contains the HTTP handlers and routing.
package handlers

import (
	"github.com/gin-gonic/gin"
)

// RouterConfig holds the routing options.
type RouterConfig struct {
	GinMode          string
	ServiceJWTSecret string
	CallbackRPS      float64
	CallbackBurst    int
}

// SetupRouter configures the Gin router with all routes.
func SetupRouter(handler *PaymentHandler, cfg RouterConfig) *gin.Engine {
	gin.SetMode(cfg.GinMode)

	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	router.Use(CORSMiddleware())
	router.Use(RequestIDMiddleware())

	// Health check (public)
	router.GET("/health", handler.Health)

	// Shopper receipt page, redirects to the provider
	router.GET("/pay/:order_id", handler.Pay)

	// Provider callback (public, order reference optionally signed)
	callback := router.Group("/irandargah")
	callback.Use(RateLimitMiddleware(cfg.CallbackRPS, cfg.CallbackBurst))
	{
		callback.GET("/callback", handler.Callback)
		callback.POST("/callback", handler.Callback)
	}

	// API v1 routes (requires Bearer auth)
	v1 := router.Group("/api/v1")
	{
		payments := v1.Group("/payments")
		payments.Use(ServiceAuthMiddleware(cfg.ServiceJWTSecret))
		{
			payments.POST("/:order_id/checkout", handler.Checkout)
		}
	}

	return router
}
