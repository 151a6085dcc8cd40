package handlers

import (
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"magnifiq/internal/app"
	"magnifiq/internal/http/middleware"
	"magnifiq/internal/webhook"
)

// SetupRoutes sets up all API routes
func SetupRoutes(api *echo.Group, services *app.Services) {
	wsHandler := NewWebSocketHandler(services.AuthService)
	services.Notifier = wsHandler

	// Auth routes (no authentication required)
	authHandler := NewAuthHandler(services.AuthService)
	auth := api.Group("/auth")
	auth.POST("/login", authHandler.Login)
	auth.POST("/refresh", authHandler.RefreshToken)

	connectionHandler := NewConnectionHandler(services)
	productHandler := NewProductHandler(services)
	generationHandler := NewGenerationHandler(services)

	// The OAuth callback and platform webhooks authenticate with the
	// platform's own signatures, not a user session.
	api.GET("/connections/callback", connectionHandler.OAuthCallback)

	shopifyAdapter, err := services.StoreManager.Platform("shopify")
	if err != nil {
		log.Warn().Err(err).Msg("shopify webhooks disabled")
	} else {
		webhookHandler := webhook.NewShopifyWebhookHandler(services.ConnectionRepo, shopifyAdapter, services.LocaleService)
		api.POST("/webhooks/shopify", webhookHandler.Handle)
	}

	// WebSocket authenticates via query token inside the handler
	api.GET("/ws", wsHandler.HandleWebSocket)

	// Protected routes (require authentication)
	protected := api.Group("")
	protected.Use(middleware.JWTAuth(services.AuthService))

	protected.PUT("/auth/change-password", authHandler.ChangePassword)

	protected.GET("/connections", connectionHandler.List)
	protected.POST("/connections", connectionHandler.Connect)
	protected.GET("/connections/:id", connectionHandler.GetByID)
	protected.DELETE("/connections/:id", connectionHandler.Disconnect)
	protected.POST("/connections/:id/sync", connectionHandler.TriggerSync)
	protected.GET("/connections/:id/sync-jobs", connectionHandler.ListSyncJobs)
	protected.GET("/connections/:id/locales", connectionHandler.Locales)
	protected.GET("/connections/:id/products", productHandler.ListByConnection)
	protected.GET("/connections/:id/products/search", productHandler.Search)

	protected.GET("/products/:id", productHandler.GetByID)
	protected.GET("/products/:id/generations", generationHandler.ListByProduct)

	protected.POST("/generations", generationHandler.Create)
	protected.GET("/generations/:id", generationHandler.GetByID)
	protected.POST("/generations/:id/publish", generationHandler.Publish)
	protected.POST("/generations/:id/unpublish", generationHandler.Unpublish)
	protected.GET("/generation-jobs/:id", generationHandler.GetJob)
}
