// internal/app/router.go
package app

import (
	listingHandler "sokoni-service/internal/handlers/listing"
	notifyHandler "sokoni-service/internal/handlers/notification"
	subscriptionHandler "sokoni-service/internal/handlers/subscription"
	sweepHandler "sokoni-service/internal/handlers/sweep"
	wsHandler "sokoni-service/internal/handlers/websocket"
	"sokoni-service/internal/middleware"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type Handlers struct {
	ListingHandler      *listingHandler.ListingHandler
	SubscriptionHandler *subscriptionHandler.SubscriptionHandler
	NotifHandler        *notifyHandler.NotificationHandler
	SweepHandler        *sweepHandler.SweepHandler
	WSHandler           *wsHandler.WebSocketHandler
	AuthMiddleware      *middleware.AuthMiddleware
}

func SetupRouter(r *gin.Engine, logger *zap.Logger, h *Handlers) {
	api := r.Group("/api/v1")

	// ==================== Health Check ====================
	api.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok", "version": "1.0.0"})
	})

	// ==================== WebSocket ====================
	r.GET("/ws", h.WSHandler.HandleConnection)

	// ==================== Public Browse ====================
	api.GET("/listings", h.ListingHandler.BrowseListings)
	api.GET("/listings/:id", h.ListingHandler.GetListing)

	// ==================== Seller Listings ====================
	listings := api.Group("/listings")
	listings.Use(h.AuthMiddleware.Auth())
	{
		listings.POST("", h.ListingHandler.CreateListing)
		listings.POST("/:id/submit", h.ListingHandler.SubmitListing)
		listings.POST("/:id/withdraw", h.ListingHandler.WithdrawListing)
		listings.POST("/:id/sold", h.ListingHandler.MarkSold)
		listings.POST("/:id/reactivate", h.ListingHandler.ReactivateListing)
		listings.POST("/:id/bump", h.ListingHandler.BumpListing)

		// Paid entitlement grants
		listings.POST("/:id/tier", h.ListingHandler.GrantTier)
		listings.POST("/:id/feature", h.ListingHandler.GrantFeatured)
		listings.POST("/:id/promote", h.ListingHandler.GrantPromotion)
	}

	// ==================== Moderation ====================
	moderation := api.Group("/moderation/listings")
	moderation.Use(h.AuthMiddleware.Auth(), h.AuthMiddleware.RequireRole("admin", "super_admin", "moderator"))
	{
		moderation.POST("/:id/approve", h.ListingHandler.ApproveListing)
		moderation.POST("/:id/reject", h.ListingHandler.RejectListing)
	}

	// ==================== Subscription ====================
	subscriptions := api.Group("/subscription")
	subscriptions.Use(h.AuthMiddleware.Auth())
	{
		subscriptions.GET("/me", h.SubscriptionHandler.GetActiveSubscription)
		subscriptions.GET("/usage", h.SubscriptionHandler.GetUsage)
		subscriptions.POST("/cancel", h.SubscriptionHandler.CancelSubscription)
	}

	// ==================== Notifications ====================
	notifications := api.Group("/notifications")
	notifications.Use(h.AuthMiddleware.Auth())
	{
		notifications.GET("", h.NotifHandler.ListNotifications)
		notifications.GET("/count/unread", h.NotifHandler.GetUnreadCount)
		notifications.PUT("/:id/read", h.NotifHandler.MarkRead)
	}

	// ==================== Admin ====================
	admin := api.Group("/admin")
	admin.Use(h.AuthMiddleware.Auth(), h.AuthMiddleware.RequireRole("admin", "super_admin"))
	{
		admin.POST("/sweep/run", h.SweepHandler.RunSweep)
	}
}
