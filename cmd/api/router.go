package api

import (
	"net/http"

	"mailwatch-backend/internal/auth/delivery"
	authUsecase "mailwatch-backend/internal/auth/usecase"
	notificationDelivery "mailwatch-backend/internal/notification/delivery"
	watchDelivery "mailwatch-backend/internal/watch/delivery"

	"github.com/gin-gonic/gin"
)

func SetupRoutes(r *gin.Engine, authUsecase authUsecase.AuthUsecase, watchHandler *watchDelivery.WatchHandler, pushHandler *notificationDelivery.PushHandler, fcmHandler *notificationDelivery.FCMHandler) {
	api := r.Group("/api")
	{
		// Health check (no auth required)
		api.GET("/health", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
		})

		// Pub/Sub push delivery, authenticated by verification token
		api.POST("/pubsub/push", pushHandler.Receive)

		// Gmail watch routes (protected)
		gmail := api.Group("/gmail")
		gmail.Use(delivery.AuthMiddleware(authUsecase))
		{
			gmail.GET("/watch", delivery.RequireServiceRole(), watchHandler.ListWatches)
			gmail.POST("/watch", watchHandler.RegisterWatch)
			gmail.GET("/watch/:email", watchHandler.GetWatch)
			gmail.DELETE("/watch/:email", watchHandler.DeleteWatch)
			gmail.POST("/renew", delivery.RequireServiceRole(), watchHandler.Renew)
		}

		// FCM routes (protected)
		fcm := api.Group("/fcm")
		fcm.Use(delivery.AuthMiddleware(authUsecase))
		{
			fcm.POST("/register", fcmHandler.RegisterToken)
			fcm.DELETE("/:token", fcmHandler.UnregisterToken)
		}
	}
}
