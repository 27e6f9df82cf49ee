package api

import (
	"net/http"
	"time"

	authUsecase "mailwatch-backend/internal/auth/usecase"
	notificationDelivery "mailwatch-backend/internal/notification/delivery"
	watchDelivery "mailwatch-backend/internal/watch/delivery"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	authUsecase  authUsecase.AuthUsecase
	watchHandler *watchDelivery.WatchHandler
	pushHandler  *notificationDelivery.PushHandler
	fcmHandler   *notificationDelivery.FCMHandler
}

func NewHandler(authUc authUsecase.AuthUsecase, watchHandler *watchDelivery.WatchHandler, pushHandler *notificationDelivery.PushHandler, fcmHandler *notificationDelivery.FCMHandler) *Handler {
	return &Handler{
		authUsecase:  authUc,
		watchHandler: watchHandler,
		pushHandler:  pushHandler,
		fcmHandler:   fcmHandler,
	}
}

// Engine builds the gin engine with CORS and all routes.
func (h *Handler) Engine() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.Default()

	// CORS middleware
	r.Use(func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin != "" {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
		} else {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		}

		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	SetupRoutes(r, h.authUsecase, h.watchHandler, h.pushHandler, h.fcmHandler)
	return r
}

// Server returns an http.Server for addr so the caller can shut it down.
func (h *Handler) Server(addr string) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           h.Engine(),
		ReadHeaderTimeout: 10 * time.Second,
	}
}
