package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	api "mailwatch-backend/cmd/api"
	"mailwatch-backend/internal/app"
	authUsecase "mailwatch-backend/internal/auth/usecase"
	"mailwatch-backend/internal/notification"
	notificationDelivery "mailwatch-backend/internal/notification/delivery"
	watchDelivery "mailwatch-backend/internal/watch/delivery"
	"mailwatch-backend/pkg/config"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration
	cfg := config.Load()

	application, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatal("Failed to initialize application:", err)
	}
	defer application.Close()

	// Initialize Notification Service (Pub/Sub)
	// Only start if project ID and topic are configured
	if cfg.GoogleProjectID != "" && cfg.GooglePubSubTopic != "" {
		notifService, err := notification.NewService(ctx, cfg.GoogleProjectID, cfg.TopicID(), cfg.GoogleCredentials, application.Consumer)
		if err != nil {
			log.Printf("[ERROR] Failed to initialize notification service: %v", err)
		} else {
			defer notifService.Close()
			go func() {
				if err := notifService.Start(ctx); err != nil {
					log.Printf("[ERROR] Notification service stopped: %v", err)
				}
			}()
		}
	} else {
		log.Printf("[WARN] GoogleProjectID or GooglePubSubTopic not configured, pull subscriber disabled")
	}

	application.Scheduler.Start()
	defer application.Scheduler.Stop()

	// Initialize HTTP handler
	handler := api.NewHandler(
		authUsecase.NewAuthUsecase(cfg.SupabaseJWTSecret),
		watchDelivery.NewWatchHandler(application.Watch, application.Consumer, application.Scheduler, application.Mails),
		notificationDelivery.NewPushHandler(application.Consumer, cfg.PubSubVerificationToken),
		notificationDelivery.NewFCMHandler(application.FCMTokens),
	)
	server := handler.Server(":" + cfg.Port)

	go func() {
		log.Printf("Server starting on port %s", cfg.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start server:", err)
		}
	}()

	<-ctx.Done()
	log.Println("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("[ERROR] HTTP shutdown: %v", err)
	}
}
