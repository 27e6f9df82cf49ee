package app

import (
	"context"
	"fmt"
	"log"

	credentialdomain "mailwatch-backend/internal/credential/domain"
	credentialRepo "mailwatch-backend/internal/credential/repository"
	credentialUsecase "mailwatch-backend/internal/credential/usecase"
	"mailwatch-backend/internal/history/publisher"
	historyUsecase "mailwatch-backend/internal/history/usecase"
	maildomain "mailwatch-backend/internal/mail/domain"
	mailRepo "mailwatch-backend/internal/mail/repository"
	"mailwatch-backend/internal/notification"
	notificationdomain "mailwatch-backend/internal/notification/domain"
	notificationRepo "mailwatch-backend/internal/notification/repository"
	watchdomain "mailwatch-backend/internal/watch/domain"
	watchRepo "mailwatch-backend/internal/watch/repository"
	"mailwatch-backend/internal/watch/scheduler"
	watchUsecase "mailwatch-backend/internal/watch/usecase"
	"mailwatch-backend/pkg/config"
	"mailwatch-backend/pkg/database"
	"mailwatch-backend/pkg/fcm"
	"mailwatch-backend/pkg/gmail"
	"mailwatch-backend/pkg/keylock"
	"mailwatch-backend/pkg/natsjs"

	"gorm.io/gorm"
)

// App holds the wired services shared by the API server and watchctl.
type App struct {
	Config    *config.Config
	DB        *gorm.DB
	Mails     mailRepo.MailRepository
	FCMTokens notificationRepo.FCMTokenRepository
	Watch     watchUsecase.WatchUsecase
	Consumer  historyUsecase.SyncConsumer
	Scheduler *scheduler.RenewalScheduler

	nats *natsjs.Publisher
}

// New connects to the database and optional brokers and wires every
// component. NATS and FCM are skipped when not configured or unreachable.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	db, err := database.NewPostgresConnection(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := database.AutoMigrate(db,
		&watchdomain.Subscription{},
		&credentialdomain.GmailToken{},
		&maildomain.Sender{},
		&maildomain.Mail{},
		&notificationdomain.FCMToken{},
	); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	// Initialize repositories (dependency injection)
	subscriptionRepo := watchRepo.NewSubscriptionRepository(db)
	tokenRepo := credentialRepo.NewTokenRepository(db)
	mailRepository := mailRepo.NewMailRepository(db)
	fcmTokenRepo := notificationRepo.NewFCMTokenRepository(db)

	locks := keylock.New()
	credentials := credentialUsecase.NewCredentialStore(tokenRepo, cfg.GoogleClientID, cfg.GoogleClientSecret)
	gmailService := gmail.NewService()

	watch := watchUsecase.NewWatchUsecase(subscriptionRepo, credentials, gmailService, mailRepository, locks, watchUsecase.Config{
		TopicName:       cfg.WatchTopic(),
		LabelIDs:        watchdomain.DefaultEventCategories,
		ProviderTimeout: cfg.ProviderTimeout,
	})

	a := &App{Config: cfg, DB: db, Mails: mailRepository, FCMTokens: fcmTokenRepo, Watch: watch}

	var events historyUsecase.EventPublisher
	if cfg.NatsURL != "" {
		js, err := natsjs.NewPublisher(cfg.NatsURL)
		if err != nil {
			log.Printf("[WARN] Failed to connect to NATS (sync events disabled): %v", err)
		} else if err := js.EnsureStream(ctx); err != nil {
			log.Printf("[WARN] Failed to ensure NATS stream (sync events disabled): %v", err)
			js.Close()
		} else {
			a.nats = js
			events = publisher.NewSyncPublisher(js)
			log.Printf("[DEBUG] NATS publisher connected to %s", cfg.NatsURL)
		}
	}

	a.Consumer = historyUsecase.NewSyncConsumer(subscriptionRepo, mailRepository, credentials, gmailService, watch, locks, events, historyUsecase.Config{
		FetchTimeout: cfg.ProviderTimeout,
	})

	// Initialize FCM Client (optional, renewal works without it)
	var sender notification.PushSender
	if cfg.FirebaseCredentials != "" {
		fcmClient, err := fcm.NewClient(ctx, cfg.FirebaseCredentials)
		if err != nil {
			log.Printf("[WARN] Failed to initialize FCM client (push notifications disabled): %v", err)
		} else {
			sender = fcmClient
		}
	} else {
		log.Printf("[DEBUG] No Firebase credentials configured, FCM disabled")
	}

	a.Scheduler = scheduler.NewRenewalScheduler(subscriptionRepo, watch, credentials, notification.NewDegradedNotifier(fcmTokenRepo, sender), scheduler.Config{
		Interval:      cfg.RenewalInterval,
		Window:        cfg.RenewalWindow,
		Concurrency:   cfg.RenewalConcurrency,
		DegradedAfter: cfg.DegradedAfter,
	})
	a.Scheduler.OnResync(func(mailbox string) {
		a.Consumer.Notify(mailbox, 0)
	})

	return a, nil
}

// Close stops renewals, waits for running sync cycles and releases
// connections.
func (a *App) Close() {
	a.Scheduler.Stop()
	a.Consumer.Shutdown()
	if a.nats != nil {
		a.nats.Close()
	}
	if sqlDB, err := a.DB.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
